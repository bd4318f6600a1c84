package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/podcast-analyzer/app/logger"
	"github.com/lysyi3m/podcast-analyzer/app/refresh"
)

const (
	queueSize   = 300
	taskTimeout = 5 * time.Minute
	maxBackoff  = 30 * time.Second
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	pipeline    *Pipeline
	interval    time.Duration
	workerCount int
	now         func() time.Time
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(pipeline *Pipeline, workerCount int, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		pipeline:    pipeline,
		interval:    interval,
		workerCount: workerCount,
		now:         func() time.Time { return time.Now().UTC() },
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, queueSize),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

// Stop cancels the scheduler and waits for workers and pending retries. The
// queue is left open so a late retry cannot send on a closed channel.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueStartupTasks() {
	if err := s.EnqueueTask(NewSyncPodcastsTask(s.pipeline, s)); err != nil {
		slog.Warn("Failed to enqueue SyncPodcastsTask", "error", err)
	}

	podcasts, err := s.pipeline.Podcasts.ListUncheckedPodcasts(s.ctx)
	if err != nil {
		slog.Warn("Failed to list unchecked podcasts", "error", err)
		return
	}

	slog.Debug("Refreshing podcasts that were never checked", "count", len(podcasts))

	for _, p := range podcasts {
		if err := s.EnqueueTask(NewRefreshFeedTask(p.ID, false, s.pipeline, s)); err != nil {
			slog.Warn("Failed to enqueue RefreshFeedTask", "podcast", p.ID, "error", err)
		}
	}
}

// enqueueTasks dispatches due refresh jobs. A job is only moved forward once
// its task is queued, so a full queue leaves it due for the next tick. One-off
// jobs are pushed back rather than removed until analysis re-registers them.
func (s *Scheduler) enqueueTasks() {
	now := s.now()

	jobs, err := s.pipeline.Jobs.DueRefreshJobs(s.ctx, now)
	if err != nil {
		slog.Warn("Failed to get due refresh jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		slog.Debug("No refresh jobs due")
		return
	}

	slog.Debug("Dispatching due refresh jobs", "count", len(jobs))

	for _, job := range jobs {
		if err := s.EnqueueTask(NewRefreshFeedTask(job.PodcastID, false, s.pipeline, s)); err != nil {
			slog.Warn("Failed to enqueue RefreshFeedTask", "podcast", job.PodcastID, "job", job.Name, "error", err)
			continue
		}

		next, keep := refresh.AfterRun(job, now)
		if keep && job.Repeats == refresh.RepeatForever {
			err = s.pipeline.Jobs.AdvanceRefreshJob(s.ctx, job.PodcastID, next)
		} else {
			err = s.pipeline.Jobs.DeleteRefreshJob(s.ctx, job.PodcastID)
		}
		if err != nil {
			slog.Warn("Failed to update refresh job", "podcast", job.PodcastID, "job", job.Name, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()
	taskCtx = logger.Ctx(taskCtx, slog.String("task_id", task.GetID()), slog.Int("worker_id", workerID))

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := backoff(task.GetRetryCount())

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "podcast", task.GetPodcastID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				select {
				case <-time.After(retryDelay):
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				}
				if retryErr := s.EnqueueTask(task); retryErr != nil {
					slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}

// backoff doubles from one second per retry, capped at maxBackoff.
func backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	if retry > 6 {
		return maxBackoff
	}
	return min(time.Duration(1<<uint(retry-1))*time.Second, maxBackoff)
}
