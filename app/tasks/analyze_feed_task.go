package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/podcast-analyzer/app/analysis"
	"github.com/lysyi3m/podcast-analyzer/app/database"
)

type AnalyzeFeedTask struct {
	Task
	Options  analysis.Options
	pipeline *Pipeline
}

func NewAnalyzeFeedTask(podcastID string, opts analysis.Options, pipeline *Pipeline) *AnalyzeFeedTask {
	return &AnalyzeFeedTask{
		Task:     NewTask(TaskTypeAnalyzeFeed, podcastID),
		Options:  opts,
		pipeline: pipeline,
	}
}

func (t *AnalyzeFeedTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p, err := t.pipeline.Engine.Analyze(ctx, t.PodcastID, t.Options)
	if errors.Is(err, database.ErrNotFound) {
		slog.WarnContext(ctx, "Podcast no longer exists, skipping analysis", "podcast", t.PodcastID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to analyze podcast: %w", err)
	}

	job, err := t.pipeline.Registrar.Register(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to register refresh: %w", err)
	}

	attrs := []any{
		"type", "AnalyzeFeed",
		"podcast", p.ID,
		"duration", t.GetDuration(),
		"frequency", p.ReleaseFrequency,
		"dormant", p.Dormant,
	}
	if job != nil {
		attrs = append(attrs, "next_run", job.NextRun)
	}
	slog.InfoContext(ctx, "Task completed", attrs...)

	return nil
}
