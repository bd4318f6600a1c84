package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/podcast-analyzer/app/database"
)

// SyncPodcastsTask registers the seed podcasts from the feeds directory.
// Podcasts it creates are refreshed straight away.
type SyncPodcastsTask struct {
	Task
	Created  int
	pipeline *Pipeline
	enqueuer Enqueuer
}

func NewSyncPodcastsTask(pipeline *Pipeline, enqueuer Enqueuer) *SyncPodcastsTask {
	return &SyncPodcastsTask{
		Task:     NewTask(TaskTypeSyncPodcasts, ""),
		pipeline: pipeline,
		enqueuer: enqueuer,
	}
}

func (t *SyncPodcastsTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if t.pipeline.Seeds == nil {
		return nil
	}

	seeds := t.pipeline.Seeds.Enabled()
	t.Created = 0

	for _, seed := range seeds {
		existing, err := t.pipeline.Podcasts.GetPodcastByFeed(ctx, seed.URL)
		if err != nil {
			return fmt.Errorf("failed to look up seed %s: %w", seed.Name, err)
		}
		if existing != nil {
			continue
		}

		p, err := t.pipeline.Podcasts.CreatePodcast(ctx, seed.Title, seed.URL)
		if errors.Is(err, database.ErrConflict) {
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "Task failed", "type", "SyncPodcasts", "seed", seed.Name, "error", err)
			return fmt.Errorf("failed to create seed podcast: %w", err)
		}
		t.Created++

		if err := t.enqueuer.EnqueueTask(NewRefreshFeedTask(p.ID, false, t.pipeline, t.enqueuer)); err != nil {
			slog.WarnContext(ctx, "Failed to enqueue RefreshFeedTask", "podcast", p.ID, "error", err)
		}
	}

	slog.InfoContext(ctx, "Task completed",
		"type", "SyncPodcasts",
		"duration", t.GetDuration(),
		"seeds", len(seeds),
		"created", t.Created)

	return nil
}
