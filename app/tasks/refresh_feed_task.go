package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/podcast-analyzer/app/analysis"
	"github.com/lysyi3m/podcast-analyzer/app/feed"
)

type RefreshFeedTask struct {
	Task
	UpdateExisting bool
	// Touched is the number of episodes created or updated by the last run.
	Touched  int
	pipeline *Pipeline
	enqueuer Enqueuer
}

func NewRefreshFeedTask(podcastID string, updateExisting bool, pipeline *Pipeline, enqueuer Enqueuer) *RefreshFeedTask {
	return &RefreshFeedTask{
		Task:           NewTask(TaskTypeRefreshFeed, podcastID),
		UpdateExisting: updateExisting,
		pipeline:       pipeline,
		enqueuer:       enqueuer,
	}
}

func (t *RefreshFeedTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.Touched = 0

	p, err := t.pipeline.Podcasts.GetPodcast(ctx, t.PodcastID)
	if err != nil {
		return fmt.Errorf("failed to load podcast: %w", err)
	}
	if p == nil {
		slog.WarnContext(ctx, "Podcast no longer exists, skipping refresh", "podcast", t.PodcastID)
		return nil
	}

	nf, err := t.pipeline.Client.Fetch(ctx, p)
	if err != nil {
		var fetchErr *feed.FetchError
		var parseErr *feed.ParseError
		switch {
		case errors.As(err, &fetchErr):
			slog.ErrorContext(ctx, "Feed fetch failed", "podcast", p.ID, "url", p.RSSFeed, "status", fetchErr.StatusCode, "error", err)
		case errors.As(err, &parseErr):
			slog.ErrorContext(ctx, "Feed parse failed", "podcast", p.ID, "url", p.RSSFeed, "error", err)
		default:
			slog.ErrorContext(ctx, "Feed refresh failed", "podcast", p.ID, "url", p.RSSFeed, "error", err)
		}
		return nil
	}

	if err := t.pipeline.Metadata.Reconcile(ctx, p, nf); err != nil {
		return fmt.Errorf("failed to reconcile metadata: %w", err)
	}

	touched, err := t.pipeline.Episodes.ReconcileMany(ctx, p, nf.Episodes, t.UpdateExisting)
	if err != nil {
		return fmt.Errorf("failed to reconcile episodes: %w", err)
	}
	t.Touched = touched

	if p.ArtUpdateNeeded && p.CoverArtURL != nil {
		if err := t.enqueuer.EnqueueTask(NewFetchCoverArtTask(p.ID, t.pipeline)); err != nil {
			slog.WarnContext(ctx, "Failed to enqueue FetchCoverArtTask", "podcast", p.ID, "error", err)
		}
	}

	if err := t.enqueuer.EnqueueTask(NewAnalyzeFeedTask(p.ID, analysis.DefaultOptions(), t.pipeline)); err != nil {
		slog.WarnContext(ctx, "Failed to enqueue AnalyzeFeedTask", "podcast", p.ID, "error", err)
	}

	slog.InfoContext(ctx, "Task completed",
		"type", "RefreshFeed",
		"podcast", p.ID,
		"duration", t.GetDuration(),
		"total", len(nf.Episodes),
		"touched", touched)

	return nil
}
