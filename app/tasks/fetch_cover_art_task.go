package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

type FetchCoverArtTask struct {
	Task
	pipeline *Pipeline
}

func NewFetchCoverArtTask(podcastID string, pipeline *Pipeline) *FetchCoverArtTask {
	return &FetchCoverArtTask{
		Task:     NewTask(TaskTypeFetchCoverArt, podcastID),
		pipeline: pipeline,
	}
}

func (t *FetchCoverArtTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p, err := t.pipeline.Podcasts.GetPodcast(ctx, t.PodcastID)
	if err != nil {
		return fmt.Errorf("failed to load podcast: %w", err)
	}
	if p == nil || !p.ArtUpdateNeeded || p.CoverArtURL == nil || *p.CoverArtURL == "" {
		slog.DebugContext(ctx, "Cover art refresh not needed", "podcast", t.PodcastID)
		return nil
	}

	data, reported, err := t.pipeline.ArtFetcher.Fetch(ctx, *p.CoverArtURL)
	if err != nil {
		slog.WarnContext(ctx, "Cover art fetch failed", "podcast", p.ID, "url", *p.CoverArtURL, "error", err)
		return nil
	}

	res, err := t.pipeline.ArtProcessor.Process(ctx, p, data, *p.CoverArtURL, reported)
	if err != nil {
		return fmt.Errorf("failed to process cover art: %w", err)
	}

	slog.InfoContext(ctx, "Task completed",
		"type", "FetchCoverArt",
		"podcast", p.ID,
		"duration", t.GetDuration(),
		"valid", res.Valid,
		"mime_type", res.MimeType,
		"url", res.URL)

	return nil
}
