package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/podcast-analyzer/app/database"
)

const recentWindow = 10

// Options narrows the episodes used for frequency classification.
type Options struct {
	// EpisodeLimit of zero uses every episode.
	EpisodeLimit     int
	FullEpisodesOnly bool
}

func DefaultOptions() Options {
	return Options{EpisodeLimit: 0, FullEpisodesOnly: true}
}

// Engine derives host, tracking, release frequency and dormancy for a
// podcast. Each step writes its own result.
type Engine struct {
	rules    Rules
	podcasts database.PodcastRepository
	episodes database.EpisodeRepository
	now      func() time.Time
}

func NewEngine(rules Rules, podcasts database.PodcastRepository, episodes database.EpisodeRepository) *Engine {
	return &Engine{
		rules:    rules,
		podcasts: podcasts,
		episodes: episodes,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Analyze(ctx context.Context, podcastID string, opts Options) (*database.Podcast, error) {
	p, err := e.podcasts.GetPodcast(ctx, podcastID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("podcast %s: %w", podcastID, database.ErrNotFound)
	}

	slog.InfoContext(ctx, "Starting feed analysis", "podcast", p.ID, "title", p.Title)

	recent, err := e.episodes.ListEpisodes(ctx, database.EpisodeFilter{PodcastID: p.ID, Limit: recentWindow})
	if err != nil {
		return nil, err
	}
	urls := downloadURLs(recent)

	if err := e.analyzeHost(ctx, p, urls); err != nil {
		return nil, err
	}
	if err := e.analyzeTracking(ctx, p, urls); err != nil {
		return nil, err
	}
	if err := e.analyzeFrequency(ctx, p, opts); err != nil {
		return nil, err
	}
	if err := e.analyzeDormancy(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

func (e *Engine) analyzeHost(ctx context.Context, p *database.Podcast, urls []string) error {
	generator := ""
	if p.Generator != nil {
		generator = *p.Generator
	}

	host, ok := e.rules.GeneratorHost(generator)
	if !ok && p.ProbableFeedHost == nil {
		host, ok = InferHost(e.rules, "", urls)
	}
	if !ok {
		return nil
	}

	if err := e.podcasts.SetProbableHost(ctx, p.ID, host); err != nil {
		return err
	}
	p.ProbableFeedHost = &host
	slog.DebugContext(ctx, "Probable host resolved", "podcast", p.ID, "host", host)
	return nil
}

func (e *Engine) analyzeTracking(ctx context.Context, p *database.Podcast, urls []string) error {
	if p.FeedContainsTrackingData || !DetectTracking(e.rules, urls) {
		return nil
	}
	if err := e.podcasts.SetTrackingDetected(ctx, p.ID); err != nil {
		return err
	}
	p.FeedContainsTrackingData = true
	return nil
}

func (e *Engine) analyzeFrequency(ctx context.Context, p *database.Podcast, opts Options) error {
	window, err := e.episodes.ListEpisodes(ctx, database.EpisodeFilter{
		PodcastID: p.ID,
		FullOnly:  opts.FullEpisodesOnly,
		Dated:     true,
		Limit:     opts.EpisodeLimit,
	})
	if err != nil {
		return err
	}

	releases := make([]time.Time, 0, len(window))
	for _, ep := range window {
		releases = append(releases, *ep.ReleaseDatetime)
	}

	freq := ClassifyFrequency(releases)
	if freq == database.FrequencyUnknown {
		slog.DebugContext(ctx, "Not enough episodes for release schedule analysis", "podcast", p.ID, "episodes", len(releases))
	}

	if err := e.podcasts.SetReleaseFrequency(ctx, p.ID, freq); err != nil {
		return err
	}
	p.ReleaseFrequency = freq
	return nil
}

func (e *Engine) analyzeDormancy(ctx context.Context, p *database.Podcast) error {
	latest, err := e.podcasts.LastReleaseDate(ctx, p.ID)
	if err != nil {
		return err
	}
	if latest == nil {
		slog.WarnContext(ctx, "No latest episode, cannot calculate dormancy", "podcast", p.ID)
		return nil
	}

	dormant := IsDormant(*latest, e.now())
	if err := e.podcasts.SetDormant(ctx, p.ID, dormant); err != nil {
		return err
	}
	p.Dormant = dormant
	return nil
}

func downloadURLs(episodes []database.Episode) []string {
	urls := make([]string, 0, len(episodes))
	for _, ep := range episodes {
		if ep.DownloadURL != nil {
			urls = append(urls, *ep.DownloadURL)
		}
	}
	return urls
}
