package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ PodcastRepository = (*PodcastRepo)(nil)

// PodcastRepo handles database operations for podcasts
type PodcastRepo struct {
	db *DB
}

func NewPodcastRepository(db *DB) *PodcastRepo {
	return &PodcastRepo{db: db}
}

// CreatePodcast registers a new feed. A duplicate rss_feed yields ErrConflict.
func (r *PodcastRepo) CreatePodcast(ctx context.Context, title, rssFeed string) (*Podcast, error) {
	ts := now()
	p := &Podcast{
		ID:               uuid.NewString(),
		Title:            title,
		RSSFeed:          rssFeed,
		Tags:             Tags{},
		ReleaseFrequency: FrequencyUnknown,
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO podcasts (id, title, rss_feed, tags, release_frequency, created_at, updated_at)
		VALUES (:id, :title, :rss_feed, :tags, :release_frequency, :created_at, :updated_at)
	`, p)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("podcast with feed %s already exists: %w", rssFeed, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert podcast: %w", err)
	}

	return p, nil
}

func (r *PodcastRepo) GetPodcast(ctx context.Context, id string) (*Podcast, error) {
	var p Podcast
	err := r.db.GetContext(ctx, &p, `SELECT * FROM podcasts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get podcast: %w", err)
	}
	return &p, nil
}

func (r *PodcastRepo) GetPodcastByFeed(ctx context.Context, rssFeed string) (*Podcast, error) {
	var p Podcast
	err := r.db.GetContext(ctx, &p, `SELECT * FROM podcasts WHERE rss_feed = ?`, rssFeed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get podcast by feed: %w", err)
	}
	return &p, nil
}

func (r *PodcastRepo) ListPodcasts(ctx context.Context) ([]Podcast, error) {
	var podcasts []Podcast
	if err := r.db.SelectContext(ctx, &podcasts, `SELECT * FROM podcasts ORDER BY title`); err != nil {
		return nil, fmt.Errorf("failed to list podcasts: %w", err)
	}
	return podcasts, nil
}

// ListUncheckedPodcasts returns podcasts that have never been refreshed.
func (r *PodcastRepo) ListUncheckedPodcasts(ctx context.Context) ([]Podcast, error) {
	var podcasts []Podcast
	if err := r.db.SelectContext(ctx, &podcasts, `SELECT * FROM podcasts WHERE last_checked IS NULL ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("failed to list unchecked podcasts: %w", err)
	}
	return podcasts, nil
}

func (r *PodcastRepo) DeletePodcast(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM podcasts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete podcast: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PodcastRepo) UpdateFeedURL(ctx context.Context, id, rssFeed string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE podcasts SET rss_feed = ?, updated_at = ? WHERE id = ?`, rssFeed, now(), id)
	if isUniqueViolation(err) {
		return fmt.Errorf("feed url %s is already registered: %w", rssFeed, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update feed url: %w", err)
	}
	return nil
}

// SaveMetadata persists the channel level fields written by a feed refresh.
func (r *PodcastRepo) SaveMetadata(ctx context.Context, p *Podcast) error {
	p.UpdatedAt = now()
	_, err := r.db.NamedExecContext(ctx, `
		UPDATE podcasts SET
			title = :title,
			site_url = :site_url,
			description = :description,
			generator = :generator,
			language = :language,
			author = :author,
			email = :email,
			funding_url = :funding_url,
			itunes_feed_type = :itunes_feed_type,
			itunes_explicit = :itunes_explicit,
			tags = :tags,
			feed_contains_itunes_data = :feed_contains_itunes_data,
			feed_contains_podcast_index_data = :feed_contains_podcast_index_data,
			feed_contains_structured_donation_data = :feed_contains_structured_donation_data,
			podcast_cover_art_url = :podcast_cover_art_url,
			podcast_art_cache_update_needed = :podcast_art_cache_update_needed,
			last_checked = :last_checked,
			last_feed_update = :last_feed_update,
			updated_at = :updated_at
		WHERE id = :id
	`, p)
	if err != nil {
		return fmt.Errorf("failed to save podcast metadata: %w", err)
	}
	return nil
}

// SetCategories replaces the podcast's category set.
func (r *PodcastRepo) SetCategories(ctx context.Context, podcastID string, categoryIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM podcast_categories WHERE podcast_id = ?`, podcastID); err != nil {
		return fmt.Errorf("failed to clear categories: %w", err)
	}
	for _, id := range categoryIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO podcast_categories (podcast_id, category_id) VALUES (?, ?)`, podcastID, id); err != nil {
			return fmt.Errorf("failed to add category: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PodcastRepo) GetCategories(ctx context.Context, podcastID string) ([]ItunesCategory, error) {
	var cats []ItunesCategory
	err := r.db.SelectContext(ctx, &cats, `
		SELECT c.* FROM itunes_categories c
		JOIN podcast_categories pc ON pc.category_id = c.id
		WHERE pc.podcast_id = ?
		ORDER BY c.name
	`, podcastID)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	return cats, nil
}

func (r *PodcastRepo) SetStructuredDonation(ctx context.Context, id string) error {
	return r.setColumn(ctx, id, "feed_contains_structured_donation_data", true)
}

// SetCachedArt stores the art key and clears the refresh flag.
func (r *PodcastRepo) SetCachedArt(ctx context.Context, id, key string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE podcasts SET podcast_cached_cover_art = ?, podcast_art_cache_update_needed = 0, updated_at = ?
		WHERE id = ?
	`, key, now(), id)
	if err != nil {
		return fmt.Errorf("failed to set cached art: %w", err)
	}
	return nil
}

func (r *PodcastRepo) SetProbableHost(ctx context.Context, id, host string) error {
	return r.setColumn(ctx, id, "probable_feed_host", host)
}

func (r *PodcastRepo) SetTrackingDetected(ctx context.Context, id string) error {
	return r.setColumn(ctx, id, "feed_contains_tracking_data", true)
}

func (r *PodcastRepo) SetReleaseFrequency(ctx context.Context, id string, freq ReleaseFrequency) error {
	return r.setColumn(ctx, id, "release_frequency", string(freq))
}

func (r *PodcastRepo) SetDormant(ctx context.Context, id string, dormant bool) error {
	return r.setColumn(ctx, id, "dormant", dormant)
}

// setColumn only receives column names from this file.
func (r *PodcastRepo) setColumn(ctx context.Context, id, column string, value any) error {
	q := fmt.Sprintf(`UPDATE podcasts SET %s = ?, updated_at = ? WHERE id = ?`, column)
	if _, err := r.db.ExecContext(ctx, q, value, now(), id); err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	return nil
}

func (r *PodcastRepo) GetStats(ctx context.Context, id string) (*PodcastStats, error) {
	stats := &PodcastStats{}

	err := r.db.QueryRowxContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(itunes_duration), 0) FROM episodes WHERE podcast_id = ?
	`, id).Scan(&stats.TotalEpisodes, &stats.TotalDurationSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate episodes: %w", err)
	}

	var durations []int64
	err = r.db.SelectContext(ctx, &durations, `
		SELECT itunes_duration FROM episodes
		WHERE podcast_id = ? AND itunes_duration IS NOT NULL
		ORDER BY itunes_duration
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load durations: %w", err)
	}
	if len(durations) > 0 {
		// upper median
		stats.MedianEpisodeDuration = durations[len(durations)/2]
	}

	stats.LastReleaseDate, err = r.LastReleaseDate(ctx, id)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *PodcastRepo) LastReleaseDate(ctx context.Context, id string) (*time.Time, error) {
	var latest Episode
	err := r.db.GetContext(ctx, &latest, `
		SELECT * FROM episodes
		WHERE podcast_id = ? AND release_datetime IS NOT NULL
		ORDER BY release_datetime DESC
		LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last release date: %w", err)
	}
	return latest.ReleaseDatetime, nil
}
