package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ RefreshJobRepository = (*RefreshJobRepo)(nil)

// RefreshJobRepo stores one recurring refresh job per podcast.
type RefreshJobRepo struct {
	db *DB
}

func NewRefreshJobRepository(db *DB) *RefreshJobRepo {
	return &RefreshJobRepo{db: db}
}

// UpsertRefreshJob creates the job for job.PodcastID or updates it in place.
func (r *RefreshJobRepo) UpsertRefreshJob(ctx context.Context, job RefreshJob) error {
	ts := now()
	job.NextRun = job.NextRun.UTC()
	job.CreatedAt = ts
	job.UpdatedAt = ts

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO refresh_jobs (podcast_id, name, cadence, next_run, repeats, created_at, updated_at)
		VALUES (:podcast_id, :name, :cadence, :next_run, :repeats, :created_at, :updated_at)
		ON CONFLICT (podcast_id) DO UPDATE SET
			name = excluded.name,
			cadence = excluded.cadence,
			next_run = excluded.next_run,
			repeats = excluded.repeats,
			updated_at = excluded.updated_at
	`, job)
	if err != nil {
		return fmt.Errorf("failed to upsert refresh job: %w", err)
	}
	return nil
}

func (r *RefreshJobRepo) GetRefreshJob(ctx context.Context, podcastID string) (*RefreshJob, error) {
	var job RefreshJob
	err := r.db.GetContext(ctx, &job, `SELECT * FROM refresh_jobs WHERE podcast_id = ?`, podcastID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh job: %w", err)
	}
	return &job, nil
}

func (r *RefreshJobRepo) DueRefreshJobs(ctx context.Context, at time.Time) ([]RefreshJob, error) {
	var jobs []RefreshJob
	if err := r.db.SelectContext(ctx, &jobs, `SELECT * FROM refresh_jobs WHERE next_run <= ? ORDER BY next_run`, at.UTC()); err != nil {
		return nil, fmt.Errorf("failed to get due refresh jobs: %w", err)
	}
	return jobs, nil
}

func (r *RefreshJobRepo) AdvanceRefreshJob(ctx context.Context, podcastID string, nextRun time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_jobs SET next_run = ?, updated_at = ? WHERE podcast_id = ?`, nextRun.UTC(), now(), podcastID)
	if err != nil {
		return fmt.Errorf("failed to advance refresh job: %w", err)
	}
	return nil
}

func (r *RefreshJobRepo) DeleteRefreshJob(ctx context.Context, podcastID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_jobs WHERE podcast_id = ?`, podcastID); err != nil {
		return fmt.Errorf("failed to delete refresh job: %w", err)
	}
	return nil
}
