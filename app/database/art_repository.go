package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

var _ ArtUpdateRepository = (*ArtUpdateRepo)(nil)

type ArtUpdateRepo struct {
	db *DB
}

func NewArtUpdateRepository(db *DB) *ArtUpdateRepo {
	return &ArtUpdateRepo{db: db}
}

func (r *ArtUpdateRepo) RecordArtUpdate(ctx context.Context, update *ArtUpdate) error {
	if update.ID == "" {
		update.ID = uuid.NewString()
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = now()
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO art_updates (id, podcast_id, timestamp, reported_mime_type, actual_mime_type, valid_file)
		VALUES (:id, :podcast_id, :timestamp, :reported_mime_type, :actual_mime_type, :valid_file)
	`, update)
	if err != nil {
		return fmt.Errorf("failed to record art update: %w", err)
	}
	return nil
}

func (r *ArtUpdateRepo) ListArtUpdates(ctx context.Context, podcastID string) ([]ArtUpdate, error) {
	var updates []ArtUpdate
	if err := r.db.SelectContext(ctx, &updates, `SELECT * FROM art_updates WHERE podcast_id = ? ORDER BY timestamp DESC`, podcastID); err != nil {
		return nil, fmt.Errorf("failed to list art updates: %w", err)
	}
	return updates, nil
}
