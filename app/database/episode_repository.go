package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var _ EpisodeRepository = (*EpisodeRepo)(nil)

// EpisodeRepo handles episodes, seasons and episode/person links.
type EpisodeRepo struct {
	db *DB
}

func NewEpisodeRepository(db *DB) *EpisodeRepo {
	return &EpisodeRepo{db: db}
}

func (r *EpisodeRepo) GetOrCreateSeason(ctx context.Context, podcastID string, number int) (*Season, error) {
	var result *Season

	err := onConflictRetry(ctx, func(ctx context.Context) error {
		var existing Season
		err := r.db.GetContext(ctx, &existing, `SELECT * FROM seasons WHERE podcast_id = ? AND season_number = ?`, podcastID, number)
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up season: %w", err)
		}

		s := Season{
			ID:           uuid.NewString(),
			PodcastID:    podcastID,
			SeasonNumber: number,
			CreatedAt:    now(),
		}
		_, err = r.db.NamedExecContext(ctx, `
			INSERT INTO seasons (id, podcast_id, season_number, created_at)
			VALUES (:id, :podcast_id, :season_number, :created_at)
		`, s)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert season: %w", err)
		}

		result = &s
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *EpisodeRepo) ListSeasons(ctx context.Context, podcastID string) ([]Season, error) {
	var seasons []Season
	if err := r.db.SelectContext(ctx, &seasons, `SELECT * FROM seasons WHERE podcast_id = ? ORDER BY season_number`, podcastID); err != nil {
		return nil, fmt.Errorf("failed to list seasons: %w", err)
	}
	return seasons, nil
}

// GetOrCreateEpisode returns the episode keyed by (podcastID, guid) and
// whether this call created it.
func (r *EpisodeRepo) GetOrCreateEpisode(ctx context.Context, podcastID, guid string) (*Episode, bool, error) {
	var (
		result  *Episode
		created bool
	)

	err := onConflictRetry(ctx, func(ctx context.Context) error {
		var existing Episode
		err := r.db.GetContext(ctx, &existing, `SELECT * FROM episodes WHERE podcast_id = ? AND guid = ?`, podcastID, guid)
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up episode: %w", err)
		}

		ts := now()
		ep := Episode{
			ID:        uuid.NewString(),
			PodcastID: podcastID,
			GUID:      guid,
			EpType:    EpisodeTypeFull,
			CreatedAt: ts,
			UpdatedAt: ts,
		}
		_, err = r.db.NamedExecContext(ctx, `
			INSERT INTO episodes (id, podcast_id, guid, ep_type, created_at, updated_at)
			VALUES (:id, :podcast_id, :guid, :ep_type, :created_at, :updated_at)
		`, ep)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert episode: %w", err)
		}

		result = &ep
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return result, created, nil
}

func (r *EpisodeRepo) GetEpisode(ctx context.Context, id string) (*Episode, error) {
	var ep Episode
	err := r.db.GetContext(ctx, &ep, `SELECT * FROM episodes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}
	return &ep, nil
}

func (r *EpisodeRepo) SaveEpisode(ctx context.Context, ep *Episode) error {
	ep.UpdatedAt = now()
	_, err := r.db.NamedExecContext(ctx, `
		UPDATE episodes SET
			season_id = :season_id,
			title = :title,
			ep_type = :ep_type,
			ep_num = :ep_num,
			release_datetime = :release_datetime,
			episode_url = :episode_url,
			mime_type = :mime_type,
			download_url = :download_url,
			itunes_duration = :itunes_duration,
			file_size = :file_size,
			itunes_explicit = :itunes_explicit,
			show_notes = :show_notes,
			cw_present = :cw_present,
			transcript_detected = :transcript_detected,
			updated_at = :updated_at
		WHERE id = :id
	`, ep)
	if err != nil {
		return fmt.Errorf("failed to save episode: %w", err)
	}
	return nil
}

func (r *EpisodeRepo) DeleteEpisode(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM episodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete episode: %w", err)
	}
	return nil
}

func (r *EpisodeRepo) ListEpisodes(ctx context.Context, filter EpisodeFilter) ([]Episode, error) {
	q := sq.Select("*").From("episodes").
		Where(sq.Eq{"podcast_id": filter.PodcastID}).
		OrderBy("release_datetime DESC", "created_at DESC")

	if filter.FullOnly {
		q = q.Where(sq.Eq{"ep_type": EpisodeTypeFull})
	}
	if filter.Dated {
		q = q.Where(sq.NotEq{"release_datetime": nil})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build episode query: %w", err)
	}

	var episodes []Episode
	if err := r.db.SelectContext(ctx, &episodes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	return episodes, nil
}

func (r *EpisodeRepo) AddEpisodeHost(ctx context.Context, episodeID, personID string) error {
	if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO episode_hosts (episode_id, person_id) VALUES (?, ?)`, episodeID, personID); err != nil {
		return fmt.Errorf("failed to add host: %w", err)
	}
	return nil
}

func (r *EpisodeRepo) AddEpisodeGuest(ctx context.Context, episodeID, personID string) error {
	if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO episode_guests (episode_id, person_id) VALUES (?, ?)`, episodeID, personID); err != nil {
		return fmt.Errorf("failed to add guest: %w", err)
	}
	return nil
}

func (r *EpisodeRepo) EpisodeHosts(ctx context.Context, episodeID string) ([]Person, error) {
	return r.episodePeople(ctx, "episode_hosts", episodeID)
}

func (r *EpisodeRepo) EpisodeGuests(ctx context.Context, episodeID string) ([]Person, error) {
	return r.episodePeople(ctx, "episode_guests", episodeID)
}

func (r *EpisodeRepo) episodePeople(ctx context.Context, table, episodeID string) ([]Person, error) {
	query, args, err := sq.Select("p.*").
		From("persons p").
		Join(table+" l ON l.person_id = p.id").
		Where(sq.Eq{"l.episode_id": episodeID}).
		OrderBy("p.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build people query: %w", err)
	}

	var people []Person
	if err := r.db.SelectContext(ctx, &people, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	return people, nil
}
