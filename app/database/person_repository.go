package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// maxMergeHops bounds redirect resolution. Real chains are one hop long.
const maxMergeHops = 16

var _ PersonRepository = (*PersonRepo)(nil)

// PersonRepo handles hosts and guests. Persons are keyed loosely by
// (name, url); merged persons redirect to their replacement.
type PersonRepo struct {
	db *DB
}

func NewPersonRepository(db *DB) *PersonRepo {
	return &PersonRepo{db: db}
}

// GetOrCreatePerson returns the live person for (name, url). A merged record
// with that key is never returned itself: lookups land on the record it was
// merged into.
func (r *PersonRepo) GetOrCreatePerson(ctx context.Context, name, url string) (*Person, bool, error) {
	var (
		result  *Person
		created bool
	)

	err := onConflictRetry(ctx, func(ctx context.Context) error {
		var existing Person
		err := r.db.GetContext(ctx, &existing, `SELECT * FROM persons WHERE name = ? AND url = ?`, name, url)
		if err == nil {
			resolved, err := r.ResolvePerson(ctx, existing.ID)
			if err != nil {
				return err
			}
			result = resolved
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up person: %w", err)
		}

		ts := now()
		p := Person{
			ID:        uuid.NewString(),
			Name:      name,
			URL:       url,
			CreatedAt: ts,
			UpdatedAt: ts,
		}
		_, err = r.db.NamedExecContext(ctx, `
			INSERT INTO persons (id, name, url, created_at, updated_at)
			VALUES (:id, :name, :url, :created_at, :updated_at)
		`, p)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert person: %w", err)
		}

		result = &p
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return result, created, nil
}

// GetPerson returns the record with id without following merges.
func (r *PersonRepo) GetPerson(ctx context.Context, id string) (*Person, error) {
	var p Person
	err := r.db.GetContext(ctx, &p, `SELECT * FROM persons WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return &p, nil
}

// ResolvePerson follows merged_into_id until it reaches a live record.
func (r *PersonRepo) ResolvePerson(ctx context.Context, id string) (*Person, error) {
	seen := make(map[string]struct{})
	current := id

	for hops := 0; ; hops++ {
		if _, ok := seen[current]; ok || hops > maxMergeHops {
			return nil, fmt.Errorf("resolving person %s: %w", id, ErrMergeCycle)
		}
		seen[current] = struct{}{}

		p, err := r.GetPerson(ctx, current)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, ErrNotFound
		}
		if p.MergedIntoID == nil {
			return p, nil
		}
		current = *p.MergedIntoID
	}
}

// SetPersonImage stores imgURL only when the person has no image yet.
func (r *PersonRepo) SetPersonImage(ctx context.Context, id, imgURL string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE persons SET img_url = ?, updated_at = ? WHERE id = ? AND img_url IS NULL`, imgURL, now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to set person image: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// MergePerson redirects source to destination and moves its episode links.
func (r *PersonRepo) MergePerson(ctx context.Context, sourceID, destinationID string) error {
	if sourceID == destinationID {
		return ErrSelfMerge
	}

	source, err := r.GetPerson(ctx, sourceID)
	if err != nil {
		return err
	}
	if source == nil {
		return fmt.Errorf("source person %s: %w", sourceID, ErrNotFound)
	}
	if source.MergedIntoID != nil {
		return fmt.Errorf("person %s: %w", sourceID, ErrAlreadyMerged)
	}

	dest, err := r.ResolvePerson(ctx, destinationID)
	if err != nil {
		return fmt.Errorf("failed to resolve destination: %w", err)
	}
	if dest.ID == source.ID {
		return ErrSelfMerge
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"episode_hosts", "episode_guests"} {
		move := fmt.Sprintf(`INSERT OR IGNORE INTO %[1]s (episode_id, person_id) SELECT episode_id, ? FROM %[1]s WHERE person_id = ?`, table)
		if _, err := tx.ExecContext(ctx, move, dest.ID, source.ID); err != nil {
			return fmt.Errorf("failed to move %s links: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE person_id = ?`, table), source.ID); err != nil {
			return fmt.Errorf("failed to clear %s links: %w", table, err)
		}
	}

	ts := now()
	if source.ImgURL != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE persons SET img_url = ?, updated_at = ? WHERE id = ? AND img_url IS NULL`, *source.ImgURL, ts, dest.ID); err != nil {
			return fmt.Errorf("failed to carry over image: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE persons SET merged_into_id = ?, merged_at = ?, updated_at = ? WHERE id = ?`, dest.ID, ts, ts, source.ID); err != nil {
		return fmt.Errorf("failed to mark person merged: %w", err)
	}

	return tx.Commit()
}

// ListPeople returns live (unmerged) persons.
func (r *PersonRepo) ListPeople(ctx context.Context) ([]Person, error) {
	var people []Person
	if err := r.db.SelectContext(ctx, &people, `SELECT * FROM persons WHERE merged_into_id IS NULL ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	return people, nil
}

func (r *PersonRepo) PersonAppearances(ctx context.Context, id string) ([]PodcastAppearance, error) {
	var appearances []PodcastAppearance
	err := r.db.SelectContext(ctx, &appearances, `
		SELECT
			p.id AS podcast_id,
			p.title AS podcast_title,
			(SELECT COUNT(*) FROM episode_hosts eh JOIN episodes e ON e.id = eh.episode_id
				WHERE eh.person_id = ? AND e.podcast_id = p.id) AS hosted,
			(SELECT COUNT(*) FROM episode_guests eg JOIN episodes e ON e.id = eg.episode_id
				WHERE eg.person_id = ? AND e.podcast_id = p.id) AS guested
		FROM podcasts p
		WHERE p.id IN (
			SELECT e.podcast_id FROM episodes e JOIN episode_hosts eh ON eh.episode_id = e.id WHERE eh.person_id = ?
			UNION
			SELECT e.podcast_id FROM episodes e JOIN episode_guests eg ON eg.episode_id = e.id WHERE eg.person_id = ?
		)
		ORDER BY p.title
	`, id, id, id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appearances: %w", err)
	}
	return appearances, nil
}
