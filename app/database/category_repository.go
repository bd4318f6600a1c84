package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var _ CategoryRepository = (*CategoryRepo)(nil)

// CategoryRepo handles the shared two-level iTunes category taxonomy.
type CategoryRepo struct {
	db *DB
}

func NewCategoryRepository(db *DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

// GetOrCreateCategory finds the category with the given name and parent,
// inserting it if absent. A nil parentID denotes a top-level category.
func (r *CategoryRepo) GetOrCreateCategory(ctx context.Context, name string, parentID *string) (*ItunesCategory, error) {
	var result *ItunesCategory

	err := onConflictRetry(ctx, func(ctx context.Context) error {
		var existing ItunesCategory
		err := r.db.GetContext(ctx, &existing, `SELECT * FROM itunes_categories WHERE name = ? AND parent_id IS ?`, name, parentID)
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up category: %w", err)
		}

		cat := ItunesCategory{
			ID:        uuid.NewString(),
			Name:      name,
			ParentID:  parentID,
			CreatedAt: now(),
		}
		_, err = r.db.NamedExecContext(ctx, `
			INSERT INTO itunes_categories (id, name, parent_id, created_at)
			VALUES (:id, :name, :parent_id, :created_at)
		`, cat)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert category: %w", err)
		}

		result = &cat
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
