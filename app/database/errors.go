package database

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrSelfMerge     = errors.New("a record cannot be merged into itself")
	ErrAlreadyMerged = errors.New("record has already been merged")
	ErrMergeCycle    = errors.New("merge chain contains a cycle")
)

const (
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqliteConstraintUnique || code == sqliteConstraintPrimaryKey
}

// onConflictRetry re-runs fn while it fails with ErrConflict. Get-or-create
// paths use it so that a concurrent insert of the same key is picked up by
// the next lookup instead of surfacing as an error.
func onConflictRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(4, retry.NewExponential(10*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func now() time.Time {
	return time.Now().UTC()
}
