package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var _ GroupRepository = (*GroupRepo)(nil)

// GroupRepo handles analysis groups. Group totals are computed by the Count*
// queries on every call.
type GroupRepo struct {
	db *DB
}

func NewGroupRepository(db *DB) *GroupRepo {
	return &GroupRepo{db: db}
}

func (r *GroupRepo) CreateGroup(ctx context.Context, name, description string) (*AnalysisGroup, error) {
	ts := now()
	g := &AnalysisGroup{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO analysis_groups (id, name, description, created_at, updated_at)
		VALUES (:id, :name, :description, :created_at, :updated_at)
	`, g)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	return g, nil
}

func (r *GroupRepo) GetGroup(ctx context.Context, id string) (*AnalysisGroup, error) {
	var g AnalysisGroup
	err := r.db.GetContext(ctx, &g, `SELECT * FROM analysis_groups WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

func (r *GroupRepo) ListGroups(ctx context.Context) ([]AnalysisGroup, error) {
	var groups []AnalysisGroup
	if err := r.db.SelectContext(ctx, &groups, `SELECT * FROM analysis_groups ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

func (r *GroupRepo) AddGroupPodcasts(ctx context.Context, groupID string, podcastIDs []string) error {
	return r.addMembers(ctx, "group_podcasts", "podcast_id", groupID, podcastIDs)
}

func (r *GroupRepo) AddGroupSeasons(ctx context.Context, groupID string, seasonIDs []string) error {
	return r.addMembers(ctx, "group_seasons", "season_id", groupID, seasonIDs)
}

func (r *GroupRepo) AddGroupEpisodes(ctx context.Context, groupID string, episodeIDs []string) error {
	return r.addMembers(ctx, "group_episodes", "episode_id", groupID, episodeIDs)
}

func (r *GroupRepo) addMembers(ctx context.Context, table, column, groupID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	q := sq.Insert(table).Options("OR IGNORE").Columns("group_id", column)
	for _, id := range ids {
		q = q.Values(groupID, id)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to add members to %s: %w", table, err)
	}
	return nil
}

func (r *GroupRepo) CountGroupFeeds(ctx context.Context, groupID string) (int, error) {
	return r.count(ctx, sq.Select("COUNT(*)").From("group_podcasts").Where(sq.Eq{"group_id": groupID}))
}

// CountGroupSeasons counts direct seasons plus every season of a member
// podcast, each season once.
func (r *GroupRepo) CountGroupSeasons(ctx context.Context, groupID string) (int, error) {
	return r.count(ctx, sq.Select("COUNT(*)").From("seasons").Where(sq.Or{
		sq.Expr("podcast_id IN (SELECT podcast_id FROM group_podcasts WHERE group_id = ?)", groupID),
		sq.Expr("id IN (SELECT season_id FROM group_seasons WHERE group_id = ?)", groupID),
	}))
}

// CountGroupEpisodes counts direct episodes plus every episode of a member
// podcast or member season, each episode once.
func (r *GroupRepo) CountGroupEpisodes(ctx context.Context, groupID string) (int, error) {
	return r.count(ctx, sq.Select("COUNT(*)").From("episodes").Where(sq.Or{
		sq.Expr("podcast_id IN (SELECT podcast_id FROM group_podcasts WHERE group_id = ?)", groupID),
		sq.Expr("season_id IN (SELECT season_id FROM group_seasons WHERE group_id = ?)", groupID),
		sq.Expr("id IN (SELECT episode_id FROM group_episodes WHERE group_id = ?)", groupID),
	}))
}

func (r *GroupRepo) count(ctx context.Context, q sq.SelectBuilder) (int, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var n int
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}
