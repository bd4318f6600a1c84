package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupCountsAvoidDoubleCounting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	groups := NewGroupRepository(db)
	episodes := NewEpisodeRepository(db)

	member := createPodcast(t, db, "Member", "https://member.example.com/feed")
	outside := createPodcast(t, db, "Outside", "https://outside.example.com/feed")

	// member podcast: 2 seasons, 3 episodes
	m1, _ := episodes.GetOrCreateSeason(ctx, member.ID, 1)
	_, _ = episodes.GetOrCreateSeason(ctx, member.ID, 2)
	memberEps := make([]*Episode, 0, 3)
	for _, guid := range []string{"m-a", "m-b", "m-c"} {
		ep, _, err := episodes.GetOrCreateEpisode(ctx, member.ID, guid)
		require.NoError(t, err)
		memberEps = append(memberEps, ep)
	}
	memberEps[0].SeasonID = &m1.ID
	require.NoError(t, episodes.SaveEpisode(ctx, memberEps[0]))

	// outside podcast: season 1 with 2 episodes, plus 2 loose episodes
	o1, _ := episodes.GetOrCreateSeason(ctx, outside.ID, 1)
	for _, guid := range []string{"o-s1", "o-s2"} {
		ep, _, err := episodes.GetOrCreateEpisode(ctx, outside.ID, guid)
		require.NoError(t, err)
		ep.SeasonID = &o1.ID
		require.NoError(t, episodes.SaveEpisode(ctx, ep))
	}
	loose, _, _ := episodes.GetOrCreateEpisode(ctx, outside.ID, "o-loose")
	seasoned, err := episodes.ListEpisodes(ctx, EpisodeFilter{PodcastID: outside.ID})
	require.NoError(t, err)

	g, err := groups.CreateGroup(ctx, "Report", "quarterly")
	require.NoError(t, err)

	require.NoError(t, groups.AddGroupPodcasts(ctx, g.ID, []string{member.ID}))
	// both already implied by membership or included twice
	require.NoError(t, groups.AddGroupSeasons(ctx, g.ID, []string{m1.ID, o1.ID}))
	var seasonEp string
	for _, ep := range seasoned {
		if ep.SeasonID != nil {
			seasonEp = ep.ID
			break
		}
	}
	require.NoError(t, groups.AddGroupEpisodes(ctx, g.ID, []string{memberEps[1].ID, seasonEp, loose.ID, loose.ID}))

	feeds, err := groups.CountGroupFeeds(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, feeds)

	seasons, err := groups.CountGroupSeasons(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, seasons, "2 member seasons + outside season 1")

	eps, err := groups.CountGroupEpisodes(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, eps, "3 member episodes + 2 from outside season + 1 loose")
}

func TestRefreshJobUpsertIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRefreshJobRepository(db)
	p := createPodcast(t, db, "Show", "https://example.com/feed")

	first := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertRefreshJob(ctx, RefreshJob{PodcastID: p.ID, Name: "Show Refresh", Cadence: "weekly", NextRun: first, Repeats: -1}))

	second := first.AddDate(0, 0, 7)
	require.NoError(t, repo.UpsertRefreshJob(ctx, RefreshJob{PodcastID: p.ID, Name: "Show Refresh", Cadence: "daily", NextRun: second, Repeats: -1}))

	var count int
	require.NoError(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM refresh_jobs`))
	assert.Equal(t, 1, count)

	job, err := repo.GetRefreshJob(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "daily", job.Cadence)
	assert.True(t, second.Equal(job.NextRun))

	due, err := repo.DueRefreshJobs(ctx, first.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.DueRefreshJobs(ctx, second.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, repo.AdvanceRefreshJob(ctx, p.ID, second.AddDate(0, 0, 1)))
	due, err = repo.DueRefreshJobs(ctx, second.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestArtUpdatesAreAppendOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewArtUpdateRepository(db)
	p := createPodcast(t, db, "Show", "https://example.com/feed")

	reported := "image/jpeg"
	actual := "text/html"
	require.NoError(t, repo.RecordArtUpdate(ctx, &ArtUpdate{PodcastID: p.ID, ReportedMimeType: &reported, ActualMimeType: &actual}))
	require.NoError(t, repo.RecordArtUpdate(ctx, &ArtUpdate{PodcastID: p.ID, ReportedMimeType: &reported, ActualMimeType: &reported, ValidFile: true}))

	updates, err := repo.ListArtUpdates(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, updates, 2)
}
