package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreatePersonIdentity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewPersonRepository(db)

	first, created, err := repo.GetOrCreatePerson(ctx, "Jane Host", "https://jane.example.com")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repo.GetOrCreatePerson(ctx, "Jane Host", "https://jane.example.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	otherURL, created, err := repo.GetOrCreatePerson(ctx, "Jane Host", "")
	require.NoError(t, err)
	assert.True(t, created, "same name with a different url is a distinct person")
	assert.NotEqual(t, first.ID, otherURL.ID)
}

func TestSetPersonImageOnlyWhenEmpty(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewPersonRepository(db)

	p, _, err := repo.GetOrCreatePerson(ctx, "Jane", "")
	require.NoError(t, err)

	set, err := repo.SetPersonImage(ctx, p.ID, "https://img.example.com/1.png")
	require.NoError(t, err)
	assert.True(t, set)

	set, err = repo.SetPersonImage(ctx, p.ID, "https://img.example.com/2.png")
	require.NoError(t, err)
	assert.False(t, set)

	got, err := repo.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/1.png", *got.ImgURL)
}

func TestMergePersonRedirects(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	people := NewPersonRepository(db)
	episodes := NewEpisodeRepository(db)
	p := createPodcast(t, db, "Show", "https://example.com/feed")

	dup, _, _ := people.GetOrCreatePerson(ctx, "Jane", "https://old.example.com")
	canonical, _, _ := people.GetOrCreatePerson(ctx, "Jane", "https://jane.example.com")

	ep, _, err := episodes.GetOrCreateEpisode(ctx, p.ID, "g1")
	require.NoError(t, err)
	require.NoError(t, episodes.AddEpisodeHost(ctx, ep.ID, dup.ID))
	require.NoError(t, episodes.AddEpisodeGuest(ctx, ep.ID, dup.ID))

	require.NoError(t, people.MergePerson(ctx, dup.ID, canonical.ID))

	resolved, err := people.ResolvePerson(ctx, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, canonical.ID, resolved.ID)

	// the merged key now lands on the canonical record
	matched, created, err := people.GetOrCreatePerson(ctx, "Jane", "https://old.example.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, canonical.ID, matched.ID)

	hosts, err := episodes.EpisodeHosts(ctx, ep.ID)
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, canonical.ID, hosts[0].ID)

	appearances, err := people.PersonAppearances(ctx, canonical.ID)
	require.NoError(t, err)
	require.Len(t, appearances, 1)
	assert.Equal(t, 1, appearances[0].Hosted)
	assert.Equal(t, 1, appearances[0].Guested)

	live, err := people.ListPeople(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestMergePersonRejectsInvalid(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewPersonRepository(db)

	a, _, _ := repo.GetOrCreatePerson(ctx, "A", "")
	b, _, _ := repo.GetOrCreatePerson(ctx, "B", "")

	assert.ErrorIs(t, repo.MergePerson(ctx, a.ID, a.ID), ErrSelfMerge)

	require.NoError(t, repo.MergePerson(ctx, a.ID, b.ID))
	assert.ErrorIs(t, repo.MergePerson(ctx, a.ID, b.ID), ErrAlreadyMerged)
	assert.ErrorIs(t, repo.MergePerson(ctx, b.ID, a.ID), ErrSelfMerge, "b -> a resolves back to b")
}

func TestResolvePersonDetectsCycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewPersonRepository(db)

	a, _, _ := repo.GetOrCreatePerson(ctx, "A", "")
	b, _, _ := repo.GetOrCreatePerson(ctx, "B", "")

	// written directly; MergePerson refuses to build this
	_, err := db.ExecContext(ctx, `UPDATE persons SET merged_into_id = ? WHERE id = ?`, b.ID, a.ID)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE persons SET merged_into_id = ? WHERE id = ?`, a.ID, b.ID)
	require.NoError(t, err)

	_, err = repo.ResolvePerson(ctx, a.ID)
	assert.ErrorIs(t, err, ErrMergeCycle)
}
