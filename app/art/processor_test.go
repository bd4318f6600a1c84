package art

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/podcast-analyzer/app/database"
)

// 1x1 transparent PNG.
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

type testEnv struct {
	db        *database.DB
	podcasts  *database.PodcastRepo
	updates   *database.ArtUpdateRepo
	dir       string
	processor *Processor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "art.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	env := &testEnv{
		db:       db,
		podcasts: database.NewPodcastRepository(db),
		updates:  database.NewArtUpdateRepository(db),
		dir:      t.TempDir(),
	}
	env.processor = NewProcessor(env.podcasts, env.updates, NewFileStore(env.dir, "https://cdn.example.com/art"))
	return env
}

func TestProcessAcceptsMislabelledImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.podcasts.CreatePodcast(ctx, "A Very Long Podcast Title That Goes On", "https://example.com/feed")
	require.NoError(t, err)

	res, err := env.processor.Process(ctx, p, pngBytes, "https://img.example.com/covers/art.jpg?size=large", "image/jpeg")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "image/png", res.MimeType)
	assert.Equal(t, "A_Very_Long_Podcast_Title_"+p.ID+"/art.png", res.Key)
	assert.Equal(t, "https://cdn.example.com/art/"+res.Key, res.URL)

	stored, err := os.ReadFile(filepath.Join(env.dir, filepath.FromSlash(res.Key)))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)

	got, err := env.podcasts.GetPodcast(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CachedCoverArt)
	assert.Equal(t, res.Key, *got.CachedCoverArt)
	assert.False(t, got.ArtUpdateNeeded)

	updates, err := env.updates.ListArtUpdates(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.True(t, updates[0].ValidFile)
	assert.Equal(t, "image/jpeg", *updates[0].ReportedMimeType)
	assert.Equal(t, "image/png", *updates[0].ActualMimeType)
}

func TestProcessRejectsNonImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.podcasts.CreatePodcast(ctx, "Show", "https://example.com/feed")
	require.NoError(t, err)

	html := []byte("<!DOCTYPE html><html><body>not an image</body></html>")
	res, err := env.processor.Process(ctx, p, html, "https://img.example.com/cover.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.False(t, res.Valid)

	got, err := env.podcasts.GetPodcast(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CachedCoverArt)

	updates, err := env.updates.ListArtUpdates(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.False(t, updates[0].ValidFile)
	require.NotNil(t, updates[0].ActualMimeType)
	assert.Contains(t, *updates[0].ActualMimeType, "text/html")

	entries, err := os.ReadDir(env.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessUndetectablePayload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.podcasts.CreatePodcast(ctx, "Show", "https://example.com/feed")
	require.NoError(t, err)

	res, err := env.processor.Process(ctx, p, []byte{0x00, 0x01, 0x02, 0x03}, "https://img.example.com/cover", "")
	require.NoError(t, err)
	assert.False(t, res.Valid)

	updates, err := env.updates.ListArtUpdates(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Nil(t, updates[0].ActualMimeType)
	assert.Nil(t, updates[0].ReportedMimeType)
}

func TestFilenameFromURL(t *testing.T) {
	tests := map[string]string{
		"https://example.com/a/b/cover.jpg?x=1": "cover.jpg",
		"https://example.com/":                  "cover",
		"https://example.com/image":             "image",
	}
	for in, want := range tests {
		assert.Equal(t, want, filenameFromURL(in), in)
	}
}

func TestFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(pngBytes)
	}))
	defer srv.Close()

	f := NewFetcher(nil, "test-agent", time.Second)

	data, reported, err := f.Fetch(context.Background(), srv.URL+"/cover.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", reported)
	assert.Equal(t, pngBytes, data)

	_, _, err = f.Fetch(context.Background(), srv.URL+"/gone")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusGone, statusErr.StatusCode)
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	store := NewFileStore(t.TempDir(), "")
	err := store.Put(context.Background(), "../outside.png", pngBytes, "image/png")
	assert.Error(t, err)
}
