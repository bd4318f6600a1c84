package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/podcast-analyzer/app/analysis"
	"github.com/lysyi3m/podcast-analyzer/app/art"
	"github.com/lysyi3m/podcast-analyzer/app/database"
	"github.com/lysyi3m/podcast-analyzer/app/feed"
	"github.com/lysyi3m/podcast-analyzer/app/refresh"
)

var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

type recordingEnqueuer struct {
	tasks []TaskInterface
}

func (r *recordingEnqueuer) EnqueueTask(task TaskInterface) error {
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *recordingEnqueuer) ofType(typ TaskType) []TaskInterface {
	var out []TaskInterface
	for _, t := range r.tasks {
		if t.GetType() == typ {
			out = append(out, t)
		}
	}
	return out
}

type testEnv struct {
	db       *database.DB
	pipeline *Pipeline
	jobs     *database.RefreshJobRepo
	srv      *httptest.Server
}

func weeklyFeed(base string) string {
	var items strings.Builder
	now := time.Now().UTC()
	for i := range 6 {
		fmt.Fprintf(&items, `
		<item>
			<title>Episode %d</title>
			<guid>ep-%d</guid>
			<pubDate>%s</pubDate>
			<enclosure url="https://dts.podtrac.com/redirect.mp3/cdn.example.com/ep%d.mp3" length="1000" type="audio/mpeg"/>
		</item>`, i, i, now.AddDate(0, 0, -7*i).Format(time.RFC1123Z), i)
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
<channel>
	<title>Weekly Show</title>
	<generator>Transistor (https://transistor.fm)</generator>
	<itunes:image href="%s/cover.jpg"/>
	<itunes:author>Host</itunes:author>%s
</channel>
</rss>`, base, items.String())
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	env := &testEnv{db: db}
	env.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed":
			w.Write([]byte(weeklyFeed(env.srv.URL)))
		case "/cover.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(pngBytes)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(env.srv.Close)

	podcasts := database.NewPodcastRepository(db)
	episodes := database.NewEpisodeRepository(db)
	env.jobs = database.NewRefreshJobRepository(db)

	env.pipeline = &Pipeline{
		Podcasts:     podcasts,
		Jobs:         env.jobs,
		Client:       feed.NewClient(nil, feed.NewParser(), podcasts, "test-agent", 2*time.Second),
		Metadata:     feed.NewMetadataReconciler(podcasts, database.NewCategoryRepository(db), false),
		Episodes:     feed.NewEpisodeReconciler(podcasts, episodes, database.NewPersonRepository(db)),
		ArtFetcher:   art.NewFetcher(nil, "test-agent", 2*time.Second),
		ArtProcessor: art.NewProcessor(podcasts, database.NewArtUpdateRepository(db), art.NewFileStore(t.TempDir(), "")),
		Engine:       analysis.NewEngine(analysis.DefaultRules(), podcasts, episodes),
		Registrar:    refresh.NewRegistrar(podcasts, env.jobs),
	}
	return env
}

func TestRefreshPipeline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.pipeline.Podcasts.CreatePodcast(ctx, "Placeholder", env.srv.URL+"/feed")
	require.NoError(t, err)

	enq := &recordingEnqueuer{}
	task := NewRefreshFeedTask(p.ID, false, env.pipeline, enq)
	task.Start()
	require.NoError(t, task.Execute(ctx))
	assert.Equal(t, 6, task.Touched)

	artTasks := enq.ofType(TaskTypeFetchCoverArt)
	require.Len(t, artTasks, 1)
	analyzeTasks := enq.ofType(TaskTypeAnalyzeFeed)
	require.Len(t, analyzeTasks, 1)

	require.NoError(t, artTasks[0].Execute(ctx))
	require.NoError(t, analyzeTasks[0].Execute(ctx))

	got, err := env.pipeline.Podcasts.GetPodcast(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Weekly Show", got.Title)
	assert.False(t, got.ArtUpdateNeeded)
	require.NotNil(t, got.CachedCoverArt)
	assert.True(t, strings.HasSuffix(*got.CachedCoverArt, "/cover.png"))
	assert.Equal(t, database.FrequencyWeekly, got.ReleaseFrequency)
	assert.True(t, got.FeedContainsTrackingData)
	require.NotNil(t, got.ProbableFeedHost)
	assert.Equal(t, "Transistor.fm", *got.ProbableFeedHost)

	job, err := env.jobs.GetRefreshJob(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, refresh.CadenceWeekly, job.Cadence)
	assert.True(t, job.NextRun.After(time.Now()))

	// a second refresh touches nothing and does not refetch art
	enq = &recordingEnqueuer{}
	again := NewRefreshFeedTask(p.ID, false, env.pipeline, enq)
	require.NoError(t, again.Execute(ctx))
	assert.Equal(t, 0, again.Touched)
	assert.Empty(t, enq.ofType(TaskTypeFetchCoverArt))
	assert.Len(t, enq.ofType(TaskTypeAnalyzeFeed), 1)
}

func TestRefreshFetchFailureShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.pipeline.Podcasts.CreatePodcast(ctx, "Gone", env.srv.URL+"/missing")
	require.NoError(t, err)

	enq := &recordingEnqueuer{}
	task := NewRefreshFeedTask(p.ID, false, env.pipeline, enq)
	require.NoError(t, task.Execute(ctx))
	assert.Equal(t, 0, task.Touched)
	assert.Empty(t, enq.tasks)

	got, err := env.pipeline.Podcasts.GetPodcast(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastChecked)
}

func TestFetchCoverArtSkipsAndSwallowsErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	podcasts := env.pipeline.Podcasts

	p, err := podcasts.CreatePodcast(ctx, "Show", env.srv.URL+"/feed")
	require.NoError(t, err)

	// flag clear: nothing to do
	require.NoError(t, NewFetchCoverArtTask(p.ID, env.pipeline).Execute(ctx))

	missing := env.srv.URL + "/missing.png"
	p.CoverArtURL = &missing
	p.ArtUpdateNeeded = true
	require.NoError(t, podcasts.SaveMetadata(ctx, p))

	require.NoError(t, NewFetchCoverArtTask(p.ID, env.pipeline).Execute(ctx))

	updates, err := database.NewArtUpdateRepository(env.db).ListArtUpdates(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, updates, "network failures are not audited")

	got, err := podcasts.GetPodcast(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.ArtUpdateNeeded)
}

func TestSyncPodcastsCreatesAndRefreshes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weekly.yml"), []byte("url: \""+env.srv.URL+"/feed\"\ntitle: \"Weekly\"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "off.yml"), []byte("url: \"https://example.com/off\"\nenabled: false\n"), 0644))

	env.pipeline.Seeds = feed.NewPodcastList(dir)
	require.NoError(t, env.pipeline.Seeds.Run())

	enq := &recordingEnqueuer{}
	task := NewSyncPodcastsTask(env.pipeline, enq)
	require.NoError(t, task.Execute(ctx))
	assert.Equal(t, 1, task.Created)
	assert.Len(t, enq.ofType(TaskTypeRefreshFeed), 1)

	again := NewSyncPodcastsTask(env.pipeline, enq)
	require.NoError(t, again.Execute(ctx))
	assert.Equal(t, 0, again.Created)

	all, err := env.pipeline.Podcasts.ListPodcasts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSchedulerDispatchesDueJobs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	podcasts := env.pipeline.Podcasts

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	weekly, _ := podcasts.CreatePodcast(ctx, "Weekly", "https://example.com/weekly")
	once, _ := podcasts.CreatePodcast(ctx, "Once", "https://example.com/once")
	later, _ := podcasts.CreatePodcast(ctx, "Later", "https://example.com/later")

	require.NoError(t, env.jobs.UpsertRefreshJob(ctx, database.RefreshJob{PodcastID: weekly.ID, Name: "Weekly Refresh", Cadence: refresh.CadenceWeekly, NextRun: now.Add(-time.Hour), Repeats: refresh.RepeatForever}))
	require.NoError(t, env.jobs.UpsertRefreshJob(ctx, database.RefreshJob{PodcastID: once.ID, Name: "Once Refresh", Cadence: refresh.CadenceOnce, NextRun: now.Add(-time.Minute), Repeats: refresh.RepeatForever}))
	require.NoError(t, env.jobs.UpsertRefreshJob(ctx, database.RefreshJob{PodcastID: later.ID, Name: "Later Refresh", Cadence: refresh.CadenceDaily, NextRun: now.Add(time.Hour), Repeats: refresh.RepeatForever}))

	s := NewScheduler(env.pipeline, 1, time.Minute)
	s.now = func() time.Time { return now }
	defer s.cancel()

	s.enqueueTasks()
	require.Len(t, s.taskQueue, 2)

	queued := map[string]bool{}
	for range 2 {
		task := <-s.taskQueue
		assert.Equal(t, TaskTypeRefreshFeed, task.GetType())
		queued[task.GetPodcastID()] = true
	}
	assert.True(t, queued[weekly.ID])
	assert.True(t, queued[once.ID])

	job, err := env.jobs.GetRefreshJob(ctx, weekly.ID)
	require.NoError(t, err)
	assert.True(t, now.Add(-time.Hour).Add(7*24*time.Hour).Equal(job.NextRun))

	job, err = env.jobs.GetRefreshJob(ctx, once.ID)
	require.NoError(t, err)
	require.NotNil(t, job, "one-off jobs stay until analysis re-registers them")
	assert.True(t, now.Add(refresh.OnceRetry).Equal(job.NextRun))

	s.enqueueTasks()
	assert.Empty(t, s.taskQueue, "advanced jobs are not dispatched twice")
}

func TestOnceJobSurvivesFetchFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.pipeline.Podcasts.CreatePodcast(ctx, "Flaky", env.srv.URL+"/missing")
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, env.jobs.UpsertRefreshJob(ctx, database.RefreshJob{PodcastID: p.ID, Name: "Flaky Refresh", Cadence: refresh.CadenceOnce, NextRun: now.Add(-time.Minute), Repeats: refresh.RepeatForever}))

	s := NewScheduler(env.pipeline, 1, time.Minute)
	s.now = func() time.Time { return now }
	defer s.cancel()

	s.enqueueTasks()
	require.Len(t, s.taskQueue, 1)
	task := <-s.taskQueue
	require.NoError(t, task.Execute(ctx))

	job, err := env.jobs.GetRefreshJob(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.True(t, job.NextRun.After(now))

	// once the feed is back the job comes due again
	s.now = func() time.Time { return now.Add(refresh.OnceRetry) }
	s.enqueueTasks()
	require.Len(t, s.taskQueue, 1)
	assert.Equal(t, p.ID, (<-s.taskQueue).GetPodcastID())
}

func TestSchedulerStartupTasks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	unchecked, err := env.pipeline.Podcasts.CreatePodcast(ctx, "New", "https://example.com/new")
	require.NoError(t, err)

	s := NewScheduler(env.pipeline, 1, time.Minute)
	defer s.cancel()

	s.enqueueStartupTasks()
	require.Len(t, s.taskQueue, 2)

	first := <-s.taskQueue
	assert.Equal(t, TaskTypeSyncPodcasts, first.GetType())
	second := <-s.taskQueue
	assert.Equal(t, TaskTypeRefreshFeed, second.GetType())
	assert.Equal(t, unchecked.ID, second.GetPodcastID())
}

func TestEnqueueTaskQueueFull(t *testing.T) {
	env := newTestEnv(t)
	s := NewScheduler(env.pipeline, 1, time.Minute)
	defer s.cancel()

	for range queueSize {
		require.NoError(t, s.EnqueueTask(NewAnalyzeFeedTask("p", analysis.DefaultOptions(), env.pipeline)))
	}
	err := s.EnqueueTask(NewAnalyzeFeedTask("p", analysis.DefaultOptions(), env.pipeline))
	assert.ErrorContains(t, err, "task queue is full")

	s.cancel()
	assert.ErrorIs(t, s.EnqueueTask(NewAnalyzeFeedTask("p", analysis.DefaultOptions(), env.pipeline)), context.Canceled)
}

type failingTask struct {
	Task
	runs chan struct{}
}

func (t *failingTask) Execute(ctx context.Context) error {
	select {
	case t.runs <- struct{}{}:
	default:
	}
	return errors.New("boom")
}

func TestStopWithPendingRetry(t *testing.T) {
	env := newTestEnv(t)
	s := NewScheduler(env.pipeline, 1, time.Hour)
	s.Start()

	task := &failingTask{Task: NewTask(TaskTypeAnalyzeFeed, "p"), runs: make(chan struct{}, 1)}
	require.NoError(t, s.EnqueueTask(task))

	select {
	case <-task.runs:
	case <-time.After(5 * time.Second):
		t.Fatal("task was not executed")
	}

	// the retry is waiting on its backoff when the scheduler stops
	require.NotPanics(t, s.Stop)
	assert.Equal(t, 1, task.GetRetryCount())
	assert.ErrorIs(t, s.EnqueueTask(task), context.Canceled)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, backoff(1))
	assert.Equal(t, 2*time.Second, backoff(2))
	assert.Equal(t, 16*time.Second, backoff(5))
	assert.Equal(t, 30*time.Second, backoff(6))
	assert.Equal(t, 30*time.Second, backoff(20))
}

func TestTaskRetryAccounting(t *testing.T) {
	task := NewTask(TaskTypeRefreshFeed, "p")
	assert.Equal(t, "p", task.GetPodcastID())
	assert.Equal(t, time.Duration(0), task.GetDuration())

	for range DefaultMaxRetries {
		require.True(t, task.CanRetry())
		task.IncrementRetryCount()
	}
	assert.False(t, task.CanRetry())
}
