package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/lysyi3m/podcast-analyzer/app/analysis"
	"github.com/lysyi3m/podcast-analyzer/app/api"
	"github.com/lysyi3m/podcast-analyzer/app/art"
	"github.com/lysyi3m/podcast-analyzer/app/cfg"
	"github.com/lysyi3m/podcast-analyzer/app/database"
	"github.com/lysyi3m/podcast-analyzer/app/feed"
	"github.com/lysyi3m/podcast-analyzer/app/logger"
	"github.com/lysyi3m/podcast-analyzer/app/refresh"
	"github.com/lysyi3m/podcast-analyzer/app/tasks"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if c == nil {
		// help was shown
		return
	}

	logger.Setup(os.Stdout, c.Debug, c.LogFormat)

	slog.Info("Starting Podcast Analyzer", "version", c.Version)

	db, err := database.Open(c.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", c.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// one scheduler per database file
	lock := flock.New(c.DBPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		slog.Error("Failed to acquire instance lock", "path", lock.Path(), "error", err)
		os.Exit(1)
	}
	if !locked {
		slog.Error("Another instance is already using this database", "path", c.DBPath)
		os.Exit(1)
	}
	defer lock.Unlock()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", c.DBPath, "migration_version", version, "dirty", dirty)

	podcastRepo := database.NewPodcastRepository(db)
	episodeRepo := database.NewEpisodeRepository(db)
	personRepo := database.NewPersonRepository(db)
	categoryRepo := database.NewCategoryRepository(db)
	artUpdateRepo := database.NewArtUpdateRepository(db)
	groupRepo := database.NewGroupRepository(db)
	jobRepo := database.NewRefreshJobRepository(db)

	rules := analysis.DefaultRules()
	if c.RulesFile != "" {
		rules, err = analysis.LoadRules(c.RulesFile)
		if err != nil {
			slog.Error("Failed to load rules", "path", c.RulesFile, "error", err)
			os.Exit(1)
		}
		slog.Info("Loaded analysis rules", "path", c.RulesFile)
	}

	store, err := newArtStore(c)
	if err != nil {
		slog.Error("Failed to initialize art storage", "storage", c.ArtStorage, "error", err)
		os.Exit(1)
	}

	seeds := feed.NewPodcastList(c.FeedsDir)
	if err := seeds.Run(); err != nil {
		slog.Error("Failed to load podcast seeds", "dir", c.FeedsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded podcast seeds", "dir", c.FeedsDir, "count", seeds.Count())

	httpClient := &http.Client{}

	pipeline := &tasks.Pipeline{
		Podcasts:     podcastRepo,
		Jobs:         jobRepo,
		Seeds:        seeds,
		Client:       feed.NewClient(httpClient, feed.NewParser(), podcastRepo, c.UserAgent, c.FetchTimeout),
		Metadata:     feed.NewMetadataReconciler(podcastRepo, categoryRepo, c.PreserveOmittedFields),
		Episodes:     feed.NewEpisodeReconciler(podcastRepo, episodeRepo, personRepo),
		ArtFetcher:   art.NewFetcher(httpClient, c.UserAgent, c.FetchTimeout),
		ArtProcessor: art.NewProcessor(podcastRepo, artUpdateRepo, store),
		Engine:       analysis.NewEngine(rules, podcastRepo, episodeRepo),
		Registrar:    refresh.NewRegistrar(podcastRepo, jobRepo),
	}

	scheduler := tasks.NewScheduler(pipeline, c.WorkerCount, time.Duration(c.SchedulerInterval)*time.Second)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(pipeline, episodeRepo, personRepo, groupRepo, artUpdateRepo, scheduler)
	router := api.NewServer(handler, c.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", c.Port, "workers", c.WorkerCount)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}
}

func newArtStore(c *cfg.Cfg) (art.Store, error) {
	if c.ArtStorage == "s3" {
		return art.NewS3Store(art.S3Config{
			Endpoint:  c.S3Endpoint,
			Region:    c.S3Region,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			PublicURL: c.ArtBaseURL,
		})
	}
	return art.NewFileStore(c.ArtDir, c.ArtBaseURL), nil
}
