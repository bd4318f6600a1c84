package cfg

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./data/podcasts.db" description:"Path to the SQLite database file"`
	ArtStorage string `long:"art-storage" env:"ART_STORAGE" default:"local" choice:"local" choice:"s3" description:"Where cached cover art is written"`
	ArtDir     string `long:"art-dir" env:"ART_DIR" default:"./data/art" description:"Directory for cached cover art (local storage)"`
	ArtBaseURL string `long:"art-base-url" env:"ART_BASE_URL" description:"Public base URL that cached art is served from"`

	S3Endpoint  string `long:"s3-endpoint" env:"S3_ENDPOINT" description:"S3-compatible endpoint for art storage"`
	S3Region    string `long:"s3-region" env:"S3_REGION" default:"auto" description:"S3 region"`
	S3Bucket    string `long:"s3-bucket" env:"S3_BUCKET" description:"S3 bucket for art storage"`
	S3AccessKey string `long:"s3-access-key" env:"S3_ACCESS_KEY" description:"S3 access key"`
	S3SecretKey string `long:"s3-secret-key" env:"S3_SECRET_KEY" description:"S3 secret key"`

	// Application configuration
	FeedsDir          string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing podcast seed files"`
	RulesFile         string `long:"rules-file" env:"RULES_FILE" description:"YAML file overriding the host and tracking tables (optional)"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for feed processing"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Feed processing
	UserAgent             string `long:"user-agent" env:"USER_AGENT" default:"gPodder/3.1.4 (http://gpodder.org/) Linux" description:"User agent string for HTTP requests"`
	FetchTimeout          int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"5" description:"Timeout in seconds for feed and art fetches"`
	PreserveOmittedFields bool   `long:"preserve-omitted-fields" env:"PRESERVE_OMITTED_FIELDS" description:"Keep stored channel fields when a refreshed feed omits them"`

	// Application metadata
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	LogFormat string `long:"log-format" env:"LOG_FORMAT" default:"text" choice:"text" choice:"json" description:"Log output format"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	// .env is optional
	_ = godotenv.Load()

	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if raw.FetchTimeout <= 0 {
		return nil, fmt.Errorf("fetch timeout must be positive, got %d", raw.FetchTimeout)
	}
	if raw.ArtStorage == "s3" && raw.S3Bucket == "" {
		return nil, fmt.Errorf("s3 art storage requires --s3-bucket")
	}

	cfg := &Cfg{
		DBPath:                raw.DBPath,
		ArtStorage:            raw.ArtStorage,
		ArtDir:                raw.ArtDir,
		ArtBaseURL:            raw.ArtBaseURL,
		S3Endpoint:            raw.S3Endpoint,
		S3Region:              raw.S3Region,
		S3Bucket:              raw.S3Bucket,
		S3AccessKey:           raw.S3AccessKey,
		S3SecretKey:           raw.S3SecretKey,
		FeedsDir:              raw.FeedsDir,
		RulesFile:             raw.RulesFile,
		Port:                  raw.Port,
		WorkerCount:           raw.WorkerCount,
		SchedulerInterval:     raw.SchedulerInterval,
		APIAccessKey:          raw.APIAccessKey,
		UserAgent:             raw.UserAgent,
		FetchTimeout:          time.Duration(raw.FetchTimeout) * time.Second,
		PreserveOmittedFields: raw.PreserveOmittedFields,
		Timezone:              raw.Timezone,
		Debug:                 raw.Debug,
		LogFormat:             raw.LogFormat,
		Version:               GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
	}
	return nil
}
