package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath     string
	ArtStorage string
	ArtDir     string
	ArtBaseURL string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	// Application configuration
	FeedsDir          string
	RulesFile         string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Feed processing
	UserAgent             string
	FetchTimeout          time.Duration
	PreserveOmittedFields bool

	// Application metadata
	Timezone  string
	Debug     bool
	LogFormat string
	Version   string
}
