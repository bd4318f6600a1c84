package tasks

import (
	"github.com/lysyi3m/podcast-analyzer/app/analysis"
	"github.com/lysyi3m/podcast-analyzer/app/art"
	"github.com/lysyi3m/podcast-analyzer/app/database"
	"github.com/lysyi3m/podcast-analyzer/app/feed"
	"github.com/lysyi3m/podcast-analyzer/app/refresh"
)

// Pipeline holds the components a podcast passes through on refresh.
type Pipeline struct {
	Podcasts database.PodcastRepository
	Jobs     database.RefreshJobRepository
	Seeds    *feed.PodcastList

	Client   *feed.Client
	Metadata *feed.MetadataReconciler
	Episodes *feed.EpisodeReconciler

	ArtFetcher   *art.Fetcher
	ArtProcessor *art.Processor

	Engine    *analysis.Engine
	Registrar *refresh.Registrar
}
