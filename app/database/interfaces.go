package database

import (
	"context"
	"time"
)

type PodcastRepository interface {
	CreatePodcast(ctx context.Context, title, rssFeed string) (*Podcast, error)
	GetPodcast(ctx context.Context, id string) (*Podcast, error)
	GetPodcastByFeed(ctx context.Context, rssFeed string) (*Podcast, error)
	ListPodcasts(ctx context.Context) ([]Podcast, error)
	ListUncheckedPodcasts(ctx context.Context) ([]Podcast, error)
	DeletePodcast(ctx context.Context, id string) error

	UpdateFeedURL(ctx context.Context, id, rssFeed string) error
	SaveMetadata(ctx context.Context, p *Podcast) error
	SetCategories(ctx context.Context, podcastID string, categoryIDs []string) error
	GetCategories(ctx context.Context, podcastID string) ([]ItunesCategory, error)
	SetStructuredDonation(ctx context.Context, id string) error
	SetCachedArt(ctx context.Context, id, key string) error

	SetProbableHost(ctx context.Context, id, host string) error
	SetTrackingDetected(ctx context.Context, id string) error
	SetReleaseFrequency(ctx context.Context, id string, freq ReleaseFrequency) error
	SetDormant(ctx context.Context, id string, dormant bool) error

	GetStats(ctx context.Context, id string) (*PodcastStats, error)
	LastReleaseDate(ctx context.Context, id string) (*time.Time, error)
}

type CategoryRepository interface {
	GetOrCreateCategory(ctx context.Context, name string, parentID *string) (*ItunesCategory, error)
}

type EpisodeRepository interface {
	GetOrCreateSeason(ctx context.Context, podcastID string, number int) (*Season, error)
	ListSeasons(ctx context.Context, podcastID string) ([]Season, error)

	GetOrCreateEpisode(ctx context.Context, podcastID, guid string) (*Episode, bool, error)
	GetEpisode(ctx context.Context, id string) (*Episode, error)
	SaveEpisode(ctx context.Context, ep *Episode) error
	DeleteEpisode(ctx context.Context, id string) error
	ListEpisodes(ctx context.Context, filter EpisodeFilter) ([]Episode, error)

	AddEpisodeHost(ctx context.Context, episodeID, personID string) error
	AddEpisodeGuest(ctx context.Context, episodeID, personID string) error
	EpisodeHosts(ctx context.Context, episodeID string) ([]Person, error)
	EpisodeGuests(ctx context.Context, episodeID string) ([]Person, error)
}

type PersonRepository interface {
	GetOrCreatePerson(ctx context.Context, name, url string) (*Person, bool, error)
	GetPerson(ctx context.Context, id string) (*Person, error)
	ResolvePerson(ctx context.Context, id string) (*Person, error)
	SetPersonImage(ctx context.Context, id, imgURL string) (bool, error)
	MergePerson(ctx context.Context, sourceID, destinationID string) error
	ListPeople(ctx context.Context) ([]Person, error)
	PersonAppearances(ctx context.Context, id string) ([]PodcastAppearance, error)
}

type ArtUpdateRepository interface {
	RecordArtUpdate(ctx context.Context, update *ArtUpdate) error
	ListArtUpdates(ctx context.Context, podcastID string) ([]ArtUpdate, error)
}

type GroupRepository interface {
	CreateGroup(ctx context.Context, name, description string) (*AnalysisGroup, error)
	GetGroup(ctx context.Context, id string) (*AnalysisGroup, error)
	ListGroups(ctx context.Context) ([]AnalysisGroup, error)
	AddGroupPodcasts(ctx context.Context, groupID string, podcastIDs []string) error
	AddGroupSeasons(ctx context.Context, groupID string, seasonIDs []string) error
	AddGroupEpisodes(ctx context.Context, groupID string, episodeIDs []string) error
	CountGroupFeeds(ctx context.Context, groupID string) (int, error)
	CountGroupSeasons(ctx context.Context, groupID string) (int, error)
	CountGroupEpisodes(ctx context.Context, groupID string) (int, error)
}

type RefreshJobRepository interface {
	UpsertRefreshJob(ctx context.Context, job RefreshJob) error
	GetRefreshJob(ctx context.Context, podcastID string) (*RefreshJob, error)
	DueRefreshJobs(ctx context.Context, at time.Time) ([]RefreshJob, error)
	AdvanceRefreshJob(ctx context.Context, podcastID string, nextRun time.Time) error
	DeleteRefreshJob(ctx context.Context, podcastID string) error
}
