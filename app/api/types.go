package api

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lysyi3m/podcast-analyzer/app/database"
	"github.com/lysyi3m/podcast-analyzer/app/tasks"
)

type Handler struct {
	podcasts   database.PodcastRepository
	episodes   database.EpisodeRepository
	people     database.PersonRepository
	groups     database.GroupRepository
	artUpdates database.ArtUpdateRepository
	pipeline   *tasks.Pipeline
	scheduler  tasks.Enqueuer
	excerpts   *lru.Cache[string, string]
}

type createPodcastRequest struct {
	RSSFeed string `json:"rss_feed" binding:"required,url"`
	Title   string `json:"title"`
}

type mergePersonRequest struct {
	DestinationID string `json:"destination_id" binding:"required"`
}

type createGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type groupMembersRequest struct {
	PodcastIDs []string `json:"podcast_ids"`
	SeasonIDs  []string `json:"season_ids"`
	EpisodeIDs []string `json:"episode_ids"`
}

type podcastDetail struct {
	*database.Podcast
	LanguageName *string                   `json:"language_name"`
	Categories   []database.ItunesCategory `json:"categories"`
	Stats        *database.PodcastStats    `json:"stats"`
}

type episodeSummary struct {
	ID                 string     `json:"id"`
	GUID               string     `json:"guid"`
	Title              string     `json:"title"`
	EpType             string     `json:"ep_type"`
	EpNum              *int       `json:"ep_num"`
	ReleaseDatetime    *time.Time `json:"release_datetime"`
	DownloadURL        *string    `json:"download_url"`
	ItunesDuration     *int       `json:"itunes_duration"`
	CWPresent          bool       `json:"cw_present"`
	TranscriptDetected bool       `json:"transcript_detected"`
	NotesExcerpt       string     `json:"notes_excerpt"`
}

type personDetail struct {
	*database.Person
	RedirectedFrom *string                      `json:"redirected_from,omitempty"`
	Appearances    []database.PodcastAppearance `json:"appearances"`
}

type groupDetail struct {
	*database.AnalysisGroup
	Feeds    int `json:"feeds"`
	Seasons  int `json:"seasons"`
	Episodes int `json:"episodes"`
}
