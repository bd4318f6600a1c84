package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ReleaseFrequency string

const (
	FrequencyDaily    ReleaseFrequency = "daily"
	FrequencyOften    ReleaseFrequency = "often"
	FrequencyWeekly   ReleaseFrequency = "weekly"
	FrequencyBiweekly ReleaseFrequency = "biweekly"
	FrequencyMonthly  ReleaseFrequency = "monthly"
	FrequencyAdhoc    ReleaseFrequency = "adhoc"
	FrequencyUnknown  ReleaseFrequency = "pending"
)

const (
	EpisodeTypeFull    = "full"
	EpisodeTypeTrailer = "trailer"
	EpisodeTypeBonus   = "bonus"
)

// Tags is a keyword list persisted as a JSON array.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *Tags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported tags column type %T", src)
	}
	return json.Unmarshal(raw, (*[]string)(t))
}

type Podcast struct {
	ID                                 string           `db:"id" json:"id"`
	Title                              string           `db:"title" json:"title"`
	RSSFeed                            string           `db:"rss_feed" json:"rss_feed"`
	SiteURL                            *string          `db:"site_url" json:"site_url"`
	Description                        *string          `db:"description" json:"description"`
	Generator                          *string          `db:"generator" json:"generator"`
	Language                           *string          `db:"language" json:"language"`
	Author                             *string          `db:"author" json:"author"`
	Email                              *string          `db:"email" json:"email"`
	FundingURL                         *string          `db:"funding_url" json:"funding_url"`
	ItunesFeedType                     *string          `db:"itunes_feed_type" json:"itunes_feed_type"`
	ItunesExplicit                     bool             `db:"itunes_explicit" json:"itunes_explicit"`
	Tags                               Tags             `db:"tags" json:"tags"`
	FeedContainsItunesData             bool             `db:"feed_contains_itunes_data" json:"feed_contains_itunes_data"`
	FeedContainsPodcastIndexData       bool             `db:"feed_contains_podcast_index_data" json:"feed_contains_podcast_index_data"`
	FeedContainsTrackingData           bool             `db:"feed_contains_tracking_data" json:"feed_contains_tracking_data"`
	FeedContainsStructuredDonationData bool             `db:"feed_contains_structured_donation_data" json:"feed_contains_structured_donation_data"`
	ReleaseFrequency                   ReleaseFrequency `db:"release_frequency" json:"release_frequency"`
	ProbableFeedHost                   *string          `db:"probable_feed_host" json:"probable_feed_host"`
	Dormant                            bool             `db:"dormant" json:"dormant"`
	CoverArtURL                        *string          `db:"podcast_cover_art_url" json:"podcast_cover_art_url"`
	CachedCoverArt                     *string          `db:"podcast_cached_cover_art" json:"podcast_cached_cover_art"`
	ArtUpdateNeeded                    bool             `db:"podcast_art_cache_update_needed" json:"podcast_art_cache_update_needed"`
	LastChecked                        *time.Time       `db:"last_checked" json:"last_checked"`
	LastFeedUpdate                     *time.Time       `db:"last_feed_update" json:"last_feed_update"`
	CreatedAt                          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt                          time.Time        `db:"updated_at" json:"updated_at"`
}

// PodcastStats holds aggregates computed over a podcast's episodes.
type PodcastStats struct {
	TotalEpisodes         int        `json:"total_episodes"`
	TotalDurationSeconds  int64      `json:"total_duration_seconds"`
	MedianEpisodeDuration int64      `json:"median_episode_duration"`
	LastReleaseDate       *time.Time `json:"last_release_date"`
}

type Season struct {
	ID           string    `db:"id" json:"id"`
	PodcastID    string    `db:"podcast_id" json:"podcast_id"`
	SeasonNumber int       `db:"season_number" json:"season_number"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Episode struct {
	ID                 string     `db:"id" json:"id"`
	PodcastID          string     `db:"podcast_id" json:"podcast_id"`
	SeasonID           *string    `db:"season_id" json:"season_id"`
	GUID               string     `db:"guid" json:"guid"`
	Title              string     `db:"title" json:"title"`
	EpType             string     `db:"ep_type" json:"ep_type"`
	EpNum              *int       `db:"ep_num" json:"ep_num"`
	ReleaseDatetime    *time.Time `db:"release_datetime" json:"release_datetime"`
	EpisodeURL         *string    `db:"episode_url" json:"episode_url"`
	MimeType           *string    `db:"mime_type" json:"mime_type"`
	DownloadURL        *string    `db:"download_url" json:"download_url"`
	ItunesDuration     *int       `db:"itunes_duration" json:"itunes_duration"`
	FileSize           *int64     `db:"file_size" json:"file_size"`
	ItunesExplicit     bool       `db:"itunes_explicit" json:"itunes_explicit"`
	ShowNotes          *string    `db:"show_notes" json:"show_notes"`
	CWPresent          bool       `db:"cw_present" json:"cw_present"`
	TranscriptDetected bool       `db:"transcript_detected" json:"transcript_detected"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// EpisodeFilter narrows ListEpisodes. Results are ordered newest first.
type EpisodeFilter struct {
	PodcastID string
	// FullOnly keeps only episodes of type "full".
	FullOnly bool
	// Dated drops episodes without a release timestamp.
	Dated bool
	// Limit of zero means no limit.
	Limit int
}

// Person is a host or guest detected from feed data. A merged person keeps
// its row and points at its replacement through MergedIntoID.
type Person struct {
	ID           string     `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	URL          string     `db:"url" json:"url"`
	ImgURL       *string    `db:"img_url" json:"img_url"`
	MergedIntoID *string    `db:"merged_into_id" json:"merged_into_id"`
	MergedAt     *time.Time `db:"merged_at" json:"merged_at"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// PodcastAppearance summarises a person's episodes on one podcast.
type PodcastAppearance struct {
	PodcastID    string `db:"podcast_id" json:"podcast_id"`
	PodcastTitle string `db:"podcast_title" json:"podcast_title"`
	Hosted       int    `db:"hosted" json:"hosted"`
	Guested      int    `db:"guested" json:"guested"`
}

type ItunesCategory struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ParentID  *string   `db:"parent_id" json:"parent_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ArtUpdate is an audit record of a single cover art fetch attempt.
type ArtUpdate struct {
	ID               string    `db:"id" json:"id"`
	PodcastID        string    `db:"podcast_id" json:"podcast_id"`
	Timestamp        time.Time `db:"timestamp" json:"timestamp"`
	ReportedMimeType *string   `db:"reported_mime_type" json:"reported_mime_type"`
	ActualMimeType   *string   `db:"actual_mime_type" json:"actual_mime_type"`
	ValidFile        bool      `db:"valid_file" json:"valid_file"`
}

type AnalysisGroup struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// RefreshJob is a recurring refresh registration. PodcastID is the job key.
type RefreshJob struct {
	PodcastID string    `db:"podcast_id" json:"podcast_id"`
	Name      string    `db:"name" json:"name"`
	Cadence   string    `db:"cadence" json:"cadence"`
	NextRun   time.Time `db:"next_run" json:"next_run"`
	Repeats   int       `db:"repeats" json:"repeats"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
