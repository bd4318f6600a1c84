package feed

import (
	"sort"
	"time"
)

// Top-level keys a NormalizedFeed may report through Keys.
const (
	KeyTitle            = "title"
	KeyDescription      = "description"
	KeyLink             = "link"
	KeyGenerator        = "generator"
	KeyLanguage         = "language"
	KeyFundingURL       = "funding_url"
	KeyLocked           = "locked"
	KeyType             = "type"
	KeyCoverURL         = "cover_url"
	KeyExplicit         = "explicit"
	KeyPublished        = "published"
	KeyItunesAuthor     = "itunes_author"
	KeyItunesOwner      = "itunes_owner"
	KeyItunesCategories = "itunes_categories"
	KeyItunesKeywords   = "itunes_keywords"
	KeyEpisodes         = "episodes"
)

// NormalizedFeed is the parsed channel plus its items. Optional values are
// nil when the feed did not carry them.
type NormalizedFeed struct {
	Title       *string
	Description *string
	Link        *string
	Generator   *string
	Language    *string
	FundingURL  *string
	Type        *string
	CoverURL    *string
	Explicit    bool
	Locked      bool
	Published   *time.Time

	ItunesAuthor     *string
	ItunesOwner      *Owner
	ItunesCategories [][]string
	ItunesKeywords   []string

	Episodes []Episode

	keys map[string]struct{}
}

type Owner struct {
	Name  string
	Email string
}

type Episode struct {
	GUID          string
	Title         string
	Description   string
	Link          *string
	Published     *time.Time
	Enclosures    []Enclosure
	Number        *int
	TotalTime     *int
	Season        *int
	TranscriptURL *string
	Type          string
	Explicit      bool
	Persons       []Person
	PaymentURL    *string
}

type Enclosure struct {
	URL      string
	MimeType string
	// FileSize is -1 when the feed did not state a usable length.
	FileSize int64
}

type Person struct {
	Name string
	Href string
	Img  string
	Role string
}

func (f *NormalizedFeed) setKey(key string) {
	if f.keys == nil {
		f.keys = make(map[string]struct{})
	}
	f.keys[key] = struct{}{}
}

// Has reports whether key was present in the source feed.
func (f *NormalizedFeed) Has(key string) bool {
	_, ok := f.keys[key]
	return ok
}

// Keys lists the top-level keys present in the source feed.
func (f *NormalizedFeed) Keys() []string {
	keys := make([]string, 0, len(f.keys))
	for k := range f.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
