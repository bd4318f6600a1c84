package art

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/lysyi3m/podcast-analyzer/app/database"
)

const (
	sniffBytes     = 2048
	titlePrefixLen = 25
)

var allowedTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// Result describes one processed art payload.
type Result struct {
	Valid    bool
	MimeType string
	Key      string
	URL      string
}

// Processor validates downloaded cover art and stores it as the podcast's
// cached copy. Every attempt is written to the art update audit trail.
type Processor struct {
	podcasts database.PodcastRepository
	updates  database.ArtUpdateRepository
	store    Store
}

func NewProcessor(podcasts database.PodcastRepository, updates database.ArtUpdateRepository, store Store) *Processor {
	return &Processor{podcasts: podcasts, updates: updates, store: store}
}

func (p *Processor) Process(ctx context.Context, podcast *database.Podcast, data []byte, sourceURL, reportedMime string) (*Result, error) {
	filename := filenameFromURL(sourceURL)

	detected := sniff(data)
	if detected == nil {
		slog.Warn("Cover art type could not be determined", "podcast", podcast.ID, "url", sourceURL)
		return &Result{}, p.audit(ctx, podcast.ID, reportedMime, "", false)
	}

	actual := detected.String()
	if !allowed(detected) {
		slog.Warn("Cover art rejected", "podcast", podcast.ID, "url", sourceURL, "reported", reportedMime, "actual", actual)
		return &Result{MimeType: actual}, p.audit(ctx, podcast.ID, reportedMime, actual, false)
	}

	key := storageKey(podcast, withExtension(filename, detected.Extension()))
	if err := p.store.Put(ctx, key, data, actual); err != nil {
		return nil, fmt.Errorf("failed to store cover art: %w", err)
	}
	if err := p.podcasts.SetCachedArt(ctx, podcast.ID, key); err != nil {
		return nil, err
	}
	podcast.CachedCoverArt = &key
	podcast.ArtUpdateNeeded = false

	if err := p.audit(ctx, podcast.ID, reportedMime, actual, true); err != nil {
		return nil, err
	}

	res := &Result{Valid: true, MimeType: actual, Key: key, URL: p.store.URL(key)}
	slog.Debug("Cover art cached", "podcast", podcast.ID, "key", key, "url", res.URL, "type", actual)
	return res, nil
}

func (p *Processor) audit(ctx context.Context, podcastID, reported, actual string, valid bool) error {
	update := &database.ArtUpdate{
		PodcastID: podcastID,
		ValidFile: valid,
	}
	if reported != "" {
		update.ReportedMimeType = &reported
	}
	if actual != "" {
		update.ActualMimeType = &actual
	}
	if err := p.updates.RecordArtUpdate(ctx, update); err != nil {
		return fmt.Errorf("failed to record art update: %w", err)
	}
	return nil
}

// sniff returns nil when the payload does not match any known format.
func sniff(data []byte) *mimetype.MIME {
	if len(data) == 0 {
		return nil
	}
	head := data[:min(len(data), sniffBytes)]
	detected := mimetype.Detect(head)
	if detected.Is("application/octet-stream") {
		return nil
	}
	return detected
}

func allowed(m *mimetype.MIME) bool {
	for _, t := range allowedTypes {
		if m.Is(t) {
			return true
		}
	}
	return false
}

func filenameFromURL(raw string) string {
	name := ""
	if u, err := url.Parse(raw); err == nil {
		name = path.Base(u.Path)
	} else {
		name, _, _ = strings.Cut(path.Base(raw), "?")
	}
	if name == "" || name == "." || name == "/" {
		return "cover"
	}
	return name
}

func withExtension(filename, ext string) string {
	return strings.TrimSuffix(filename, path.Ext(filename)) + ext
}

// storageKey is <first 25 runes of title, spaces as underscores>_<id>/<filename>.
func storageKey(podcast *database.Podcast, filename string) string {
	title := []rune(podcast.Title)
	if len(title) > titlePrefixLen {
		title = title[:titlePrefixLen]
	}
	prefix := strings.ReplaceAll(string(title), " ", "_")
	return fmt.Sprintf("%s_%s/%s", prefix, podcast.ID, filename)
}
