package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/podcast-analyzer/app/database"
)

const (
	roleHost  = "host"
	roleGuest = "guest"
)

// Markers matched verbatim against show notes.
var caseSensitiveWarnings = []string{"CW"}

// Markers matched against lowercased show notes.
var caseInsensitiveWarnings = []string{"content warning", "trigger warning", "content note"}

type EpisodeReconciler struct {
	podcasts database.PodcastRepository
	episodes database.EpisodeRepository
	people   database.PersonRepository
	now      func() time.Time
}

func NewEpisodeReconciler(podcasts database.PodcastRepository, episodes database.EpisodeRepository, people database.PersonRepository) *EpisodeReconciler {
	return &EpisodeReconciler{
		podcasts: podcasts,
		episodes: episodes,
		people:   people,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ReconcileMany stores feed items as episodes of p and returns how many were
// created or updated. Existing episodes are only rewritten when
// updateExisting is set. Items without an enclosure are ignored.
func (r *EpisodeReconciler) ReconcileMany(ctx context.Context, p *database.Podcast, items []Episode, updateExisting bool) (int, error) {
	touched := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return touched, ctx.Err()
		}

		ok, err := r.reconcileOne(ctx, p, item, updateExisting)
		if err != nil {
			return touched, fmt.Errorf("failed to reconcile episode %s: %w", item.GUID, err)
		}
		if ok {
			touched++
		}
	}
	return touched, nil
}

// reconcileOne removes an episode it created when a later step fails, so a
// retry sees the guid as new. A row left without a download URL by an
// earlier crash is filled in as if it were new.
func (r *EpisodeReconciler) reconcileOne(ctx context.Context, p *database.Podcast, item Episode, updateExisting bool) (bool, error) {
	if len(item.Enclosures) == 0 || item.GUID == "" {
		return false, nil
	}

	ep, created, err := r.episodes.GetOrCreateEpisode(ctx, p.ID, item.GUID)
	if err != nil {
		return false, err
	}
	fresh := created || ep.DownloadURL == nil
	if !fresh && !updateExisting {
		return false, nil
	}

	if err := r.fill(ctx, p, ep, item); err != nil {
		if fresh {
			if delErr := r.episodes.DeleteEpisode(context.WithoutCancel(ctx), ep.ID); delErr != nil {
				slog.WarnContext(ctx, "Failed to discard incomplete episode", "episode", ep.ID, "guid", item.GUID, "error", delErr)
			}
		}
		return false, err
	}
	return true, nil
}

func (r *EpisodeReconciler) fill(ctx context.Context, p *database.Podcast, ep *database.Episode, item Episode) error {
	ep.Title = item.Title
	ep.ItunesExplicit = item.Explicit
	ep.EpType = item.Type
	if ep.EpType == "" {
		ep.EpType = database.EpisodeTypeFull
	}
	ep.ShowNotes = nil
	if item.Description != "" {
		notes := item.Description
		ep.ShowNotes = &notes
	}
	ep.EpisodeURL = item.Link

	release := r.now()
	if item.Published != nil {
		release = item.Published.UTC()
	}
	ep.ReleaseDatetime = &release

	enclosure := item.Enclosures[0]
	if enclosure.FileSize >= 0 {
		size := enclosure.FileSize
		ep.FileSize = &size
	}
	ep.DownloadURL = &enclosure.URL
	if enclosure.MimeType != "" {
		ep.MimeType = &enclosure.MimeType
	}

	ep.EpNum = item.Number
	ep.ItunesDuration = item.TotalTime

	if item.Season != nil {
		season, err := r.episodes.GetOrCreateSeason(ctx, p.ID, *item.Season)
		if err != nil {
			return err
		}
		ep.SeasonID = &season.ID
	}

	notes := ""
	if ep.ShowNotes != nil {
		notes = *ep.ShowNotes
	}
	if item.TranscriptURL != nil || strings.Contains(strings.ToLower(notes), "transcript") {
		ep.TranscriptDetected = true
	}
	if hasContentWarning(notes) {
		ep.CWPresent = true
	}

	if err := r.episodes.SaveEpisode(ctx, ep); err != nil {
		return err
	}

	if err := r.attachPersons(ctx, ep, item.Persons); err != nil {
		return err
	}

	if item.PaymentURL != nil && !p.FeedContainsStructuredDonationData {
		if err := r.podcasts.SetStructuredDonation(ctx, p.ID); err != nil {
			return err
		}
		p.FeedContainsStructuredDonationData = true
	}

	return nil
}

func (r *EpisodeReconciler) attachPersons(ctx context.Context, ep *database.Episode, persons []Person) error {
	for _, person := range persons {
		role := strings.ToLower(person.Role)
		if role == "" {
			role = roleHost
		}
		if role != roleHost && role != roleGuest {
			slog.Debug("Ignoring person role", "episode", ep.ID, "person", person.Name, "role", role)
			continue
		}

		record, _, err := r.people.GetOrCreatePerson(ctx, person.Name, person.Href)
		if err != nil {
			return err
		}
		if person.Img != "" && record.ImgURL == nil {
			if _, err := r.people.SetPersonImage(ctx, record.ID, person.Img); err != nil {
				return err
			}
		}

		if role == roleHost {
			err = r.episodes.AddEpisodeHost(ctx, ep.ID, record.ID)
		} else {
			err = r.episodes.AddEpisodeGuest(ctx, ep.ID, record.ID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func hasContentWarning(notes string) bool {
	if notes == "" {
		return false
	}
	for _, marker := range caseSensitiveWarnings {
		if strings.Contains(notes, marker) {
			return true
		}
	}
	lower := strings.ToLower(notes)
	for _, marker := range caseInsensitiveWarnings {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
