package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/podcast-analyzer/app/database"
)

// MetadataReconciler copies channel level data from a NormalizedFeed onto
// the stored podcast.
type MetadataReconciler struct {
	podcasts   database.PodcastRepository
	categories database.CategoryRepository

	// PreserveOmitted keeps stored values for fields the feed left out
	// instead of clearing them.
	PreserveOmitted bool
}

func NewMetadataReconciler(podcasts database.PodcastRepository, categories database.CategoryRepository, preserveOmitted bool) *MetadataReconciler {
	return &MetadataReconciler{
		podcasts:        podcasts,
		categories:      categories,
		PreserveOmitted: preserveOmitted,
	}
}

func (m *MetadataReconciler) Reconcile(ctx context.Context, p *database.Podcast, nf *NormalizedFeed) error {
	if !sameString(nf.CoverURL, p.CoverArtURL) && (nf.CoverURL != nil || !m.PreserveOmitted) {
		p.CoverArtURL = nf.CoverURL
		if nf.CoverURL != nil {
			p.ArtUpdateNeeded = true
		}
	}

	itunes := false
	for _, key := range nf.Keys() {
		if strings.Contains(key, "itunes") {
			itunes = true
		}
		if key == KeyFundingURL || key == KeyLocked {
			p.FeedContainsPodcastIndexData = true
		}
	}
	if itunes {
		p.FeedContainsItunesData = true
	}

	if nf.Title != nil {
		p.Title = *nf.Title
	}
	m.assign(&p.Description, nf.Description)
	m.assign(&p.SiteURL, nf.Link)
	m.assign(&p.Generator, nf.Generator)
	m.assign(&p.Language, nf.Language)
	m.assign(&p.FundingURL, nf.FundingURL)
	m.assign(&p.ItunesFeedType, nf.Type)

	if itunes {
		p.ItunesExplicit = nf.Explicit

		if owner := nf.ItunesOwner; owner != nil {
			if owner.Name != "" {
				p.Author = &owner.Name
			}
			if owner.Email != "" {
				p.Email = &owner.Email
			}
		} else if nf.ItunesAuthor != nil && p.Author == nil {
			p.Author = nf.ItunesAuthor
		}

		categoryIDs, err := m.resolveCategories(ctx, nf.ItunesCategories)
		if err != nil {
			return err
		}
		if err := m.podcasts.SetCategories(ctx, p.ID, categoryIDs); err != nil {
			return fmt.Errorf("failed to set categories: %w", err)
		}

		if nf.Has(KeyItunesKeywords) || !m.PreserveOmitted {
			p.Tags = database.Tags(nf.ItunesKeywords)
		}
	}

	if nf.FundingURL != nil {
		p.FeedContainsStructuredDonationData = true
	}

	if nf.Published != nil {
		published := nf.Published.UTC()
		p.LastFeedUpdate = &published
	}

	checked := time.Now().UTC()
	p.LastChecked = &checked

	if err := m.podcasts.SaveMetadata(ctx, p); err != nil {
		return fmt.Errorf("failed to save podcast metadata: %w", err)
	}
	return nil
}

func (m *MetadataReconciler) assign(dst **string, value *string) {
	if value == nil && m.PreserveOmitted {
		return
	}
	*dst = value
}

// resolveCategories maps [parent, child] name pairs onto taxonomy ids,
// creating missing nodes.
func (m *MetadataReconciler) resolveCategories(ctx context.Context, entries [][]string) ([]string, error) {
	var ids []string
	for _, entry := range entries {
		if len(entry) == 0 {
			continue
		}
		parent, err := m.categories.GetOrCreateCategory(ctx, entry[0], nil)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve category %q: %w", entry[0], err)
		}
		ids = append(ids, parent.ID)

		if len(entry) > 1 {
			child, err := m.categories.GetOrCreateCategory(ctx, entry[1], &parent.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve category %q: %w", entry[1], err)
			}
			ids = append(ids, child.ID)
		}
	}
	return ids, nil
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
