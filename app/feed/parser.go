package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const (
	podcastNamespace = "podcast"
	atomNamespace    = "atom"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte) (*NormalizedFeed, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	nf := &NormalizedFeed{}

	nf.Title = p.optional(nf, KeyTitle, parsed.Title)
	nf.Description = p.optional(nf, KeyDescription, parsed.Description)
	nf.Link = p.optional(nf, KeyLink, parsed.Link)
	nf.Generator = p.optional(nf, KeyGenerator, parsed.Generator)
	nf.Language = p.optional(nf, KeyLanguage, parsed.Language)

	if parsed.PublishedParsed != nil {
		t := parsed.PublishedParsed.UTC()
		nf.Published = &t
		nf.setKey(KeyPublished)
	} else if parsed.UpdatedParsed != nil {
		t := parsed.UpdatedParsed.UTC()
		nf.Published = &t
		nf.setKey(KeyPublished)
	}

	if parsed.Image != nil {
		nf.CoverURL = p.optional(nf, KeyCoverURL, parsed.Image.URL)
	}

	if funding := firstExtension(parsed.Extensions, "funding"); funding != nil {
		nf.FundingURL = p.optional(nf, KeyFundingURL, cmp.Or(funding.Attrs["url"], strings.TrimSpace(funding.Value)))
	}
	if locked := firstExtension(parsed.Extensions, "locked"); locked != nil {
		nf.Locked = parseBool(locked.Value)
		nf.setKey(KeyLocked)
	}

	if it := parsed.ITunesExt; it != nil {
		p.applyItunes(nf, it)
	}

	nf.Episodes = make([]Episode, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		nf.Episodes = append(nf.Episodes, p.normalizeItem(item))
	}
	nf.setKey(KeyEpisodes)

	return nf, nil
}

func (p *Parser) applyItunes(nf *NormalizedFeed, it *ext.ITunesFeedExtension) {
	if nf.CoverURL == nil {
		nf.CoverURL = p.optional(nf, KeyCoverURL, it.Image)
	}
	nf.Type = p.optional(nf, KeyType, strings.ToLower(it.Type))
	nf.ItunesAuthor = p.optional(nf, KeyItunesAuthor, it.Author)

	if it.Explicit != "" {
		nf.Explicit = parseBool(it.Explicit)
		nf.setKey(KeyExplicit)
	}

	if it.Owner != nil && (it.Owner.Name != "" || it.Owner.Email != "") {
		nf.ItunesOwner = &Owner{
			Name:  strings.TrimSpace(it.Owner.Name),
			Email: strings.TrimSpace(it.Owner.Email),
		}
		nf.setKey(KeyItunesOwner)
	}

	for _, cat := range it.Categories {
		if cat == nil || cat.Text == "" {
			continue
		}
		entry := []string{cat.Text}
		if cat.Subcategory != nil && cat.Subcategory.Text != "" {
			entry = append(entry, cat.Subcategory.Text)
		}
		nf.ItunesCategories = append(nf.ItunesCategories, entry)
	}
	if len(nf.ItunesCategories) > 0 {
		nf.setKey(KeyItunesCategories)
	}

	if it.Keywords != "" {
		for _, kw := range strings.Split(it.Keywords, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				nf.ItunesKeywords = append(nf.ItunesKeywords, kw)
			}
		}
		if len(nf.ItunesKeywords) > 0 {
			nf.setKey(KeyItunesKeywords)
		}
	}
}

func (p *Parser) normalizeItem(item *gofeed.Item) Episode {
	ep := Episode{
		Title:       strings.TrimSpace(item.Title),
		Description: cmp.Or(item.Description, item.Content),
		Type:        "full",
	}

	if item.Link != "" {
		link := item.Link
		ep.Link = &link
	}

	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		ep.Published = &t
	}

	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		ep.Enclosures = append(ep.Enclosures, Enclosure{
			URL:      enc.URL,
			MimeType: enc.Type,
			FileSize: parseLength(enc.Length),
		})
	}

	var firstEnclosure string
	if len(ep.Enclosures) > 0 {
		firstEnclosure = ep.Enclosures[0].URL
	}
	ep.GUID = cmp.Or(item.GUID, item.Link, firstEnclosure)

	if it := item.ITunesExt; it != nil {
		if ep.Description == "" {
			ep.Description = it.Summary
		}
		if it.EpisodeType != "" {
			ep.Type = strings.ToLower(strings.TrimSpace(it.EpisodeType))
		}
		ep.Explicit = parseBool(it.Explicit)
		ep.TotalTime = parseDuration(it.Duration)
		ep.Number = parseOptionalInt(it.Episode)
		ep.Season = parseOptionalInt(it.Season)
	}

	if ep.Season == nil {
		if season := firstExtension(item.Extensions, "season"); season != nil {
			ep.Season = parseOptionalInt(season.Value)
		}
	}
	if ep.Number == nil {
		if number := firstExtension(item.Extensions, "episode"); number != nil {
			ep.Number = parseOptionalInt(number.Value)
		}
	}

	if transcript := firstExtension(item.Extensions, "transcript"); transcript != nil {
		if u := transcript.Attrs["url"]; u != "" {
			ep.TranscriptURL = &u
		}
	}

	if funding := firstExtension(item.Extensions, "funding"); funding != nil {
		if u := cmp.Or(funding.Attrs["url"], strings.TrimSpace(funding.Value)); u != "" {
			ep.PaymentURL = &u
		}
	}
	if ep.PaymentURL == nil {
		for _, link := range namespaceList(item.Extensions, atomNamespace, "link") {
			if link.Attrs["rel"] == "payment" && link.Attrs["href"] != "" {
				u := link.Attrs["href"]
				ep.PaymentURL = &u
				break
			}
		}
	}

	for _, person := range extensionList(item.Extensions, "person") {
		name := strings.TrimSpace(person.Value)
		if name == "" {
			continue
		}
		ep.Persons = append(ep.Persons, Person{
			Name: name,
			Href: person.Attrs["href"],
			Img:  person.Attrs["img"],
			Role: strings.ToLower(cmp.Or(person.Attrs["role"], "host")),
		})
	}

	return ep
}

// optional records key and returns a pointer to value when value is non-empty.
func (p *Parser) optional(nf *NormalizedFeed, key, value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	nf.setKey(key)
	return &value
}

func extensionList(exts ext.Extensions, name string) []ext.Extension {
	return namespaceList(exts, podcastNamespace, name)
}

func namespaceList(exts ext.Extensions, namespace, name string) []ext.Extension {
	if exts == nil {
		return nil
	}
	ns, ok := exts[namespace]
	if !ok {
		return nil
	}
	return ns[name]
}

func firstExtension(exts ext.Extensions, name string) *ext.Extension {
	list := extensionList(exts, name)
	if len(list) == 0 {
		return nil
	}
	return &list[0]
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "explicit", "1":
		return true
	}
	return false
}

func parseLength(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func parseOptionalInt(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}

// parseDuration accepts SS, MM:SS and HH:MM:SS; fractional seconds are dropped.
func parseDuration(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return nil
	}

	total := 0
	for _, part := range parts {
		part, _, _ = strings.Cut(part, ".")
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil
		}
		total = total*60 + n
	}
	return &total
}
