package feed

import (
	"testing"
	"time"
)

const podcastRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"
	xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd"
	xmlns:podcast="https://podcastindex.org/namespace/1.0"
	xmlns:atom="http://www.w3.org/2005/Atom">
<channel>
	<title>Test Podcast</title>
	<link>https://example.com</link>
	<description>A test podcast feed</description>
	<language>en-us</language>
	<generator>Transistor (https://transistor.fm)</generator>
	<pubDate>Mon, 03 Jul 2023 12:00:00 GMT</pubDate>
	<podcast:locked>yes</podcast:locked>
	<podcast:funding url="https://example.com/support">Support us</podcast:funding>
	<itunes:author>Jane Host</itunes:author>
	<itunes:type>Serial</itunes:type>
	<itunes:explicit>true</itunes:explicit>
	<itunes:image href="https://example.com/cover.jpg"/>
	<itunes:keywords>tech, news ,</itunes:keywords>
	<itunes:owner>
		<itunes:name>Jane Host</itunes:name>
		<itunes:email>jane@example.com</itunes:email>
	</itunes:owner>
	<itunes:category text="Technology"/>
	<itunes:category text="Society &amp; Culture">
		<itunes:category text="Documentary"/>
	</itunes:category>
	<item>
		<title>Episode 1</title>
		<link>https://example.com/episode1</link>
		<description>First episode. CW: language</description>
		<guid>episode1</guid>
		<pubDate>Wed, 01 Feb 2023 10:00:00 +0000</pubDate>
		<enclosure url="https://dts.podtrac.com/redirect.mp3/example.com/ep1.mp3" length="24576000" type="audio/mpeg" />
		<itunes:duration>1:02:03</itunes:duration>
		<itunes:episode>1</itunes:episode>
		<itunes:season>2</itunes:season>
		<itunes:episodeType>Bonus</itunes:episodeType>
		<podcast:transcript url="https://example.com/ep1.vtt" type="text/vtt"/>
		<podcast:person href="https://jane.example.com" img="https://example.com/jane.png">Jane Host</podcast:person>
		<podcast:person role="Guest">Sam Guest</podcast:person>
		<atom:link rel="payment" href="https://example.com/pay"/>
	</item>
	<item>
		<title>Episode 2</title>
		<link>https://example.com/episode2</link>
		<enclosure url="https://example.com/ep2.mp3" length="unknown" type="audio/mpeg" />
		<itunes:duration>95</itunes:duration>
	</item>
</channel>
</rss>`

func TestParsePodcastFeed(t *testing.T) {
	parser := NewParser()
	nf, err := parser.Run([]byte(podcastRSS))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if nf.Title == nil || *nf.Title != "Test Podcast" {
		t.Errorf("Expected title 'Test Podcast', got: %v", nf.Title)
	}
	if nf.Generator == nil || *nf.Generator != "Transistor (https://transistor.fm)" {
		t.Errorf("Unexpected generator: %v", nf.Generator)
	}
	if nf.Type == nil || *nf.Type != "serial" {
		t.Errorf("Expected lowercased type 'serial', got: %v", nf.Type)
	}
	if nf.CoverURL == nil || *nf.CoverURL != "https://example.com/cover.jpg" {
		t.Errorf("Unexpected cover url: %v", nf.CoverURL)
	}
	if nf.FundingURL == nil || *nf.FundingURL != "https://example.com/support" {
		t.Errorf("Unexpected funding url: %v", nf.FundingURL)
	}
	if !nf.Locked || !nf.Explicit {
		t.Errorf("Expected locked and explicit, got locked=%v explicit=%v", nf.Locked, nf.Explicit)
	}
	if nf.Published == nil || !nf.Published.Equal(time.Date(2023, 7, 3, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected published time: %v", nf.Published)
	}
	if nf.ItunesOwner == nil || nf.ItunesOwner.Email != "jane@example.com" {
		t.Errorf("Unexpected owner: %+v", nf.ItunesOwner)
	}
	if len(nf.ItunesKeywords) != 2 || nf.ItunesKeywords[1] != "news" {
		t.Errorf("Unexpected keywords: %v", nf.ItunesKeywords)
	}
	if len(nf.ItunesCategories) != 2 {
		t.Fatalf("Expected 2 categories, got: %v", nf.ItunesCategories)
	}
	if got := nf.ItunesCategories[1]; len(got) != 2 || got[1] != "Documentary" {
		t.Errorf("Expected nested subcategory, got: %v", got)
	}

	for _, key := range []string{KeyTitle, KeyItunesAuthor, KeyItunesOwner, KeyEpisodes, KeyLocked} {
		if !nf.Has(key) {
			t.Errorf("Expected key %q to be present", key)
		}
	}

	if len(nf.Episodes) != 2 {
		t.Fatalf("Expected 2 episodes, got: %d", len(nf.Episodes))
	}

	ep := nf.Episodes[0]
	if ep.GUID != "episode1" {
		t.Errorf("Expected GUID 'episode1', got: %s", ep.GUID)
	}
	if ep.Type != "bonus" {
		t.Errorf("Expected type 'bonus', got: %s", ep.Type)
	}
	if ep.TotalTime == nil || *ep.TotalTime != 3723 {
		t.Errorf("Expected duration 3723, got: %v", ep.TotalTime)
	}
	if ep.Number == nil || *ep.Number != 1 || ep.Season == nil || *ep.Season != 2 {
		t.Errorf("Unexpected number/season: %v/%v", ep.Number, ep.Season)
	}
	if len(ep.Enclosures) != 1 || ep.Enclosures[0].FileSize != 24576000 {
		t.Errorf("Unexpected enclosures: %+v", ep.Enclosures)
	}
	if ep.TranscriptURL == nil || *ep.TranscriptURL != "https://example.com/ep1.vtt" {
		t.Errorf("Unexpected transcript url: %v", ep.TranscriptURL)
	}
	if ep.PaymentURL == nil || *ep.PaymentURL != "https://example.com/pay" {
		t.Errorf("Unexpected payment url: %v", ep.PaymentURL)
	}
	if len(ep.Persons) != 2 {
		t.Fatalf("Expected 2 persons, got: %+v", ep.Persons)
	}
	if ep.Persons[0].Role != "host" || ep.Persons[0].Img != "https://example.com/jane.png" {
		t.Errorf("Expected default host role with image, got: %+v", ep.Persons[0])
	}
	if ep.Persons[1].Role != "guest" {
		t.Errorf("Expected lowercased guest role, got: %+v", ep.Persons[1])
	}

	second := nf.Episodes[1]
	if second.GUID != "https://example.com/episode2" {
		t.Errorf("Expected GUID to fall back to link, got: %s", second.GUID)
	}
	if second.Published != nil {
		t.Errorf("Expected no published time, got: %v", second.Published)
	}
	if second.Type != "full" {
		t.Errorf("Expected default type 'full', got: %s", second.Type)
	}
	if second.Enclosures[0].FileSize != -1 {
		t.Errorf("Expected unknown length -1, got: %d", second.Enclosures[0].FileSize)
	}
	if second.TotalTime == nil || *second.TotalTime != 95 {
		t.Errorf("Expected duration 95, got: %v", second.TotalTime)
	}
}

func TestParseOmitsAbsentKeys(t *testing.T) {
	rssData := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Bare Feed</title>
  </channel>
</rss>`

	nf, err := NewParser().Run([]byte(rssData))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	for _, key := range []string{KeyDescription, KeyGenerator, KeyItunesAuthor, KeyItunesOwner, KeyCoverURL, KeyPublished} {
		if nf.Has(key) {
			t.Errorf("Expected key %q to be absent", key)
		}
	}
	if nf.Description != nil {
		t.Errorf("Expected nil description, got: %v", *nf.Description)
	}
	if len(nf.Episodes) != 0 {
		t.Errorf("Expected no episodes, got: %d", len(nf.Episodes))
	}
}

func TestParseInvalidFeed(t *testing.T) {
	parser := NewParser()
	_, err := parser.Run([]byte("invalid xml"))

	if err == nil {
		t.Error("Expected error for invalid XML")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"95", 95, true},
		{"01:35", 95, true},
		{"1:00:00", 3600, true},
		{"1:00:00.5", 3600, true},
		{"", 0, false},
		{"abc", 0, false},
		{"1:2:3:4", 0, false},
	}

	for _, tt := range tests {
		got := parseDuration(tt.in)
		if !tt.ok {
			if got != nil {
				t.Errorf("parseDuration(%q) = %d, want nil", tt.in, *got)
			}
			continue
		}
		if got == nil || *got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %d", tt.in, got, tt.want)
		}
	}
}
