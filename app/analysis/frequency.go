package analysis

import (
	"slices"
	"time"

	"github.com/lysyi3m/podcast-analyzer/app/database"
)

const (
	minEpisodesForFrequency = 5
	dormancyThreshold       = 65 * 24 * time.Hour
	day                     = 24 * time.Hour
)

var frequencyBuckets = []struct {
	max  time.Duration
	freq database.ReleaseFrequency
}{
	{2 * day, database.FrequencyDaily},
	{5 * day, database.FrequencyOften},
	{8 * day, database.FrequencyWeekly},
	{15 * day, database.FrequencyBiweekly},
	{33 * day, database.FrequencyMonthly},
}

// ClassifyFrequency buckets the median gap between releases. Fewer than
// five releases yields FrequencyUnknown.
func ClassifyFrequency(releases []time.Time) database.ReleaseFrequency {
	if len(releases) < minEpisodesForFrequency {
		return database.FrequencyUnknown
	}

	gap := MedianReleaseGap(releases)
	for _, b := range frequencyBuckets {
		if gap <= b.max {
			return b.freq
		}
	}
	return database.FrequencyAdhoc
}

// MedianReleaseGap sorts releases ascending and returns the upper median of
// the whole-second gaps between consecutive ones.
func MedianReleaseGap(releases []time.Time) time.Duration {
	if len(releases) < 2 {
		return 0
	}

	sorted := slices.Clone(releases)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })

	gaps := make([]int64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, int64(sorted[i].Sub(sorted[i-1])/time.Second))
	}
	slices.Sort(gaps)

	return time.Duration(gaps[len(gaps)/2]) * time.Second
}

// IsDormant reports whether latest is more than 65 days before now.
func IsDormant(latest, now time.Time) bool {
	return now.Sub(latest) > dormancyThreshold
}

// InferHost resolves the probable host from the generator, then from the
// download URLs in the order given.
func InferHost(rules Rules, generator string, downloadURLs []string) (string, bool) {
	if host, ok := rules.GeneratorHost(generator); ok {
		return host, true
	}
	for _, u := range downloadURLs {
		if host, ok := rules.DomainHost(u); ok {
			return host, true
		}
	}
	return "", false
}

func DetectTracking(rules Rules, downloadURLs []string) bool {
	for _, u := range downloadURLs {
		if _, ok := rules.Tracker(u); ok {
			return true
		}
	}
	return false
}
