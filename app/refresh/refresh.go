package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/podcast-analyzer/app/database"
)

// Cadence names stored on refresh jobs.
const (
	CadenceOnce     = "once"
	CadenceDaily    = "daily"
	CadenceWeekly   = "weekly"
	CadenceBiweekly = "biweekly"
	CadenceMonthly  = "monthly"
)

const dormantInterval = 60

// OnceRetry is how far a dispatched one-off job is pushed back. The next
// successful analysis replaces it through Register.
const OnceRetry = 24 * time.Hour

// RepeatForever marks a job that is re-armed after every run.
const RepeatForever = -1

var ErrUnschedulable = errors.New("release frequency cannot be scheduled")

var intervalDays = map[database.ReleaseFrequency]int{
	database.FrequencyDaily:    1,
	database.FrequencyOften:    3,
	database.FrequencyWeekly:   7,
	database.FrequencyBiweekly: 14,
	database.FrequencyMonthly:  30,
	database.FrequencyAdhoc:    60,
}

var cadences = map[database.ReleaseFrequency]string{
	database.FrequencyDaily:    CadenceDaily,
	database.FrequencyOften:    CadenceOnce,
	database.FrequencyWeekly:   CadenceWeekly,
	database.FrequencyBiweekly: CadenceBiweekly,
	database.FrequencyMonthly:  CadenceMonthly,
	database.FrequencyAdhoc:    CadenceOnce,
}

// Interval returns the refresh interval for a frequency class.
func Interval(freq database.ReleaseFrequency, dormant bool) (time.Duration, error) {
	days, ok := intervalDays[freq]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnschedulable, freq)
	}
	if dormant {
		days = dormantInterval
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

// NextRefresh steps from lastRelease by the frequency interval until the
// result is strictly after now.
func NextRefresh(lastRelease time.Time, freq database.ReleaseFrequency, dormant bool, now time.Time) (time.Time, error) {
	interval, err := Interval(freq, dormant)
	if err != nil {
		return time.Time{}, err
	}

	next := lastRelease.Add(interval)
	for !next.After(now) {
		next = next.Add(interval)
	}
	return next, nil
}

// CadenceFor maps a frequency class onto the job cadence name.
func CadenceFor(freq database.ReleaseFrequency) (string, bool) {
	c, ok := cadences[freq]
	return c, ok
}

// Registrar keeps each podcast's refresh job in step with its analysis.
type Registrar struct {
	podcasts database.PodcastRepository
	jobs     database.RefreshJobRepository
	now      func() time.Time
}

func NewRegistrar(podcasts database.PodcastRepository, jobs database.RefreshJobRepository) *Registrar {
	return &Registrar{
		podcasts: podcasts,
		jobs:     jobs,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register computes the next refresh for p and upserts its job. It returns
// nil without scheduling when p has no dated episodes or its frequency is
// still pending.
func (r *Registrar) Register(ctx context.Context, p *database.Podcast) (*database.RefreshJob, error) {
	lastRelease, err := r.podcasts.LastReleaseDate(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if lastRelease == nil {
		slog.Error("Cannot schedule next refresh without a last release date", "podcast", p.ID, "title", p.Title)
		return nil, nil
	}

	if p.ReleaseFrequency == database.FrequencyUnknown {
		slog.Debug("Release frequency pending, not scheduling", "podcast", p.ID)
		return nil, nil
	}

	next, err := NextRefresh(*lastRelease, p.ReleaseFrequency, p.Dormant, r.now())
	if err != nil {
		return nil, err
	}
	cadence, _ := CadenceFor(p.ReleaseFrequency)

	job := database.RefreshJob{
		PodcastID: p.ID,
		Name:      fmt.Sprintf("%s Refresh", p.Title),
		Cadence:   cadence,
		NextRun:   next,
		Repeats:   RepeatForever,
	}
	if err := r.jobs.UpsertRefreshJob(ctx, job); err != nil {
		return nil, err
	}

	slog.Debug("Scheduled next feed refresh", "podcast", p.ID, "next_run", next, "cadence", cadence)
	return &job, nil
}

// AfterRun returns when a job should run next, or false when the cadence is
// unknown and the job should be removed. One-off jobs are kept until Register
// replaces them, so a failed refresh is tried again after OnceRetry.
func AfterRun(job database.RefreshJob, ranAt time.Time) (time.Time, bool) {
	var step time.Duration
	switch job.Cadence {
	case CadenceOnce:
		return ranAt.Add(OnceRetry), true
	case CadenceDaily:
		step = 24 * time.Hour
	case CadenceWeekly:
		step = 7 * 24 * time.Hour
	case CadenceBiweekly:
		step = 14 * 24 * time.Hour
	case CadenceMonthly:
		return nextAfter(job.NextRun, ranAt, func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }), true
	default:
		return time.Time{}, false
	}
	return nextAfter(job.NextRun, ranAt, func(t time.Time) time.Time { return t.Add(step) }), true
}

func nextAfter(from, after time.Time, step func(time.Time) time.Time) time.Time {
	next := step(from)
	for !next.After(after) {
		next = step(next)
	}
	return next
}
