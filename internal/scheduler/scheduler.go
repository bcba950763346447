// Package scheduler is the tick-loop dispatcher: each tick computes the due
// job windows, gates them through the job-key idempotency predicate, and
// dispatches in order.
package scheduler

import (
	"context"
	"time"

	"github.com/scrumdog/cheddar-logic/internal/config"
	"github.com/scrumdog/cheddar-logic/internal/jobs"
	"github.com/scrumdog/cheddar-logic/internal/sports"
	"github.com/scrumdog/cheddar-logic/internal/store"
	"github.com/scrumdog/cheddar-logic/internal/telemetry"
)

// Job is the dispatch surface shared by the odds pull and the sport models.
type Job interface {
	Run(ctx context.Context, opts jobs.Options) (*jobs.Result, error)
}

// Scheduler drives the tick loop. It holds no window state of its own; all
// idempotency lives in job_runs.
type Scheduler struct {
	cfg    *config.Config
	store  *store.Store
	odds   Job
	models map[sports.Sport]Job
	loc    *time.Location
}

func New(cfg *config.Config, st *store.Store, odds Job, models map[sports.Sport]Job) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		store:  st,
		odds:   odds,
		models: models,
		loc:    cfg.Location(),
	}
}

// Run ticks until the context is cancelled. Ticks never overlap: each tick
// runs synchronously inside the loop, and the next interval starts only
// after it returns. Job failures are logged, never fatal to the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	telemetry.Infof("scheduler: tick every %s  tz=%s  dryRun=%v", s.cfg.TickPeriod, s.loc, s.cfg.DryRun)

	s.tick(ctx, time.Now())

	ticker := time.NewTicker(s.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			telemetry.Infof("scheduler: stopping")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx, time.Now())
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	telemetry.Metrics.TicksRun.Inc()

	enabled := s.enabledSports()
	games, err := s.store.UpcomingGames(now.Add(-1*time.Hour), now.Add(36*time.Hour), sportStrings(enabled))
	if err != nil {
		telemetry.Errorf("scheduler: load upcoming games: %v", err)
		return
	}
	telemetry.Metrics.UpcomingGames.Set(int64(len(games)))

	candidates := dueCandidates(now, s.loc, s.cfg.TickPeriod, s.cfg.FixedCatchup, s.cfg.EnableOddsPull, enabled, games)

	for _, c := range candidates {
		if ctx.Err() != nil {
			return
		}

		runnable, err := s.store.ShouldRunJobKey(c.JobKey)
		if err != nil {
			telemetry.Errorf("scheduler: idempotency check %s: %v", c.JobKey, err)
			continue
		}
		if !runnable {
			continue
		}

		if s.cfg.DryRun {
			telemetry.Infof("scheduler: dry run, would dispatch %s", c.JobKey)
			continue
		}

		s.dispatch(ctx, c)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, c Candidate) {
	var job Job
	switch c.Kind {
	case KindOdds:
		job = s.odds
	default:
		job = s.models[c.Sport]
	}
	if job == nil {
		telemetry.Warnf("scheduler: no job bound for %s", c.JobKey)
		return
	}

	telemetry.Metrics.JobsDispatched.Inc()
	opts := jobs.Options{JobKey: c.JobKey, WindowStart: c.WindowStart}
	if _, err := job.Run(ctx, opts); err != nil {
		// The runner already marked the job_runs row; the loop survives.
		telemetry.Errorf("scheduler: job %s: %v", c.JobKey, err)
	}
}

func (s *Scheduler) enabledSports() []sports.Sport {
	var out []sports.Sport
	for _, sport := range sports.All {
		if s.cfg.SportEnabled(sport) {
			out = append(out, sport)
		}
	}
	return out
}

func sportStrings(xs []sports.Sport) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = string(x)
	}
	return out
}
