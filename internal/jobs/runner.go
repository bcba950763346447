// Package jobs holds the job runners the scheduler dispatches: the hourly
// odds pull and the per-sport model jobs.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/scrumdog/cheddar-logic/internal/store"
	"github.com/scrumdog/cheddar-logic/internal/telemetry"
)

// Options parameterize one job invocation.
type Options struct {
	JobKey string
	DryRun bool
	// WindowStart identifies the scheduling window the job runs for; card
	// idempotency is scoped to it. Zero means "now".
	WindowStart time.Time
}

// Result is the uniform job outcome.
type Result struct {
	Success  bool
	JobRunID string
	Skipped  bool
	DryRun   bool
	Counts   map[string]int
}

// Runner applies the shared job contract: idempotency gate, dry-run
// short-circuit, job_runs bookkeeping, terminal status transitions.
type Runner struct {
	store *store.Store
}

func NewRunner(st *store.Store) *Runner {
	return &Runner{store: st}
}

type jobBody func(ctx context.Context, jobRunID string) (map[string]int, error)

func (r *Runner) Run(ctx context.Context, jobName string, opts Options, body jobBody) (*Result, error) {
	if opts.JobKey != "" {
		ok, err := r.store.ShouldRunJobKey(opts.JobKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			telemetry.Metrics.JobsSkipped.Inc()
			return &Result{Success: true, Skipped: true}, nil
		}
	}
	if opts.DryRun {
		telemetry.JobLogger("", opts.JobKey, "").Info(fmt.Sprintf("dry run: %s", jobName))
		return &Result{Success: true, DryRun: true}, nil
	}

	jobRunID, err := r.store.InsertJobRun(jobName, opts.JobKey)
	if err != nil {
		return nil, err
	}
	log := telemetry.JobLogger(jobRunID, opts.JobKey, "")
	log.Info(fmt.Sprintf("job started: %s", jobName))

	start := time.Now()
	counts, err := body(ctx, jobRunID)
	telemetry.Metrics.JobLatency.Record(time.Since(start))

	if err != nil {
		msg := err.Error()
		if ctx.Err() != nil {
			msg = "cancelled"
		}
		if markErr := r.store.MarkJobRunFailed(jobRunID, msg); markErr != nil {
			log.Error(fmt.Sprintf("mark failed: %v", markErr))
		}
		telemetry.Metrics.JobsFailed.Inc()
		log.Error(fmt.Sprintf("job failed: %s: %s", jobName, msg))
		return &Result{Success: false, JobRunID: jobRunID, Counts: counts}, err
	}

	if err := r.store.MarkJobRunSuccess(jobRunID); err != nil {
		return nil, err
	}
	telemetry.Metrics.JobsSucceeded.Inc()
	log.Info(fmt.Sprintf("job finished: %s  %v", jobName, counts))
	return &Result{Success: true, JobRunID: jobRunID, Counts: counts}, nil
}

func windowStartOrNow(opts Options) time.Time {
	if opts.WindowStart.IsZero() {
		return time.Now().UTC().Truncate(time.Minute)
	}
	return opts.WindowStart
}
