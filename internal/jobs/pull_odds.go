package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/scrumdog/cheddar-logic/internal/config"
	"github.com/scrumdog/cheddar-logic/internal/oddsfeed"
	"github.com/scrumdog/cheddar-logic/internal/sports"
	"github.com/scrumdog/cheddar-logic/internal/store"
	"github.com/scrumdog/cheddar-logic/internal/telemetry"
)

// snapshotRetention bounds how far back non-latest odds snapshots are kept.
const snapshotRetention = 2 * time.Hour

// OddsFetcher is the slice of the odds client the pull job needs.
type OddsFetcher interface {
	FetchOdds(ctx context.Context, sport sports.Sport, horizonHours int) (*oddsfeed.FetchResult, error)
}

// PullOdds ingests bookmaker odds for every enabled sport.
type PullOdds struct {
	runner  *Runner
	store   *store.Store
	fetcher OddsFetcher
	cfg     *config.Config
}

func NewPullOdds(runner *Runner, st *store.Store, fetcher OddsFetcher, cfg *config.Config) *PullOdds {
	return &PullOdds{runner: runner, store: st, fetcher: fetcher, cfg: cfg}
}

// Run executes the odds pull under the shared job contract. The job fails
// only when every enabled sport's fetch fails or a store write fails.
func (j *PullOdds) Run(ctx context.Context, opts Options) (*Result, error) {
	return j.runner.Run(ctx, "pull_odds_hourly", opts, j.body)
}

func (j *PullOdds) body(ctx context.Context, jobRunID string) (map[string]int, error) {
	counts := map[string]int{}
	attempted, failed := 0, 0

	for _, sport := range sports.All {
		if !j.cfg.SportEnabled(sport) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		attempted++

		log := telemetry.JobLogger(jobRunID, "", string(sport))
		result, err := j.fetcher.FetchOdds(ctx, sport, j.cfg.OddsHorizonHrs)
		if err != nil {
			log.Warn(fmt.Sprintf("odds fetch failed: %v", err))
			counts[string(sport)+"_failed"] = 1
			failed++
			continue
		}
		for _, msg := range result.Errors {
			log.Warn(fmt.Sprintf("odds fetch: %s", msg))
		}
		counts[string(sport)+"_skipped_missing_fields"] = result.SkippedMissingFields

		games := make([]*store.Game, 0, len(result.Games))
		snaps := make([]*store.OddsSnapshot, 0, len(result.Games))
		for i := range result.Games {
			g, snap := toStoreRecords(&result.Games[i], jobRunID)
			games = append(games, g)
			snaps = append(snaps, snap)
		}

		if err := j.store.IngestOddsBatch(games, snaps); err != nil {
			return counts, fmt.Errorf("ingest %s odds: %w", sport, err)
		}
		telemetry.Metrics.GamesUpserted.Add(int64(len(games)))
		telemetry.Metrics.OddsSnapshotsStored.Add(int64(len(snaps)))
		counts[string(sport)+"_fetched"] = len(games)
	}

	if attempted > 0 && failed == attempted {
		return counts, fmt.Errorf("all %d sport fetches failed", attempted)
	}

	// Retention sweep: drop stale snapshots, always keeping the latest per game.
	if pruned, err := j.store.PruneOldSnapshots(time.Now().Add(-snapshotRetention)); err != nil {
		telemetry.Warnf("snapshot prune: %v", err)
	} else if pruned > 0 {
		counts["snapshots_pruned"] = int(pruned)
	}

	return counts, nil
}

func toStoreRecords(g *oddsfeed.Game, jobRunID string) (*store.Game, *store.OddsSnapshot) {
	sg := &store.Game{
		Sport:          string(g.Sport),
		ProviderGameID: g.GameID,
		HomeTeam:       g.HomeTeam,
		AwayTeam:       g.AwayTeam,
		GameTimeUTC:    store.FormatTime(g.GameTimeUTC),
		Status:         store.GameStatusScheduled,
	}
	snap := &store.OddsSnapshot{
		CapturedAt:    store.FormatTime(g.CapturedAtUTC),
		MoneylineHome: g.Odds.H2HHome,
		MoneylineAway: g.Odds.H2HAway,
		Total:         g.Odds.Total,
		SpreadHome:    g.Odds.SpreadHome,
		SpreadAway:    g.Odds.SpreadAway,
		Raw:           string(g.Raw),
		JobRunID:      jobRunID,
	}
	return sg, snap
}
