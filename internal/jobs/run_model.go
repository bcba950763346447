package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrumdog/cheddar-logic/internal/card"
	"github.com/scrumdog/cheddar-logic/internal/config"
	"github.com/scrumdog/cheddar-logic/internal/driver"
	"github.com/scrumdog/cheddar-logic/internal/enrich"
	"github.com/scrumdog/cheddar-logic/internal/oddsfeed"
	"github.com/scrumdog/cheddar-logic/internal/sports"
	"github.com/scrumdog/cheddar-logic/internal/store"
	"github.com/scrumdog/cheddar-logic/internal/telemetry"
)

// perGameParallelism bounds the model job's per-game fan-out.
const perGameParallelism = 4

// Enricher is the slice of the stats client the model jobs need.
type Enricher interface {
	TeamMetrics(ctx context.Context, teamName, sport string) enrich.Metrics
}

// SportModel runs one sport's drivers over every upcoming game and hands the
// resulting descriptors to the card writer.
type SportModel struct {
	sport    sports.Sport
	runner   *Runner
	store    *store.Store
	enricher Enricher
	registry *driver.Registry
	writer   *card.Writer
	cfg      *config.Config
}

func NewSportModel(sport sports.Sport, runner *Runner, st *store.Store, enricher Enricher, registry *driver.Registry, writer *card.Writer, cfg *config.Config) *SportModel {
	return &SportModel{
		sport:    sport,
		runner:   runner,
		store:    st,
		enricher: enricher,
		registry: registry,
		writer:   writer,
		cfg:      cfg,
	}
}

func (j *SportModel) JobName() string {
	return fmt.Sprintf("run_%s_model", j.sport)
}

// Run executes the model job under the shared job contract. Per-game errors
// are counted, never fatal; the job fails only on store-level errors.
func (j *SportModel) Run(ctx context.Context, opts Options) (*Result, error) {
	return j.runner.Run(ctx, j.JobName(), opts, func(ctx context.Context, jobRunID string) (map[string]int, error) {
		return j.body(ctx, jobRunID, windowStartOrNow(opts))
	})
}

func (j *SportModel) body(ctx context.Context, jobRunID string, windowStart time.Time) (map[string]int, error) {
	model, ok := j.registry.Get(j.sport)
	if !ok {
		return nil, fmt.Errorf("no model registered for %s", j.sport)
	}

	now := time.Now().UTC()
	games, err := j.store.UpcomingGames(now.Add(-1*time.Hour), now.Add(time.Duration(j.cfg.OddsHorizonHrs)*time.Hour), []string{string(j.sport)})
	if err != nil {
		return nil, err
	}
	counts := map[string]int{"games": len(games), "cards": 0, "game_errors": 0}
	if len(games) == 0 {
		return counts, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(perGameParallelism)

	for i := range games {
		game := games[i]
		g.Go(func() error {
			written, err := j.processGame(gctx, jobRunID, &game, model, windowStart)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Cancellation aborts the job; anything else is per-game.
				if gctx.Err() != nil {
					return err
				}
				counts["game_errors"]++
				telemetry.JobLogger(jobRunID, "", string(j.sport)).Warn(
					fmt.Sprintf("game processing failed: %v  gameId=%d", err, game.ID))
				return nil
			}
			counts["cards"] += written
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return counts, err
	}
	return counts, nil
}

func (j *SportModel) processGame(ctx context.Context, jobRunID string, game *store.Game, model driver.Model, windowStart time.Time) (int, error) {
	snap, err := j.store.LatestSnapshotForGame(game.ID)
	if err != nil {
		return 0, err
	}
	if snap == nil {
		return 0, nil // no odds yet, nothing to model
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	gameTime, err := store.ParseTime(game.GameTimeUTC)
	if err != nil {
		return 0, fmt.Errorf("bad game time %q: %w", game.GameTimeUTC, err)
	}

	in := driver.GameInput{
		GameID:         game.ID,
		ProviderGameID: game.ProviderGameID,
		Sport:          j.sport,
		HomeTeam:       game.HomeTeam,
		AwayTeam:       game.AwayTeam,
		GameTimeUTC:    gameTime,
		Odds: oddsfeed.Odds{
			H2HHome:    snap.MoneylineHome,
			H2HAway:    snap.MoneylineAway,
			Total:      snap.Total,
			SpreadHome: snap.SpreadHome,
			SpreadAway: snap.SpreadAway,
		},
		HomeMetrics: j.enricher.TeamMetrics(ctx, game.HomeTeam, string(j.sport)),
		AwayMetrics: j.enricher.TeamMetrics(ctx, game.AwayTeam, string(j.sport)),
	}

	descs := driver.Dedupe(model.ComputeDrivers(in))
	if len(descs) == 0 {
		return 0, nil
	}

	active := make([]string, 0, len(descs))
	for _, d := range descs {
		active = append(active, d.DriverKey)
	}

	written := 0
	for _, d := range descs {
		ok, err := j.writer.Write(card.WriteRequest{
			JobRunID:      jobRunID,
			ModelName:     j.JobName(),
			Game:          game,
			Snapshot:      snap,
			Input:         in,
			Descriptor:    d,
			DriversActive: active,
			WindowStart:   windowStart,
		})
		if err != nil {
			// Schema violations are hard errors for the card, not the game.
			telemetry.JobLogger(jobRunID, "", string(j.sport)).Error(
				fmt.Sprintf("card write rejected: %v  gameId=%d cardType=%s", err, game.ID, d.CardType))
			continue
		}
		if ok {
			written++
		}
	}
	return written, nil
}
