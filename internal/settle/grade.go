// Package settle grades finished games and settles pending cards against
// them, producing the signed unit P&L ledger.
package settle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scrumdog/cheddar-logic/internal/config"
	"github.com/scrumdog/cheddar-logic/internal/jobs"
	"github.com/scrumdog/cheddar-logic/internal/oddsfeed"
	"github.com/scrumdog/cheddar-logic/internal/oddsmath"
	"github.com/scrumdog/cheddar-logic/internal/sports"
	"github.com/scrumdog/cheddar-logic/internal/store"
	"github.com/scrumdog/cheddar-logic/internal/telemetry"
)

// voidAfter is how long past its start time an ungraded game waits before it
// is treated as cancelled and its cards voided.
const voidAfter = 48 * time.Hour

const (
	gameStatusFinal     = "final"
	gameStatusCancelled = "cancelled"
)

// ScoreFetcher is the slice of the odds client the settlement engine needs.
type ScoreFetcher interface {
	FetchScores(ctx context.Context, sport sports.Sport, daysFrom int) ([]oddsfeed.FinalScore, error)
}

// Engine runs the two settlement phases: game grading then card grading.
type Engine struct {
	runner *jobs.Runner
	store  *store.Store
	scores ScoreFetcher
	cfg    *config.Config
}

func NewEngine(runner *jobs.Runner, st *store.Store, scores ScoreFetcher, cfg *config.Config) *Engine {
	return &Engine{runner: runner, store: st, scores: scores, cfg: cfg}
}

// Run executes one settlement pass under the shared job contract.
func (e *Engine) Run(ctx context.Context, opts jobs.Options) (*jobs.Result, error) {
	return e.runner.Run(ctx, "grade_results", opts, e.body)
}

// Start loops settlement passes until the context is cancelled.
func (e *Engine) Start(ctx context.Context, interval time.Duration) {
	if _, err := e.Run(ctx, jobs.Options{}); err != nil {
		telemetry.Errorf("settlement: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Run(ctx, jobs.Options{}); err != nil {
				telemetry.Errorf("settlement: %v", err)
			}
		}
	}
}

func (e *Engine) body(ctx context.Context, jobRunID string) (map[string]int, error) {
	counts := map[string]int{}

	graded, err := e.gradeGames(ctx, jobRunID)
	if err != nil {
		return counts, err
	}
	counts["games_graded"] = graded

	settled, errored, err := e.gradeCards(ctx, jobRunID)
	counts["cards_settled"] = settled
	counts["card_errors"] = errored
	return counts, err
}

// gradeGames is phase 1: fetch final scores for games old enough to have
// finished and write game_results. Games absent from the scoreboard stay
// unresolved until the void deadline passes.
func (e *Engine) gradeGames(ctx context.Context, jobRunID string) (int, error) {
	now := time.Now().UTC()
	oldest := now.Add(-time.Duration(e.cfg.SettleLookbackHours) * time.Hour)
	newest := now.Add(-time.Duration(e.cfg.SettleMinHoursAfterStart) * time.Hour)

	games, err := e.store.GamesAwaitingResults(oldest, newest)
	if err != nil {
		return 0, err
	}
	if len(games) == 0 {
		return 0, nil
	}

	bySport := map[string][]store.Game{}
	for _, g := range games {
		bySport[g.Sport] = append(bySport[g.Sport], g)
	}

	daysFrom := e.cfg.SettleLookbackHours/24 + 1
	graded := 0
	for sportKey, sportGames := range bySport {
		if err := ctx.Err(); err != nil {
			return graded, err
		}
		log := telemetry.JobLogger(jobRunID, "", sportKey)

		sport, ok := sports.Parse(sportKey)
		if !ok {
			continue
		}
		scores, err := e.scores.FetchScores(ctx, sport, daysFrom)
		if err != nil {
			// Scoreboard unavailability leaves games unresolved, not failed.
			log.Warn(fmt.Sprintf("scoreboard fetch failed: %v", err))
			continue
		}

		byProvider := make(map[string]oddsfeed.FinalScore, len(scores))
		for _, sc := range scores {
			byProvider[sc.ProviderGameID] = sc
		}

		for _, g := range sportGames {
			sc, found := byProvider[g.ProviderGameID]
			if !found || !sc.Completed {
				if e.pastVoidDeadline(&g, now) {
					if err := e.store.UpsertGameResult(&store.GameResult{
						GameID:  g.ID,
						Status:  gameStatusCancelled,
						FinalAt: store.FormatTime(now),
					}); err != nil {
						return graded, err
					}
					log.Info(fmt.Sprintf("game voided after %s without a result  gameId=%d", voidAfter, g.ID))
					graded++
				}
				continue
			}
			if err := e.store.UpsertGameResult(&store.GameResult{
				GameID:    g.ID,
				HomeScore: sc.HomeScore,
				AwayScore: sc.AwayScore,
				Status:    gameStatusFinal,
				FinalAt:   store.FormatTime(now),
			}); err != nil {
				return graded, err
			}
			graded++
		}
	}
	return graded, nil
}

func (e *Engine) pastVoidDeadline(g *store.Game, now time.Time) bool {
	start, err := store.ParseTime(g.GameTimeUTC)
	if err != nil {
		return false
	}
	return now.Sub(start) > voidAfter
}

// gradeCards is phase 2: settle every pending card whose game has a graded
// result. A failure on one card is logged and skipped; the rest continue.
func (e *Engine) gradeCards(ctx context.Context, jobRunID string) (settled, errored int, err error) {
	pendings, err := e.store.PendingSettlements()
	if err != nil {
		return 0, 0, err
	}

	for _, p := range pendings {
		if err := ctx.Err(); err != nil {
			return settled, errored, err
		}
		log := telemetry.JobLogger(jobRunID, "", p.Result.Sport)

		outcome, pnl, gerr := GradeCard(p.Payload.PayloadData, &p.Final)
		if gerr != nil {
			log.Warn(fmt.Sprintf("card grading failed: %v  cardId=%s", gerr, p.Result.CardID))
			errored++
			continue
		}

		ok, serr := e.store.SettleCard(p.Result.CardID, outcome, pnl)
		if serr != nil {
			log.Warn(fmt.Sprintf("card settle failed: %v  cardId=%s", serr, p.Result.CardID))
			errored++
			continue
		}
		if ok {
			settled++
			telemetry.Metrics.CardsSettled.Inc()
			log.Info(fmt.Sprintf("card settled: %s  result=%s pnl=%+.3f gameId=%d", p.Result.CardID, outcome, pnl, p.Result.GameID))
		}
	}
	return settled, errored, nil
}

// payloadView is the slice of a card payload settlement reads.
type payloadView struct {
	Prediction     string `json:"prediction"`
	Recommendation struct {
		Type string `json:"type"`
	} `json:"recommendation"`
	OddsContext struct {
		H2HHome    *float64 `json:"h2h_home"`
		H2HAway    *float64 `json:"h2h_away"`
		SpreadHome *float64 `json:"spread_home"`
		SpreadAway *float64 `json:"spread_away"`
		Total      *float64 `json:"total"`
	} `json:"odds_context"`
}

// GradeCard applies the per-market grading rules to one card payload and
// final score, returning the outcome and signed unit P&L.
func GradeCard(payloadData string, final *store.GameResult) (string, float64, error) {
	if final.Status == gameStatusCancelled {
		return store.OutcomeVoid, 0, nil
	}

	var p payloadView
	if err := json.Unmarshal([]byte(payloadData), &p); err != nil {
		return "", 0, fmt.Errorf("parse payload: %w", err)
	}

	if p.Recommendation.Type == "PASS" || p.Prediction == "NEUTRAL" {
		return store.OutcomeVoid, 0, nil
	}

	home, away := final.HomeScore, final.AwayScore
	switch p.Recommendation.Type {
	case "ML_HOME":
		return gradeMoneyline(home, away, p.OddsContext.H2HHome)
	case "ML_AWAY":
		return gradeMoneyline(away, home, p.OddsContext.H2HAway)
	case "SPREAD_HOME":
		if p.OddsContext.SpreadHome == nil {
			return "", 0, fmt.Errorf("spread card without captured spread")
		}
		outcome, pnl := gradeLine(float64(home) + *p.OddsContext.SpreadHome - float64(away))
		return outcome, pnl, nil
	case "SPREAD_AWAY":
		if p.OddsContext.SpreadAway == nil {
			return "", 0, fmt.Errorf("spread card without captured spread")
		}
		outcome, pnl := gradeLine(float64(away) + *p.OddsContext.SpreadAway - float64(home))
		return outcome, pnl, nil
	case "TOTAL_OVER":
		if p.OddsContext.Total == nil {
			return "", 0, fmt.Errorf("total card without captured line")
		}
		outcome, pnl := gradeLine(float64(home+away) - *p.OddsContext.Total)
		return outcome, pnl, nil
	case "TOTAL_UNDER":
		if p.OddsContext.Total == nil {
			return "", 0, fmt.Errorf("total card without captured line")
		}
		outcome, pnl := gradeLine(*p.OddsContext.Total - float64(home+away))
		return outcome, pnl, nil
	}
	return "", 0, fmt.Errorf("unknown recommendation type %q", p.Recommendation.Type)
}

// gradeMoneyline grades a side given its score, the opponent's, and the
// captured price for that side.
func gradeMoneyline(side, opponent int, price *float64) (string, float64, error) {
	switch {
	case side > opponent:
		if price == nil {
			return "", 0, fmt.Errorf("moneyline card without captured price")
		}
		return store.OutcomeWin, oddsmath.ProfitUnits(*price), nil
	case side < opponent:
		return store.OutcomeLoss, -1, nil
	default:
		return store.OutcomePush, 0, nil
	}
}

// gradeLine grades a line bet from its adjusted margin. Spread and total
// cards always settle at the standard -110 price; no captured price is read.
func gradeLine(adjusted float64) (string, float64) {
	switch {
	case adjusted > 0:
		return store.OutcomeWin, oddsmath.ProfitUnits(oddsmath.DefaultSpreadPrice)
	case adjusted < 0:
		return store.OutcomeLoss, -1
	default:
		return store.OutcomePush, 0
	}
}
