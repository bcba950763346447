package oddsfeed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/scrumdog/cheddar-logic/internal/sports"
)

// bookmakerPrecedence is the fixed alias precedence list: the first listed
// bookmaker carrying a market wins.
var bookmakerPrecedence = []string{
	"pinnacle", "draftkings", "fanduel", "betmgm",
	"caesars", "pointsbetus", "bovada", "mybookieag",
}

// Odds is the flattened market snapshot for one game. Prices are American;
// Total and spreads are line points. Nil means the market was absent.
type Odds struct {
	H2HHome    *float64
	H2HAway    *float64
	Total      *float64
	SpreadHome *float64
	SpreadAway *float64
}

// Game is the canonical provider-neutral game+odds record.
type Game struct {
	GameID        string
	Sport         sports.Sport
	HomeTeam      string
	AwayTeam      string
	GameTimeUTC   time.Time
	CapturedAtUTC time.Time
	Odds          Odds
	Raw           json.RawMessage
}

// FetchResult is the outcome of one per-sport fetch.
type FetchResult struct {
	Games                []Game
	Errors               []string
	RawCount             int
	SkippedMissingFields int
}

// Normalize converts provider events into canonical games, in provider order.
// Records missing any required field (id, teams, parseable commence time) are
// dropped and counted; games outside [now-1h, now+horizon] are filtered out.
func Normalize(events []event, sport sports.Sport, now time.Time, horizonHours int) *FetchResult {
	result := &FetchResult{RawCount: len(events)}

	windowStart := now.Add(-1 * time.Hour)
	windowEnd := now.Add(time.Duration(horizonHours) * time.Hour)

	for _, ev := range events {
		if ev.ID == "" || ev.HomeTeam == "" || ev.AwayTeam == "" || ev.CommenceTime == "" {
			result.SkippedMissingFields++
			result.Errors = append(result.Errors, fmt.Sprintf("event %q missing required fields", ev.ID))
			continue
		}
		gameTime, err := time.Parse(time.RFC3339, ev.CommenceTime)
		if err != nil {
			result.SkippedMissingFields++
			result.Errors = append(result.Errors, fmt.Sprintf("event %q bad commence time %q", ev.ID, ev.CommenceTime))
			continue
		}
		if gameTime.Before(windowStart) || gameTime.After(windowEnd) {
			continue
		}

		raw, _ := json.Marshal(ev)
		g := Game{
			GameID:        ev.ID,
			Sport:         sport,
			HomeTeam:      ev.HomeTeam,
			AwayTeam:      ev.AwayTeam,
			GameTimeUTC:   gameTime.UTC(),
			CapturedAtUTC: now,
			Odds:          extractOdds(ev),
			Raw:           raw,
		}
		result.Games = append(result.Games, g)
	}
	return result
}

// extractOdds flattens the first preferred bookmaker carrying each market.
func extractOdds(ev event) Odds {
	var odds Odds
	for _, bmKey := range bookmakerPrecedence {
		bm := findBookmaker(ev.Bookmakers, bmKey)
		if bm == nil {
			continue
		}
		applyBookmaker(&odds, ev, bm)
		if odds.complete() {
			break
		}
	}
	// Fall back to whatever bookmakers remain for still-missing markets.
	if !odds.complete() {
		for i := range ev.Bookmakers {
			applyBookmaker(&odds, ev, &ev.Bookmakers[i])
			if odds.complete() {
				break
			}
		}
	}
	return odds
}

func findBookmaker(bms []bookmaker, key string) *bookmaker {
	for i := range bms {
		if bms[i].Key == key {
			return &bms[i]
		}
	}
	return nil
}

func applyBookmaker(odds *Odds, ev event, bm *bookmaker) {
	for _, m := range bm.Markets {
		switch m.Key {
		case "h2h":
			for _, o := range m.Outcomes {
				price := o.Price
				switch o.Name {
				case ev.HomeTeam:
					if odds.H2HHome == nil {
						odds.H2HHome = &price
					}
				case ev.AwayTeam:
					if odds.H2HAway == nil {
						odds.H2HAway = &price
					}
				}
			}
		case "totals":
			for _, o := range m.Outcomes {
				if o.Name == "Over" && o.Point != nil && odds.Total == nil {
					point := *o.Point
					odds.Total = &point
				}
			}
		case "spreads":
			for _, o := range m.Outcomes {
				if o.Point == nil {
					continue
				}
				point := *o.Point
				switch o.Name {
				case ev.HomeTeam:
					if odds.SpreadHome == nil {
						odds.SpreadHome = &point
					}
				case ev.AwayTeam:
					if odds.SpreadAway == nil {
						odds.SpreadAway = &point
					}
				}
			}
		}
	}
}

func (o Odds) complete() bool {
	return o.H2HHome != nil && o.H2HAway != nil && o.Total != nil && o.SpreadHome != nil && o.SpreadAway != nil
}
