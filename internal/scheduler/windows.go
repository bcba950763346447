package scheduler

import (
	"fmt"
	"time"

	"github.com/scrumdog/cheddar-logic/internal/sports"
	"github.com/scrumdog/cheddar-logic/internal/store"
)

// Window kinds.
const (
	KindOdds   = "odds"
	KindFixed  = "fixed"
	KindTMinus = "tminus"
)

// tminusTargets are the minutes-before-start bands checked per game.
var tminusTargets = []int{120, 90, 60, 30}

// tminusToleranceMin is the band tolerance: a band is due while
// minutes-to-start sits in the closed interval [target-5, target].
const tminusToleranceMin = 5

// fixedWindowTimes are the local wall-clock times of the daily per-sport
// windows.
var fixedWindowTimes = []struct{ hour, min int }{
	{9, 0},
	{12, 0},
}

// Candidate is one due job window.
type Candidate struct {
	JobKey      string
	Kind        string
	Sport       sports.Sport // empty for the odds pull
	WindowStart time.Time
}

// hourlyOddsCandidate returns the odds bucket for the current local hour.
func hourlyOddsCandidate(now time.Time, loc *time.Location) Candidate {
	local := now.In(loc)
	bucketStart := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	return Candidate{
		JobKey:      fmt.Sprintf("odds|hourly|%s|%02d", local.Format("2006-01-02"), local.Hour()),
		Kind:        KindOdds,
		WindowStart: bucketStart.UTC(),
	}
}

// fixedCandidates returns the due fixed daily windows for one sport. A
// window is due iff its calendar date equals today's and the current time is
// at or past the target. With catchup off, only windows within two tick
// periods of the target are due, so a restart never replays an old window.
func fixedCandidates(sport sports.Sport, now time.Time, loc *time.Location, tick time.Duration, catchup bool) []Candidate {
	local := now.In(loc)
	var out []Candidate
	for _, w := range fixedWindowTimes {
		target := time.Date(local.Year(), local.Month(), local.Day(), w.hour, w.min, 0, 0, loc)
		if local.Before(target) {
			continue
		}
		if !catchup && local.Sub(target) > 2*tick {
			continue
		}
		out = append(out, Candidate{
			JobKey:      fmt.Sprintf("%s|fixed|%s|%02d%02d", sport, local.Format("2006-01-02"), w.hour, w.min),
			Kind:        KindFixed,
			Sport:       sport,
			WindowStart: target.UTC(),
		})
	}
	return out
}

// tminusCandidates returns the due T-minus bands for one game.
func tminusCandidates(game *store.Game, now time.Time) []Candidate {
	gameTime, err := store.ParseTime(game.GameTimeUTC)
	if err != nil {
		return nil
	}
	minutesOut := gameTime.Sub(now).Minutes()

	var out []Candidate
	for _, target := range tminusTargets {
		if minutesOut < float64(target-tminusToleranceMin) || minutesOut > float64(target) {
			continue
		}
		out = append(out, Candidate{
			JobKey:      fmt.Sprintf("%s|tminus|%s|%d", game.Sport, game.ProviderGameID, target),
			Kind:        KindTMinus,
			Sport:       sports.Sport(game.Sport),
			WindowStart: gameTime.Add(-time.Duration(target) * time.Minute),
		})
	}
	return out
}

// dueCandidates computes the full candidate set for one tick, de-duplicated
// by job key.
func dueCandidates(now time.Time, loc *time.Location, tick time.Duration, catchup bool, oddsEnabled bool, enabledSports []sports.Sport, games []store.Game) []Candidate {
	var all []Candidate
	if oddsEnabled {
		all = append(all, hourlyOddsCandidate(now, loc))
	}
	for _, sport := range enabledSports {
		all = append(all, fixedCandidates(sport, now, loc, tick, catchup)...)
	}
	for i := range games {
		all = append(all, tminusCandidates(&games[i], now)...)
	}

	seen := make(map[string]bool, len(all))
	out := all[:0]
	for _, c := range all {
		if seen[c.JobKey] {
			continue
		}
		seen[c.JobKey] = true
		out = append(out, c)
	}
	return out
}
