package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrumdog/cheddar-logic/internal/sports"
	"github.com/scrumdog/cheddar-logic/internal/store"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func nhlGame(id, startUTC string) store.Game {
	return store.Game{
		Sport:          "nhl",
		ProviderGameID: id,
		HomeTeam:       "Boston Bruins",
		AwayTeam:       "Toronto Maple Leafs",
		GameTimeUTC:    startUTC,
	}
}

func TestHourlyOddsKey(t *testing.T) {
	et := mustLoc(t, "America/New_York")
	// 18:30 UTC on Feb 27 is 13:30 ET.
	now := time.Date(2026, 2, 27, 18, 30, 0, 0, time.UTC)

	c := hourlyOddsCandidate(now, et)
	assert.Equal(t, "odds|hourly|2026-02-27|13", c.JobKey)
	assert.Equal(t, time.Date(2026, 2, 27, 18, 0, 0, 0, time.UTC), c.WindowStart)
}

func TestTMinusBandBoundary(t *testing.T) {
	game := nhlGame("401559", "2026-02-27T20:00:00Z")

	// Exactly 120 minutes out: the 120 band is due.
	due := tminusCandidates(&game, time.Date(2026, 2, 27, 18, 0, 0, 0, time.UTC))
	require.Len(t, due, 1)
	assert.Equal(t, "nhl|tminus|401559|120", due[0].JobKey)
	assert.Equal(t, time.Date(2026, 2, 27, 18, 0, 0, 0, time.UTC), due[0].WindowStart)

	// 126 minutes out: outside the closed [115,120] interval.
	due = tminusCandidates(&game, time.Date(2026, 2, 27, 17, 54, 0, 0, time.UTC))
	assert.Empty(t, due)

	// 121 minutes out: one past the target, not due.
	due = tminusCandidates(&game, time.Date(2026, 2, 27, 17, 59, 0, 0, time.UTC))
	assert.Empty(t, due)

	// 115 minutes out: closed lower bound, still due.
	due = tminusCandidates(&game, time.Date(2026, 2, 27, 18, 5, 0, 0, time.UTC))
	require.Len(t, due, 1)
	assert.Equal(t, "nhl|tminus|401559|120", due[0].JobKey)

	// 114 minutes out: between bands, nothing due.
	due = tminusCandidates(&game, time.Date(2026, 2, 27, 18, 6, 0, 0, time.UTC))
	assert.Empty(t, due)

	// 30 minutes out: the last band.
	due = tminusCandidates(&game, time.Date(2026, 2, 27, 19, 30, 0, 0, time.UTC))
	require.Len(t, due, 1)
	assert.Equal(t, "nhl|tminus|401559|30", due[0].JobKey)
}

func TestTMinusIgnoresUnparseableGameTime(t *testing.T) {
	game := nhlGame("401559", "not-a-time")
	assert.Empty(t, tminusCandidates(&game, time.Now()))
}

func TestFixedWindowDueAfterTarget(t *testing.T) {
	et := mustLoc(t, "America/New_York")
	tick := time.Minute

	// 09:00:30 ET: the 0900 window just opened; 1200 hasn't.
	now := time.Date(2026, 2, 27, 14, 0, 30, 0, time.UTC)
	due := fixedCandidates(sports.NBA, now, et, tick, true)
	require.Len(t, due, 1)
	assert.Equal(t, "nba|fixed|2026-02-27|0900", due[0].JobKey)

	// 13:00 ET with catchup on: both windows are due.
	now = time.Date(2026, 2, 27, 18, 0, 0, 0, time.UTC)
	due = fixedCandidates(sports.NBA, now, et, tick, true)
	require.Len(t, due, 2)
	assert.Equal(t, "nba|fixed|2026-02-27|0900", due[0].JobKey)
	assert.Equal(t, "nba|fixed|2026-02-27|1200", due[1].JobKey)
}

func TestFixedWindowCatchupOff(t *testing.T) {
	et := mustLoc(t, "America/New_York")
	tick := time.Minute

	// 09:01 ET: within two tick periods of the target, due.
	now := time.Date(2026, 2, 27, 14, 1, 0, 0, time.UTC)
	due := fixedCandidates(sports.NBA, now, et, tick, false)
	require.Len(t, due, 1)
	assert.Equal(t, "nba|fixed|2026-02-27|0900", due[0].JobKey)

	// 09:03 ET: past the two-tick grace, not due.
	now = time.Date(2026, 2, 27, 14, 3, 0, 0, time.UTC)
	assert.Empty(t, fixedCandidates(sports.NBA, now, et, tick, false))
}

func TestFixedWindowNeverDueNextDay(t *testing.T) {
	et := mustLoc(t, "America/New_York")

	// Feb 28: the key embeds the current date, so yesterday's window can
	// never be emitted even with catchup on.
	now := time.Date(2026, 2, 28, 13, 0, 0, 0, time.UTC) // 08:00 ET
	due := fixedCandidates(sports.NBA, now, et, time.Minute, true)
	assert.Empty(t, due)

	now = time.Date(2026, 2, 28, 15, 0, 0, 0, time.UTC) // 10:00 ET
	due = fixedCandidates(sports.NBA, now, et, time.Minute, true)
	require.Len(t, due, 1)
	assert.Equal(t, "nba|fixed|2026-02-28|0900", due[0].JobKey)
}

func TestDueCandidatesDedupesByKey(t *testing.T) {
	et := mustLoc(t, "America/New_York")
	now := time.Date(2026, 2, 27, 18, 0, 0, 0, time.UTC)

	// Two rows describing the same provider game produce one tminus key.
	games := []store.Game{
		nhlGame("401559", "2026-02-27T20:00:00Z"),
		nhlGame("401559", "2026-02-27T20:00:00Z"),
	}
	out := dueCandidates(now, et, time.Minute, false, true, []sports.Sport{sports.NHL}, games)

	keys := map[string]int{}
	for _, c := range out {
		keys[c.JobKey]++
	}
	for k, n := range keys {
		assert.Equal(t, 1, n, "key %s duplicated", k)
	}
	assert.Contains(t, keys, "odds|hourly|2026-02-27|13")
	assert.Contains(t, keys, "nhl|tminus|401559|120")
}

func TestDueCandidatesOddsDisabled(t *testing.T) {
	et := mustLoc(t, "America/New_York")
	now := time.Date(2026, 2, 27, 18, 0, 0, 0, time.UTC)

	out := dueCandidates(now, et, time.Minute, false, false, nil, nil)
	assert.Empty(t, out)
}
