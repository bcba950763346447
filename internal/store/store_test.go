package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func insertGame(t *testing.T, st *Store, providerID string) *Game {
	t.Helper()
	g := &Game{
		Sport:          "nhl",
		ProviderGameID: providerID,
		HomeTeam:       "Boston Bruins",
		AwayTeam:       "Toronto Maple Leafs",
		GameTimeUTC:    FormatTime(time.Now().Add(3 * time.Hour)),
	}
	_, err := st.UpsertGame(g)
	require.NoError(t, err)
	return g
}

func writeTestCard(t *testing.T, st *Store, g *Game, cardType string, windowStart time.Time) (bool, *CardPayload) {
	t.Helper()
	mo := &ModelOutput{
		GameID:         g.ID,
		ModelName:      "run_nhl_model",
		ModelVersion:   "v1",
		PredictionType: "moneyline",
		PredictedAt:    FormatTime(time.Now()),
		Confidence:     0.7,
	}
	cp := &CardPayload{
		GameID:       g.ID,
		Sport:        g.Sport,
		CardType:     cardType,
		CardTitle:    "test card",
		ModelVersion: "v1",
		CreatedAt:    FormatTime(time.Now()),
		ExpiresAt:    FormatTime(time.Now().Add(2 * time.Hour)),
		PayloadData:  `{"prediction":"HOME"}`,
	}
	cr := &CardResult{RecommendedBetType: "moneyline"}
	ok, err := st.WriteCard(mo, cp, cr, windowStart)
	require.NoError(t, err)
	return ok, cp
}

func TestShouldRunJobKey(t *testing.T) {
	st := openTestStore(t)
	key := "nhl|tminus|401559|120"

	// Fresh key is runnable.
	ok, err := st.ShouldRunJobKey(key)
	require.NoError(t, err)
	assert.True(t, ok)

	// Running blocks.
	id, err := st.InsertJobRun("run_nhl_model", key)
	require.NoError(t, err)
	ok, err = st.ShouldRunJobKey(key)
	require.NoError(t, err)
	assert.False(t, ok)

	// Success blocks permanently.
	require.NoError(t, st.MarkJobRunSuccess(id))
	ok, err = st.ShouldRunJobKey(key)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different key is unaffected.
	ok, err = st.ShouldRunJobKey("nhl|tminus|401559|30")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFailedJobKeyPermitsRetry(t *testing.T) {
	st := openTestStore(t)
	key := "nba|fixed|2026-02-27|0900"

	id, err := st.InsertJobRun("run_nba_model", key)
	require.NoError(t, err)
	require.NoError(t, st.MarkJobRunFailed(id, "boom"))

	ok, err := st.ShouldRunJobKey(key)
	require.NoError(t, err)
	assert.True(t, ok)

	jr, err := st.JobRunByID(id)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, jr.Status)
	assert.Equal(t, "boom", jr.ErrorMessage)
	assert.NotEmpty(t, jr.EndedAt)
}

func TestJobStatusTransitionsAreTerminal(t *testing.T) {
	st := openTestStore(t)

	id, err := st.InsertJobRun("pull_odds_hourly", "odds|hourly|2026-02-27|13")
	require.NoError(t, err)
	require.NoError(t, st.MarkJobRunSuccess(id))

	// A second transition is a no-op: the guarded UPDATE only moves running rows.
	require.NoError(t, st.MarkJobRunFailed(id, "late failure"))
	jr, err := st.JobRunByID(id)
	require.NoError(t, err)
	assert.Equal(t, JobStatusSuccess, jr.Status)
}

func TestFailRunningJobs(t *testing.T) {
	st := openTestStore(t)

	id1, _ := st.InsertJobRun("run_nhl_model", "k1")
	id2, _ := st.InsertJobRun("run_nba_model", "k2")
	id3, _ := st.InsertJobRun("run_mlb_model", "k3")
	require.NoError(t, st.MarkJobRunSuccess(id3))

	n, err := st.FailRunningJobs("cancelled")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, id := range []string{id1, id2} {
		jr, err := st.JobRunByID(id)
		require.NoError(t, err)
		assert.Equal(t, JobStatusFailed, jr.Status)
		assert.Equal(t, "cancelled", jr.ErrorMessage)
	}
}

func TestUpsertGameStableID(t *testing.T) {
	st := openTestStore(t)

	g1 := insertGame(t, st, "401559")
	firstID := g1.ID

	// Second ingest of the same provider payload keeps the row ID.
	g2 := insertGame(t, st, "401559")
	assert.Equal(t, firstID, g2.ID)

	// A different provider game gets a new ID.
	g3 := insertGame(t, st, "401560")
	assert.NotEqual(t, firstID, g3.ID)

	assert.Equal(t, "game-nhl-401559", g1.ExternalID())
}

func TestLatestSnapshotForGame(t *testing.T) {
	st := openTestStore(t)
	g := insertGame(t, st, "401559")

	ml := -150.0
	for i, capturedAt := range []string{
		"2026-02-27T16:00:00Z",
		"2026-02-27T17:00:00Z",
		"2026-02-27T18:00:00Z",
	} {
		price := ml + float64(i)
		_, err := st.InsertOddsSnapshot(&OddsSnapshot{
			GameID:        g.ID,
			CapturedAt:    capturedAt,
			MoneylineHome: &price,
		})
		require.NoError(t, err)
	}

	snap, err := st.LatestSnapshotForGame(g.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "2026-02-27T18:00:00Z", snap.CapturedAt)
	require.NotNil(t, snap.MoneylineHome)
	assert.Equal(t, -148.0, *snap.MoneylineHome)
}

func TestPruneOldSnapshotsKeepsLatestPerGame(t *testing.T) {
	st := openTestStore(t)
	g := insertGame(t, st, "401559")

	old := time.Now().Add(-5 * time.Hour)
	for i := 0; i < 3; i++ {
		_, err := st.InsertOddsSnapshot(&OddsSnapshot{
			GameID:     g.ID,
			CapturedAt: FormatTime(old.Add(time.Duration(i) * time.Minute)),
		})
		require.NoError(t, err)
	}

	n, err := st.PruneOldSnapshots(time.Now().Add(-2 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	snap, err := st.LatestSnapshotForGame(g.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
}

func TestWriteCardIdempotentWithinWindow(t *testing.T) {
	st := openTestStore(t)
	g := insertGame(t, st, "401559")
	windowStart := time.Now().Add(-time.Minute)

	ok, _ := writeTestCard(t, st, g, "nhl-goalie", windowStart)
	assert.True(t, ok)

	// Same (game, card_type, model_version) in the same window no-ops.
	ok, _ = writeTestCard(t, st, g, "nhl-goalie", windowStart)
	assert.False(t, ok)

	n, err := st.CardCountForGameType(g.ID, "nhl-goalie")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A different card type in the same window writes.
	ok, _ = writeTestCard(t, st, g, "nhl-composite", windowStart)
	assert.True(t, ok)

	// A later window refreshes the card.
	ok, _ = writeTestCard(t, st, g, "nhl-goalie", time.Now().Add(time.Minute))
	assert.True(t, ok)
	n, err = st.CardCountForGameType(g.ID, "nhl-goalie")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWriteCardCreatesPendingResult(t *testing.T) {
	st := openTestStore(t)
	g := insertGame(t, st, "401559")

	_, cp := writeTestCard(t, st, g, "nhl-goalie", time.Now().Add(-time.Minute))

	cr, err := st.CardResultByCardID(cp.ID)
	require.NoError(t, err)
	require.NotNil(t, cr)
	assert.Equal(t, ResultStatusPending, cr.Status)
	assert.Equal(t, "moneyline", cr.RecommendedBetType)
	assert.Empty(t, cr.SettledAt)
	assert.Nil(t, cr.PnlUnits)
}

func TestSettleCardOneShot(t *testing.T) {
	st := openTestStore(t)
	g := insertGame(t, st, "401559")
	_, cp := writeTestCard(t, st, g, "nhl-goalie", time.Now().Add(-time.Minute))

	ok, err := st.SettleCard(cp.ID, OutcomeWin, 0.667)
	require.NoError(t, err)
	assert.True(t, ok)

	// Settlement is one-shot: the second attempt is a no-op.
	ok, err = st.SettleCard(cp.ID, OutcomeLoss, -1)
	require.NoError(t, err)
	assert.False(t, ok)

	cr, err := st.CardResultByCardID(cp.ID)
	require.NoError(t, err)
	assert.Equal(t, ResultStatusSettled, cr.Status)
	assert.Equal(t, OutcomeWin, cr.Result)
	assert.NotEmpty(t, cr.SettledAt)
	require.NotNil(t, cr.PnlUnits)
	assert.InDelta(t, 0.667, *cr.PnlUnits, 0.0001)

	stats, err := st.AllTrackingStats()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "nhl", stats[0].Sport)
	assert.Equal(t, 1, stats[0].Wins)
	assert.InDelta(t, 0.667, stats[0].Units, 0.0001)
}

func TestPendingSettlementsJoinsFinals(t *testing.T) {
	st := openTestStore(t)
	g1 := insertGame(t, st, "401559")
	g2 := insertGame(t, st, "401560")
	_, cp1 := writeTestCard(t, st, g1, "nhl-goalie", time.Now().Add(-time.Minute))
	writeTestCard(t, st, g2, "nhl-goalie", time.Now().Add(-time.Minute))

	// Only g1 has a final result.
	require.NoError(t, st.UpsertGameResult(&GameResult{
		GameID: g1.ID, HomeScore: 4, AwayScore: 2,
		Status: GameStatusFinal, FinalAt: FormatTime(time.Now()),
	}))

	pendings, err := st.PendingSettlements()
	require.NoError(t, err)
	require.Len(t, pendings, 1)
	assert.Equal(t, cp1.ID, pendings[0].Result.CardID)
	assert.Equal(t, 4, pendings[0].Final.HomeScore)
	assert.Equal(t, `{"prediction":"HOME"}`, pendings[0].Payload.PayloadData)
}

func TestActiveCardsExcludesExpired(t *testing.T) {
	st := openTestStore(t)
	g := insertGame(t, st, "401559")

	// Write one live card, then a card of another type whose expiry is
	// already in the past.
	_, live := writeTestCard(t, st, g, "nhl-goalie", time.Now().Add(-time.Minute))

	mo := &ModelOutput{GameID: g.ID, ModelName: "run_nhl_model", ModelVersion: "v1", PredictionType: "total", PredictedAt: FormatTime(time.Now()), Confidence: 0.6}
	expired := &CardPayload{
		GameID: g.ID, Sport: g.Sport, CardType: "nhl-pace-1p", CardTitle: "expired",
		ModelVersion: "v1", CreatedAt: FormatTime(time.Now().Add(-3 * time.Hour)),
		ExpiresAt: FormatTime(time.Now().Add(-time.Hour)), PayloadData: `{}`,
	}
	ok, err := st.WriteCard(mo, expired, &CardResult{RecommendedBetType: "total"}, time.Now().Add(-4*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	cards, err := st.ActiveCardsForGame(g.ID, time.Now(), "", true)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, live.ID, cards[0].ID)
}

func TestActiveCardsLatestPerType(t *testing.T) {
	st := openTestStore(t)
	g := insertGame(t, st, "401559")

	writeTestCard(t, st, g, "nhl-goalie", time.Now().Add(-10*time.Minute))
	time.Sleep(1100 * time.Millisecond) // RFC3339 second granularity
	_, newest := writeTestCard(t, st, g, "nhl-goalie", time.Now())

	cards, err := st.ActiveCardsForGame(g.ID, time.Now(), "nhl-goalie", true)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, newest.ID, cards[0].ID)

	all, err := st.ActiveCardsForGame(g.ID, time.Now(), "nhl-goalie", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpcomingGamesFiltersSportAndWindow(t *testing.T) {
	st := openTestStore(t)

	in := &Game{Sport: "nhl", ProviderGameID: "a", HomeTeam: "H", AwayTeam: "A",
		GameTimeUTC: FormatTime(time.Now().Add(2 * time.Hour))}
	_, err := st.UpsertGame(in)
	require.NoError(t, err)

	far := &Game{Sport: "nhl", ProviderGameID: "b", HomeTeam: "H", AwayTeam: "A",
		GameTimeUTC: FormatTime(time.Now().Add(72 * time.Hour))}
	_, err = st.UpsertGame(far)
	require.NoError(t, err)

	other := &Game{Sport: "nba", ProviderGameID: "c", HomeTeam: "H", AwayTeam: "A",
		GameTimeUTC: FormatTime(time.Now().Add(2 * time.Hour))}
	_, err = st.UpsertGame(other)
	require.NoError(t, err)

	games, err := st.UpcomingGames(time.Now().Add(-time.Hour), time.Now().Add(36*time.Hour), []string{"nhl"})
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "a", games[0].ProviderGameID)
}
