package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrumdog/cheddar-logic/internal/store"
)

func fp(v float64) *float64 { return &v }

func fixture(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewServer(st, time.UTC), st
}

func seedGame(t *testing.T, st *store.Store, providerID string, startsIn time.Duration) *store.Game {
	t.Helper()
	g := &store.Game{
		Sport: "nhl", ProviderGameID: providerID,
		HomeTeam: "Boston Bruins", AwayTeam: "Toronto Maple Leafs",
		GameTimeUTC: store.FormatTime(time.Now().UTC().Add(startsIn)),
	}
	_, err := st.UpsertGame(g)
	require.NoError(t, err)
	return g
}

func seedCard(t *testing.T, st *store.Store, g *store.Game, cardType string) *store.CardPayload {
	t.Helper()
	mo := &store.ModelOutput{GameID: g.ID, ModelName: "run_nhl_model", ModelVersion: "v1",
		PredictionType: "moneyline", PredictedAt: store.FormatTime(time.Now()), Confidence: 0.7}
	cp := &store.CardPayload{
		GameID: g.ID, Sport: g.Sport, CardType: cardType, CardTitle: "t",
		ModelVersion: "v1", CreatedAt: store.FormatTime(time.Now()),
		ExpiresAt:   store.FormatTime(time.Now().Add(2 * time.Hour)),
		PayloadData: `{"prediction":"HOME"}`,
	}
	cr := &store.CardResult{RecommendedBetType: "moneyline", Metadata: `{"category":"driver","confidence":0.7}`}
	ok, err := st.WriteCard(mo, cp, cr, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	return cp
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestGamesEndpoint(t *testing.T) {
	s, st := fixture(t)
	g := seedGame(t, st, "401559", 4*time.Hour)
	_, err := st.InsertOddsSnapshot(&store.OddsSnapshot{
		GameID: g.ID, CapturedAt: store.FormatTime(time.Now()),
		MoneylineHome: fp(-150), Total: fp(6.5),
	})
	require.NoError(t, err)
	seedCard(t, st, g, "nhl-goalie")

	rec, body := get(t, s, "/games")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	games := body["data"].([]any)
	require.Len(t, games, 1)
	game := games[0].(map[string]any)
	assert.Equal(t, "game-nhl-401559", game["game_id"])
	require.NotNil(t, game["odds"])
	assert.Equal(t, -150.0, game["odds"].(map[string]any)["h2h_home"])
	assert.Len(t, game["cards"].([]any), 1)
}

func TestCardsEndpoint(t *testing.T) {
	s, st := fixture(t)
	g := seedGame(t, st, "401559", 4*time.Hour)
	seedCard(t, st, g, "nhl-goalie")

	rec, body := get(t, s, "/cards/game-nhl-401559")
	assert.Equal(t, http.StatusOK, rec.Code)
	cards := body["data"].([]any)
	require.Len(t, cards, 1)
	assert.Equal(t, "nhl-goalie", cards[0].(map[string]any)["card_type"])

	// cardType filter.
	_, body = get(t, s, "/cards/game-nhl-401559?cardType=nhl-composite")
	assert.Empty(t, body["data"])
}

func TestCardsEndpointUnknownGame(t *testing.T) {
	s, _ := fixture(t)

	rec, body := get(t, s, "/cards/game-nhl-000000")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
}

func TestCardsEndpointBadID(t *testing.T) {
	s, _ := fixture(t)

	rec, body := get(t, s, "/cards/nonsense")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestResultsEndpoint(t *testing.T) {
	s, st := fixture(t)
	g := seedGame(t, st, "401559", -5*time.Hour)
	cp := seedCard(t, st, g, "nhl-goalie")

	ok, err := st.SettleCard(cp.ID, store.OutcomeWin, 0.667)
	require.NoError(t, err)
	require.True(t, ok)

	rec, body := get(t, s, "/results")
	assert.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	summary := data["summary"].(map[string]any)
	assert.Equal(t, 1.0, summary["wins"])
	assert.InDelta(t, 0.667, summary["units"].(float64), 0.0001)
	assert.Equal(t, 1.0, summary["win_rate"])

	ledger := data["ledger"].([]any)
	require.Len(t, ledger, 1)
	assert.Equal(t, "win", ledger[0].(map[string]any)["result"])

	totals := data["sport_totals"].([]any)
	require.Len(t, totals, 1)
	assert.Equal(t, "nhl", totals[0].(map[string]any)["sport"])

	// A min_confidence above the card's filters it out.
	_, body = get(t, s, "/results?min_confidence=0.9")
	data = body["data"].(map[string]any)
	assert.Equal(t, 0.0, data["summary"].(map[string]any)["wins"])

	// Sport filter mismatches yield an empty summary.
	_, body = get(t, s, "/results?sport=nba")
	data = body["data"].(map[string]any)
	assert.Equal(t, 0.0, data["summary"].(map[string]any)["wins"])
}

func TestParseExternalID(t *testing.T) {
	sport, pid, ok := parseExternalID("game-nhl-401559")
	assert.True(t, ok)
	assert.Equal(t, "nhl", sport)
	assert.Equal(t, "401559", pid)

	// Provider IDs may themselves contain dashes.
	sport, pid, ok = parseExternalID("game-soccer-abc-123")
	assert.True(t, ok)
	assert.Equal(t, "soccer", sport)
	assert.Equal(t, "abc-123", pid)

	_, _, ok = parseExternalID("nonsense")
	assert.False(t, ok)
	_, _, ok = parseExternalID("game-nhl-")
	assert.False(t, ok)
}
