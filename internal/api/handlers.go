package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/scrumdog/cheddar-logic/internal/store"
)

type gameView struct {
	GameID      string          `json:"game_id"`
	Sport       string          `json:"sport"`
	HomeTeam    string          `json:"home_team"`
	AwayTeam    string          `json:"away_team"`
	GameTimeUTC string          `json:"game_time_utc"`
	Status      string          `json:"status"`
	Odds        *oddsView       `json:"odds"`
	Cards       []cardView      `json:"cards"`
}

type oddsView struct {
	H2HHome    *float64 `json:"h2h_home"`
	H2HAway    *float64 `json:"h2h_away"`
	Total      *float64 `json:"total"`
	SpreadHome *float64 `json:"spread_home"`
	SpreadAway *float64 `json:"spread_away"`
	CapturedAt string   `json:"captured_at"`
}

type cardView struct {
	ID        string          `json:"id"`
	CardType  string          `json:"card_type"`
	CardTitle string          `json:"card_title"`
	CreatedAt string          `json:"created_at"`
	ExpiresAt string          `json:"expires_at,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// handleGames returns today's and upcoming games, each joined with its
// latest odds snapshot and active cards. Ascending by start time, capped.
func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	now := s.now().UTC()
	local := now.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc).UTC()

	games, err := s.store.GamesFromDate(dayStart, gamesCap)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]gameView, 0, len(games))
	for _, g := range games {
		view := gameView{
			GameID:      g.ExternalID(),
			Sport:       g.Sport,
			HomeTeam:    g.HomeTeam,
			AwayTeam:    g.AwayTeam,
			GameTimeUTC: g.GameTimeUTC,
			Status:      g.Status,
			Cards:       []cardView{},
		}

		snap, err := s.store.LatestSnapshotForGame(g.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if snap != nil {
			view.Odds = &oddsView{
				H2HHome:    snap.MoneylineHome,
				H2HAway:    snap.MoneylineAway,
				Total:      snap.Total,
				SpreadHome: snap.SpreadHome,
				SpreadAway: snap.SpreadAway,
				CapturedAt: snap.CapturedAt,
			}
		}

		cards, err := s.store.ActiveCardsForGame(g.ID, now, "", true)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, c := range cards {
			view.Cards = append(view.Cards, toCardView(c))
		}
		views = append(views, view)
	}
	writeData(w, views)
}

// handleCards returns the non-expired cards for one game.
func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	externalID := mux.Vars(r)["gameId"]
	sport, providerID, ok := parseExternalID(externalID)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}

	game, err := s.store.GameByProviderID(sport, providerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if game == nil {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}

	dedup := r.URL.Query().Get("dedup")
	latestPerType := dedup == "" || dedup == "latest_per_game_type"
	if dedup != "" && dedup != "latest_per_game_type" && dedup != "none" {
		writeError(w, http.StatusBadRequest, "invalid dedup mode")
		return
	}

	cards, err := s.store.ActiveCardsForGame(game.ID, s.now().UTC(), r.URL.Query().Get("cardType"), latestPerType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]cardView, 0, len(cards))
	for _, c := range cards {
		views = append(views, toCardView(c))
	}
	writeData(w, views)
}

type resultsSummary struct {
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Pushes  int     `json:"pushes"`
	Units   float64 `json:"units"`
	WinRate float64 `json:"win_rate"`
}

type segmentView struct {
	Sport    string  `json:"sport"`
	Category string  `json:"category"`
	Market   string  `json:"market"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Pushes   int     `json:"pushes"`
	Units    float64 `json:"units"`
}

type ledgerRow struct {
	CardID    string   `json:"card_id"`
	Sport     string   `json:"sport"`
	CardType  string   `json:"card_type"`
	Market    string   `json:"market"`
	Result    string   `json:"result"`
	PnlUnits  *float64 `json:"pnl_units"`
	SettledAt string   `json:"settled_at"`
}

type resultMeta struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// handleResults returns the settlement summary, per-segment breakdown, and
// recent ledger rows, honoring the sport/category/market/confidence filters.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	minConf := 0.0
	if v := q.Get("min_confidence"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_confidence")
			return
		}
		minConf = parsed
	}
	category := q.Get("card_category")
	if category != "" && category != "driver" && category != "call" {
		writeError(w, http.StatusBadRequest, "invalid card_category")
		return
	}

	rows, err := s.store.SettledLedger(store.LedgerFilter{
		Sport:  q.Get("sport"),
		Market: q.Get("market"),
		Limit:  500,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var summary resultsSummary
	segments := map[string]*segmentView{}
	ledger := make([]ledgerRow, 0, 50)

	for _, row := range rows {
		var meta resultMeta
		if row.Metadata != "" {
			json.Unmarshal([]byte(row.Metadata), &meta)
		}
		if category != "" && meta.Category != category {
			continue
		}
		if minConf > 0 && meta.Confidence < minConf {
			continue
		}

		switch row.Result {
		case store.OutcomeWin:
			summary.Wins++
		case store.OutcomeLoss:
			summary.Losses++
		case store.OutcomePush, store.OutcomeVoid:
			summary.Pushes++
		}
		if row.PnlUnits != nil {
			summary.Units += *row.PnlUnits
		}

		segKey := row.Sport + "|" + meta.Category + "|" + row.RecommendedBetType
		seg, ok := segments[segKey]
		if !ok {
			seg = &segmentView{Sport: row.Sport, Category: meta.Category, Market: row.RecommendedBetType}
			segments[segKey] = seg
		}
		switch row.Result {
		case store.OutcomeWin:
			seg.Wins++
		case store.OutcomeLoss:
			seg.Losses++
		case store.OutcomePush, store.OutcomeVoid:
			seg.Pushes++
		}
		if row.PnlUnits != nil {
			seg.Units += *row.PnlUnits
		}

		if len(ledger) < 50 {
			ledger = append(ledger, ledgerRow{
				CardID:    row.CardID,
				Sport:     row.Sport,
				CardType:  row.CardType,
				Market:    row.RecommendedBetType,
				Result:    row.Result,
				PnlUnits:  row.PnlUnits,
				SettledAt: row.SettledAt,
			})
		}
	}

	if decided := summary.Wins + summary.Losses; decided > 0 {
		summary.WinRate = float64(summary.Wins) / float64(decided)
	}

	segList := make([]segmentView, 0, len(segments))
	for _, seg := range segments {
		segList = append(segList, *seg)
	}

	// The cached per-sport rollup is unfiltered by design: it is the
	// all-time ledger the settlement engine maintains.
	tracking, err := s.store.AllTrackingStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sportTotals := make([]map[string]any, 0, len(tracking))
	for _, ts := range tracking {
		sportTotals = append(sportTotals, map[string]any{
			"sport":  ts.Sport,
			"wins":   ts.Wins,
			"losses": ts.Losses,
			"pushes": ts.Pushes,
			"units":  ts.Units,
		})
	}

	writeData(w, map[string]any{
		"summary":      summary,
		"segments":     segList,
		"ledger":       ledger,
		"sport_totals": sportTotals,
	})
}

func toCardView(c store.CardPayload) cardView {
	return cardView{
		ID:        c.ID,
		CardType:  c.CardType,
		CardTitle: c.CardTitle,
		CreatedAt: c.CreatedAt,
		ExpiresAt: c.ExpiresAt,
		Payload:   json.RawMessage(c.PayloadData),
	}
}

func parseExternalID(v string) (sport, providerID string, ok bool) {
	if !strings.HasPrefix(v, "game-") {
		return "", "", false
	}
	rest := v[len("game-"):]
	i := strings.Index(rest, "-")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}
