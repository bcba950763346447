// Package card validates driver descriptors and persists them as canonical
// card payloads with a pending settlement row.
package card

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/scrumdog/cheddar-logic/internal/driver"
	"github.com/scrumdog/cheddar-logic/internal/store"
	"github.com/scrumdog/cheddar-logic/internal/telemetry"
)

const disclaimer = "Analytics for entertainment purposes only. Not betting advice."

// Writer turns validated descriptors into card_payloads rows.
type Writer struct {
	store        *store.Store
	loc          *time.Location
	modelVersion string
	now          func() time.Time
}

func NewWriter(st *store.Store, loc *time.Location, modelVersion string) *Writer {
	return &Writer{store: st, loc: loc, modelVersion: modelVersion, now: time.Now}
}

// WriteRequest carries everything one card write needs.
type WriteRequest struct {
	JobRunID      string
	ModelName     string
	Game          *store.Game
	Snapshot      *store.OddsSnapshot // decision-time odds, may be nil
	Input         driver.GameInput
	Descriptor    driver.Descriptor
	DriversActive []string
	WindowStart   time.Time
}

// Write validates and persists one card. Returns false without error when
// the write was an idempotent no-op or the descriptor abstained.
func (w *Writer) Write(req WriteRequest) (bool, error) {
	d := req.Descriptor

	// A neutral or market-less descriptor is an abstention, never a card.
	if d.Prediction == driver.PredictNeutral || d.RecommendedBetType == driver.BetNone {
		return false, nil
	}

	payload := w.buildPayload(req)
	if err := Validate(d.CardType, payload); err != nil {
		return false, fmt.Errorf("payload validation: %w", err)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}

	now := w.now().UTC()
	var expiresAt string
	if !req.Input.GameTimeUTC.IsZero() {
		expiresAt = store.FormatTime(req.Input.GameTimeUTC.Add(-1 * time.Hour))
	}

	outputJSON, _ := json.Marshal(map[string]any{
		"driver_key":   d.DriverKey,
		"prediction":   string(d.Prediction),
		"confidence":   d.Confidence,
		"driver_score": d.DriverScore,
	})

	mo := &store.ModelOutput{
		GameID:         req.Game.ID,
		ModelName:      req.ModelName,
		ModelVersion:   w.modelVersion,
		PredictionType: string(d.RecommendedBetType),
		PredictedAt:    store.FormatTime(now),
		Confidence:     d.Confidence,
		Output:         string(outputJSON),
		JobRunID:       req.JobRunID,
	}
	if req.Snapshot != nil {
		mo.OddsSnapshotID = &req.Snapshot.ID
	}

	cp := &store.CardPayload{
		GameID:       req.Game.ID,
		Sport:        req.Game.Sport,
		CardType:     d.CardType,
		CardTitle:    d.CardTitle,
		ModelVersion: w.modelVersion,
		CreatedAt:    store.FormatTime(now),
		ExpiresAt:    expiresAt,
		PayloadData:  string(payloadJSON),
	}

	resMeta, _ := json.Marshal(map[string]any{
		"category":   "driver",
		"driver_key": d.DriverKey,
		"tier":       string(d.Tier),
		"confidence": d.Confidence,
	})
	cr := &store.CardResult{
		GameID:             req.Game.ID,
		Sport:              req.Game.Sport,
		CardType:           d.CardType,
		RecommendedBetType: string(d.RecommendedBetType),
		Metadata:           string(resMeta),
	}

	inserted, err := w.store.WriteCard(mo, cp, cr, req.WindowStart)
	if err != nil {
		return false, err
	}
	if inserted {
		telemetry.Metrics.CardsWritten.Inc()
	}
	return inserted, nil
}

func (w *Writer) buildPayload(req WriteRequest) map[string]any {
	d := req.Descriptor
	in := req.Input
	now := w.now().UTC()

	recType, recText, passReason := recommendation(in, d)

	marketBlock := map[string]any{
		"h2h_home":    floatOrNil(in.Odds.H2HHome),
		"h2h_away":    floatOrNil(in.Odds.H2HAway),
		"total":       floatOrNil(in.Odds.Total),
		"spread_home": floatOrNil(in.Odds.SpreadHome),
		"spread_away": floatOrNil(in.Odds.SpreadAway),
	}

	capturedAt := store.FormatTime(now)
	if req.Snapshot != nil {
		capturedAt = req.Snapshot.CapturedAt
	}
	oddsContext := map[string]any{
		"h2h_home":    floatOrNil(in.Odds.H2HHome),
		"h2h_away":    floatOrNil(in.Odds.H2HAway),
		"spread_home": floatOrNil(in.Odds.SpreadHome),
		"spread_away": floatOrNil(in.Odds.SpreadAway),
		"total":       floatOrNil(in.Odds.Total),
		"captured_at": capturedAt,
	}

	recommendationBlock := map[string]any{
		"type": recType,
		"text": recText,
	}
	if passReason != "" {
		recommendationBlock["pass_reason"] = passReason
	}

	weights := make([]any, 0, len(d.SubWeights))
	for _, wgt := range d.SubWeights {
		weights = append(weights, map[string]any{
			"driver": wgt.Driver,
			"weight": wgt.Weight,
			"score":  wgt.Score,
			"impact": wgt.Impact,
			"status": string(wgt.Status),
		})
	}
	impactNote := ""
	if len(d.SubWeights) > 0 {
		impactNote = "Impact is each sub-driver's weighted pull away from neutral."
	}

	payload := map[string]any{
		"game_id":          req.Game.ExternalID(),
		"sport":            req.Game.Sport,
		"model_version":    w.modelVersion,
		"home_team":        in.HomeTeam,
		"away_team":        in.AwayTeam,
		"matchup":          fmt.Sprintf("%s @ %s", in.AwayTeam, in.HomeTeam),
		"start_time_utc":   store.FormatTime(in.GameTimeUTC),
		"start_time_local": in.GameTimeUTC.In(w.loc).Format("2006-01-02 3:04 PM"),
		"timezone":         w.loc.String(),
		"countdown":        countdown(in.GameTimeUTC, now),
		"recommendation":   recommendationBlock,
		"projection":       projection(in, d),
		"market":           marketBlock,
		"confidence_pct":   int(d.Confidence*100 + 0.5),
		"drivers_active":   toAnySlice(req.DriversActive),
		"prediction":       string(d.Prediction),
		"confidence":       d.Confidence,
		"recommended_bet_type": string(d.RecommendedBetType),
		"tier":             string(d.Tier),
		"reasoning":        d.Reasoning,
		"odds_context":     oddsContext,
		"ev_passed":        d.EVThresholdPassed,
		"disclaimer":       disclaimer,
		"generated_at":     store.FormatTime(now),
		"driver": map[string]any{
			"key":    d.DriverKey,
			"score":  floatOrNil(d.DriverScore),
			"status": string(d.DriverStatus),
			"inputs": d.DriverInputs,
		},
		"driver_summary": map[string]any{
			"weights":     weights,
			"impact_note": impactNote,
		},
		"meta": map[string]any{
			"inference_source": req.ModelName,
			"is_mock":          d.IsMock,
		},
	}

	if d.DriverScore != nil {
		edge := *d.DriverScore - 0.5
		if edge < 0 {
			edge = -edge
		}
		payload["edge"] = edge
	}
	return payload
}

// recommendation maps a descriptor to the settlement-facing recommendation
// triple. Descriptors below the EV threshold carry a PASS with a reason.
func recommendation(in driver.GameInput, d driver.Descriptor) (recType, text, passReason string) {
	if !d.EVThresholdPassed {
		return "PASS", "No bet", "edge below EV threshold"
	}

	switch d.RecommendedBetType {
	case driver.BetMoneyline:
		if d.Prediction == driver.PredictHome {
			return "ML_HOME", fmt.Sprintf("%s ML (%s)", in.HomeTeam, priceText(in.Odds.H2HHome)), ""
		}
		return "ML_AWAY", fmt.Sprintf("%s ML (%s)", in.AwayTeam, priceText(in.Odds.H2HAway)), ""
	case driver.BetSpread:
		if d.Prediction == driver.PredictHome {
			return "SPREAD_HOME", fmt.Sprintf("%s %s", in.HomeTeam, lineText(in.Odds.SpreadHome)), ""
		}
		return "SPREAD_AWAY", fmt.Sprintf("%s %s", in.AwayTeam, lineText(in.Odds.SpreadAway)), ""
	case driver.BetTotal:
		if d.Prediction == driver.PredictOver {
			return "TOTAL_OVER", fmt.Sprintf("Over %s", lineText(in.Odds.Total)), ""
		}
		return "TOTAL_UNDER", fmt.Sprintf("Under %s", lineText(in.Odds.Total)), ""
	}
	return "PASS", "No bet", "no market recommended"
}

func projection(in driver.GameInput, d driver.Descriptor) map[string]any {
	proj := map[string]any{}
	if d.RecommendedBetType == driver.BetMoneyline && d.DriverScore != nil {
		proj["win_prob_home"] = *d.DriverScore
	}
	if total, ok := d.DriverInputs["expected_goals"]; ok {
		proj["total"] = total
	} else if in.Odds.Total != nil && d.RecommendedBetType == driver.BetTotal {
		proj["total"] = *in.Odds.Total
	}
	return proj
}

func countdown(gameTime, now time.Time) string {
	if gameTime.IsZero() {
		return "TBD"
	}
	until := gameTime.Sub(now)
	if until <= 0 {
		return "live"
	}
	h := int(until.Hours())
	m := int(until.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

func priceText(v *float64) string {
	if v == nil {
		return "n/a"
	}
	if *v > 0 {
		return fmt.Sprintf("+%.0f", *v)
	}
	return fmt.Sprintf("%.0f", *v)
}

func lineText(v *float64) string {
	if v == nil {
		return "n/a"
	}
	if *v > 0 {
		return fmt.Sprintf("+%.1f", *v)
	}
	return fmt.Sprintf("%.1f", *v)
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func toAnySlice(xs []string) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}
