// Package nhl holds the hockey drivers: a composite moneyline model, a
// goalie-edge driver, and a first-period pace driver.
package nhl

import (
	"fmt"

	"github.com/scrumdog/cheddar-logic/internal/driver"
	"github.com/scrumdog/cheddar-logic/internal/oddsmath"
)

const (
	CardComposite = "nhl-composite"
	CardGoalie    = "nhl-goalie"
	CardPace1P    = "nhl-pace-1p"

	// Minimum goals-against gap before the goalie driver claims an edge.
	goalieEdgeFloor = 0.4
	// First-period pace edge floor, in goals.
	pace1pEdgeFloor = 0.35
)

type Model struct{}

func New() *Model { return &Model{} }

func (m *Model) ComputeDrivers(in driver.GameInput) []driver.Descriptor {
	var out []driver.Descriptor
	if d := m.composite(in); d != nil {
		out = append(out, *d)
	}
	if d := m.goalieEdge(in); d != nil {
		out = append(out, *d)
	}
	if d := m.pace1p(in); d != nil {
		out = append(out, *d)
	}
	return out
}

// composite blends the vig-free market probability with form and rest edges.
func (m *Model) composite(in driver.GameInput) *driver.Descriptor {
	if in.Odds.H2HHome == nil || in.Odds.H2HAway == nil {
		return nil
	}

	marketScore := oddsmath.FairWinProb(*in.Odds.H2HHome, *in.Odds.H2HAway)

	formScore, formStatus := formScore(in)
	restScore, restStatus := restScore(in)

	res := driver.Compose([]driver.SubScore{
		{Key: "market_implied", Weight: 0.55, Score: marketScore, Status: driver.StatusOK},
		{Key: "recent_form", Weight: 0.25, Score: formScore, Status: formStatus},
		{Key: "rest_advantage", Weight: 0.20, Score: restScore, Status: restStatus},
	})
	if res.Prediction == driver.PredictNeutral {
		return nil
	}

	status := driver.StatusOK
	if formStatus == driver.StatusSkipped || restStatus == driver.StatusSkipped {
		status = driver.StatusDegraded
	}

	score := res.WeightedSum
	side := "home"
	if res.Prediction == driver.PredictAway {
		side = "away"
	}
	return &driver.Descriptor{
		CardType:   CardComposite,
		CardTitle:  fmt.Sprintf("%s @ %s — Moneyline Model", in.AwayTeam, in.HomeTeam),
		DriverKey:  "nhl_composite",
		Prediction: res.Prediction,
		Confidence: res.Confidence,
		Tier:       driver.TierFor(res.Confidence),
		Reasoning: fmt.Sprintf("Weighted model favors the %s side at %.1f%% (market %.1f%%, form and rest adjusted).",
			side, res.WeightedSum*100, marketScore*100),
		DriverScore:        &score,
		DriverStatus:       status,
		DriverInputs:       compositeInputs(in, marketScore, formScore, restScore),
		RecommendedBetType: driver.BetMoneyline,
		EVThresholdPassed:  res.Confidence >= 0.60,
		SubWeights:         res.Weights,
	}
}

// goalieEdge reads goals-against averages as a goaltending proxy. Abstains
// without both teams' defensive numbers or when the gap is inside the floor.
func (m *Model) goalieEdge(in driver.GameInput) *driver.Descriptor {
	if in.HomeMetrics.AvgPointsAllowed == nil || in.AwayMetrics.AvgPointsAllowed == nil {
		return nil
	}
	homeGA := *in.HomeMetrics.AvgPointsAllowed
	awayGA := *in.AwayMetrics.AvgPointsAllowed

	gap := awayGA - homeGA // positive: home net has been stingier
	if gap < goalieEdgeFloor && gap > -goalieEdgeFloor {
		return nil // NO_EDGE
	}

	score := oddsmath.Clamp(0.5+gap/6.0, 0.15, 0.85)
	pred := driver.PredictHome
	edgeTeam := in.HomeTeam
	if gap < 0 {
		pred = driver.PredictAway
		edgeTeam = in.AwayTeam
	}
	conf := driver.ConfidenceFromDeviation(score)

	return &driver.Descriptor{
		CardType:   CardGoalie,
		CardTitle:  fmt.Sprintf("Goalie Edge: %s", edgeTeam),
		DriverKey:  "nhl_goalie_edge",
		Prediction: pred,
		Confidence: conf,
		Tier:       driver.TierFor(conf),
		Reasoning: fmt.Sprintf("%s has allowed %.2f goals per game over the last five vs %.2f for %s.",
			edgeTeam, min(homeGA, awayGA), max(homeGA, awayGA), otherTeam(in, edgeTeam)),
		DriverScore:  &score,
		DriverStatus: driver.StatusOK,
		DriverInputs: map[string]any{
			"home_goals_against": homeGA,
			"away_goals_against": awayGA,
			"ga_gap":             gap,
		},
		RecommendedBetType: driver.BetMoneyline,
		EVThresholdPassed:  conf >= 0.60,
	}
}

// pace1p leans the first-period total off combined recent scoring vs the
// full-game line. Roughly a third of NHL goals come in the first period.
func (m *Model) pace1p(in driver.GameInput) *driver.Descriptor {
	if in.Odds.Total == nil || in.HomeMetrics.AvgPoints == nil || in.AwayMetrics.AvgPoints == nil {
		return nil
	}

	expectedGame := *in.HomeMetrics.AvgPoints + *in.AwayMetrics.AvgPoints
	line := *in.Odds.Total
	edge := expectedGame - line
	if edge < pace1pEdgeFloor && edge > -pace1pEdgeFloor {
		return nil // NO_EDGE
	}

	pred := driver.PredictOver
	lean := "over"
	if edge < 0 {
		pred = driver.PredictUnder
		lean = "under"
	}
	score := oddsmath.Clamp(0.5+edge/8.0, 0.15, 0.85)
	conf := driver.ConfidenceFromDeviation(score)

	return &driver.Descriptor{
		CardType:   CardPace1P,
		CardTitle:  fmt.Sprintf("First Period Pace: %s %.1f", lean, line/3.0),
		DriverKey:  "nhl_pace_1p",
		Prediction: pred,
		Confidence: conf,
		Tier:       driver.TierFor(conf),
		Reasoning: fmt.Sprintf("Recent scoring projects %.1f combined goals against a %.1f line (%+.1f).",
			expectedGame, line, edge),
		DriverScore:  &score,
		DriverStatus: driver.StatusOK,
		DriverInputs: map[string]any{
			"expected_goals": expectedGame,
			"total_line":     line,
			"edge_goals":     edge,
		},
		RecommendedBetType: driver.BetTotal,
		EVThresholdPassed:  conf >= 0.60,
	}
}

func formScore(in driver.GameInput) (float64, driver.Status) {
	if in.HomeMetrics.NetRating == nil || in.AwayMetrics.NetRating == nil {
		return 0.5, driver.StatusSkipped
	}
	diff := *in.HomeMetrics.NetRating - *in.AwayMetrics.NetRating
	return oddsmath.Clamp(0.5+diff/8.0, 0.2, 0.8), driver.StatusOK
}

func restScore(in driver.GameInput) (float64, driver.Status) {
	if in.HomeMetrics.RestDays == nil || in.AwayMetrics.RestDays == nil {
		return 0.5, driver.StatusSkipped
	}
	diff := *in.HomeMetrics.RestDays - *in.AwayMetrics.RestDays
	if diff > 3 {
		diff = 3
	}
	if diff < -3 {
		diff = -3
	}
	return 0.5 + float64(diff)*0.05, driver.StatusOK
}

func compositeInputs(in driver.GameInput, market, form, rest float64) map[string]any {
	return map[string]any{
		"market_implied_home": market,
		"form_score":          form,
		"rest_score":          rest,
		"moneyline_home":      in.Odds.H2HHome,
		"moneyline_away":      in.Odds.H2HAway,
	}
}

func otherTeam(in driver.GameInput, team string) string {
	if team == in.HomeTeam {
		return in.AwayTeam
	}
	return in.HomeTeam
}
