// Package market is the generic market-implied composite used by sports
// without a bespoke model (ncaam, mlb, nfl, soccer, fpl).
package market

import (
	"fmt"

	"github.com/scrumdog/cheddar-logic/internal/driver"
	"github.com/scrumdog/cheddar-logic/internal/oddsmath"
	"github.com/scrumdog/cheddar-logic/internal/sports"
)

type Model struct {
	sport sports.Sport
}

func New(sport sports.Sport) *Model { return &Model{sport: sport} }

// CardType returns the composite card type for a sport.
func CardType(sport sports.Sport) string {
	return string(sport) + "-composite"
}

func (m *Model) ComputeDrivers(in driver.GameInput) []driver.Descriptor {
	if in.Odds.H2HHome == nil || in.Odds.H2HAway == nil {
		return nil
	}

	marketScore := oddsmath.FairWinProb(*in.Odds.H2HHome, *in.Odds.H2HAway)

	formScore, formStatus := 0.5, driver.StatusSkipped
	if in.HomeMetrics.NetRating != nil && in.AwayMetrics.NetRating != nil {
		diff := *in.HomeMetrics.NetRating - *in.AwayMetrics.NetRating
		formScore = oddsmath.Clamp(0.5+diff/20.0, 0.2, 0.8)
		formStatus = driver.StatusOK
	}

	res := driver.Compose([]driver.SubScore{
		{Key: "market_implied", Weight: 0.70, Score: marketScore, Status: driver.StatusOK},
		{Key: "recent_form", Weight: 0.30, Score: formScore, Status: formStatus},
	})
	if res.Prediction == driver.PredictNeutral {
		return nil
	}

	status := driver.StatusOK
	if formStatus == driver.StatusSkipped {
		status = driver.StatusDegraded
	}

	score := res.WeightedSum
	side := "home"
	if res.Prediction == driver.PredictAway {
		side = "away"
	}
	return []driver.Descriptor{{
		CardType:   CardType(m.sport),
		CardTitle:  fmt.Sprintf("%s @ %s — Moneyline Model", in.AwayTeam, in.HomeTeam),
		DriverKey:  string(m.sport) + "_composite",
		Prediction: res.Prediction,
		Confidence: res.Confidence,
		Tier:       driver.TierFor(res.Confidence),
		Reasoning: fmt.Sprintf("Market-implied model favors the %s side at %.1f%%.",
			side, res.WeightedSum*100),
		DriverScore:  &score,
		DriverStatus: status,
		DriverInputs: map[string]any{
			"market_implied_home": marketScore,
			"form_score":          formScore,
			"moneyline_home":      in.Odds.H2HHome,
			"moneyline_away":      in.Odds.H2HAway,
		},
		RecommendedBetType: driver.BetMoneyline,
		EVThresholdPassed:  res.Confidence >= 0.60,
		SubWeights:         res.Weights,
	}}
}
