// Package nba holds the basketball drivers: a composite moneyline model and
// the pace-matchup totals driver.
package nba

import (
	"fmt"

	"github.com/scrumdog/cheddar-logic/internal/driver"
	"github.com/scrumdog/cheddar-logic/internal/oddsmath"
)

const (
	CardComposite    = "nba-composite"
	CardPaceMatchup  = "nba-pace-matchup"

	// League pace distribution bounds used for the percentile proxy.
	paceFloor = 95.0
	paceSpan  = 10.0

	// Percentile-gap at or beyond which the matchup is a style clash and
	// the pace driver abstains.
	paceClashGap = 40.0
)

// Synergy classifies how two teams' tempos interact.
type Synergy string

const (
	SynergyBothFast Synergy = "BOTH_FAST"
	SynergyBothSlow Synergy = "BOTH_SLOW"
	SynergyMixed    Synergy = "MIXED"
	SynergyClash    Synergy = "PACE_CLASH"
)

type Model struct{}

func New() *Model { return &Model{} }

func (m *Model) ComputeDrivers(in driver.GameInput) []driver.Descriptor {
	var out []driver.Descriptor
	if d := m.composite(in); d != nil {
		out = append(out, *d)
	}
	if d := m.paceMatchup(in); d != nil {
		out = append(out, *d)
	}
	return out
}

// PacePercentile maps a raw pace value onto a 0–100 league percentile proxy.
func PacePercentile(pace float64) float64 {
	return oddsmath.Clamp((pace-paceFloor)/paceSpan, 0, 1) * 100
}

// ClassifySynergy buckets a pace matchup. A gap of paceClashGap percentile
// points or more is a style clash with no reliable totals signal.
func ClassifySynergy(homePct, awayPct float64) Synergy {
	gap := homePct - awayPct
	if gap < 0 {
		gap = -gap
	}
	if gap >= paceClashGap {
		return SynergyClash
	}
	switch {
	case homePct >= 60 && awayPct >= 60:
		return SynergyBothFast
	case homePct <= 40 && awayPct <= 40:
		return SynergyBothSlow
	default:
		return SynergyMixed
	}
}

// paceMatchup leans the total when both teams share a tempo. It abstains on
// a PACE_CLASH, on mixed matchups, and when either pace input is missing.
func (m *Model) paceMatchup(in driver.GameInput) *driver.Descriptor {
	if in.HomeMetrics.Pace == nil || in.AwayMetrics.Pace == nil || in.Odds.Total == nil {
		return nil
	}

	homePct := PacePercentile(*in.HomeMetrics.Pace)
	awayPct := PacePercentile(*in.AwayMetrics.Pace)
	synergy := ClassifySynergy(homePct, awayPct)

	var pred driver.Prediction
	switch synergy {
	case SynergyBothFast:
		pred = driver.PredictOver
	case SynergyBothSlow:
		pred = driver.PredictUnder
	default:
		return nil // NO_EDGE: clash or mixed tempos carry no totals signal
	}

	avgPct := (homePct + awayPct) / 2
	score := oddsmath.Clamp(avgPct/100, 0.15, 0.85)
	if pred == driver.PredictUnder {
		score = 1 - score
	}
	conf := driver.ConfidenceFromDeviation(score)

	lean := "over"
	if pred == driver.PredictUnder {
		lean = "under"
	}
	return &driver.Descriptor{
		CardType:   CardPaceMatchup,
		CardTitle:  fmt.Sprintf("Pace Matchup: %s %.1f", lean, *in.Odds.Total),
		DriverKey:  "nba_pace_matchup",
		Prediction: pred,
		Confidence: conf,
		Tier:       driver.TierFor(conf),
		Reasoning: fmt.Sprintf("Both teams play %s tempo (pace percentiles %.0f and %.0f); the total leans %s.",
			tempoWord(synergy), homePct, awayPct, lean),
		DriverScore:  &score,
		DriverStatus: driver.StatusOK,
		DriverInputs: map[string]any{
			"home_pace":            *in.HomeMetrics.Pace,
			"away_pace":            *in.AwayMetrics.Pace,
			"home_pace_percentile": homePct,
			"away_pace_percentile": awayPct,
			"synergy":              string(synergy),
			"total_line":           *in.Odds.Total,
		},
		RecommendedBetType: driver.BetTotal,
		EVThresholdPassed:  conf >= 0.60,
	}
}

// composite blends the vig-free market probability with form and rest edges.
func (m *Model) composite(in driver.GameInput) *driver.Descriptor {
	if in.Odds.H2HHome == nil || in.Odds.H2HAway == nil {
		return nil
	}

	marketScore := oddsmath.FairWinProb(*in.Odds.H2HHome, *in.Odds.H2HAway)

	formScore, formStatus := 0.5, driver.StatusSkipped
	if in.HomeMetrics.NetRating != nil && in.AwayMetrics.NetRating != nil {
		diff := *in.HomeMetrics.NetRating - *in.AwayMetrics.NetRating
		formScore = oddsmath.Clamp(0.5+diff/24.0, 0.2, 0.8)
		formStatus = driver.StatusOK
	}

	restScore, restStatus := 0.5, driver.StatusSkipped
	if in.HomeMetrics.RestDays != nil && in.AwayMetrics.RestDays != nil {
		diff := *in.HomeMetrics.RestDays - *in.AwayMetrics.RestDays
		if diff > 3 {
			diff = 3
		}
		if diff < -3 {
			diff = -3
		}
		restScore = 0.5 + float64(diff)*0.06
		restStatus = driver.StatusOK
	}

	res := driver.Compose([]driver.SubScore{
		{Key: "market_implied", Weight: 0.50, Score: marketScore, Status: driver.StatusOK},
		{Key: "recent_form", Weight: 0.30, Score: formScore, Status: formStatus},
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
		DriverKey:  "nba_composite",
		Prediction: res.Prediction,
		Confidence: res.Confidence,
		Tier:       driver.TierFor(res.Confidence),
		Reasoning: fmt.Sprintf("Weighted model favors the %s side at %.1f%% (market %.1f%%, form and rest adjusted).",
			side, res.WeightedSum*100, marketScore*100),
		DriverScore:  &score,
		DriverStatus: status,
		DriverInputs: map[string]any{
			"market_implied_home": marketScore,
			"form_score":          formScore,
			"rest_score":          restScore,
			"moneyline_home":      in.Odds.H2HHome,
			"moneyline_away":      in.Odds.H2HAway,
		},
		RecommendedBetType: driver.BetMoneyline,
		EVThresholdPassed:  res.Confidence >= 0.60,
		SubWeights:         res.Weights,
	}
}

func tempoWord(s Synergy) string {
	if s == SynergyBothSlow {
		return "a slow"
	}
	return "a fast"
}
