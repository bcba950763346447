package driver

import "github.com/scrumdog/cheddar-logic/internal/oddsmath"

// Composite confidence bounds shared by every sport's top-level driver.
const (
	compositeConfFloor = 0.50
	compositeConfCeil  = 0.85
)

// SubScore is one sub-driver's contribution to a composite.
type SubScore struct {
	Key    string
	Weight float64 // weights across a composite sum to <= 1.0
	Score  float64 // [0,1]; 0.5 is neutral
	Status Status
}

// CompositeResult is the outcome of the weighted-sum composite rule.
type CompositeResult struct {
	WeightedSum float64
	Confidence  float64
	Prediction  Prediction
	Weights     []WeightEntry
}

// Compose applies the shared composite rule: a weighted sum across
// sub-drivers, confidence clamped to [0.50, 0.85], prediction HOME above the
// neutral midpoint and AWAY below it. Skipped sub-drivers contribute their
// weight at the neutral score so a missing input never biases the direction.
func Compose(subs []SubScore) CompositeResult {
	var sum float64
	var totalWeight float64
	weights := make([]WeightEntry, 0, len(subs))

	for _, s := range subs {
		score := s.Score
		if s.Status == StatusSkipped {
			score = 0.5
		}
		contribution := s.Weight * score
		sum += contribution
		totalWeight += s.Weight
		weights = append(weights, WeightEntry{
			Driver: s.Key,
			Weight: s.Weight,
			Score:  score,
			Impact: s.Weight * (score - 0.5),
			Status: s.Status,
		})
	}

	// Weights summing below 1.0 leave the remainder at neutral.
	if totalWeight < 1.0 {
		sum += (1.0 - totalWeight) * 0.5
	}

	res := CompositeResult{
		WeightedSum: sum,
		Confidence:  oddsmath.Clamp(sum, compositeConfFloor, compositeConfCeil),
		Weights:     weights,
	}
	switch {
	case sum > 0.5:
		res.Prediction = PredictHome
	case sum < 0.5:
		res.Prediction = PredictAway
	default:
		res.Prediction = PredictNeutral
	}
	return res
}

// ConfidenceFromDeviation converts a directional sub-driver score to a
// confidence: the farther from neutral, the stronger the signal.
func ConfidenceFromDeviation(score float64) float64 {
	dev := score - 0.5
	if dev < 0 {
		dev = -dev
	}
	return oddsmath.Clamp(0.5+dev, compositeConfFloor, compositeConfCeil)
}

// ConfidenceFromMagnitude converts a score whose raw size is the signal
// (risk scores and the like) to a confidence.
func ConfidenceFromMagnitude(score float64) float64 {
	return oddsmath.Clamp(score, compositeConfFloor, compositeConfCeil)
}
