package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierFor(t *testing.T) {
	cases := []struct {
		confidence float64
		want       Tier
	}{
		{0.80, TierSuper},
		{0.75, TierSuper},
		{0.74, TierBest},
		{0.70, TierBest},
		{0.69, TierWatch},
		{0.60, TierWatch},
		{0.59, TierNone},
		{0.0, TierNone},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierFor(tc.confidence), "confidence %.2f", tc.confidence)
	}
}

func TestComposeDirection(t *testing.T) {
	res := Compose([]SubScore{
		{Key: "a", Weight: 0.6, Score: 0.8, Status: StatusOK},
		{Key: "b", Weight: 0.4, Score: 0.6, Status: StatusOK},
	})
	assert.Equal(t, PredictHome, res.Prediction)
	assert.InDelta(t, 0.72, res.WeightedSum, 0.0001)
	assert.InDelta(t, 0.72, res.Confidence, 0.0001)

	res = Compose([]SubScore{
		{Key: "a", Weight: 1.0, Score: 0.2, Status: StatusOK},
	})
	assert.Equal(t, PredictAway, res.Prediction)
	// Confidence clamps to the floor even when the sum is far below it.
	assert.Equal(t, 0.5, res.Confidence)
}

func TestComposeNeutral(t *testing.T) {
	res := Compose([]SubScore{
		{Key: "a", Weight: 1.0, Score: 0.5, Status: StatusOK},
	})
	assert.Equal(t, PredictNeutral, res.Prediction)
}

func TestComposeConfidenceCeiling(t *testing.T) {
	res := Compose([]SubScore{
		{Key: "a", Weight: 1.0, Score: 0.99, Status: StatusOK},
	})
	assert.Equal(t, 0.85, res.Confidence)
}

func TestComposeSkippedSubIsNeutral(t *testing.T) {
	// A skipped sub-driver contributes its weight at 0.5, so a lone healthy
	// sub decides the direction but the skipped one drags toward neutral.
	res := Compose([]SubScore{
		{Key: "healthy", Weight: 0.5, Score: 0.9, Status: StatusOK},
		{Key: "broken", Weight: 0.5, Score: 0.1, Status: StatusSkipped},
	})
	assert.Equal(t, PredictHome, res.Prediction)
	assert.InDelta(t, 0.70, res.WeightedSum, 0.0001)
	require.Len(t, res.Weights, 2)
	assert.Equal(t, 0.5, res.Weights[1].Score)
	assert.Equal(t, 0.0, res.Weights[1].Impact)
}

func TestComposeUnderweightedRemainsNeutral(t *testing.T) {
	// Weights summing to 0.4 leave 0.6 at neutral.
	res := Compose([]SubScore{
		{Key: "a", Weight: 0.4, Score: 1.0, Status: StatusOK},
	})
	assert.InDelta(t, 0.7, res.WeightedSum, 0.0001)
	assert.Equal(t, PredictHome, res.Prediction)
}

func TestConfidenceFromDeviation(t *testing.T) {
	assert.InDelta(t, 0.5, ConfidenceFromDeviation(0.5), 0.0001)
	assert.InDelta(t, 0.7, ConfidenceFromDeviation(0.7), 0.0001)
	assert.InDelta(t, 0.7, ConfidenceFromDeviation(0.3), 0.0001)
	assert.InDelta(t, 0.85, ConfidenceFromDeviation(0.99), 0.0001)
}

func TestDedupeKeepsHighestConfidence(t *testing.T) {
	descs := []Descriptor{
		{CardType: "nhl-goalie", DriverKey: "a", Confidence: 0.61},
		{CardType: "nhl-goalie", DriverKey: "b", Confidence: 0.72},
		{CardType: "nhl-composite", DriverKey: "c", Confidence: 0.55},
	}
	out := Dedupe(descs)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].DriverKey)
	assert.Equal(t, "c", out[1].DriverKey)
}
