package nba

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrumdog/cheddar-logic/internal/driver"
	"github.com/scrumdog/cheddar-logic/internal/enrich"
	"github.com/scrumdog/cheddar-logic/internal/oddsfeed"
	"github.com/scrumdog/cheddar-logic/internal/sports"
)

func fp(v float64) *float64 { return &v }

func baseInput() driver.GameInput {
	return driver.GameInput{
		GameID:         1,
		ProviderGameID: "ev-1",
		Sport:          sports.NBA,
		HomeTeam:       "Boston Celtics",
		AwayTeam:       "Miami Heat",
		GameTimeUTC:    time.Date(2026, 2, 27, 23, 30, 0, 0, time.UTC),
		Odds: oddsfeed.Odds{
			H2HHome: fp(-160), H2HAway: fp(140),
			Total: fp(224.5), SpreadHome: fp(-3.5), SpreadAway: fp(3.5),
		},
	}
}

func TestPacePercentile(t *testing.T) {
	assert.Equal(t, 0.0, PacePercentile(94))
	assert.Equal(t, 0.0, PacePercentile(95))
	assert.Equal(t, 50.0, PacePercentile(100))
	assert.Equal(t, 100.0, PacePercentile(105))
	assert.Equal(t, 100.0, PacePercentile(110))
}

func TestClassifySynergy(t *testing.T) {
	assert.Equal(t, SynergyClash, ClassifySynergy(90, 10))
	assert.Equal(t, SynergyClash, ClassifySynergy(10, 90))
	assert.Equal(t, SynergyClash, ClassifySynergy(70, 30)) // exactly 40 points
	assert.Equal(t, SynergyBothFast, ClassifySynergy(80, 70))
	assert.Equal(t, SynergyBothSlow, ClassifySynergy(30, 20))
	assert.Equal(t, SynergyMixed, ClassifySynergy(55, 45))
}

func TestPaceClashEmitsNoCard(t *testing.T) {
	in := baseInput()
	in.HomeMetrics = enrich.Metrics{Pace: fp(104.5)} // ~95th percentile
	in.AwayMetrics = enrich.Metrics{Pace: fp(95.5)}  // ~5th percentile

	descs := New().ComputeDrivers(in)
	for _, d := range descs {
		assert.NotEqual(t, CardPaceMatchup, d.CardType, "pace clash must abstain")
	}
}

func TestPaceBothFastLeansOver(t *testing.T) {
	in := baseInput()
	in.HomeMetrics = enrich.Metrics{Pace: fp(103.0)}
	in.AwayMetrics = enrich.Metrics{Pace: fp(102.0)}

	descs := New().ComputeDrivers(in)
	var pace *driver.Descriptor
	for i := range descs {
		if descs[i].CardType == CardPaceMatchup {
			pace = &descs[i]
		}
	}
	require.NotNil(t, pace)
	assert.Equal(t, driver.PredictOver, pace.Prediction)
	assert.Equal(t, driver.BetTotal, pace.RecommendedBetType)
	assert.Equal(t, "BOTH_FAST", pace.DriverInputs["synergy"])
}

func TestPaceMissingInputsAbstains(t *testing.T) {
	in := baseInput()
	in.HomeMetrics = enrich.Metrics{Pace: fp(103.0)}
	in.AwayMetrics = enrich.Neutral()

	descs := New().ComputeDrivers(in)
	for _, d := range descs {
		assert.NotEqual(t, CardPaceMatchup, d.CardType)
	}
}

func TestCompositeFavorsMarketFavorite(t *testing.T) {
	in := baseInput()

	descs := New().ComputeDrivers(in)
	var comp *driver.Descriptor
	for i := range descs {
		if descs[i].CardType == CardComposite {
			comp = &descs[i]
		}
	}
	require.NotNil(t, comp)
	assert.Equal(t, driver.PredictHome, comp.Prediction)
	assert.Equal(t, driver.BetMoneyline, comp.RecommendedBetType)
	assert.GreaterOrEqual(t, comp.Confidence, 0.5)
	assert.LessOrEqual(t, comp.Confidence, 0.85)
	// Missing form and rest inputs degrade the driver, not the direction.
	assert.Equal(t, driver.StatusDegraded, comp.DriverStatus)
}

func TestCompositeNoOddsNoCard(t *testing.T) {
	in := baseInput()
	in.Odds.H2HHome = nil

	descs := New().ComputeDrivers(in)
	for _, d := range descs {
		assert.NotEqual(t, CardComposite, d.CardType)
	}
}
