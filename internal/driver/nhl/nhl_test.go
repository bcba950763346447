package nhl

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
func ip(v int) *int         { return &v }

func baseInput() driver.GameInput {
	return driver.GameInput{
		GameID:         1,
		ProviderGameID: "ev-1",
		Sport:          sports.NHL,
		HomeTeam:       "Boston Bruins",
		AwayTeam:       "Toronto Maple Leafs",
		GameTimeUTC:    time.Date(2026, 2, 27, 20, 0, 0, 0, time.UTC),
		Odds: oddsfeed.Odds{
			H2HHome: fp(-150), H2HAway: fp(130),
			Total: fp(6.5), SpreadHome: fp(-1.5), SpreadAway: fp(1.5),
		},
	}
}

func findCard(descs []driver.Descriptor, cardType string) *driver.Descriptor {
	for i := range descs {
		if descs[i].CardType == cardType {
			return &descs[i]
		}
	}
	return nil
}

func TestGoalieEdgeFavorsStingierNet(t *testing.T) {
	in := baseInput()
	in.HomeMetrics = enrich.Metrics{AvgPointsAllowed: fp(2.2)}
	in.AwayMetrics = enrich.Metrics{AvgPointsAllowed: fp(3.4)}

	d := findCard(New().ComputeDrivers(in), CardGoalie)
	require.NotNil(t, d)
	assert.Equal(t, driver.PredictHome, d.Prediction)
	assert.Equal(t, driver.BetMoneyline, d.RecommendedBetType)
	assert.Equal(t, driver.StatusOK, d.DriverStatus)
	assert.Contains(t, d.CardTitle, "Boston Bruins")
}

func TestGoalieEdgeAbstainsInsideFloor(t *testing.T) {
	in := baseInput()
	in.HomeMetrics = enrich.Metrics{AvgPointsAllowed: fp(2.8)}
	in.AwayMetrics = enrich.Metrics{AvgPointsAllowed: fp(3.0)}

	assert.Nil(t, findCard(New().ComputeDrivers(in), CardGoalie))
}

func TestGoalieEdgeAbstainsOnNeutralMetrics(t *testing.T) {
	in := baseInput()
	in.HomeMetrics = enrich.Neutral()
	in.AwayMetrics = enrich.Metrics{AvgPointsAllowed: fp(3.4)}

	assert.Nil(t, findCard(New().ComputeDrivers(in), CardGoalie))
}

func TestPace1PLeansUnderOnLowScoring(t *testing.T) {
	in := baseInput()
	in.HomeMetrics = enrich.Metrics{AvgPoints: fp(2.4), AvgPointsAllowed: fp(2.5)}
	in.AwayMetrics = enrich.Metrics{AvgPoints: fp(2.6), AvgPointsAllowed: fp(2.6)}

	d := findCard(New().ComputeDrivers(in), CardPace1P)
	require.NotNil(t, d)
	// 5.0 expected vs 6.5 line
	assert.Equal(t, driver.PredictUnder, d.Prediction)
	assert.Equal(t, driver.BetTotal, d.RecommendedBetType)
}

func TestPace1PAbstainsNearLine(t *testing.T) {
	in := baseInput()
	in.HomeMetrics = enrich.Metrics{AvgPoints: fp(3.2)}
	in.AwayMetrics = enrich.Metrics{AvgPoints: fp(3.4)}

	// 6.6 expected vs 6.5 line is inside the floor.
	assert.Nil(t, findCard(New().ComputeDrivers(in), CardPace1P))
}

func TestCompositeCarriesRestEdge(t *testing.T) {
	in := baseInput()
	in.HomeMetrics = enrich.Metrics{NetRating: fp(0.8), RestDays: ip(3)}
	in.AwayMetrics = enrich.Metrics{NetRating: fp(-0.5), RestDays: ip(1)}

	d := findCard(New().ComputeDrivers(in), CardComposite)
	require.NotNil(t, d)
	assert.Equal(t, driver.PredictHome, d.Prediction)
	assert.Equal(t, driver.StatusOK, d.DriverStatus)
	require.Len(t, d.SubWeights, 3)
	assert.Equal(t, "rest_advantage", d.SubWeights[2].Driver)
	assert.Greater(t, d.SubWeights[2].Impact, 0.0)
}
