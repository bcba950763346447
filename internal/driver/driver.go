// Package driver defines the descriptor contract every sport model produces
// and the composite scoring rule shared across sports.
package driver

import (
	"time"

	"github.com/scrumdog/cheddar-logic/internal/enrich"
	"github.com/scrumdog/cheddar-logic/internal/oddsfeed"
	"github.com/scrumdog/cheddar-logic/internal/sports"
)

// Prediction is the directional judgment a driver makes.
type Prediction string

const (
	PredictHome    Prediction = "HOME"
	PredictAway    Prediction = "AWAY"
	PredictOver    Prediction = "OVER"
	PredictUnder   Prediction = "UNDER"
	PredictNeutral Prediction = "NEUTRAL"
)

// Tier is the coarse confidence bucket.
type Tier string

const (
	TierSuper Tier = "SUPER"
	TierBest  Tier = "BEST"
	TierWatch Tier = "WATCH"
	TierNone  Tier = ""
)

// Status describes how healthy a driver's inputs were.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusSkipped  Status = "skipped"
)

// BetType names the market a descriptor recommends.
type BetType string

const (
	BetMoneyline BetType = "moneyline"
	BetSpread    BetType = "spread"
	BetTotal     BetType = "total"
	BetNone      BetType = ""
)

// Descriptor is one driver's analytical judgment for a game. A driver that
// has no edge returns no descriptor at all.
type Descriptor struct {
	CardType           string
	CardTitle          string
	DriverKey          string
	Prediction         Prediction
	Confidence         float64 // [0,1]
	Tier               Tier
	Reasoning          string
	DriverScore        *float64 // [0,1], nil when not meaningful
	DriverStatus       Status
	DriverInputs       map[string]any
	RecommendedBetType BetType
	EVThresholdPassed  bool
	IsMock             bool

	// SubWeights is the composite weight table carried into driver_summary.
	SubWeights []WeightEntry
}

// WeightEntry is one row of the composite weight/impact table.
type WeightEntry struct {
	Driver string  `json:"driver"`
	Weight float64 `json:"weight"`
	Score  float64 `json:"score"`
	Impact float64 `json:"impact"`
	Status Status  `json:"status"`
}

// TierFor derives the tier bucket from a confidence score. Drivers may
// override the result when their domain logic dictates.
func TierFor(confidence float64) Tier {
	switch {
	case confidence >= 0.75:
		return TierSuper
	case confidence >= 0.70:
		return TierBest
	case confidence >= 0.60:
		return TierWatch
	default:
		return TierNone
	}
}

// GameInput is everything a sport's ComputeDrivers sees for one game.
type GameInput struct {
	GameID         int64
	ProviderGameID string
	Sport          sports.Sport
	HomeTeam       string
	AwayTeam       string
	GameTimeUTC    time.Time
	Odds           oddsfeed.Odds
	HomeMetrics    enrich.Metrics
	AwayMetrics    enrich.Metrics
}

// Model computes the driver descriptors for one game. Implementations are
// pure: same input, same descriptors.
type Model interface {
	ComputeDrivers(in GameInput) []Descriptor
}

// Registry maps sport -> model implementation.
type Registry struct {
	models map[sports.Sport]Model
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[sports.Sport]Model)}
}

func (r *Registry) Register(sport sports.Sport, m Model) {
	r.models[sport] = m
}

func (r *Registry) Get(sport sports.Sport) (Model, bool) {
	m, ok := r.models[sport]
	return m, ok
}

// Dedupe keeps the highest-confidence descriptor per card type.
func Dedupe(descs []Descriptor) []Descriptor {
	best := make(map[string]int, len(descs))
	var out []Descriptor
	for _, d := range descs {
		if i, ok := best[d.CardType]; ok {
			if d.Confidence > out[i].Confidence {
				out[i] = d
			}
			continue
		}
		best[d.CardType] = len(out)
		out = append(out, d)
	}
	return out
}
