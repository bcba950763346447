package card

import (
	"fmt"
	"strings"

	"github.com/scrumdog/cheddar-logic/internal/sports"
)

// Kind is the expected JSON shape of a payload field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindObject
	KindArray
)

// FieldSpec is one declarative field constraint.
type FieldSpec struct {
	Kind     Kind
	Required bool
	Min      *float64 // numeric lower bound, inclusive
	Max      *float64 // numeric upper bound, inclusive
	Enum     []string // allowed string values
}

// Schema validates one card type's payload. Fields maps dotted paths
// ("driver.inputs.synergy") into the payload envelope.
type Schema struct {
	CardType string
	Fields   map[string]FieldSpec
}

func numRange(lo, hi float64) (low, high *float64) { return &lo, &hi }

// envelopeFields are the constraints every card type shares.
func envelopeFields() map[string]FieldSpec {
	confLo, confHi := numRange(0, 1)
	pctLo, pctHi := numRange(0, 100)
	return map[string]FieldSpec{
		"game_id":        {Kind: KindString, Required: true},
		"sport":          {Kind: KindString, Required: true},
		"model_version":  {Kind: KindString, Required: true},
		"home_team":      {Kind: KindString, Required: true},
		"away_team":      {Kind: KindString, Required: true},
		"matchup":        {Kind: KindString, Required: true},
		"start_time_utc": {Kind: KindString, Required: true},
		"timezone":       {Kind: KindString, Required: true},
		"countdown":      {Kind: KindString, Required: true},
		"recommendation": {Kind: KindObject, Required: true},
		"recommendation.type": {Kind: KindString, Required: true, Enum: []string{
			"ML_HOME", "ML_AWAY", "SPREAD_HOME", "SPREAD_AWAY", "TOTAL_OVER", "TOTAL_UNDER", "PASS",
		}},
		"recommendation.text": {Kind: KindString, Required: true},
		"projection":          {Kind: KindObject, Required: true},
		"market":              {Kind: KindObject, Required: true},
		"confidence_pct":      {Kind: KindNumber, Required: true, Min: pctLo, Max: pctHi},
		"prediction": {Kind: KindString, Required: true, Enum: []string{
			"HOME", "AWAY", "OVER", "UNDER", "NEUTRAL",
		}},
		"confidence":     {Kind: KindNumber, Required: true, Min: confLo, Max: confHi},
		"tier":           {Kind: KindString, Enum: []string{"SUPER", "BEST", "WATCH", ""}},
		"reasoning":      {Kind: KindString, Required: true},
		"odds_context":   {Kind: KindObject, Required: true},
		"ev_passed":      {Kind: KindBool, Required: true},
		"disclaimer":     {Kind: KindString, Required: true},
		"generated_at":   {Kind: KindString, Required: true},
		"driver":         {Kind: KindObject, Required: true},
		"driver.key":     {Kind: KindString, Required: true},
		"driver.status":  {Kind: KindString, Required: true, Enum: []string{"ok", "degraded", "skipped"}},
		"driver.inputs":  {Kind: KindObject, Required: true},
		"driver_summary": {Kind: KindObject, Required: true},
		"meta":           {Kind: KindObject, Required: true},
	}
}

func schemaFor(cardType string, extra map[string]FieldSpec) *Schema {
	fields := envelopeFields()
	for k, v := range extra {
		fields[k] = v
	}
	return &Schema{CardType: cardType, Fields: fields}
}

// registry holds the schema for every known card type. Unknown card types
// are a hard error at validation time.
var registry = buildRegistry()

func buildRegistry() map[string]*Schema {
	r := make(map[string]*Schema)

	gaLo, gaHi := numRange(0, 20)
	r["nhl-goalie"] = schemaFor("nhl-goalie", map[string]FieldSpec{
		"driver.inputs.home_goals_against": {Kind: KindNumber, Required: true, Min: gaLo, Max: gaHi},
		"driver.inputs.away_goals_against": {Kind: KindNumber, Required: true, Min: gaLo, Max: gaHi},
		"driver.inputs.ga_gap":             {Kind: KindNumber, Required: true},
	})

	r["nhl-pace-1p"] = schemaFor("nhl-pace-1p", map[string]FieldSpec{
		"driver.inputs.expected_goals": {Kind: KindNumber, Required: true},
		"driver.inputs.total_line":     {Kind: KindNumber, Required: true},
		"driver.inputs.edge_goals":     {Kind: KindNumber, Required: true},
	})

	pctLo, pctHi := numRange(0, 100)
	r["nba-pace-matchup"] = schemaFor("nba-pace-matchup", map[string]FieldSpec{
		"driver.inputs.home_pace_percentile": {Kind: KindNumber, Required: true, Min: pctLo, Max: pctHi},
		"driver.inputs.away_pace_percentile": {Kind: KindNumber, Required: true, Min: pctLo, Max: pctHi},
		"driver.inputs.synergy": {Kind: KindString, Required: true, Enum: []string{
			"BOTH_FAST", "BOTH_SLOW", "MIXED", "PACE_CLASH",
		}},
		"driver.inputs.total_line": {Kind: KindNumber, Required: true},
	})

	probLo, probHi := numRange(0, 1)
	compositeExtra := map[string]FieldSpec{
		"driver.inputs.market_implied_home": {Kind: KindNumber, Required: true, Min: probLo, Max: probHi},
		"driver.inputs.form_score":          {Kind: KindNumber, Required: true, Min: probLo, Max: probHi},
	}
	for _, s := range sports.All {
		ct := string(s) + "-composite"
		r[ct] = schemaFor(ct, compositeExtra)
	}
	return r
}

// Validate checks payload against the schema registered for cardType.
// Unknown card types are rejected outright.
func Validate(cardType string, payload map[string]any) error {
	schema, ok := registry[cardType]
	if !ok {
		return fmt.Errorf("unknown card type %q", cardType)
	}
	for path, spec := range schema.Fields {
		if err := validateField(payload, path, spec); err != nil {
			return fmt.Errorf("card type %s: %w", cardType, err)
		}
	}
	return nil
}

func validateField(payload map[string]any, path string, spec FieldSpec) error {
	val, present := lookup(payload, path)
	if !present || val == nil {
		if spec.Required {
			return fmt.Errorf("field %q missing", path)
		}
		return nil
	}

	switch spec.Kind {
	case KindString:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("field %q: want string, got %T", path, val)
		}
		if len(spec.Enum) > 0 && !contains(spec.Enum, s) {
			return fmt.Errorf("field %q: %q not in %v", path, s, spec.Enum)
		}
	case KindNumber:
		n, ok := asFloat(val)
		if !ok {
			return fmt.Errorf("field %q: want number, got %T", path, val)
		}
		if spec.Min != nil && n < *spec.Min {
			return fmt.Errorf("field %q: %v below minimum %v", path, n, *spec.Min)
		}
		if spec.Max != nil && n > *spec.Max {
			return fmt.Errorf("field %q: %v above maximum %v", path, n, *spec.Max)
		}
	case KindBool:
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("field %q: want bool, got %T", path, val)
		}
	case KindObject:
		if _, ok := val.(map[string]any); !ok {
			return fmt.Errorf("field %q: want object, got %T", path, val)
		}
	case KindArray:
		if _, ok := val.([]any); !ok {
			return fmt.Errorf("field %q: want array, got %T", path, val)
		}
	}
	return nil
}

func lookup(payload map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = payload
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
