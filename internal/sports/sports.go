package sports

import "strings"

// Sport identifies one of the leagues the pipeline models.
type Sport string

const (
	NHL    Sport = "nhl"
	NBA    Sport = "nba"
	NCAAM  Sport = "ncaam"
	MLB    Sport = "mlb"
	NFL    Sport = "nfl"
	Soccer Sport = "soccer"
	FPL    Sport = "fpl"
)

// All lists every supported sport in a stable order.
var All = []Sport{NHL, NBA, NCAAM, MLB, NFL, Soccer, FPL}

// oddsAPIKeys maps each sport to its The Odds API sport key.
var oddsAPIKeys = map[Sport]string{
	NHL:    "icehockey_nhl",
	NBA:    "basketball_nba",
	NCAAM:  "basketball_ncaab",
	MLB:    "baseball_mlb",
	NFL:    "americanfootball_nfl",
	Soccer: "soccer_epl",
	FPL:    "soccer_epl",
}

// OddsAPIKey returns the provider sport key for s, or "" when unmapped.
func (s Sport) OddsAPIKey() string {
	return oddsAPIKeys[s]
}

func (s Sport) String() string { return string(s) }

// Parse converts a string to a Sport. Returns false for unknown values.
func Parse(v string) (Sport, bool) {
	s := Sport(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range All {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// ExternalGameID builds the stable external key exposed for a game.
func ExternalGameID(s Sport, providerGameID string) string {
	return "game-" + string(s) + "-" + providerGameID
}
