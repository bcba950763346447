package enrich

import "strings"

// teamIDs maps canonical team names (lowercased) to external stats-source
// IDs, per sport. The table is deliberately partial; unknown teams fall back
// to the neutral record.
var teamIDs = map[string]map[string]int{
	"nba": {
		"atlanta hawks": 1, "boston celtics": 2, "brooklyn nets": 3,
		"charlotte hornets": 4, "chicago bulls": 5, "cleveland cavaliers": 6,
		"dallas mavericks": 7, "denver nuggets": 8, "detroit pistons": 9,
		"golden state warriors": 10, "houston rockets": 11, "indiana pacers": 12,
		"los angeles clippers": 13, "los angeles lakers": 14, "memphis grizzlies": 15,
		"miami heat": 16, "milwaukee bucks": 17, "minnesota timberwolves": 18,
		"new orleans pelicans": 19, "new york knicks": 20, "oklahoma city thunder": 21,
		"orlando magic": 22, "philadelphia 76ers": 23, "phoenix suns": 24,
		"portland trail blazers": 25, "sacramento kings": 26, "san antonio spurs": 27,
		"toronto raptors": 28, "utah jazz": 29, "washington wizards": 30,
	},
	"nhl": {
		"anaheim ducks": 101, "boston bruins": 102, "buffalo sabres": 103,
		"calgary flames": 104, "carolina hurricanes": 105, "chicago blackhawks": 106,
		"colorado avalanche": 107, "columbus blue jackets": 108, "dallas stars": 109,
		"detroit red wings": 110, "edmonton oilers": 111, "florida panthers": 112,
		"los angeles kings": 113, "minnesota wild": 114, "montreal canadiens": 115,
		"nashville predators": 116, "new jersey devils": 117, "new york islanders": 118,
		"new york rangers": 119, "ottawa senators": 120, "philadelphia flyers": 121,
		"pittsburgh penguins": 122, "san jose sharks": 123, "seattle kraken": 124,
		"st louis blues": 125, "tampa bay lightning": 126, "toronto maple leafs": 127,
		"utah hockey club": 128, "vancouver canucks": 129, "vegas golden knights": 130,
		"washington capitals": 131, "winnipeg jets": 132,
	},
}

// lookupTeamID resolves a team name case-insensitively, with a partial-match
// fallback ("Bruins" matches "boston bruins"). Returns 0 when unknown.
func lookupTeamID(teamName, sport string) int {
	table := teamIDs[sport]
	if table == nil {
		return 0
	}

	name := strings.ToLower(strings.TrimSpace(teamName))
	name = strings.ReplaceAll(name, ".", "")
	if id, ok := table[name]; ok {
		return id
	}
	for canonical, id := range table {
		if strings.Contains(canonical, name) || strings.Contains(name, canonical) {
			return id
		}
	}
	return 0
}
