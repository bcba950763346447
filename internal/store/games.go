package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	GameStatusScheduled  = "scheduled"
	GameStatusInProgress = "in_progress"
	GameStatusFinal      = "final"
)

// Game is one scheduled matchup, created on first odds observation.
type Game struct {
	ID             int64
	Sport          string
	ProviderGameID string
	HomeTeam       string
	AwayTeam       string
	GameTimeUTC    string
	Status         string
	CreatedAt      string
	UpdatedAt      string
}

// ExternalID is the stable external key exposed for a game.
func (g *Game) ExternalID() string {
	return "game-" + g.Sport + "-" + g.ProviderGameID
}

// UpsertGame inserts or refreshes a game keyed by (sport, provider_game_id)
// and returns the stable row ID. Updates are last-write-wins on updated_at.
func (s *Store) UpsertGame(g *Game) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := FormatTime(time.Now())
	status := g.Status
	if status == "" {
		status = GameStatusScheduled
	}
	_, err := s.db.Exec(
		`INSERT INTO games (sport, provider_game_id, home_team, away_team, game_time_utc, status, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON CONFLICT (sport, provider_game_id) DO UPDATE SET
			home_team     = excluded.home_team,
			away_team     = excluded.away_team,
			game_time_utc = excluded.game_time_utc,
			status        = excluded.status,
			updated_at    = excluded.updated_at`,
		g.Sport, g.ProviderGameID, g.HomeTeam, g.AwayTeam, g.GameTimeUTC, status, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert game %s/%s: %w", g.Sport, g.ProviderGameID, err)
	}

	var id int64
	err = s.db.QueryRow(
		`SELECT id FROM games WHERE sport = ? AND provider_game_id = ?`,
		g.Sport, g.ProviderGameID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("read back game id: %w", err)
	}
	g.ID = id
	return id, nil
}

// UpcomingGames returns games with start time inside [from, to] for the given
// sports, ordered by start time ascending.
func (s *Store) UpcomingGames(from, to time.Time, sportKeys []string) ([]Game, error) {
	if len(sportKeys) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sportKeys)), ",")
	args := make([]any, 0, len(sportKeys)+2)
	args = append(args, FormatTime(from), FormatTime(to))
	for _, k := range sportKeys {
		args = append(args, k)
	}

	rows, err := s.db.Query(
		`SELECT id, sport, provider_game_id, home_team, away_team, game_time_utc, status, created_at, updated_at
		 FROM games
		 WHERE game_time_utc >= ? AND game_time_utc <= ? AND sport IN (`+placeholders+`)
		 ORDER BY game_time_utc ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("upcoming games: %w", err)
	}
	defer rows.Close()

	return scanGames(rows)
}

// GameByID fetches one game by surrogate ID. Nil when absent.
func (s *Store) GameByID(id int64) (*Game, error) {
	row := s.db.QueryRow(
		`SELECT id, sport, provider_game_id, home_team, away_team, game_time_utc, status, created_at, updated_at
		 FROM games WHERE id = ?`, id)

	var g Game
	err := row.Scan(&g.ID, &g.Sport, &g.ProviderGameID, &g.HomeTeam, &g.AwayTeam, &g.GameTimeUTC, &g.Status, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("game by id: %w", err)
	}
	return &g, nil
}

// GameByProviderID fetches one game by its provider identity. Nil when absent.
func (s *Store) GameByProviderID(sport, providerGameID string) (*Game, error) {
	row := s.db.QueryRow(
		`SELECT id, sport, provider_game_id, home_team, away_team, game_time_utc, status, created_at, updated_at
		 FROM games WHERE sport = ? AND provider_game_id = ?`, sport, providerGameID)

	var g Game
	err := row.Scan(&g.ID, &g.Sport, &g.ProviderGameID, &g.HomeTeam, &g.AwayTeam, &g.GameTimeUTC, &g.Status, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("game by provider id: %w", err)
	}
	return &g, nil
}

// GamesAwaitingResults returns games whose start time lies between the
// look-back floor and the minimum-age ceiling and which have no
// game_results row (final or cancelled) yet.
func (s *Store) GamesAwaitingResults(oldest, newest time.Time) ([]Game, error) {
	rows, err := s.db.Query(
		`SELECT g.id, g.sport, g.provider_game_id, g.home_team, g.away_team, g.game_time_utc, g.status, g.created_at, g.updated_at
		 FROM games g
		 LEFT JOIN game_results r ON r.game_id = g.id
		 WHERE g.game_time_utc >= ? AND g.game_time_utc <= ? AND r.game_id IS NULL
		 ORDER BY g.game_time_utc ASC`,
		FormatTime(oldest), FormatTime(newest))
	if err != nil {
		return nil, fmt.Errorf("games awaiting results: %w", err)
	}
	defer rows.Close()

	return scanGames(rows)
}

// GamesFromDate returns games starting at or after the given instant,
// ascending, capped at limit. Used by the read API.
func (s *Store) GamesFromDate(from time.Time, limit int) ([]Game, error) {
	rows, err := s.db.Query(
		`SELECT id, sport, provider_game_id, home_team, away_team, game_time_utc, status, created_at, updated_at
		 FROM games WHERE game_time_utc >= ?
		 ORDER BY game_time_utc ASC LIMIT ?`,
		FormatTime(from), limit)
	if err != nil {
		return nil, fmt.Errorf("games from date: %w", err)
	}
	defer rows.Close()

	return scanGames(rows)
}

func scanGames(rows *sql.Rows) ([]Game, error) {
	var out []Game
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.ID, &g.Sport, &g.ProviderGameID, &g.HomeTeam, &g.AwayTeam, &g.GameTimeUTC, &g.Status, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
