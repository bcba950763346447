package store

import (
	"database/sql"
	"fmt"
	"time"
)

// OddsSnapshot is an append-only point-in-time capture of one game's market.
type OddsSnapshot struct {
	ID            int64
	GameID        int64
	CapturedAt    string
	MoneylineHome *float64
	MoneylineAway *float64
	Total         *float64
	SpreadHome    *float64
	SpreadAway    *float64
	Raw           string
	JobRunID      string
}

// InsertOddsSnapshot appends a snapshot and returns its ID.
func (s *Store) InsertOddsSnapshot(snap *OddsSnapshot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertOddsSnapshotLocked(s.db, snap)
}

func (s *Store) insertOddsSnapshotLocked(q execer, snap *OddsSnapshot) (int64, error) {
	var jobRunID any
	if snap.JobRunID != "" {
		jobRunID = snap.JobRunID
	}
	res, err := q.Exec(
		`INSERT INTO odds_snapshots (game_id, captured_at, moneyline_home, moneyline_away, total, spread_home, spread_away, raw, job_run_id)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		snap.GameID, snap.CapturedAt,
		nullFloat(snap.MoneylineHome), nullFloat(snap.MoneylineAway),
		nullFloat(snap.Total), nullFloat(snap.SpreadHome), nullFloat(snap.SpreadAway),
		snap.Raw, jobRunID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert odds snapshot: %w", err)
	}
	id, _ := res.LastInsertId()
	snap.ID = id
	return id, nil
}

// IngestOddsBatch upserts each game and appends its snapshot inside one
// transaction, so a partial provider response never half-lands.
func (s *Store) IngestOddsBatch(games []*Game, snaps []*OddsSnapshot) error {
	if len(games) != len(snaps) {
		return fmt.Errorf("ingest odds batch: %d games but %d snapshots", len(games), len(snaps))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin odds batch: %w", err)
	}
	defer tx.Rollback()

	now := FormatTime(time.Now())
	for i, g := range games {
		status := g.Status
		if status == "" {
			status = GameStatusScheduled
		}
		if _, err := tx.Exec(
			`INSERT INTO games (sport, provider_game_id, home_team, away_team, game_time_utc, status, created_at, updated_at)
			 VALUES (?,?,?,?,?,?,?,?)
			 ON CONFLICT (sport, provider_game_id) DO UPDATE SET
				home_team     = excluded.home_team,
				away_team     = excluded.away_team,
				game_time_utc = excluded.game_time_utc,
				status        = excluded.status,
				updated_at    = excluded.updated_at`,
			g.Sport, g.ProviderGameID, g.HomeTeam, g.AwayTeam, g.GameTimeUTC, status, now, now,
		); err != nil {
			return fmt.Errorf("upsert game %s/%s: %w", g.Sport, g.ProviderGameID, err)
		}

		var id int64
		if err := tx.QueryRow(
			`SELECT id FROM games WHERE sport = ? AND provider_game_id = ?`,
			g.Sport, g.ProviderGameID,
		).Scan(&id); err != nil {
			return fmt.Errorf("read back game id: %w", err)
		}
		g.ID = id
		snaps[i].GameID = id

		if _, err := s.insertOddsSnapshotLocked(tx, snaps[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LatestSnapshotForGame returns the most recent snapshot for a game, or nil.
func (s *Store) LatestSnapshotForGame(gameID int64) (*OddsSnapshot, error) {
	row := s.db.QueryRow(
		`SELECT id, game_id, captured_at, moneyline_home, moneyline_away, total, spread_home, spread_away, COALESCE(raw,''), COALESCE(job_run_id,'')
		 FROM odds_snapshots WHERE game_id = ?
		 ORDER BY captured_at DESC, id DESC LIMIT 1`, gameID)

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

// PruneOldSnapshots deletes snapshots captured before the cutoff, always
// keeping the most recent snapshot per game. Returns rows deleted.
func (s *Store) PruneOldSnapshots(before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`DELETE FROM odds_snapshots
		 WHERE captured_at < ?
		   AND id NOT IN (
			SELECT MAX(id) FROM odds_snapshots GROUP BY game_id
		 )`, FormatTime(before))
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func scanSnapshot(row rowScanner) (*OddsSnapshot, error) {
	var snap OddsSnapshot
	var mlH, mlA, total, spH, spA sql.NullFloat64
	err := row.Scan(&snap.ID, &snap.GameID, &snap.CapturedAt, &mlH, &mlA, &total, &spH, &spA, &snap.Raw, &snap.JobRunID)
	if err != nil {
		return nil, err
	}
	snap.MoneylineHome = floatPtr(mlH)
	snap.MoneylineAway = floatPtr(mlA)
	snap.Total = floatPtr(total)
	snap.SpreadHome = floatPtr(spH)
	snap.SpreadAway = floatPtr(spA)
	return &snap, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
