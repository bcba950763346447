package store

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	OutcomeWin  = "win"
	OutcomeLoss = "loss"
	OutcomePush = "push"
	OutcomeVoid = "void"
)

// GameResult holds the final score for a game. Written exactly once (upsert).
type GameResult struct {
	GameID    int64
	HomeScore int
	AwayScore int
	Status    string
	FinalAt   string
}

// UpsertGameResult records a final score for a game.
func (s *Store) UpsertGameResult(r *GameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO game_results (game_id, home_score, away_score, status, final_at)
		 VALUES (?,?,?,?,?)
		 ON CONFLICT (game_id) DO UPDATE SET
			home_score = excluded.home_score,
			away_score = excluded.away_score,
			status     = excluded.status,
			final_at   = excluded.final_at`,
		r.GameID, r.HomeScore, r.AwayScore, r.Status, r.FinalAt,
	)
	if err != nil {
		return fmt.Errorf("upsert game result: %w", err)
	}
	return nil
}

// FinalResultForGame returns the game_results row for a game, or nil.
func (s *Store) FinalResultForGame(gameID int64) (*GameResult, error) {
	row := s.db.QueryRow(
		`SELECT game_id, home_score, away_score, status, final_at FROM game_results WHERE game_id = ?`, gameID)

	var r GameResult
	err := row.Scan(&r.GameID, &r.HomeScore, &r.AwayScore, &r.Status, &r.FinalAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("final result for game: %w", err)
	}
	return &r, nil
}

// PendingSettlement joins one pending card result to its payload and the
// final score it settles against.
type PendingSettlement struct {
	Result  CardResult
	Payload CardPayload
	Final   GameResult
}

// PendingSettlements returns every pending card_results row whose game has a
// graded game_results row (final or cancelled).
func (s *Store) PendingSettlements() ([]PendingSettlement, error) {
	rows, err := s.db.Query(
		`SELECT cr.id, cr.card_id, cr.game_id, cr.sport, cr.card_type, COALESCE(cr.recommended_bet_type,''), cr.status, COALESCE(cr.metadata,''),
		        cp.card_title, cp.model_version, cp.created_at, COALESCE(cp.expires_at,''), cp.payload_data,
		        gr.home_score, gr.away_score, gr.status, gr.final_at
		 FROM card_results cr
		 JOIN card_payloads cp ON cp.id = cr.card_id
		 JOIN game_results gr ON gr.game_id = cr.game_id
		 WHERE cr.status = ?
		 ORDER BY cr.id ASC`, ResultStatusPending)
	if err != nil {
		return nil, fmt.Errorf("pending settlements: %w", err)
	}
	defer rows.Close()

	var out []PendingSettlement
	for rows.Next() {
		var p PendingSettlement
		if err := rows.Scan(
			&p.Result.ID, &p.Result.CardID, &p.Result.GameID, &p.Result.Sport, &p.Result.CardType,
			&p.Result.RecommendedBetType, &p.Result.Status, &p.Result.Metadata,
			&p.Payload.CardTitle, &p.Payload.ModelVersion, &p.Payload.CreatedAt, &p.Payload.ExpiresAt, &p.Payload.PayloadData,
			&p.Final.HomeScore, &p.Final.AwayScore, &p.Final.Status, &p.Final.FinalAt,
		); err != nil {
			return nil, err
		}
		p.Result.Status = ResultStatusPending
		p.Payload.ID = p.Result.CardID
		p.Payload.GameID = p.Result.GameID
		p.Final.GameID = p.Result.GameID
		out = append(out, p)
	}
	return out, rows.Err()
}

// SettleCard transitions a pending card result to settled and rolls the
// sport's tracking stats, atomically. The guarded UPDATE makes settlement
// one-shot: a row already settled is left untouched and reported false.
func (s *Store) SettleCard(cardID, outcome string, pnlUnits float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin settle: %w", err)
	}
	defer tx.Rollback()

	now := FormatTime(time.Now())
	res, err := tx.Exec(
		`UPDATE card_results SET status=?, result=?, settled_at=?, pnl_units=?
		 WHERE card_id=? AND status=?`,
		ResultStatusSettled, outcome, now, pnlUnits, cardID, ResultStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("settle card %s: %w", cardID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	var sport string
	if err := tx.QueryRow(`SELECT sport FROM card_results WHERE card_id = ?`, cardID).Scan(&sport); err != nil {
		return false, fmt.Errorf("settle card sport: %w", err)
	}

	wins, losses, pushes := 0, 0, 0
	switch outcome {
	case OutcomeWin:
		wins = 1
	case OutcomeLoss:
		losses = 1
	case OutcomePush, OutcomeVoid:
		pushes = 1
	}
	if _, err := tx.Exec(
		`INSERT INTO tracking_stats (sport, wins, losses, pushes, units, updated_at)
		 VALUES (?,?,?,?,?,?)
		 ON CONFLICT (sport) DO UPDATE SET
			wins       = tracking_stats.wins + excluded.wins,
			losses     = tracking_stats.losses + excluded.losses,
			pushes     = tracking_stats.pushes + excluded.pushes,
			units      = tracking_stats.units + excluded.units,
			updated_at = excluded.updated_at`,
		sport, wins, losses, pushes, pnlUnits, now,
	); err != nil {
		return false, fmt.Errorf("roll tracking stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit settle: %w", err)
	}
	return true, nil
}

// CardResultByCardID fetches the ledger row for one card. Nil when absent.
func (s *Store) CardResultByCardID(cardID string) (*CardResult, error) {
	row := s.db.QueryRow(
		`SELECT id, card_id, game_id, sport, card_type, COALESCE(recommended_bet_type,''), status, COALESCE(result,''), COALESCE(settled_at,''), pnl_units, COALESCE(metadata,'')
		 FROM card_results WHERE card_id = ?`, cardID)

	var r CardResult
	var pnl sql.NullFloat64
	err := row.Scan(&r.ID, &r.CardID, &r.GameID, &r.Sport, &r.CardType, &r.RecommendedBetType, &r.Status, &r.Result, &r.SettledAt, &pnl, &r.Metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("card result by card id: %w", err)
	}
	r.PnlUnits = floatPtr(pnl)
	return &r, nil
}

// TrackingStats is the per-sport rolled-up ledger summary.
type TrackingStats struct {
	Sport     string
	Wins      int
	Losses    int
	Pushes    int
	Units     float64
	UpdatedAt string
}

// AllTrackingStats returns every sport's rollup.
func (s *Store) AllTrackingStats() ([]TrackingStats, error) {
	rows, err := s.db.Query(`SELECT sport, wins, losses, pushes, units, updated_at FROM tracking_stats ORDER BY sport`)
	if err != nil {
		return nil, fmt.Errorf("tracking stats: %w", err)
	}
	defer rows.Close()

	var out []TrackingStats
	for rows.Next() {
		var t TrackingStats
		if err := rows.Scan(&t.Sport, &t.Wins, &t.Losses, &t.Pushes, &t.Units, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LedgerFilter narrows SettledLedger queries.
type LedgerFilter struct {
	Sport         string
	CardCategory  string // matches card_results.metadata category field
	Market        string // recommended_bet_type
	MinConfidence float64
	Limit         int
}

// SettledLedger returns settled card results, newest first.
func (s *Store) SettledLedger(f LedgerFilter) ([]CardResult, error) {
	query := `SELECT id, card_id, game_id, sport, card_type, COALESCE(recommended_bet_type,''), status, COALESCE(result,''), COALESCE(settled_at,''), pnl_units, COALESCE(metadata,'')
		 FROM card_results WHERE status = ?`
	args := []any{ResultStatusSettled}
	if f.Sport != "" {
		query += ` AND sport = ?`
		args = append(args, f.Sport)
	}
	if f.Market != "" {
		query += ` AND recommended_bet_type = ?`
		args = append(args, f.Market)
	}
	if f.CardCategory != "" {
		query += ` AND json_extract(metadata, '$.category') = ?`
		args = append(args, f.CardCategory)
	}
	if f.MinConfidence > 0 {
		query += ` AND json_extract(metadata, '$.confidence') >= ?`
		args = append(args, f.MinConfidence)
	}
	query += ` ORDER BY settled_at DESC, id DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("settled ledger: %w", err)
	}
	defer rows.Close()

	var out []CardResult
	for rows.Next() {
		var r CardResult
		var pnl sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.CardID, &r.GameID, &r.Sport, &r.CardType, &r.RecommendedBetType, &r.Status, &r.Result, &r.SettledAt, &pnl, &r.Metadata); err != nil {
			return nil, err
		}
		r.PnlUnits = floatPtr(pnl)
		out = append(out, r)
	}
	return out, rows.Err()
}
