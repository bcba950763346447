package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	ResultStatusPending = "pending"
	ResultStatusSettled = "settled"
)

// ModelOutput links a game to the driver run that produced one or more cards.
type ModelOutput struct {
	ID             int64
	GameID         int64
	ModelName      string
	ModelVersion   string
	PredictionType string
	PredictedAt    string
	Confidence     float64
	Output         string
	OddsSnapshotID *int64
	JobRunID       string
}

// CardPayload is the persisted analytical artifact for one (game, card_type).
type CardPayload struct {
	ID             string
	GameID         int64
	Sport          string
	CardType       string
	CardTitle      string
	ModelVersion   string
	CreatedAt      string
	ExpiresAt      string // empty when the game time is unknown
	PayloadData    string
	ModelOutputIDs string
	Metadata       string
}

// CardResult is the settlement ledger row, one-to-one with CardPayload.
type CardResult struct {
	ID                 int64
	CardID             string
	GameID             int64
	Sport              string
	CardType           string
	RecommendedBetType string
	Status             string
	Result             string
	SettledAt          string
	PnlUnits           *float64
	Metadata           string
}

// WriteCard performs the idempotent card write: inside one transaction it
// either no-ops (a card for this (game, card_type, model_version) already
// exists in the current window) or inserts the model_output, the card_payload,
// and a pending card_results row together. Returns false on the no-op path.
func (s *Store) WriteCard(mo *ModelOutput, card *CardPayload, res *CardResult, windowStart time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin card write: %w", err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM card_payloads
		 WHERE game_id = ? AND card_type = ? AND model_version = ? AND created_at >= ?`,
		card.GameID, card.CardType, card.ModelVersion, FormatTime(windowStart),
	).Scan(&existing)
	if err != nil {
		return false, fmt.Errorf("check existing card: %w", err)
	}
	if existing > 0 {
		return false, nil
	}

	moRes, err := tx.Exec(
		`INSERT INTO model_outputs (game_id, model_name, model_version, prediction_type, predicted_at, confidence, output, odds_snapshot_id, job_run_id)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		mo.GameID, mo.ModelName, mo.ModelVersion, mo.PredictionType, mo.PredictedAt,
		mo.Confidence, mo.Output, nullInt(mo.OddsSnapshotID), nullStr(mo.JobRunID),
	)
	if err != nil {
		return false, fmt.Errorf("insert model output: %w", err)
	}
	mo.ID, _ = moRes.LastInsertId()

	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.ModelOutputIDs == "" || card.ModelOutputIDs == "[]" {
		card.ModelOutputIDs = fmt.Sprintf("[%d]", mo.ID)
	}
	_, err = tx.Exec(
		`INSERT INTO card_payloads (id, game_id, sport, card_type, card_title, model_version, created_at, expires_at, payload_data, model_output_ids, metadata)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		card.ID, card.GameID, card.Sport, card.CardType, card.CardTitle, card.ModelVersion,
		card.CreatedAt, nullStr(card.ExpiresAt), card.PayloadData, card.ModelOutputIDs, nullStr(card.Metadata),
	)
	if err != nil {
		return false, fmt.Errorf("insert card payload: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO card_results (card_id, game_id, sport, card_type, recommended_bet_type, status, metadata)
		 VALUES (?,?,?,?,?,?,?)`,
		card.ID, card.GameID, card.Sport, card.CardType,
		nullStr(res.RecommendedBetType), ResultStatusPending, nullStr(res.Metadata),
	)
	if err != nil {
		return false, fmt.Errorf("insert pending card result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit card write: %w", err)
	}
	res.CardID = card.ID
	res.Status = ResultStatusPending
	return true, nil
}

// ActiveCardsForGame returns non-expired cards for a game, newest first.
// cardType filters when non-empty. With latestPerType, only the newest card
// of each card_type is returned.
func (s *Store) ActiveCardsForGame(gameID int64, now time.Time, cardType string, latestPerType bool) ([]CardPayload, error) {
	query := `SELECT id, game_id, sport, card_type, card_title, model_version, created_at, COALESCE(expires_at,''), payload_data, model_output_ids, COALESCE(metadata,'')
		 FROM card_payloads
		 WHERE game_id = ? AND (expires_at IS NULL OR expires_at >= ?)`
	args := []any{gameID, FormatTime(now)}
	if cardType != "" {
		query += ` AND card_type = ?`
		args = append(args, cardType)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("active cards: %w", err)
	}
	defer rows.Close()

	var out []CardPayload
	seen := map[string]bool{}
	for rows.Next() {
		var c CardPayload
		if err := rows.Scan(&c.ID, &c.GameID, &c.Sport, &c.CardType, &c.CardTitle, &c.ModelVersion, &c.CreatedAt, &c.ExpiresAt, &c.PayloadData, &c.ModelOutputIDs, &c.Metadata); err != nil {
			return nil, err
		}
		if latestPerType {
			if seen[c.CardType] {
				continue
			}
			seen[c.CardType] = true
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CardCountForGameType reports how many cards exist for a (game, card_type)
// pair regardless of expiry. Used by idempotence tests.
func (s *Store) CardCountForGameType(gameID int64, cardType string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM card_payloads WHERE game_id = ? AND card_type = ?`,
		gameID, cardType,
	).Scan(&n)
	return n, err
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
