package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scrumdog/cheddar-logic/internal/telemetry"

	_ "modernc.org/sqlite"
)

// Store is the single embedded relational store shared by every job. Writes
// are serialized behind the mutex. The pool holds one connection, so a read
// waits while a write transaction or another query is using it.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	var gameCount, cardCount int64
	db.QueryRow(`SELECT COUNT(*) FROM games`).Scan(&gameCount)
	db.QueryRow(`SELECT COUNT(*) FROM card_payloads`).Scan(&cardCount)
	telemetry.Plainf("store: opened %s  games=%d  cards=%d", path, gameCount, cardCount)

	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS job_runs (
	id            TEXT PRIMARY KEY,
	job_name      TEXT NOT NULL,
	job_key       TEXT,
	status        TEXT NOT NULL CHECK (status IN ('running','success','failed')),
	started_at    TEXT NOT NULL,
	ended_at      TEXT,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_job_runs_key        ON job_runs(job_key);
CREATE INDEX IF NOT EXISTS idx_job_runs_key_status ON job_runs(job_key, status);

CREATE TABLE IF NOT EXISTS games (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	sport            TEXT NOT NULL,
	provider_game_id TEXT NOT NULL,
	home_team        TEXT NOT NULL,
	away_team        TEXT NOT NULL,
	game_time_utc    TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'scheduled',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	UNIQUE (sport, provider_game_id)
);
CREATE INDEX IF NOT EXISTS idx_games_time ON games(game_time_utc);

CREATE TABLE IF NOT EXISTS odds_snapshots (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id        INTEGER NOT NULL REFERENCES games(id),
	captured_at    TEXT NOT NULL,
	moneyline_home REAL,
	moneyline_away REAL,
	total          REAL,
	spread_home    REAL,
	spread_away    REAL,
	raw            TEXT,
	job_run_id     TEXT REFERENCES job_runs(id)
);
CREATE INDEX IF NOT EXISTS idx_odds_game_captured ON odds_snapshots(game_id, captured_at);

CREATE TABLE IF NOT EXISTS model_outputs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id          INTEGER NOT NULL REFERENCES games(id),
	model_name       TEXT NOT NULL,
	model_version    TEXT NOT NULL,
	prediction_type  TEXT NOT NULL,
	predicted_at     TEXT NOT NULL,
	confidence       REAL NOT NULL,
	output           TEXT,
	odds_snapshot_id INTEGER REFERENCES odds_snapshots(id),
	job_run_id       TEXT REFERENCES job_runs(id)
);

CREATE TABLE IF NOT EXISTS card_payloads (
	id               TEXT PRIMARY KEY,
	game_id          INTEGER NOT NULL REFERENCES games(id),
	sport            TEXT NOT NULL,
	card_type        TEXT NOT NULL,
	card_title       TEXT NOT NULL,
	model_version    TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	expires_at       TEXT,
	payload_data     TEXT NOT NULL,
	model_output_ids TEXT NOT NULL DEFAULT '[]',
	metadata         TEXT
);
CREATE INDEX IF NOT EXISTS idx_cards_game_type ON card_payloads(game_id, card_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cards_expires   ON card_payloads(expires_at);

CREATE TABLE IF NOT EXISTS card_results (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	card_id              TEXT NOT NULL UNIQUE REFERENCES card_payloads(id),
	game_id              INTEGER NOT NULL REFERENCES games(id),
	sport                TEXT NOT NULL,
	card_type            TEXT NOT NULL,
	recommended_bet_type TEXT,
	status               TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','settled')),
	result               TEXT,
	settled_at           TEXT,
	pnl_units            REAL,
	metadata             TEXT
);
CREATE INDEX IF NOT EXISTS idx_card_results_status ON card_results(status);

CREATE TABLE IF NOT EXISTS game_results (
	game_id    INTEGER PRIMARY KEY REFERENCES games(id),
	home_score INTEGER NOT NULL,
	away_score INTEGER NOT NULL,
	status     TEXT NOT NULL,
	final_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tracking_stats (
	sport      TEXT PRIMARY KEY,
	wins       INTEGER NOT NULL DEFAULT 0,
	losses     INTEGER NOT NULL DEFAULT 0,
	pushes     INTEGER NOT NULL DEFAULT 0,
	units      REAL NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);
`

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// FormatTime renders t as the canonical UTC timestamp stored in every table.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTime reads a timestamp previously written with FormatTime.
func ParseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339, v)
}
