package store

import (
	"context"
	"fmt"
	"time"
)

const schemaVersion = 1

// Idempotent DDL, applied on every open.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS scan_runs (
	id           TEXT PRIMARY KEY,
	started_at   TEXT NOT NULL,
	completed_at TEXT,
	status       TEXT NOT NULL,
	preset       TEXT NOT NULL,
	sectors      TEXT NOT NULL DEFAULT '[]',
	ticker_count INTEGER NOT NULL DEFAULT 0,
	top_n        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_at DESC);

CREATE TABLE IF NOT EXISTS ticker_scores (
	scan_run_id     TEXT NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
	ticker          TEXT NOT NULL,
	composite_score REAL NOT NULL,
	direction       TEXT NOT NULL,
	score_breakdown TEXT NOT NULL DEFAULT '{}',
	rank            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticker_scores_run ON ticker_scores(scan_run_id, rank);
CREATE INDEX IF NOT EXISTS idx_ticker_scores_ticker ON ticker_scores(ticker);

CREATE TABLE IF NOT EXISTS ai_theses (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker             TEXT NOT NULL,
	timestamp          TEXT NOT NULL,
	direction          TEXT NOT NULL,
	conviction         REAL NOT NULL,
	model_used         TEXT NOT NULL,
	total_tokens       INTEGER NOT NULL DEFAULT 0,
	duration_ms        INTEGER NOT NULL DEFAULT 0,
	entry_rationale    TEXT NOT NULL DEFAULT '',
	risk_factors       TEXT NOT NULL DEFAULT '[]',
	recommended_action TEXT NOT NULL DEFAULT '',
	bull_summary       TEXT NOT NULL DEFAULT '',
	bear_summary       TEXT NOT NULL DEFAULT '',
	disclaimer         TEXT NOT NULL,
	full_thesis        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ai_theses_ticker ON ai_theses(ticker, timestamp DESC);

CREATE TABLE IF NOT EXISTS watchlists (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	created_at  TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS watchlist_tickers (
	watchlist_id INTEGER NOT NULL REFERENCES watchlists(id) ON DELETE CASCADE,
	ticker       TEXT NOT NULL,
	added_at     TEXT NOT NULL,
	UNIQUE(watchlist_id, ticker)
);

CREATE TABLE IF NOT EXISTS universe_tickers (
	symbol             TEXT PRIMARY KEY,
	name               TEXT NOT NULL DEFAULT '',
	sector             TEXT NOT NULL DEFAULT '',
	market_cap_tier    TEXT NOT NULL DEFAULT 'unknown',
	asset_type         TEXT NOT NULL DEFAULT 'equity',
	source             TEXT NOT NULL DEFAULT '',
	tags               TEXT NOT NULL DEFAULT '[]',
	status             TEXT NOT NULL DEFAULT 'active',
	discovered_at      TEXT NOT NULL,
	last_scanned_at    TEXT,
	consecutive_misses INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_universe_status ON universe_tickers(status);

CREATE TABLE IF NOT EXISTS service_cache (
	key         TEXT PRIMARY KEY,
	value       TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	ttl_seconds INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS schema_version (
	version    INTEGER NOT NULL,
	applied_at TEXT NOT NULL
);
`

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ddl failed: %w", err)
	}

	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		_, err := s.conn.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
			schemaVersion, formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("failed to stamp schema version: %w", err)
		}
		s.logger.Info().Int("version", schemaVersion).Str("path", s.path).Msg("Schema initialized")
	}
	return nil
}
