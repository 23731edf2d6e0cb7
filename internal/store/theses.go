package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/ports"
)

// SaveAIThesis inserts a debate outcome. Theses are insert-only; the
// queryable columns are duplicated out of the JSON blob for indexing.
func (s *Store) SaveAIThesis(ctx context.Context, ticker string, thesis domain.TradeThesis) (int64, error) {
	if thesis.Disclaimer == "" {
		return 0, fmt.Errorf("thesis for %s has no disclaimer", ticker)
	}

	riskFactors, err := json.Marshal(thesis.RiskFactors)
	if err != nil {
		return 0, fmt.Errorf("marshal risk factors for %s: %w", ticker, err)
	}
	full, err := json.Marshal(thesis)
	if err != nil {
		return 0, fmt.Errorf("marshal thesis for %s: %w", ticker, err)
	}

	res, err := s.exec(ctx, `
		INSERT INTO ai_theses
			(ticker, timestamp, direction, conviction, model_used, total_tokens,
			 duration_ms, entry_rationale, risk_factors, recommended_action,
			 bull_summary, bear_summary, disclaimer, full_thesis)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ticker, formatTime(time.Now()), string(thesis.Direction), thesis.Conviction,
		thesis.ModelUsed, thesis.TotalTokens, thesis.DurationMS, thesis.EntryRationale,
		string(riskFactors), thesis.RecommendedAction, thesis.BullSummary,
		thesis.BearSummary, thesis.Disclaimer, string(full))
	if err != nil {
		return 0, fmt.Errorf("save thesis for %s: %w", ticker, err)
	}
	return res.LastInsertId()
}

// GetDebateByID fetches one persisted thesis.
func (s *Store) GetDebateByID(ctx context.Context, id int64) (ports.ThesisRecord, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, ticker, timestamp, direction, conviction, model_used, full_thesis
		FROM ai_theses WHERE id = ?`, id)
	rec, err := thesisFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.ThesisRecord{}, fmt.Errorf("debate %d not found", id)
	}
	return rec, err
}

// GetDebateHistory returns a symbol's theses, newest first, optionally
// filtered by direction ("" matches all).
func (s *Store) GetDebateHistory(ctx context.Context, symbol string, direction domain.Direction, limit int) ([]ports.ThesisRecord, error) {
	query := `
		SELECT id, ticker, timestamp, direction, conviction, model_used, full_thesis
		FROM ai_theses WHERE ticker = ?`
	args := []any{symbol}
	if direction != "" {
		query += ` AND direction = ?`
		args = append(args, string(direction))
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("debate history for %s: %w", symbol, err)
	}
	defer rows.Close()
	return collectTheses(rows)
}

// ListDebates pages through all theses, newest first.
func (s *Store) ListDebates(ctx context.Context, limit, offset int) ([]ports.ThesisRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, ticker, timestamp, direction, conviction, model_used, full_thesis
		FROM ai_theses ORDER BY timestamp DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list debates: %w", err)
	}
	defer rows.Close()
	return collectTheses(rows)
}

func collectTheses(rows *sql.Rows) ([]ports.ThesisRecord, error) {
	var out []ports.ThesisRecord
	for rows.Next() {
		rec, err := thesisFromRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func thesisFromRow(r rowScanner) (ports.ThesisRecord, error) {
	var (
		rec       ports.ThesisRecord
		ts        string
		direction string
		full      string
	)
	if err := r.Scan(&rec.ID, &rec.Ticker, &ts, &direction, &rec.Conviction,
		&rec.ModelUsed, &full); err != nil {
		return ports.ThesisRecord{}, err
	}

	t, err := parseTime(ts)
	if err != nil {
		return ports.ThesisRecord{}, fmt.Errorf("corrupt timestamp for debate %d: %w", rec.ID, err)
	}
	rec.CreatedAt = t
	rec.Direction = domain.Direction(direction)

	if err := json.Unmarshal([]byte(full), &rec.Thesis); err != nil {
		return ports.ThesisRecord{}, fmt.Errorf("corrupt thesis blob for debate %d: %w", rec.ID, err)
	}
	return rec, nil
}
