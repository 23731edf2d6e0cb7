package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/ports"
)

// SaveScanRun inserts or replaces a scan run by id, so the same call
// records both the running and the completed state.
func (s *Store) SaveScanRun(ctx context.Context, run domain.ScanRun) error {
	sectors, err := json.Marshal(run.Sectors)
	if err != nil {
		return fmt.Errorf("marshal sectors: %w", err)
	}

	var completed sql.NullString
	if run.CompletedAt != nil {
		completed = sql.NullString{String: formatTime(*run.CompletedAt), Valid: true}
	}

	_, err = s.exec(ctx, `
		INSERT OR REPLACE INTO scan_runs
			(id, started_at, completed_at, status, preset, sectors, ticker_count, top_n)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), completed, string(run.Status),
		run.Preset, string(sectors), run.TickerCount, run.TopN)
	if err != nil {
		return fmt.Errorf("save scan run %s: %w", run.ID, err)
	}
	return nil
}

// GetScanByID fetches one scan run.
func (s *Store) GetScanByID(ctx context.Context, id string) (domain.ScanRun, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, started_at, completed_at, status, preset, sectors, ticker_count, top_n
		FROM scan_runs WHERE id = ?`, id)
	run, err := scanRunFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScanRun{}, fmt.Errorf("scan run %s not found", id)
	}
	return run, err
}

// GetLatestScan fetches the most recently started run.
func (s *Store) GetLatestScan(ctx context.Context) (domain.ScanRun, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, started_at, completed_at, status, preset, sectors, ticker_count, top_n
		FROM scan_runs ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRunFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScanRun{}, fmt.Errorf("no scan runs recorded")
	}
	return run, err
}

// ListScanRuns pages through runs, newest first.
func (s *Store) ListScanRuns(ctx context.Context, limit, offset int) ([]domain.ScanRun, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, started_at, completed_at, status, preset, sectors, ticker_count, top_n
		FROM scan_runs ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list scan runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.ScanRun
	for rows.Next() {
		run, err := scanRunFromRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SaveTickerScores records the scored universe for a run in one
// transaction.
func (s *Store) SaveTickerScores(ctx context.Context, scanRunID string, scores []domain.TickerScore) error {
	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO ticker_scores
				(scan_run_id, ticker, composite_score, direction, score_breakdown, rank)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sc := range scores {
			breakdown, err := json.Marshal(sc.Signals)
			if err != nil {
				return fmt.Errorf("marshal breakdown for %s: %w", sc.Ticker, err)
			}
			if _, err := stmt.ExecContext(ctx, scanRunID, sc.Ticker, sc.Score,
				string(sc.Direction), string(breakdown), sc.Rank); err != nil {
				return fmt.Errorf("insert score for %s: %w", sc.Ticker, err)
			}
		}
		return nil
	})
}

// GetScoresForScan returns a run's scores ordered by rank.
func (s *Store) GetScoresForScan(ctx context.Context, scanRunID string) ([]domain.TickerScore, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT ticker, composite_score, direction, score_breakdown, rank
		FROM ticker_scores WHERE scan_run_id = ? ORDER BY rank ASC`, scanRunID)
	if err != nil {
		return nil, fmt.Errorf("scores for scan %s: %w", scanRunID, err)
	}
	defer rows.Close()

	var scores []domain.TickerScore
	for rows.Next() {
		var (
			sc        domain.TickerScore
			direction string
			breakdown string
		)
		if err := rows.Scan(&sc.Ticker, &sc.Score, &direction, &breakdown, &sc.Rank); err != nil {
			return nil, err
		}
		sc.Direction = domain.Direction(direction)
		if err := json.Unmarshal([]byte(breakdown), &sc.Signals); err != nil {
			return nil, fmt.Errorf("corrupt breakdown for %s: %w", sc.Ticker, err)
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

// GetTickerHistory returns a symbol's scores across recent scans,
// newest first.
func (s *Store) GetTickerHistory(ctx context.Context, symbol string, limit int) ([]ports.ScoreSnapshot, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT ts.scan_run_id, sr.started_at, ts.ticker, ts.composite_score,
		       ts.direction, ts.score_breakdown, ts.rank
		FROM ticker_scores ts
		JOIN scan_runs sr ON sr.id = ts.scan_run_id
		WHERE ts.ticker = ?
		ORDER BY sr.started_at DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []ports.ScoreSnapshot
	for rows.Next() {
		var (
			snap      ports.ScoreSnapshot
			startedAt string
			direction string
			breakdown string
		)
		if err := rows.Scan(&snap.ScanRunID, &startedAt, &snap.Score.Ticker,
			&snap.Score.Score, &direction, &breakdown, &snap.Score.Rank); err != nil {
			return nil, err
		}
		if snap.ScanTime, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		snap.Score.Direction = domain.Direction(direction)
		if err := json.Unmarshal([]byte(breakdown), &snap.Score.Signals); err != nil {
			return nil, fmt.Errorf("corrupt breakdown for %s: %w", symbol, err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// GetBatchTickerHistory fetches history for several symbols keyed by
// symbol. Symbols with no history map to empty slices.
func (s *Store) GetBatchTickerHistory(ctx context.Context, symbols []string, limitPerSymbol int) (map[string][]ports.ScoreSnapshot, error) {
	out := make(map[string][]ports.ScoreSnapshot, len(symbols))
	for _, sym := range symbols {
		hist, err := s.GetTickerHistory(ctx, sym, limitPerSymbol)
		if err != nil {
			return nil, err
		}
		out[sym] = hist
	}
	return out, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunFromRow(r rowScanner) (domain.ScanRun, error) {
	var (
		run       domain.ScanRun
		startedAt string
		completed sql.NullString
		status    string
		sectors   string
	)
	if err := r.Scan(&run.ID, &startedAt, &completed, &status, &run.Preset,
		&sectors, &run.TickerCount, &run.TopN); err != nil {
		return domain.ScanRun{}, err
	}

	t, err := parseTime(startedAt)
	if err != nil {
		return domain.ScanRun{}, fmt.Errorf("corrupt started_at for %s: %w", run.ID, err)
	}
	run.StartedAt = t
	run.Status = domain.ScanStatus(status)

	if completed.Valid {
		ct, err := parseTime(completed.String)
		if err != nil {
			return domain.ScanRun{}, fmt.Errorf("corrupt completed_at for %s: %w", run.ID, err)
		}
		run.CompletedAt = &ct
	}
	if err := json.Unmarshal([]byte(sectors), &run.Sectors); err != nil {
		return domain.ScanRun{}, fmt.Errorf("corrupt sectors for %s: %w", run.ID, err)
	}
	return run, nil
}
