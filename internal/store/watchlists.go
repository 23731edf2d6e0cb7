package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/optionalpha/optionalpha/internal/ports"
)

// CreateWatchlist adds a named list. Names are unique; a duplicate
// errors.
func (s *Store) CreateWatchlist(ctx context.Context, name, description string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("watchlist name is empty")
	}
	res, err := s.exec(ctx, `
		INSERT INTO watchlists (name, created_at, description) VALUES (?, ?, ?)`,
		name, formatTime(time.Now()), description)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, fmt.Errorf("watchlist %q already exists", name)
		}
		return 0, fmt.Errorf("create watchlist %q: %w", name, err)
	}
	return res.LastInsertId()
}

// AddTickers adds symbols to a watchlist, ignoring ones already present.
func (s *Store) AddTickers(ctx context.Context, watchlistID int64, tickers []string) error {
	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM watchlists WHERE id = ?`, watchlistID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("watchlist %d not found", watchlistID)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO watchlist_tickers (watchlist_id, ticker, added_at)
			VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := formatTime(time.Now())
		for _, t := range tickers {
			if _, err := stmt.ExecContext(ctx, watchlistID, t, now); err != nil {
				return fmt.Errorf("add %s to watchlist %d: %w", t, watchlistID, err)
			}
		}
		return nil
	})
}

// RemoveTickers removes symbols from a watchlist. Unknown symbols are
// silently skipped.
func (s *Store) RemoveTickers(ctx context.Context, watchlistID int64, tickers []string) error {
	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			DELETE FROM watchlist_tickers WHERE watchlist_id = ? AND ticker = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range tickers {
			if _, err := stmt.ExecContext(ctx, watchlistID, t); err != nil {
				return fmt.Errorf("remove %s from watchlist %d: %w", t, watchlistID, err)
			}
		}
		return nil
	})
}

// ListWatchlists returns every watchlist, oldest first.
func (s *Store) ListWatchlists(ctx context.Context) ([]ports.Watchlist, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, name, created_at, description FROM watchlists ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list watchlists: %w", err)
	}
	defer rows.Close()

	var out []ports.Watchlist
	for rows.Next() {
		var (
			w       ports.Watchlist
			created string
		)
		if err := rows.Scan(&w.ID, &w.Name, &created, &w.Description); err != nil {
			return nil, err
		}
		if w.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("corrupt created_at for watchlist %d: %w", w.ID, err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetWatchlistTickers returns a watchlist's symbols sorted.
func (s *Store) GetWatchlistTickers(ctx context.Context, watchlistID int64) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT ticker FROM watchlist_tickers WHERE watchlist_id = ? ORDER BY ticker ASC`,
		watchlistID)
	if err != nil {
		return nil, fmt.Errorf("tickers for watchlist %d: %w", watchlistID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteWatchlist removes a watchlist; membership rows cascade.
func (s *Store) DeleteWatchlist(ctx context.Context, watchlistID int64) error {
	res, err := s.exec(ctx, `DELETE FROM watchlists WHERE id = ?`, watchlistID)
	if err != nil {
		return fmt.Errorf("delete watchlist %d: %w", watchlistID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("watchlist %d not found", watchlistID)
	}
	return nil
}
