package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/optionalpha/optionalpha/internal/domain"
)

// UpsertTickers writes universe members, replacing existing rows by
// symbol. DiscoveredAt of an existing row is preserved.
func (s *Store) UpsertTickers(ctx context.Context, tickers []domain.TickerInfo) error {
	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO universe_tickers
				(symbol, name, sector, market_cap_tier, asset_type, source, tags,
				 status, discovered_at, last_scanned_at, consecutive_misses)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol) DO UPDATE SET
				name = excluded.name,
				sector = excluded.sector,
				market_cap_tier = excluded.market_cap_tier,
				asset_type = excluded.asset_type,
				source = excluded.source,
				tags = excluded.tags,
				status = excluded.status,
				last_scanned_at = excluded.last_scanned_at,
				consecutive_misses = excluded.consecutive_misses`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range tickers {
			tags, err := json.Marshal(t.Tags)
			if err != nil {
				return fmt.Errorf("marshal tags for %s: %w", t.Symbol, err)
			}
			var lastScanned sql.NullString
			if t.LastScannedAt != nil {
				lastScanned = sql.NullString{String: formatTime(*t.LastScannedAt), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				t.Symbol, t.Name, t.Sector, string(t.MarketCapTier), string(t.AssetType),
				t.Source, string(tags), string(t.Status), formatTime(t.DiscoveredAt),
				lastScanned, t.ConsecutiveMisses); err != nil {
				return fmt.Errorf("upsert %s: %w", t.Symbol, err)
			}
		}
		return nil
	})
}

// GetUniverse returns members with the given status; an empty status
// returns everything. Sorted by symbol for deterministic iteration.
func (s *Store) GetUniverse(ctx context.Context, status domain.TickerStatus) ([]domain.TickerInfo, error) {
	query := `
		SELECT symbol, name, sector, market_cap_tier, asset_type, source, tags,
		       status, discovered_at, last_scanned_at, consecutive_misses
		FROM universe_tickers`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY symbol ASC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get universe: %w", err)
	}
	defer rows.Close()

	var out []domain.TickerInfo
	for rows.Next() {
		var (
			t           domain.TickerInfo
			tier        string
			assetType   string
			tags        string
			tickStatus  string
			discovered  string
			lastScanned sql.NullString
		)
		if err := rows.Scan(&t.Symbol, &t.Name, &t.Sector, &tier, &assetType,
			&t.Source, &tags, &tickStatus, &discovered, &lastScanned,
			&t.ConsecutiveMisses); err != nil {
			return nil, err
		}
		t.MarketCapTier = domain.MarketCapTier(tier)
		t.AssetType = domain.AssetType(assetType)
		t.Status = domain.TickerStatus(tickStatus)
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			return nil, fmt.Errorf("corrupt tags for %s: %w", t.Symbol, err)
		}
		if t.DiscoveredAt, err = parseTime(discovered); err != nil {
			return nil, fmt.Errorf("corrupt discovered_at for %s: %w", t.Symbol, err)
		}
		if lastScanned.Valid {
			ts, err := parseTime(lastScanned.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt last_scanned_at for %s: %w", t.Symbol, err)
			}
			t.LastScannedAt = &ts
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateMissCounts resets the miss count of present symbols to zero,
// increments everyone else, and deactivates rows whose count reaches
// deactivateAfter. Returns how many tickers were deactivated.
func (s *Store) UpdateMissCounts(ctx context.Context, present []string, deactivateAfter int) (int, error) {
	deactivated := 0
	err := s.WithTransaction(ctx, func(tx *sql.Tx) error {
		if len(present) > 0 {
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(present)), ",")
			args := make([]any, len(present))
			for i, sym := range present {
				args[i] = sym
			}

			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
				UPDATE universe_tickers SET consecutive_misses = 0
				WHERE symbol IN (%s)`, placeholders), args...); err != nil {
				return fmt.Errorf("reset miss counts: %w", err)
			}
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
				UPDATE universe_tickers SET consecutive_misses = consecutive_misses + 1
				WHERE symbol NOT IN (%s)`, placeholders), args...); err != nil {
				return fmt.Errorf("increment miss counts: %w", err)
			}
		} else {
			if _, err := tx.ExecContext(ctx, `
				UPDATE universe_tickers SET consecutive_misses = consecutive_misses + 1`); err != nil {
				return fmt.Errorf("increment miss counts: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE universe_tickers SET status = ?
			WHERE consecutive_misses >= ? AND status = ?`,
			string(domain.StatusInactive), deactivateAfter, string(domain.StatusActive))
		if err != nil {
			return fmt.Errorf("deactivate missing tickers: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deactivated = int(n)
		return nil
	})
	return deactivated, err
}
