package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/optionalpha/optionalpha/internal/cache"
)

// CacheKV adapts the service_cache table to the cache.KV interface,
// making SQLite the default persistent tier.
type CacheKV struct {
	store *Store
}

var _ cache.KV = (*CacheKV)(nil)

// NewCacheKV wraps the store's service_cache table.
func NewCacheKV(s *Store) *CacheKV {
	return &CacheKV{store: s}
}

func (c *CacheKV) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var (
		value   string
		created string
		ttlSec  int64
	)
	err := c.store.conn.QueryRowContext(ctx, `
		SELECT value, created_at, ttl_seconds FROM service_cache WHERE key = ?`,
		key).Scan(&value, &created, &ttlSec)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("cache read %s: %w", key, err)
	}

	createdAt, err := parseTime(created)
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("corrupt cache row %s: %w", key, err)
	}
	return cache.Entry{
		Key:       key,
		Value:     []byte(value),
		CreatedAt: createdAt,
		TTL:       time.Duration(ttlSec) * time.Second,
	}, true, nil
}

func (c *CacheKV) Set(ctx context.Context, e cache.Entry) error {
	_, err := c.store.exec(ctx, `
		INSERT OR REPLACE INTO service_cache (key, value, created_at, ttl_seconds)
		VALUES (?, ?, ?, ?)`,
		e.Key, string(e.Value), formatTime(e.CreatedAt), int64(e.TTL/time.Second))
	if err != nil {
		return fmt.Errorf("cache write %s: %w", e.Key, err)
	}
	return nil
}

func (c *CacheKV) Delete(ctx context.Context, key string) error {
	if _, err := c.store.exec(ctx, `DELETE FROM service_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

func (c *CacheKV) DeletePrefix(ctx context.Context, prefix string) error {
	// ESCAPE guards prefixes containing SQL wildcards.
	escaped := ""
	for _, r := range prefix {
		if r == '%' || r == '_' || r == '\\' {
			escaped += `\`
		}
		escaped += string(r)
	}
	if _, err := c.store.exec(ctx, `
		DELETE FROM service_cache WHERE key LIKE ? ESCAPE '\'`, escaped+"%"); err != nil {
		return fmt.Errorf("cache delete prefix %s: %w", prefix, err)
	}
	return nil
}
