// Package store is the SQLite repository for scan runs, scores,
// debate theses, watchlists, the ticker universe, and the persistent
// cache tier. Pure Go driver, WAL mode, one serialized writer.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/ports"
)

// timeFormat is the stored timestamp layout, ISO-8601 UTC.
const timeFormat = time.RFC3339Nano

// Store wraps the database connection. Reads share the pool; writes
// serialize through writeMu.
type Store struct {
	conn    *sql.DB
	path    string
	writeMu sync.Mutex
	logger  zerolog.Logger
}

var _ ports.Repository = (*Store)(nil)

// Open connects to the SQLite file at path, creating directories and
// schema as needed. "file:" URIs pass through untouched so tests can
// use in-memory databases.
func Open(cfg config.StoreConfig) (*Store, error) {
	path := cfg.Path
	if !strings.HasPrefix(path, "file:") {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		path = abs
	}

	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}

	connStr := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		fmt.Sprintf("&_pragma=busy_timeout(%d)", busy)

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		conn:   conn,
		path:   path,
		logger: config.NewLogger("store"),
	}
	if err := s.initSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn exposes the underlying pool for external collaborators.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// Ping verifies the schema is reachable. The health oracle calls this.
func (s *Store) Ping(ctx context.Context) error {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&n); err != nil {
		return fmt.Errorf("schema_version unreadable: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("schema_version is empty")
	}
	return nil
}

// WithTransaction runs fn inside a write transaction, rolling back on
// error or panic.
func (s *Store) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rbErr)
			}
		} else {
			err = tx.Commit()
		}
	}()

	return fn(tx)
}

// exec runs one serialized write outside a transaction.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.ExecContext(ctx, query, args...)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Older rows may carry second precision.
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}
