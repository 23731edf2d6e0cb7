package ports

import (
	"context"
	"time"

	"github.com/optionalpha/optionalpha/internal/domain"
)

// ThesisRecord is a persisted debate outcome: the indexed columns plus
// the full thesis document.
type ThesisRecord struct {
	ID         int64              `json:"id"`
	Ticker     string             `json:"ticker"`
	Direction  domain.Direction   `json:"direction"`
	Conviction float64            `json:"conviction"`
	ModelUsed  string             `json:"model_used"`
	CreatedAt  time.Time          `json:"created_at"`
	Thesis     domain.TradeThesis `json:"thesis"`
}

// ScoreSnapshot ties a ticker's score to the scan that produced it.
type ScoreSnapshot struct {
	ScanRunID string             `json:"scan_run_id"`
	ScanTime  time.Time          `json:"scan_time"`
	Score     domain.TickerScore `json:"score"`
}

// Watchlist is a named ticker collection.
type Watchlist struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repository is the persistence contract external collaborators (HTTP
// server, CLI) program against. The SQLite store implements it.
type Repository interface {
	// Scan runs and their scores.
	SaveScanRun(ctx context.Context, run domain.ScanRun) error
	GetScanByID(ctx context.Context, id string) (domain.ScanRun, error)
	GetLatestScan(ctx context.Context) (domain.ScanRun, error)
	ListScanRuns(ctx context.Context, limit, offset int) ([]domain.ScanRun, error)
	SaveTickerScores(ctx context.Context, scanRunID string, scores []domain.TickerScore) error
	GetScoresForScan(ctx context.Context, scanRunID string) ([]domain.TickerScore, error)
	GetTickerHistory(ctx context.Context, symbol string, limit int) ([]ScoreSnapshot, error)
	GetBatchTickerHistory(ctx context.Context, symbols []string, limitPerSymbol int) (map[string][]ScoreSnapshot, error)

	// Debate theses.
	SaveAIThesis(ctx context.Context, ticker string, thesis domain.TradeThesis) (int64, error)
	GetDebateByID(ctx context.Context, id int64) (ThesisRecord, error)
	GetDebateHistory(ctx context.Context, symbol string, direction domain.Direction, limit int) ([]ThesisRecord, error)
	ListDebates(ctx context.Context, limit, offset int) ([]ThesisRecord, error)

	// Watchlists.
	CreateWatchlist(ctx context.Context, name, description string) (int64, error)
	AddTickers(ctx context.Context, watchlistID int64, tickers []string) error
	RemoveTickers(ctx context.Context, watchlistID int64, tickers []string) error
	ListWatchlists(ctx context.Context) ([]Watchlist, error)
	GetWatchlistTickers(ctx context.Context, watchlistID int64) ([]string, error)
	DeleteWatchlist(ctx context.Context, watchlistID int64) error

	// Universe persistence.
	UpsertTickers(ctx context.Context, tickers []domain.TickerInfo) error
	GetUniverse(ctx context.Context, status domain.TickerStatus) ([]domain.TickerInfo, error)
	UpdateMissCounts(ctx context.Context, present []string, deactivateAfter int) (int, error)

	// Ping verifies the schema is reachable.
	Ping(ctx context.Context) error
}
