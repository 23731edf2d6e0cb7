package ports

import (
	"context"

	"github.com/optionalpha/optionalpha/internal/domain"
)

// Progress is one progress tick from the scan pipeline. Phase runs
// 1..5; Current counts up monotonically within a phase.
type Progress struct {
	Phase     int    `json:"phase"`
	PhaseName string `json:"phase_name"`
	Message   string `json:"message"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
}

// Complete is the terminal pipeline event.
type Complete struct {
	ScanRun        domain.ScanRun       `json:"scan_run"`
	Scores         []domain.TickerScore `json:"scores"`
	ElapsedSeconds float64              `json:"elapsed_seconds"`
}

// Event is the discriminated union the pipeline emits: exactly one of
// Progress or Complete is set, Err only on a failed run.
type Event struct {
	Progress *Progress `json:"progress,omitempty"`
	Complete *Complete `json:"complete,omitempty"`
	Err      error     `json:"-"`
}

// ScanRequest selects what a scan run covers.
type ScanRequest struct {
	Preset   string   `json:"preset"`
	Sectors  []string `json:"sectors,omitempty"`
	MinScore float64  `json:"min_score"`
	TopN     int      `json:"top_n"`
}

// RunInfo is the externally visible state of a managed scan run.
type RunInfo struct {
	Run    domain.ScanRun `json:"run"`
	Error  string         `json:"error,omitempty"`
	Events <-chan Event   `json:"-"`
}

// ScanService is what CLIs and HTTP/SSE handlers drive. Start launches
// a run and returns immediately; events stream on the returned channel
// until the producer closes it.
type ScanService interface {
	Start(ctx context.Context, req ScanRequest) (RunInfo, error)
	Cancel(id string) bool
	Get(id string) (RunInfo, bool)
	List() []RunInfo
}

// ReportRenderer turns results into a presentable document. Implemented
// by external collaborators (terminal, Markdown, HTML); the engine only
// hands them data.
type ReportRenderer interface {
	RenderScan(run domain.ScanRun, scores []domain.TickerScore) (string, error)
	RenderThesis(ticker string, thesis domain.TradeThesis) (string, error)
}

// HealthChecker aggregates dependency probes into one status record.
type HealthChecker interface {
	Check(ctx context.Context) domain.HealthStatus
}

// ChatResult is a completed LLM exchange.
type ChatResult struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// ChatClient is the LLM seam the debate agents and health oracle use.
type ChatClient interface {
	// Chat sends a system+user prompt pair and returns the reply.
	Chat(ctx context.Context, systemPrompt, userPrompt string) (ChatResult, error)

	// ValidateModel confirms the configured model is served.
	ValidateModel(ctx context.Context) error

	// ListModels returns the models the endpoint serves.
	ListModels(ctx context.Context) ([]string, error)
}
