package scan

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/ports"
)

// Manager launches pipeline runs and tracks their lifecycle: pending,
// running, then completed, failed, or cancelled. Terminal runs stay
// queryable for the life of the process; the store holds the durable
// record.
type Manager struct {
	pipeline *Pipeline
	mu       sync.RWMutex
	runs     map[string]*managedRun
	logger   zerolog.Logger
}

var _ ports.ScanService = (*Manager)(nil)

// NewManager wraps a pipeline in run management.
func NewManager(pipeline *Pipeline) *Manager {
	return &Manager{
		pipeline: pipeline,
		runs:     make(map[string]*managedRun),
		logger:   config.NewLogger("scan_manager"),
	}
}

// managedRun is one tracked run. The cancel flag is what the pipeline
// polls; status and error are owned by the supervisor goroutine.
type managedRun struct {
	mu     sync.RWMutex
	run    domain.ScanRun
	errMsg string
	events chan ports.Event
	cancel atomic.Bool
}

func (r *managedRun) info() ports.RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ports.RunInfo{Run: r.run, Error: r.errMsg, Events: r.events}
}

func (r *managedRun) snapshot() domain.ScanRun {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.run
}

func (r *managedRun) setStatus(status domain.ScanStatus) {
	r.mu.Lock()
	r.run.Status = status
	r.mu.Unlock()
}

func (r *managedRun) terminal() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch r.run.Status {
	case domain.ScanCompleted, domain.ScanFailed, domain.ScanCancelled:
		return true
	}
	return false
}

// Start validates the request, registers a pending run, and launches
// the pipeline. The returned RunInfo carries the event channel; it
// closes when the run reaches a terminal state.
func (m *Manager) Start(ctx context.Context, req ports.ScanRequest) (ports.RunInfo, error) {
	req, err := m.pipeline.Normalize(req)
	if err != nil {
		return ports.RunInfo{}, err
	}

	run, err := m.pipeline.NewRun(uuid.NewString(), req)
	if err != nil {
		return ports.RunInfo{}, err
	}
	run.Status = domain.ScanPending

	buffer := m.pipeline.cfg.Scan.EventBuffer
	if buffer <= 0 {
		buffer = 64
	}
	mr := &managedRun{run: run, events: make(chan ports.Event, buffer)}

	m.mu.Lock()
	m.runs[run.ID] = mr
	m.mu.Unlock()

	m.logger.Info().Str("scan_id", run.ID).Str("preset", req.Preset).Int("top_n", req.TopN).Msg("Scan launched")
	go m.supervise(ctx, mr, req)

	return mr.info(), nil
}

// supervise forwards pipeline events to the public channel and settles
// the terminal status once the producer closes.
func (m *Manager) supervise(ctx context.Context, mr *managedRun, req ports.ScanRequest) {
	defer close(mr.events)

	mr.setStatus(domain.ScanRunning)
	src := m.pipeline.Run(ctx, mr.snapshot(), req, mr.cancel.Load)

	for ev := range src {
		switch {
		case ev.Complete != nil:
			mr.mu.Lock()
			mr.run = ev.Complete.ScanRun
			mr.mu.Unlock()
		case ev.Err != nil:
			mr.mu.Lock()
			mr.run = mr.run.Failed(time.Now())
			mr.errMsg = ev.Err.Error()
			mr.mu.Unlock()
		}

		select {
		case mr.events <- ev:
		case <-ctx.Done():
		}
	}

	// A producer that closed without a terminal event was interrupted.
	if !mr.terminal() {
		mr.mu.Lock()
		done := time.Now().UTC()
		mr.run.CompletedAt = &done
		if mr.cancel.Load() {
			mr.run.Status = domain.ScanCancelled
		} else {
			mr.run.Status = domain.ScanFailed
			mr.errMsg = "scan interrupted"
			if err := ctx.Err(); err != nil {
				mr.errMsg = err.Error()
			}
		}
		mr.mu.Unlock()
	}

	final := mr.snapshot()
	m.logger.Info().Str("scan_id", final.ID).Str("status", string(final.Status)).Msg("Scan settled")
}

// Cancel flips the run's cancel flag. It reports true only when this
// call did the flipping on a still-live run; cancelling a finished or
// unknown run is a no-op.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	mr, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok || mr.terminal() {
		return false
	}
	if !mr.cancel.CompareAndSwap(false, true) {
		return false
	}
	m.logger.Info().Str("scan_id", id).Msg("Cancellation requested")
	return true
}

// Get returns the current view of one run.
func (m *Manager) Get(id string) (ports.RunInfo, bool) {
	m.mu.RLock()
	mr, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return ports.RunInfo{}, false
	}
	return mr.info(), true
}

// List returns every tracked run, newest first.
func (m *Manager) List() []ports.RunInfo {
	m.mu.RLock()
	out := make([]ports.RunInfo, 0, len(m.runs))
	for _, mr := range m.runs {
		out = append(out, mr.info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Run.StartedAt.Equal(out[j].Run.StartedAt) {
			return out[i].Run.StartedAt.After(out[j].Run.StartedAt)
		}
		return out[i].Run.ID < out[j].Run.ID
	})
	return out
}
