package metrics

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/optionalpha/optionalpha/internal/errs"
)

// Bounded cardinality constants for metric labels.
// Ticker symbols are never labels; an unbounded universe would blow up
// the series count.
const (
	// Call outcomes (bounded set)
	OutcomeSuccess          = "success"
	OutcomeNotFound         = "not_found"
	OutcomeInsufficientData = "insufficient_data"
	OutcomeRateLimited      = "rate_limited"
	OutcomeUnavailable      = "unavailable"
	OutcomeCancelled        = "cancelled"
	OutcomeOther            = "other"

	// Cache tiers (bounded set)
	TierMemory     = "memory"
	TierPersistent = "persistent"

	// Health probes (bounded set)
	ProbeLLM    = "llm"
	ProbeVendor = "vendor"
	ProbeStore  = "store"

	// Token directions (bounded set)
	TokensInput  = "input"
	TokensOutput = "output"
)

// NormalizeOutcome maps an error to the bounded outcome set.
func NormalizeOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case errs.IsNotFound(err):
		return OutcomeNotFound
	case errs.IsInsufficientData(err):
		return OutcomeInsufficientData
	case errs.IsRateLimited(err):
		return OutcomeRateLimited
	case errs.IsUnavailable(err):
		return OutcomeUnavailable
	default:
		return OutcomeOther
	}
}

// NormalizeBreakerState maps a circuit breaker state name to a gauge
// value: closed 0, half-open 1, open 2.
func NormalizeBreakerState(state string) float64 {
	switch strings.ToLower(state) {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// Data Service Metrics
var (
	// Vendor requests by source and outcome
	VendorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optionalpha_vendor_requests_total",
		Help: "Total vendor API requests by source and outcome",
	}, []string{"source", "outcome"})

	// Vendor call duration by call type
	VendorCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "optionalpha_vendor_call_duration_ms",
		Help:    "Vendor API call duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"call"})

	// Cache hits by tier and data type
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optionalpha_cache_hits_total",
		Help: "Total cache hits by serving tier and data type",
	}, []string{"tier", "data_type"})

	// Cache misses by data type
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optionalpha_cache_misses_total",
		Help: "Total cache misses by data type",
	}, []string{"data_type"})

	// Rate limit retries
	RateLimitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optionalpha_rate_limit_retries_total",
		Help: "Total retries triggered by vendor throttling",
	})

	// Transport retries
	TransportRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optionalpha_transport_retries_total",
		Help: "Total retries triggered by transport failures",
	})
)

// Scan Pipeline Metrics
var (
	// Scans by terminal status
	ScansStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optionalpha_scans_started_total",
		Help: "Total scan runs started",
	})

	ScansCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optionalpha_scans_completed_total",
		Help: "Total scan runs completed successfully",
	})

	ScansFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optionalpha_scans_failed_total",
		Help: "Total scan runs that failed or were cancelled",
	})

	// Scan phase currently in flight (0 = idle)
	ScanPhase = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "optionalpha_scan_phase",
		Help: "Pipeline phase currently in flight (0 = idle, 1-5 = phase)",
	})

	// Scan duration
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "optionalpha_scan_duration_ms",
		Help:    "Full scan pipeline duration in milliseconds",
		Buckets: []float64{1000, 5000, 15000, 30000, 60000, 180000, 600000},
	})

	// Universe size by status
	UniverseSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "optionalpha_universe_size",
		Help: "Ticker universe size by lifecycle status",
	}, []string{"status"})
)

// LLM & Debate Metrics
var (
	// LLM requests by outcome
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optionalpha_llm_requests_total",
		Help: "Total LLM chat requests by outcome",
	}, []string{"outcome"})

	// LLM request duration
	LLMRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "optionalpha_llm_request_duration_ms",
		Help:    "LLM chat request duration in milliseconds",
		Buckets: []float64{500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
	})

	// LLM tokens by direction
	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optionalpha_llm_tokens_total",
		Help: "Total LLM tokens consumed by direction (input/output)",
	}, []string{"direction"})

	// Debate duration (all three agents)
	DebateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "optionalpha_debate_duration_ms",
		Help:    "Full debate duration in milliseconds",
		Buckets: []float64{1000, 5000, 10000, 30000, 60000, 120000, 300000, 600000},
	})

	// Debate fallbacks (deterministic thesis after LLM failure)
	DebateFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optionalpha_debate_fallbacks_total",
		Help: "Total debates resolved by the data-driven fallback",
	})

	// Circuit breaker state by breaker name
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "optionalpha_circuit_breaker_state",
		Help: "Circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
	}, []string{"breaker"})
)

// Health & Ops Metrics
var (
	// Health probe status by probe
	HealthProbeUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "optionalpha_health_probe_up",
		Help: "Health probe status (1 = available, 0 = unavailable)",
	}, []string{"probe"})

	// Ops listener requests (path set is fixed: /metrics, /health)
	OpsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optionalpha_ops_requests_total",
		Help: "Total ops listener requests by path and status code",
	}, []string{"path", "code"})

	// Store connection pool
	StoreConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "optionalpha_store_connections_active",
		Help: "Number of store connections in use",
	})

	StoreConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "optionalpha_store_connections_idle",
		Help: "Number of idle store connections",
	})
)

// Helper functions to update metrics

// RecordVendorRequest records one vendor call with normalized outcome.
func RecordVendorRequest(source, call string, durationMS float64, err error) {
	VendorRequests.WithLabelValues(source, NormalizeOutcome(err)).Inc()
	VendorCallDuration.WithLabelValues(call).Observe(durationMS)
}

// RecordCacheHit records a cache hit served by the given tier.
func RecordCacheHit(tier, dataType string) {
	CacheHits.WithLabelValues(tier, dataType).Inc()
}

// RecordCacheMiss records a miss through both tiers.
func RecordCacheMiss(dataType string) {
	CacheMisses.WithLabelValues(dataType).Inc()
}

// RecordLLMRequest records one chat call with normalized outcome.
func RecordLLMRequest(durationMS float64, err error) {
	LLMRequests.WithLabelValues(NormalizeOutcome(err)).Inc()
	LLMRequestDuration.Observe(durationMS)
}

// RecordLLMTokens adds token usage for one chat call.
func RecordLLMTokens(input, output int) {
	if input > 0 {
		LLMTokens.WithLabelValues(TokensInput).Add(float64(input))
	}
	if output > 0 {
		LLMTokens.WithLabelValues(TokensOutput).Add(float64(output))
	}
}

// RecordBreakerState records a circuit breaker state transition.
func RecordBreakerState(breaker, state string) {
	CircuitBreakerState.WithLabelValues(breaker).Set(NormalizeBreakerState(state))
}

// SetHealthProbe sets a probe's availability gauge.
func SetHealthProbe(probe string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	HealthProbeUp.WithLabelValues(probe).Set(v)
}

// SetUniverseSize sets the universe size gauge for one status.
func SetUniverseSize(status string, n int) {
	UniverseSize.WithLabelValues(status).Set(float64(n))
}
