package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionalpha/optionalpha/internal/domain"
)

func healthyFn(ctx context.Context) domain.HealthStatus {
	return domain.HealthStatus{
		LLMAvailable:         true,
		VendorAvailable:      true,
		PersistenceAvailable: true,
		LastCheck:            time.Now().UTC(),
	}
}

func TestHandleHealthHealthy(t *testing.T) {
	s := NewServer(0, healthyFn, zerolog.Nop())

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Healthy())
}

func TestHandleHealthDegraded(t *testing.T) {
	degraded := func(ctx context.Context) domain.HealthStatus {
		return domain.HealthStatus{LLMAvailable: false, VendorAvailable: true, PersistenceAvailable: true}
	}
	s := NewServer(0, degraded, zerolog.Nop())

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var got domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.LLMAvailable)
	assert.True(t, got.VendorAvailable)
}

func TestHandleHealthUnwired(t *testing.T) {
	s := NewServer(0, nil, zerolog.Nop())

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInstrumentCountsRequests(t *testing.T) {
	h := instrument("/metrics", promhttp.Handler())

	// The counter increments after the handler runs, so scrape twice;
	// the second body carries the sample from the first request.
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		if i == 1 {
			assert.Contains(t, rec.Body.String(), "optionalpha_ops_requests_total")
		}
	}
}
