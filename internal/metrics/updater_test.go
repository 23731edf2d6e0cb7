package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/optionalpha/optionalpha/internal/domain"
)

type fakeUniverse struct {
	active   []domain.TickerInfo
	inactive []domain.TickerInfo
}

func (f *fakeUniverse) GetUniverse(ctx context.Context, status domain.TickerStatus) ([]domain.TickerInfo, error) {
	if status == domain.StatusActive {
		return f.active, nil
	}
	return f.inactive, nil
}

func TestUpdaterRefreshesUniverseGauges(t *testing.T) {
	fake := &fakeUniverse{
		active:   make([]domain.TickerInfo, 7),
		inactive: make([]domain.TickerInfo, 2),
	}
	u := NewUpdater(fake, nil, time.Hour, zerolog.Nop())

	u.update(context.Background())

	assert.Equal(t, 7.0, testutil.ToFloat64(UniverseSize.WithLabelValues("active")))
	assert.Equal(t, 2.0, testutil.ToFloat64(UniverseSize.WithLabelValues("inactive")))
}

func TestUpdaterStops(t *testing.T) {
	u := NewUpdater(&fakeUniverse{}, nil, 10*time.Millisecond, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		u.Start(context.Background())
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	u.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updater did not stop")
	}
}
