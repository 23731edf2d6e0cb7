package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	mu      sync.Mutex
	entries map[string]Entry
	fail    bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{entries: make(map[string]Entry)}
}

func (f *fakeKV) Get(_ context.Context, key string) (Entry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return Entry{}, false, errors.New("kv down")
	}
	e, ok := f.entries[key]
	return e, ok, nil
}

func (f *fakeKV) Set(_ context.Context, e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("kv down")
	}
	f.entries[e.Key] = e
	return nil
}

func (f *fakeKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *fakeKV) DeletePrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(f.entries, k)
		}
	}
	return nil
}

func (f *fakeKV) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[key]
	return ok
}

func TestEntryExpired(t *testing.T) {
	now := time.Now().UTC()

	forever := Entry{CreatedAt: now.Add(-1000 * time.Hour), TTL: 0}
	assert.False(t, forever.Expired(now))

	fresh := Entry{CreatedAt: now.Add(-30 * time.Second), TTL: time.Minute}
	assert.False(t, fresh.Expired(now))

	stale := Entry{CreatedAt: now.Add(-2 * time.Minute), TTL: time.Minute}
	assert.True(t, stale.Expired(now))
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "yf:ohlcv:AAPL:1y", Key("yf", TypeOHLCV, "AAPL", "1y"))
	assert.Equal(t, "yf:quote:SPY", Key("yf", TypeQuote, "SPY"))

	assert.Equal(t, "ohlcv", DataTypeOf("yf:ohlcv:AAPL:1y"))
	assert.Equal(t, "quote", DataTypeOf("yf:quote:SPY"))
	assert.Equal(t, "", DataTypeOf("nocolon"))

	assert.True(t, Volatile(TypeChain))
	assert.True(t, Volatile(TypeQuote))
	assert.False(t, Volatile(TypeOHLCV))
	assert.False(t, Volatile(TypeFailure))
}

func TestIsMarketHours(t *testing.T) {
	// 2026-03-02 is a Monday.
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"monday mid-session", time.Date(2026, 3, 2, 10, 0, 0, 0, eastern), true},
		{"monday open", time.Date(2026, 3, 2, 9, 30, 0, 0, eastern), true},
		{"monday pre-open", time.Date(2026, 3, 2, 9, 29, 0, 0, eastern), false},
		{"monday close", time.Date(2026, 3, 2, 16, 0, 0, 0, eastern), false},
		{"monday evening", time.Date(2026, 3, 2, 20, 0, 0, 0, eastern), false},
		{"saturday", time.Date(2026, 3, 7, 12, 0, 0, 0, eastern), false},
		{"sunday", time.Date(2026, 3, 8, 12, 0, 0, 0, eastern), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMarketHours(tt.t))
		})
	}
}

func TestTTLFor(t *testing.T) {
	market := time.Date(2026, 3, 2, 10, 0, 0, 0, eastern)
	after := time.Date(2026, 3, 2, 20, 0, 0, 0, eastern)

	tests := []struct {
		dataType string
		at       time.Time
		want     time.Duration
		known    bool
	}{
		{TypeOHLCV, market, 0, true},
		{TypeOHLCV, after, 0, true},
		{TypeChain, market, 5 * time.Minute, true},
		{TypeChain, after, time.Hour, true},
		{TypeQuote, market, time.Minute, true},
		{TypeQuote, after, 5 * time.Minute, true},
		{TypeIVRank, market, time.Hour, true},
		{TypeIVPercentile, after, time.Hour, true},
		{TypeFundamentals, market, 24 * time.Hour, true},
		{TypeEarnings, after, 24 * time.Hour, true},
		{TypeFailure, market, 24 * time.Hour, true},
		{"mystery", market, 5 * time.Minute, false},
	}
	for _, tt := range tests {
		got, known := TTLFor(tt.dataType, tt.at)
		assert.Equal(t, tt.want, got, "ttl for %s", tt.dataType)
		assert.Equal(t, tt.known, known, "known for %s", tt.dataType)
	}
}

func TestVolatileTypesSkipPersistentTier(t *testing.T) {
	kv := newFakeKV()
	c := New(kv)
	ctx := context.Background()

	c.Set(ctx, Key("yf", TypeQuote, "AAPL"), []byte("q"))
	c.Set(ctx, Key("yf", TypeChain, "AAPL"), []byte("c"))
	c.Set(ctx, Key("yf", TypeOHLCV, "AAPL", "1y"), []byte("o"))

	assert.False(t, kv.has("yf:quote:AAPL"))
	assert.False(t, kv.has("yf:chain:AAPL"))
	assert.True(t, kv.has("yf:ohlcv:AAPL:1y"))

	// All three are served from memory.
	for _, key := range []string{"yf:quote:AAPL", "yf:chain:AAPL", "yf:ohlcv:AAPL:1y"} {
		_, ok := c.Get(ctx, key)
		assert.True(t, ok, key)
	}
}

func TestGetPromotesFromPersistentTier(t *testing.T) {
	kv := newFakeKV()
	key := Key("yf", TypeOHLCV, "MSFT", "1y")
	require.NoError(t, kv.Set(context.Background(), Entry{
		Key:       key,
		Value:     []byte("bars"),
		CreatedAt: time.Now().UTC(),
		TTL:       0,
	}))

	c := New(kv)
	ctx := context.Background()

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("bars"), got)

	// Remove from the persistent tier; the promoted copy still serves.
	require.NoError(t, kv.Delete(ctx, key))
	got, ok = c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("bars"), got)
}

func TestExpiredEntriesMiss(t *testing.T) {
	kv := newFakeKV()
	c := New(kv)
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	key := Key("yf", TypeIVRank, "AAPL")
	c.SetWithTTL(ctx, key, []byte("42"), time.Hour)

	_, ok := c.Get(ctx, key)
	assert.True(t, ok)

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, ok = c.Get(ctx, key)
	assert.False(t, ok, "expired entry must miss")
	assert.False(t, kv.has(key), "expired persistent entry must be cleaned up")
}

func TestLazySweep(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.SetWithTTL(ctx, "yf:quote:A", []byte("1"), time.Second)
	c.SetWithTTL(ctx, "yf:quote:B", []byte("2"), time.Second)
	c.SetWithTTL(ctx, "yf:quote:C", []byte("3"), time.Second)
	assert.Equal(t, 3, c.MemLen())

	c.now = func() time.Time { return base.Add(time.Minute) }

	// Three sets happened already; pad the access count to the sweep
	// threshold with misses on an unrelated key.
	for i := 0; i < sweepEvery-3; i++ {
		c.Get(ctx, "yf:quote:none")
	}
	assert.Equal(t, 0, c.MemLen(), "sweep must remove expired entries")
}

func TestInvalidatePattern(t *testing.T) {
	kv := newFakeKV()
	c := New(kv)
	ctx := context.Background()

	c.Set(ctx, "yf:ohlcv:AAPL:1y", []byte("a"))
	c.Set(ctx, "yf:ohlcv:MSFT:1y", []byte("m"))
	c.Set(ctx, "yf:quote:AAPL", []byte("q"))

	c.InvalidatePattern(ctx, "yf:ohlcv:*")

	_, ok := c.Get(ctx, "yf:ohlcv:AAPL:1y")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "yf:ohlcv:MSFT:1y")
	assert.False(t, ok)
	assert.False(t, kv.has("yf:ohlcv:AAPL:1y"))
	assert.False(t, kv.has("yf:ohlcv:MSFT:1y"))

	_, ok = c.Get(ctx, "yf:quote:AAPL")
	assert.True(t, ok, "non-matching key survives")

	// Exact invalidation.
	c.InvalidatePattern(ctx, "yf:quote:AAPL")
	_, ok = c.Get(ctx, "yf:quote:AAPL")
	assert.False(t, ok)
}

func TestPersistentTierFailureDegrades(t *testing.T) {
	kv := newFakeKV()
	kv.fail = true
	c := New(kv)
	ctx := context.Background()

	key := Key("yf", TypeOHLCV, "AAPL", "1y")
	c.Set(ctx, key, []byte("bars"))

	got, ok := c.Get(ctx, key)
	assert.True(t, ok, "memory tier must keep serving when the KV is down")
	assert.Equal(t, []byte("bars"), got)
}

func TestNilKVIsMemoryOnly(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	key := Key("yf", TypeFundamentals, "AAPL")
	c.Set(ctx, key, []byte("f"))
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("f"), got)

	c.InvalidatePattern(ctx, "yf:*")
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
}
