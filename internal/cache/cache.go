// Package cache is the two-tier service cache: an in-memory map in
// front of an optional persistent KV. Volatile data types (chains,
// quotes) never touch the persistent tier.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/metrics"
)

// sweepEvery is the access count between lazy sweeps of expired
// memory entries. There is no background goroutine.
const sweepEvery = 100

// Entry is one cached blob with its freshness envelope. TTL zero means
// the entry never expires.
type Entry struct {
	Key       string        `json:"key"`
	Value     []byte        `json:"value"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

// Expired compares wall-clock age against the TTL.
func (e Entry) Expired(now time.Time) bool {
	if e.TTL == 0 {
		return false
	}
	return now.Sub(e.CreatedAt) > e.TTL
}

// KV is the persistent tier. The SQLite store and the Redis adapter
// implement it. Expiry is enforced by the cache on read; backends may
// additionally expire on their own.
type KV interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Cache routes keys between tiers and evicts lazily. Persistent tier
// failures degrade to memory-only operation and are logged, never
// surfaced to callers.
type Cache struct {
	mu       sync.Mutex
	mem      map[string]Entry
	accesses int

	kv     KV
	logger zerolog.Logger
	now    func() time.Time
}

// New builds a cache over the given persistent KV. A nil kv keeps all
// data types in memory.
func New(kv KV) *Cache {
	return &Cache{
		mem:    make(map[string]Entry),
		kv:     kv,
		logger: config.NewLogger("cache"),
		now:    time.Now,
	}
}

// Get returns the cached value for key, consulting the persistent tier
// for non-volatile types on a memory miss. Expired entries are removed
// and reported as misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	now := c.now().UTC()
	dataType := DataTypeOf(key)

	c.mu.Lock()
	c.touch(now)
	if e, ok := c.mem[key]; ok {
		if !e.Expired(now) {
			c.mu.Unlock()
			metrics.RecordCacheHit(metrics.TierMemory, dataType)
			return e.Value, true
		}
		delete(c.mem, key)
	}
	c.mu.Unlock()

	if c.kv == nil || Volatile(dataType) {
		metrics.RecordCacheMiss(dataType)
		return nil, false
	}

	e, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Persistent cache read failed")
		metrics.RecordCacheMiss(dataType)
		return nil, false
	}
	if !ok {
		metrics.RecordCacheMiss(dataType)
		return nil, false
	}
	if e.Expired(now) {
		if err := c.kv.Delete(ctx, key); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Expired cache entry cleanup failed")
		}
		metrics.RecordCacheMiss(dataType)
		return nil, false
	}

	// Promote so repeat reads stay in memory.
	c.mu.Lock()
	c.mem[key] = e
	c.mu.Unlock()
	metrics.RecordCacheHit(metrics.TierPersistent, dataType)
	return e.Value, true
}

// Set stores value under key with the TTL implied by the key's data
// type at the current time.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	dataType := DataTypeOf(key)
	now := c.now().UTC()
	ttl, known := TTLFor(dataType, now)
	if !known {
		c.logger.Warn().Str("key", key).Str("data_type", dataType).Msg("Unknown cache data type, using default TTL")
	}
	c.SetWithTTL(ctx, key, value, ttl)
}

// SetWithTTL stores value under key with an explicit TTL. TTL zero
// never expires.
func (c *Cache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) {
	now := c.now().UTC()
	e := Entry{Key: key, Value: value, CreatedAt: now, TTL: ttl}

	c.mu.Lock()
	c.touch(now)
	c.mem[key] = e
	c.mu.Unlock()

	if c.kv == nil || Volatile(DataTypeOf(key)) {
		return
	}
	if err := c.kv.Set(ctx, e); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Persistent cache write failed")
	}
}

// InvalidatePattern removes keys from both tiers. A trailing '*' makes
// the pattern a prefix wildcard; otherwise the match is exact.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) {
	prefix, wildcard := strings.CutSuffix(pattern, "*")

	c.mu.Lock()
	if wildcard {
		for k := range c.mem {
			if strings.HasPrefix(k, prefix) {
				delete(c.mem, k)
			}
		}
	} else {
		delete(c.mem, pattern)
	}
	c.mu.Unlock()

	if c.kv == nil {
		return
	}
	var err error
	if wildcard {
		err = c.kv.DeletePrefix(ctx, prefix)
	} else {
		err = c.kv.Delete(ctx, pattern)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("pattern", pattern).Msg("Persistent cache invalidation failed")
	}
}

// MemLen reports the memory tier size, for observability.
func (c *Cache) MemLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mem)
}

// touch counts an access and sweeps expired memory entries every
// sweepEvery accesses. Caller holds the mutex.
func (c *Cache) touch(now time.Time) {
	c.accesses++
	if c.accesses%sweepEvery != 0 {
		return
	}
	for k, e := range c.mem {
		if e.Expired(now) {
			delete(c.mem, k)
		}
	}
}
