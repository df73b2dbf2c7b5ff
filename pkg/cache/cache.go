package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"docqa-be/internal/pkg/logger"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultOpTimeout = 150 * time.Millisecond
)

// Options configures a typed Cache.
type Options struct {
	// Namespace prefixes every key and labels metrics and logs.
	Namespace string
	TTL       time.Duration
	// OpTimeout bounds each backend call; a slow backend is a miss.
	OpTimeout time.Duration
	Clock     Clock
}

// Cache is a typed, fail-open view over a Store. Values are JSON encoded so
// callers never share memory with the backend.
type Cache[V any] struct {
	store     Store
	namespace string
	ttl       time.Duration
	opTimeout time.Duration
	now       Clock
	group     singleflight.Group
	logger    logger.ILogger

	// generations counts invalidations per tag so a compute that started
	// before an invalidation never writes its result back.
	genMu       sync.Mutex
	generations map[string]uint64
}

func New[V any](store Store, log logger.ILogger, opts Options) *Cache[V] {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOpTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	return &Cache[V]{
		store:       store,
		namespace:   opts.Namespace,
		ttl:         opts.TTL,
		opTimeout:   opts.OpTimeout,
		now:         opts.Clock,
		logger:      log,
		generations: make(map[string]uint64),
	}
}

func (c *Cache[V]) TTL() time.Duration { return c.ttl }

func (c *Cache[V]) fullKey(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

// Get returns the cached value while it is readable. Backend errors and
// expired entries are both misses; expired entries are removed.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	full := c.fullKey(key)

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	entry, err := c.store.Get(opCtx, full)
	if err != nil {
		lookups.WithLabelValues(c.namespace, "error").Inc()
		c.logger.Warn("Cache", "cache read failed, treating as miss", map[string]interface{}{
			"namespace": c.namespace,
			"error":     err.Error(),
		})
		return zero, false
	}
	if entry == nil {
		lookups.WithLabelValues(c.namespace, "miss").Inc()
		return zero, false
	}
	if !entry.Readable(c.now()) {
		lookups.WithLabelValues(c.namespace, "expired").Inc()
		_ = c.store.Delete(opCtx, full)
		return zero, false
	}

	var v V
	if err := json.Unmarshal(entry.Value, &v); err != nil {
		lookups.WithLabelValues(c.namespace, "error").Inc()
		c.logger.Warn("Cache", "cached value undecodable, dropping", map[string]interface{}{
			"namespace": c.namespace,
			"error":     err.Error(),
		})
		_ = c.store.Delete(opCtx, full)
		return zero, false
	}
	lookups.WithLabelValues(c.namespace, "hit").Inc()
	return v, true
}

// Set stores value under key with the cache TTL. Failures are logged only.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, tags ...string) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Cache", "value not encodable, skipping cache write", map[string]interface{}{
			"namespace": c.namespace,
			"error":     err.Error(),
		})
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	entry := &Entry{
		Key:        c.fullKey(key),
		Value:      raw,
		CreatedAt:  c.now(),
		TTLSeconds: int(c.ttl / time.Second),
		Tags:       c.namespacedTags(tags),
	}
	if err := c.store.Set(opCtx, entry); err != nil {
		c.logger.Warn("Cache", "cache write failed", map[string]interface{}{
			"namespace": c.namespace,
			"error":     err.Error(),
		})
	}
}

// GetOrCompute returns the cached value or runs compute exactly once per key
// across concurrent callers. All callers waiting on the same key get the same
// value or the same error; errors are not cached.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, tags []string, compute func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A flight that finished between our miss and this call already
		// filled the cache.
		if v, ok := c.Get(ctx, key); ok {
			return v, nil
		}
		gen := c.generation(tags)
		v, err := compute(ctx)
		if err != nil {
			computes.WithLabelValues(c.namespace, "error").Inc()
			return v, err
		}
		computes.WithLabelValues(c.namespace, "ok").Inc()
		if c.generation(tags) != gen {
			computes.WithLabelValues(c.namespace, "stale").Inc()
			return v, nil
		}
		c.Set(ctx, key, v, tags...)
		// An invalidation that raced the write may have run before the entry
		// landed in the store.
		if c.generation(tags) != gen {
			c.delete(ctx, key)
		}
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Invalidate removes every entry carrying one of the tags.
func (c *Cache[V]) Invalidate(ctx context.Context, tags ...string) int {
	c.genMu.Lock()
	for _, t := range tags {
		c.generations[t]++
	}
	c.genMu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	n, err := c.store.InvalidateTags(opCtx, c.namespacedTags(tags)...)
	if err != nil {
		c.logger.Warn("Cache", "tag invalidation failed, TTL still bounds staleness", map[string]interface{}{
			"namespace": c.namespace,
			"tags":      tags,
			"error":     err.Error(),
		})
	}
	invalidated.WithLabelValues(c.namespace).Add(float64(n))
	return n
}

// generation sums the invalidation counters of tags. Counters only grow, so
// any invalidation of any tag changes the sum.
func (c *Cache[V]) generation(tags []string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	var sum uint64
	for _, t := range tags {
		sum += c.generations[t]
	}
	return sum
}

func (c *Cache[V]) delete(ctx context.Context, key string) {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.store.Delete(opCtx, c.fullKey(key)); err != nil {
		c.logger.Warn("Cache", "stale entry removal failed", map[string]interface{}{
			"namespace": c.namespace,
			"error":     err.Error(),
		})
	}
}

func (c *Cache[V]) namespacedTags(tags []string) []string {
	if c.namespace == "" {
		return tags
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = c.namespace + ":" + t
	}
	return out
}
