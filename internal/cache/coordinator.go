// Package cache coordinates read-through caching and write-triggered
// invalidation of the derived read-side data.
//
// The cache is an optimization, never a correctness dependency: every store
// failure is logged, counted and then treated as a miss, so loaders always
// run when the store is down and callers never see a cache error.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lalith-99/huddle/internal/cachekey"
	"github.com/lalith-99/huddle/internal/kvstore"
	"github.com/lalith-99/huddle/internal/observ"
)

// DefaultWriteTimeout bounds a cache write that outlives its request.
const DefaultWriteTimeout = time.Second

// DefaultLoadTimeout bounds a coalesced loader, which runs detached from the
// request that started it.
const DefaultLoadTimeout = 5 * time.Second

// Coordinator owns the store handle and the TTL policy.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - No retries: a failed store call degrades once and is not repeated.
//   - Loader calls are not deduplicated unless coalescing is enabled. Without
//     it, N concurrent misses on one key run the loader N times. The values
//     are idempotently recomputable, so this is a load risk, not a
//     correctness one.
//   - Cancellation is per caller. A coalesced load keeps running for the
//     other waiters when the caller that started it is cancelled.
type Coordinator struct {
	store        kvstore.Store
	policy       Policy
	logger       *zap.Logger
	metrics      *observ.Metrics
	group        *singleflight.Group
	writeTimeout time.Duration
	loadTimeout  time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithMetrics(m *observ.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithCoalescing collapses concurrent misses on the same key into a single
// loader call.
func WithCoalescing(enabled bool) Option {
	return func(c *Coordinator) {
		if enabled {
			c.group = &singleflight.Group{}
		} else {
			c.group = nil
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.writeTimeout = d }
}

// WithLoadTimeout bounds a coalesced loader. It has no effect without
// coalescing, where the loader runs on the caller's own context.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.loadTimeout = d }
}

// New creates a Coordinator. A nil policy means DefaultPolicy.
func New(store kvstore.Store, policy Policy, logger *zap.Logger, opts ...Option) *Coordinator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		store:        store,
		policy:       policy,
		logger:       logger,
		writeTimeout: DefaultWriteTimeout,
		loadTimeout:  DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the TTL policy in use.
func (c *Coordinator) Policy() Policy { return c.policy }

// Get returns the raw cached value. Store errors read as a miss.
func (c *Coordinator) Get(ctx context.Context, key string) ([]byte, bool) {
	val, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.degraded(ctx, "get", key, err)
		return nil, false
	}
	return val, ok
}

// Set stores value under key with its family's TTL.
//
// Why detach from ctx? A request that is cancelled after computing a value
// should still publish it. The write is bounded by writeTimeout instead, and
// the store guarantees it lands whole or not at all.
func (c *Coordinator) Set(ctx context.Context, key string, value []byte) {
	ttl := c.policy.TTL(familyOf(key))
	if ttl <= 0 {
		c.logger.Warn("cache set skipped: no TTL for family", zap.String("key", key))
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
	defer cancel()
	if err := c.store.Set(wctx, key, value, ttl); err != nil {
		c.degraded(ctx, "set", key, err)
	}
}

// SetJSON encodes v and stores it.
func (c *Coordinator) SetJSON(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	c.Set(ctx, key, data)
}

// Invalidate deletes keys. Each key is deleted independently; a failure
// leaves the key to expire at its TTL.
func (c *Coordinator) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
	defer cancel()
	for _, key := range keys {
		if err := c.store.Delete(dctx, key); err != nil {
			c.degraded(ctx, "delete", key, err)
			continue
		}
		c.metrics.CacheInvalidated(ctx, string(familyOf(key)), 1)
	}
}

// InvalidatePrefix deletes every key under prefix.
func (c *Coordinator) InvalidatePrefix(ctx context.Context, prefix string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
	defer cancel()
	n, err := c.store.DeleteByPrefix(dctx, prefix)
	if err != nil {
		c.degraded(ctx, "delete_prefix", prefix, err)
		return
	}
	c.metrics.CacheInvalidated(ctx, string(familyOf(prefix)), n)
	c.logger.Debug("cache prefix invalidated", zap.String("prefix", prefix), zap.Int("keys", n))
}

func (c *Coordinator) degraded(ctx context.Context, op, key string, err error) {
	c.metrics.CacheStoreError(ctx, op)
	c.logger.Warn("cache store unavailable, degrading",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

// ReadThrough returns the cached value for key, or runs loader, caches its
// result with the family's TTL and returns it.
//
// A hit never calls loader. A loader error is returned as is and nothing is
// cached. A cached value that no longer decodes is dropped and recomputed.
func ReadThrough[T any](ctx context.Context, c *Coordinator, key string, loader func(context.Context) (T, error)) (T, error) {
	family := string(familyOf(key))

	if raw, ok := c.Get(ctx, key); ok {
		var v T
		err := json.Unmarshal(raw, &v)
		if err == nil {
			c.metrics.CacheHit(ctx, family)
			return v, nil
		}
		c.logger.Warn("cache entry undecodable, recomputing", zap.String("key", key), zap.Error(err))
		c.Invalidate(ctx, key)
	}
	c.metrics.CacheMiss(ctx, family)

	load := func(ctx context.Context) (T, error) {
		v, err := loader(ctx)
		if err != nil {
			return v, err
		}
		c.SetJSON(ctx, key, v)
		return v, nil
	}

	if c.group == nil {
		return load(ctx)
	}

	// The result is shared by every caller waiting on key, so the load must
	// not end when the caller that happened to start it goes away. Each
	// caller still stops waiting when its own ctx is done.
	ch := c.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		return load(lctx)
	})
	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// familyOf returns the static prefix of key.
func familyOf(key string) cachekey.Family {
	f, _, _ := strings.Cut(key, cachekey.Separator)
	return cachekey.Family(f)
}
