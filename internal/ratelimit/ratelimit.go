// Package ratelimit implements fixed-window request counters per
// (scope, identity), stored in the shared key-value store.
//
// The read-then-write sequence in Check is not atomic: two concurrent
// requests may both observe count N and both be allowed. The limiter is a
// soft fairness control, not a security boundary, so this overshoot is
// accepted rather than paid for with distributed locking.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/kvstore"
	"github.com/lalith-99/huddle/internal/observ"
)

// Scope selects which (limit, window) pair applies.
type Scope string

const (
	ScopeUser         Scope = "user"
	ScopeAnon         Scope = "anon"
	ScopeMessages     Scope = "messages"
	ScopeRegistration Scope = "registration"
)

// Rule is the maximum number of requests allowed per window.
type Rule struct {
	Max    int
	Window time.Duration
}

func (r Rule) String() string {
	return fmt.Sprintf("%d/%s", r.Max, r.Window)
}

// DefaultRules are the out-of-the-box limits.
func DefaultRules() map[Scope]Rule {
	return map[Scope]Rule{
		ScopeUser:         {Max: 100, Window: time.Hour},
		ScopeAnon:         {Max: 20, Window: time.Hour},
		ScopeMessages:     {Max: 60, Window: time.Minute},
		ScopeRegistration: {Max: 5, Window: time.Hour},
	}
}

// ParseRule parses "N/unit" where unit is second, minute, hour or day
// (singular, plural or the first letter), e.g. "100/hour" or "60/m".
func ParseRule(s string) (Rule, error) {
	count, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rule{}, fmt.Errorf("parse rate %q: want N/unit", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return Rule{}, fmt.Errorf("parse rate %q: count must be a positive integer", s)
	}
	u := strings.ToLower(strings.TrimSpace(unit))
	if len(u) > 1 {
		u = strings.TrimSuffix(u, "s")
	}
	var window time.Duration
	switch u {
	case "second", "sec", "s":
		window = time.Second
	case "minute", "min", "m":
		window = time.Minute
	case "hour", "h":
		window = time.Hour
	case "day", "d":
		window = 24 * time.Hour
	default:
		return Rule{}, fmt.Errorf("parse rate %q: unknown unit %q", s, unit)
	}
	return Rule{Max: n, Window: window}, nil
}

// Result is the outcome of one Check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Err converts a denial into an *apperr.RateLimitError; nil when allowed.
func (r Result) Err(scope Scope) error {
	if r.Allowed {
		return nil
	}
	return &apperr.RateLimitError{Scope: string(scope), RetryAfter: r.RetryAfter}
}

// window is the value stored per (scope, identity).
type window struct {
	Count int       `json:"count"`
	Start time.Time `json:"start"`
}

// Limiter checks requests against per-scope rules.
//
// Contract:
//   - Concurrency: safe for concurrent use (state lives in the store).
//   - A denied check never writes to the store.
//   - Store failures fail open: the request is allowed and the error logged.
type Limiter struct {
	store   kvstore.Store
	rules   map[Scope]Rule
	now     func() time.Time
	logger  *zap.Logger
	metrics *observ.Metrics
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithMetrics records every decision.
func WithMetrics(m *observ.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// New creates a Limiter. Scopes missing from rules fall back to DefaultRules.
func New(store kvstore.Store, rules map[Scope]Rule, logger *zap.Logger, opts ...Option) *Limiter {
	merged := DefaultRules()
	for scope, rule := range rules {
		merged[scope] = rule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{
		store:  store,
		rules:  merged,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Rule returns the rule applied to scope.
func (l *Limiter) Rule(scope Scope) (Rule, bool) {
	r, ok := l.rules[scope]
	return r, ok
}

// Key returns the store key of a (scope, identity) window.
func Key(scope Scope, identity string) string {
	return "rate_limit:" + string(scope) + ":" + identity
}

// Check counts one request for identity under scope.
//
// An absent or expired window restarts at 1 with a full-window TTL. A window
// already at the limit denies without writing. Otherwise the count is
// incremented and stored with the window's remaining lifetime.
func (l *Limiter) Check(ctx context.Context, scope Scope, identity string) (Result, error) {
	rule, ok := l.rules[scope]
	if !ok {
		return Result{}, fmt.Errorf("check rate: unknown scope %q", scope)
	}
	if identity == "" {
		return Result{}, apperr.Validation("identity", "is required")
	}

	key := Key(scope, identity)
	now := l.now()

	current, err := l.load(ctx, key)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, allowing request",
			zap.String("key", key),
			zap.Error(err),
		)
		l.metrics.CacheStoreError(ctx, "ratelimit_get")
		return l.decide(ctx, scope, Result{Allowed: true, Limit: rule.Max, Remaining: rule.Max - 1}), nil
	}

	if current == nil || !now.Before(current.Start.Add(rule.Window)) {
		next := window{Count: 1, Start: now}
		l.save(ctx, key, next, rule.Window)
		return l.decide(ctx, scope, Result{Allowed: true, Limit: rule.Max, Remaining: rule.Max - 1}), nil
	}

	resetIn := current.Start.Add(rule.Window).Sub(now)
	if current.Count >= rule.Max {
		return l.decide(ctx, scope, Result{
			Allowed:    false,
			Limit:      rule.Max,
			Remaining:  0,
			RetryAfter: resetIn,
		}), nil
	}

	current.Count++
	l.save(ctx, key, *current, resetIn)
	return l.decide(ctx, scope, Result{
		Allowed:   true,
		Limit:     rule.Max,
		Remaining: rule.Max - current.Count,
	}), nil
}

// Reset forgets the window of identity under scope.
func (l *Limiter) Reset(ctx context.Context, scope Scope, identity string) error {
	if err := l.store.Delete(ctx, Key(scope, identity)); err != nil {
		return fmt.Errorf("reset rate window: %w", err)
	}
	return nil
}

func (l *Limiter) load(ctx context.Context, key string) (*window, error) {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var w window
	if err := json.Unmarshal(raw, &w); err != nil {
		// A corrupt window is treated as absent and overwritten.
		l.logger.Warn("discarding unreadable rate window", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	return &w, nil
}

func (l *Limiter) save(ctx context.Context, key string, w window, ttl time.Duration) {
	raw, err := json.Marshal(w)
	if err != nil {
		l.logger.Error("encode rate window", zap.String("key", key), zap.Error(err))
		return
	}
	if err := l.store.Set(ctx, key, raw, ttl); err != nil {
		l.logger.Warn("rate limit store write failed", zap.String("key", key), zap.Error(err))
		l.metrics.CacheStoreError(ctx, "ratelimit_set")
	}
}

func (l *Limiter) decide(ctx context.Context, scope Scope, r Result) Result {
	l.metrics.RateDecision(ctx, string(scope), r.Allowed)
	return r
}
