package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint for SCAN during prefix deletion.
const scanBatch = 100

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	// Namespace is prepended to every key ("huddle" -> "huddle:user_profile:...").
	Namespace string

	// OpTimeout bounds each command. Default: DefaultOpTimeout.
	OpTimeout time.Duration
}

// RedisStore implements Store on top of go-redis.
type RedisStore struct {
	client    redis.UniversalClient
	ns        namespaced
	opTimeout time.Duration
}

// NewRedisStore returns a store for cfg.URL. Only a malformed URL is an
// error: go-redis dials lazily and reconnects on its own, so an unreachable
// server shows up as failing calls. Use Ping to check reachability.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	// A stalled Redis must not stall requests: the cache degrades to
	// recompute instead, so socket timeouts track the op timeout.
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout
	opts.DialTimeout = 2 * time.Second

	return NewRedisStoreFromClient(redis.NewClient(opts), cfg.Namespace, timeout), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient, namespace string, opTimeout time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		ns:        newNamespace(namespace),
		opTimeout: opTimeout,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, s.ns.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()

	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	if err := s.client.Set(ctx, s.ns.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, s.ns.keys(keys)...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteByPrefix walks the keyspace with SCAN (never KEYS, which blocks the
// server) and deletes each batch as it goes.
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, ErrInvalidKey
	}
	match := globEscape(s.ns.key(prefix)) + "*"

	removed := 0
	var cursor uint64
	for {
		scanCtx, cancel := opContext(ctx, s.opTimeout)
		keys, next, err := s.client.Scan(scanCtx, cursor, match, scanBatch).Result()
		cancel()
		if err != nil {
			return removed, fmt.Errorf("redis scan %q: %w", match, err)
		}

		if len(keys) > 0 {
			delCtx, cancel := opContext(ctx, s.opTimeout)
			n, err := s.client.Del(delCtx, keys...).Result()
			cancel()
			if err != nil {
				return removed, fmt.Errorf("redis del batch: %w", err)
			}
			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
