// Package kvstore is the key-value store with per-key TTL that backs every
// cache entry and rate-limit window.
package kvstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a key.
const MaxKeyLength = 512

// DefaultOpTimeout bounds a single store call when the caller's context has
// no tighter deadline.
const DefaultOpTimeout = 250 * time.Millisecond

var (
	ErrInvalidKey = errors.New("kvstore: key is invalid")
	ErrKeyTooLong = errors.New("kvstore: key exceeds max length")
)

// Store is a key-value store with relative, per-key TTL.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use. Single-key
//     operations are atomic; nothing spans more than one key.
//   - Set restarts the TTL of the key. A value is never partially visible.
//   - Get returns (nil, false, nil) on miss or expiry.
//   - Delete and DeleteByPrefix are idempotent; deleting an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// DeleteByPrefix removes every key starting with prefix and returns how
	// many were removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// ValidateKey checks if a key is usable.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r ") {
		return ErrInvalidKey
	}
	return nil
}

// namespaced prefixes keys with an application namespace so several services
// can share one Redis database.
type namespaced string

func newNamespace(ns string) namespaced {
	if ns != "" && !strings.HasSuffix(ns, ":") {
		ns += ":"
	}
	return namespaced(ns)
}

func (n namespaced) key(k string) string { return string(n) + k }

func (n namespaced) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = n.key(k)
	}
	return out
}

// globEscape escapes the glob metacharacters understood by SCAN MATCH so a
// prefix is always matched literally.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
