package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Nothing listens on port 1, so dials are refused immediately.
const refusedAddr = "127.0.0.1:1"

func TestRedisStore_UnreachableAtStartup(t *testing.T) {
	s, err := NewRedisStore(RedisConfig{URL: "redis://" + refusedAddr + "/0", OpTimeout: 200 * time.Millisecond})
	require.NoError(t, err, "an unreachable server is not a construction error")
	defer s.Close()

	ctx := context.Background()
	assert.Error(t, s.Ping(ctx))
	_, ok, err := s.Get(ctx, "user_profile:1")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, s.Set(ctx, "user_profile:1", []byte("x"), time.Minute))
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{URL: "not a url"})
	assert.Error(t, err)
}

func TestValkeyStore_UnreachableAtStartup(t *testing.T) {
	s, err := NewValkeyStore(ValkeyConfig{Address: refusedAddr, ConnectTimeout: 200 * time.Millisecond})
	require.NoError(t, err, "an unreachable server is not a construction error")
	defer s.Close()

	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	err = s.Ping(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errValkeyUnavailable, "the first call dials")

	_, _, err = s.Get(ctx, "user_profile:1")
	assert.ErrorIs(t, err, errValkeyUnavailable, "no redial before the interval")
	assert.ErrorIs(t, s.Set(ctx, "user_profile:1", []byte("x"), time.Minute), errValkeyUnavailable)

	now = now.Add(redialInterval)
	err = s.Delete(ctx, "user_profile:1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errValkeyUnavailable, "dials again once the interval passes")
}

func TestValkeyStore_Closed(t *testing.T) {
	s, err := NewValkeyStore(ValkeyConfig{Address: refusedAddr})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, _, err = s.Get(context.Background(), "user_profile:1")
	assert.ErrorContains(t, err, "closed")
}

func TestNewValkeyStore_EmptyAddress(t *testing.T) {
	_, err := NewValkeyStore(ValkeyConfig{})
	assert.Error(t, err)
}

func TestTTLMillisRoundsUp(t *testing.T) {
	assert.Equal(t, int64(1), ttlMillis(300*time.Microsecond))
	assert.Equal(t, int64(1), ttlMillis(time.Nanosecond))
	assert.Equal(t, int64(1500), ttlMillis(1500*time.Millisecond))
}
