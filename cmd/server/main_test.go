package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lalith-99/huddle/internal/cache"
	"github.com/lalith-99/huddle/internal/cachekey"
	"github.com/lalith-99/huddle/internal/config"
	"github.com/lalith-99/huddle/internal/models"
)

func TestOpenStore_UnreachableRedisIsNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := &config.Config{
		KVBackend:   config.BackendRedis,
		RedisURL:    "redis://127.0.0.1:1/0",
		KVNamespace: "huddle-test",
		KVOpTimeout: 100 * time.Millisecond,
	}

	store, err := openStore(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()
	assert.Equal(t, 1, logs.FilterMessage("key-value store unreachable, serving uncached until it recovers").Len())

	// Reads still succeed by falling through to the loader.
	c := cache.New(store, nil, zap.NewNop())
	calls := 0
	got, err := cache.ReadThrough(context.Background(), c, cachekey.ForUserProfile(uuid.New()),
		func(context.Context) (models.UserProfile, error) {
			calls++
			return models.UserProfile{Username: "alice"}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, 1, calls)
}

func TestOpenStore_BadRedisURLIsFatal(t *testing.T) {
	cfg := &config.Config{KVBackend: config.BackendRedis, RedisURL: "not a url"}
	_, err := openStore(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestOpenStore_Memory(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store, err := openStore(context.Background(), &config.Config{KVBackend: config.BackendMemory}, zap.New(core))
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, 1, logs.FilterMessage("key-value store ready").Len())
}
