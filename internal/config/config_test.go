package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalith-99/huddle/internal/cachekey"
	"github.com/lalith-99/huddle/internal/ratelimit"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, BackendRedis, cfg.KVBackend)
	assert.Equal(t, 50, cfg.MessagePageSize)
	assert.False(t, cfg.CacheCoalesce)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 300*time.Second, cfg.CachePolicy.TTL(cachekey.UserProfile))
	assert.Equal(t, 60*time.Second, cfg.CachePolicy.TTL(cachekey.ChannelMessages))
	assert.Equal(t, ratelimit.DefaultRules(), cfg.RateRules)
	assert.False(t, cfg.UseMemoryDatabase())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", MemoryDatabaseURL)
	t.Setenv("KV_BACKEND", "Valkey")
	t.Setenv("CACHE_TTL_MESSAGES", "15")
	t.Setenv("CACHE_TTL_PROFILE", "10m")
	t.Setenv("CACHE_COALESCE", "true")
	t.Setenv("RATE_MESSAGES", "10/second")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MESSAGE_PAGE_SIZE", "25")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.UseMemoryDatabase())
	assert.Equal(t, BackendValkey, cfg.KVBackend)
	assert.Equal(t, 15*time.Second, cfg.CachePolicy.TTL(cachekey.ChannelMessages))
	assert.Equal(t, 10*time.Minute, cfg.CachePolicy.TTL(cachekey.UserProfile))
	assert.Equal(t, 300*time.Second, cfg.CachePolicy.TTL(cachekey.UserOnline))
	assert.True(t, cfg.CacheCoalesce)
	assert.Equal(t, ratelimit.Rule{Max: 10, Window: time.Second}, cfg.RateRules[ratelimit.ScopeMessages])
	assert.Equal(t, ratelimit.Rule{Max: 100, Window: time.Hour}, cfg.RateRules[ratelimit.ScopeUser])
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 25, cfg.MessagePageSize)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad duration", "CACHE_TTL_UNREAD", "soon"},
		{"zero ttl", "CACHE_TTL_ONLINE", "0"},
		{"bad rate", "RATE_ANON", "lots"},
		{"bad backend", "KV_BACKEND", "memcached"},
		{"bad page size", "MESSAGE_PAGE_SIZE", "0"},
		{"bad bool", "CACHE_COALESCE", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadConfig_ProductionNeedsSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	_, err = LoadConfig()
	require.NoError(t, err)
}
