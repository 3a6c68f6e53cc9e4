package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := parse(nil, envFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, "", cfg.Storage.Type)
	assert.Equal(t, "localhost:6379", cfg.Cache.Addr)
	assert.Equal(t, DefaultCachePrefix, cfg.Cache.Prefix)
	assert.Zero(t, cfg.Cache.TTL)
	assert.Zero(t, cfg.Cache.IdleTTL)
	assert.Equal(t, DefaultFlushDelay, cfg.FlushDelay)
	assert.Equal(t, DefaultFlushTimeout, cfg.FlushTimeout)
	assert.False(t, cfg.Auth.Required)
}

func TestParse_FlagsOverrideEnv(t *testing.T) {
	cfg, err := parse([]string{"-listen", ":9000", "-loglevel", "debug"}, envFrom(map[string]string{
		"LISTEN_ADDR": ":8000",
		"LOG_LEVEL":   "warn",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
}

func TestParse_Environment(t *testing.T) {
	cfg, err := parse(nil, envFrom(map[string]string{
		"STORAGE_TYPE":   "sqlite",
		"CACHE_TYPE":     "redis",
		"REDIS_HOST":     "cache",
		"REDIS_PORT":     "6380",
		"REDIS_DB":       "2",
		"CACHE_TTL":      "1h",
		"CACHE_IDLE_TTL": "10m",
		"FLUSH_DELAY":    "5",
		"JWT_SECRET":     "s3cret",
		"AUTH_REQUIRED":  "true",
		"CORS_ORIGINS":   "http://a.test, http://b.test ,",
	}))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, "cache:6380", cfg.Cache.Addr)
	assert.Equal(t, 2, cfg.Cache.DB)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 10*time.Minute, cfg.Cache.IdleTTL)
	assert.Equal(t, 5*time.Millisecond, cfg.FlushDelay)
	assert.True(t, cfg.Auth.Required)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}

func TestParse_RedisAddrWins(t *testing.T) {
	cfg, err := parse(nil, envFrom(map[string]string{
		"REDIS_ADDR": "redis.internal:7000",
		"REDIS_HOST": "ignored",
	}))
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:7000", cfg.Cache.Addr)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "bad log level", args: []string{"-loglevel", "loud"}},
		{name: "bad flush delay", env: map[string]string{"FLUSH_DELAY": "soon"}},
		{name: "negative flush delay", env: map[string]string{"FLUSH_DELAY": "-1s"}},
		{name: "bad redis db", env: map[string]string{"REDIS_DB": "one"}},
		{name: "bad auth flag", env: map[string]string{"AUTH_REQUIRED": "maybe"}},
		{name: "auth without secret", env: map[string]string{"AUTH_REQUIRED": "1"}},
		{name: "s3 without bucket", env: map[string]string{"STORAGE_TYPE": "s3"}},
		{name: "unknown flag", args: []string{"-nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(tt.args, envFrom(tt.env))
			assert.Error(t, err)
		})
	}
}
