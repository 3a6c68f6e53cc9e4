// Package config assembles the server configuration from command line flags
// and the environment. A .env file in the working directory is loaded first
// when present.
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DefaultListenAddr   = ":3002"
	DefaultFlushDelay   = 2 * time.Second
	DefaultFlushTimeout = 10 * time.Second
	DefaultCachePrefix  = "docsync:room:"
)

type (
	Config struct {
		ListenAddr string
		LogLevel   logrus.Level

		Storage StorageConfig
		Cache   CacheConfig
		Auth    AuthConfig

		// FlushDelay is the quiet interval after the last edit before a room is persisted.
		FlushDelay   time.Duration
		FlushTimeout time.Duration

		CORSOrigins []string
	}

	StorageConfig struct {
		Type           string
		DataSourceName string
		LocalPath      string
		S3Bucket       string
		S3Endpoint     string
	}

	CacheConfig struct {
		Type     string
		Addr     string
		Password string
		DB       int
		Prefix   string
		// TTL applies to every room snapshot. Zero keeps entries until evicted.
		TTL time.Duration
		// IdleTTL is applied to a room snapshot once the room is empty.
		IdleTTL time.Duration
	}

	AuthConfig struct {
		Secret   string
		Required bool
	}
)

// Load parses args (without the program name) and reads the environment.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}
	return parse(args, os.Getenv)
}

func parse(args []string, getenv func(string) string) (*Config, error) {
	fs := flag.NewFlagSet("docsync-server", flag.ContinueOnError)
	logLevel := fs.String("loglevel", envOr(getenv, "LOG_LEVEL", "info"), "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := fs.String("listen", envOr(getenv, "LISTEN_ADDR", DefaultListenAddr), "Set the server listen address")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	cfg := &Config{
		ListenAddr: *listenAddr,
		LogLevel:   level,
		Storage: StorageConfig{
			Type:           getenv("STORAGE_TYPE"),
			DataSourceName: envOr(getenv, "DATA_SOURCE_NAME", "docsync.db"),
			LocalPath:      envOr(getenv, "LOCAL_STORAGE_PATH", "./data"),
			S3Bucket:       getenv("S3_BUCKET_NAME"),
			S3Endpoint:     getenv("S3_ENDPOINT"),
		},
		Cache: CacheConfig{
			Type:     getenv("CACHE_TYPE"),
			Addr:     redisAddr(getenv),
			Password: getenv("REDIS_PASSWORD"),
			Prefix:   envOr(getenv, "CACHE_PREFIX", DefaultCachePrefix),
		},
		Auth: AuthConfig{
			Secret: getenv("JWT_SECRET"),
		},
	}

	if cfg.Cache.DB, err = envInt(getenv, "REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Cache.TTL, err = envDuration(getenv, "CACHE_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.Cache.IdleTTL, err = envDuration(getenv, "CACHE_IDLE_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.FlushDelay, err = envDuration(getenv, "FLUSH_DELAY", DefaultFlushDelay); err != nil {
		return nil, err
	}
	if cfg.FlushTimeout, err = envDuration(getenv, "FLUSH_TIMEOUT", DefaultFlushTimeout); err != nil {
		return nil, err
	}
	if cfg.Auth.Required, err = envBool(getenv, "AUTH_REQUIRED", false); err != nil {
		return nil, err
	}
	if cfg.Auth.Required && cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("AUTH_REQUIRED is set but JWT_SECRET is empty")
	}
	if cfg.FlushDelay < 0 {
		return nil, fmt.Errorf("FLUSH_DELAY must not be negative")
	}
	if cfg.Storage.Type == "s3" && cfg.Storage.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET_NAME environment variable must be set for s3 storage type")
	}

	if origins := getenv("CORS_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	return cfg, nil
}

// redisAddr prefers REDIS_ADDR and falls back to REDIS_HOST/REDIS_PORT.
func redisAddr(getenv func(string) string) string {
	if addr := getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return net.JoinHostPort(envOr(getenv, "REDIS_HOST", "localhost"), envOr(getenv, "REDIS_PORT", "6379"))
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(getenv func(string) string, key string, fallback int) (int, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envBool(getenv func(string) string, key string, fallback bool) (bool, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

// envDuration accepts Go durations ("1500ms") and bare integers in milliseconds.
func envDuration(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
