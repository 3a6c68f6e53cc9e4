package redis

import (
	"context"
	"docsync-server/core"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key written by the cache.
	Prefix string
}

// RoomCache keeps room snapshots in Redis under a key prefix.
type RoomCache struct {
	client *goredis.Client
	prefix string
}

// NewCache connects to redis and verifies the connection with a PING.
func NewCache(ctx context.Context, opts Options) (*RoomCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis %s: %v", core.ErrStoreUnavailable, opts.Addr, err)
	}

	logrus.WithField("addr", opts.Addr).Info("Redis client connected successfully")
	return &RoomCache{client: client, prefix: opts.Prefix}, nil
}

func (c *RoomCache) key(key string) string {
	return c.prefix + key
}

func (c *RoomCache) Get(ctx context.Context, key string) ([]byte, error) {
	log := logrus.WithField("key", key)

	value, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			log.Debug("Cache miss")
			return nil, core.ErrCacheMiss
		}
		log.WithError(err).Error("Error getting cache")
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	log.Debug("Cache hit")
	return value, nil
}

func (c *RoomCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		logrus.WithField("key", key).WithError(err).Error("Error setting cache")
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	logrus.WithField("key", key).Debug("Cache set")
	return nil
}

func (c *RoomCache) Del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		logrus.WithField("key", key).WithError(err).Error("Error deleting cache")
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	logrus.WithField("key", key).Debug("Cache deleted")
	return nil
}

func (c *RoomCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		logrus.WithField("key", key).WithError(err).Error("Error checking existence")
		return false, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

func (c *RoomCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	var err error
	if ttl <= 0 {
		err = c.client.Persist(ctx, c.key(key)).Err()
	} else {
		err = c.client.Expire(ctx, c.key(key), ttl).Err()
	}
	if err != nil {
		logrus.WithField("key", key).WithError(err).Error("Error setting expiration")
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (c *RoomCache) Close() error {
	return c.client.Close()
}
