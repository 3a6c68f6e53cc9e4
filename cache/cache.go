package cache

import (
	"context"
	"docsync-server/cache/memory"
	"docsync-server/cache/redis"
	"docsync-server/config"
	"docsync-server/core"

	"github.com/sirupsen/logrus"
)

// GetCache builds the room cache selected by CACHE_TYPE. The in-memory sweep
// runs until ctx is done.
func GetCache(ctx context.Context, cfg config.CacheConfig) (core.Cache, error) {
	cacheField := logrus.Fields{
		"cacheType": cfg.Type,
		"ttl":       cfg.TTL,
	}

	var c core.Cache
	switch cfg.Type {
	case "redis":
		cacheField["addr"] = cfg.Addr
		cacheField["db"] = cfg.DB
		rc, err := redis.NewCache(ctx, redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			Prefix:   cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		c = rc
	default:
		cacheField["cacheType"] = "in-memory"
		mc := memory.NewCache()
		go mc.Run(ctx)
		c = mc
	}

	logrus.WithFields(cacheField).Info("Use cache")
	return c, nil
}
