package memory

import (
	"context"
	"docsync-server/core"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"
)

// SweepInterval is how often Run drops expired entries.
const SweepInterval = time.Minute

type entry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// RoomCache keeps room snapshots in process memory.
type RoomCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	clock   quartz.Clock
}

type Option func(*RoomCache)

func WithClock(clock quartz.Clock) Option {
	return func(c *RoomCache) { c.clock = clock }
}

func NewCache(opts ...Option) *RoomCache {
	c := &RoomCache{
		entries: make(map[string]*entry),
		clock:   quartz.NewReal(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RoomCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, core.ErrCacheMiss
	}

	if e.expired(c.clock.Now()) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, core.ErrCacheMiss
	}

	data := make([]byte, len(e.data))
	copy(data, e.data)
	return data, nil
}

func (c *RoomCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data := make([]byte, len(value))
	copy(data, value)

	e := &entry{data: data}
	if ttl > 0 {
		e.expiresAt = c.clock.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *RoomCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *RoomCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return ok && !e.expired(c.clock.Now()), nil
}

func (c *RoomCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.expired(c.clock.Now()) {
		return nil
	}
	// entries are replaced, never mutated
	next := &entry{data: e.data}
	if ttl > 0 {
		next.expiresAt = c.clock.Now().Add(ttl)
	}
	c.entries[key] = next
	return nil
}

func (c *RoomCache) Close() error {
	return nil
}

// Run sweeps expired entries every SweepInterval until ctx is done.
func (c *RoomCache) Run(ctx context.Context) {
	_ = c.clock.TickerFunc(ctx, SweepInterval, func() error {
		if n := c.sweep(); n > 0 {
			logrus.WithField("count", n).Debug("Swept expired cache entries")
		}
		return nil
	}, "cache", "sweep").Wait()
}

func (c *RoomCache) sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
