package collab

import (
	"context"
	"docsync-server/core"
	"sync"
	"time"
)

type event struct {
	Name    string
	Payload any
}

// hub routes group broadcasts between fake connections the way a socket.io
// server does: the sender never receives its own broadcast.
type hub struct {
	mu     sync.Mutex
	groups map[string]map[string]*fakeConn
}

func newHub() *hub {
	return &hub{groups: make(map[string]map[string]*fakeConn)}
}

func (h *hub) conn(id string) *fakeConn {
	return &fakeConn{id: id, hub: h}
}

type fakeConn struct {
	id  string
	hub *hub

	mu     sync.Mutex
	events []event
	closed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(name string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event{Name: name, Payload: payload})
	return nil
}

func (c *fakeConn) JoinGroup(room string) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	members, ok := c.hub.groups[room]
	if !ok {
		members = make(map[string]*fakeConn)
		c.hub.groups[room] = members
	}
	members[c.id] = c
}

func (c *fakeConn) LeaveGroup(room string) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	delete(c.hub.groups[room], c.id)
	if len(c.hub.groups[room]) == 0 {
		delete(c.hub.groups, room)
	}
}

func (c *fakeConn) BroadcastGroup(room, name string, payload any) error {
	c.hub.mu.Lock()
	targets := make([]*fakeConn, 0, len(c.hub.groups[room]))
	for id, member := range c.hub.groups[room] {
		if id != c.id {
			targets = append(targets, member)
		}
	}
	c.hub.mu.Unlock()

	for _, target := range targets {
		_ = target.Emit(name, payload)
	}
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) named(name string) []event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event
	for _, e := range c.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Name)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// countingStore counts gateway calls on top of a real store.
type countingStore struct {
	core.DocumentStore

	mu      sync.Mutex
	finds   int
	updates []core.DocumentUpdate
	gate    *findGate
}

// findGate holds FindID until released. The read happens after release.
type findGate struct {
	entered chan struct{}
	release chan struct{}
}

func (s *countingStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	s.mu.Lock()
	s.finds++
	gate := s.gate
	s.gate = nil
	s.mu.Unlock()
	if gate != nil {
		close(gate.entered)
		select {
		case <-gate.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.DocumentStore.FindID(ctx, id)
}

// holdNextFind makes the next FindID block until the returned gate is
// released.
func (s *countingStore) holdNextFind() *findGate {
	gate := &findGate{entered: make(chan struct{}), release: make(chan struct{})}
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	return gate
}

func (s *countingStore) Update(ctx context.Context, id string, update core.DocumentUpdate) error {
	s.mu.Lock()
	s.updates = append(s.updates, update)
	s.mu.Unlock()
	return s.DocumentStore.Update(ctx, id, update)
}

func (s *countingStore) findCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finds
}

func (s *countingStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

// countingCache counts writes and can be told to fail.
type countingCache struct {
	core.Cache

	mu      sync.Mutex
	sets    int
	expires []time.Duration
	getErr  error
	setErr  error
}

func (c *countingCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	err := c.getErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Cache.Get(ctx, key)
}

func (c *countingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.sets++
	err := c.setErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Cache.Set(ctx, key, value, ttl)
}

func (c *countingCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	c.expires = append(c.expires, ttl)
	c.mu.Unlock()
	return c.Cache.Expire(ctx, key, ttl)
}

func (c *countingCache) expireCalls() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.expires...)
}

func (c *countingCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func (c *countingCache) failGets(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getErr = err
}

func (c *countingCache) failSets(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setErr = err
}
