// Package debounce coalesces bursts of room edits into a single write per
// room. Every Schedule call for a room replaces the pending payload and
// restarts that room's quiet period.
package debounce

import (
	"context"
	"docsync-server/core"
	"docsync-server/metrics"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"
)

const DefaultFlushTimeout = 10 * time.Second

// FlushFunc persists the latest update captured for room.
type FlushFunc func(ctx context.Context, room string, update core.DocumentUpdate) error

type slot struct {
	timer  *quartz.Timer
	update core.DocumentUpdate
}

// flight marks a room whose flush is running. next holds the update that
// became due meanwhile; it is written once the running flush returns.
type flight struct {
	next *core.DocumentUpdate
}

type Scheduler struct {
	flush   FlushFunc
	clock   quartz.Clock
	timeout time.Duration
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	mu       sync.Mutex
	pending  map[string]*slot
	flights  map[string]*flight
	closed   bool
	inflight sync.WaitGroup
}

type Option func(*Scheduler)

func WithClock(clock quartz.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Scheduler) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithFlushTimeout bounds each call to the flush function.
func WithFlushTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(flush FlushFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		flush:   flush,
		clock:   quartz.NewReal(),
		timeout: DefaultFlushTimeout,
		log:     logrus.StandardLogger(),
		pending: make(map[string]*slot),
		flights: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule arms a flush of update for room after delay, cancelling any flush
// already pending for that room. Calls after Shutdown are ignored.
func (s *Scheduler) Schedule(room string, update core.DocumentUpdate, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.log.WithField("room", room).Warn("Scheduler is shut down, dropping update")
		return
	}

	if prev, ok := s.pending[room]; ok {
		prev.timer.Stop()
	}

	sl := &slot{update: update}
	sl.timer = s.clock.AfterFunc(delay, func() { s.fire(room, sl) }, "debounce", room)
	s.pending[room] = sl
}

func (s *Scheduler) fire(room string, sl *slot) {
	s.mu.Lock()
	// a timer that lost the race with Stop no longer owns the slot
	if s.pending[room] != sl {
		s.mu.Unlock()
		return
	}
	delete(s.pending, room)
	if f, ok := s.flights[room]; ok {
		f.next = &sl.update
		s.mu.Unlock()
		return
	}
	s.flights[room] = &flight{}
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()
	s.drain(context.Background(), room, sl.update)
}

// drain writes update and then every update queued behind it for room, in
// the order they became due. The caller has registered the room's flight.
func (s *Scheduler) drain(ctx context.Context, room string, update core.DocumentUpdate) {
	for {
		s.run(ctx, room, update)

		s.mu.Lock()
		f := s.flights[room]
		if f.next == nil {
			delete(s.flights, room)
			s.mu.Unlock()
			return
		}
		update, f.next = *f.next, nil
		s.mu.Unlock()
	}
}

func (s *Scheduler) run(parent context.Context, room string, update core.DocumentUpdate) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	err := s.flush(ctx, room, update)
	s.metrics.Flush(err)

	log := s.log.WithField("room", room)
	if err != nil {
		log.WithError(err).Error("Failed to persist document")
		return
	}
	log.Debug("Document persisted")
}

// Pending reports whether a flush is armed for room.
func (s *Scheduler) Pending(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[room]
	return ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Shutdown stops every armed timer and flushes the captured updates before
// returning. It also waits for flushes already running. A room whose flush is
// running gets its captured update written after that flush.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.pending
	s.pending = make(map[string]*slot)
	owned := make(map[string]core.DocumentUpdate, len(pending))
	for room, sl := range pending {
		sl.timer.Stop()
		if f, ok := s.flights[room]; ok {
			f.next = &sl.update
			continue
		}
		s.flights[room] = &flight{}
		owned[room] = sl.update
	}
	s.mu.Unlock()

	if len(pending) > 0 {
		s.log.WithField("rooms", len(pending)).Info("Flushing pending documents")
	}
	for room, update := range owned {
		s.drain(ctx, room, update)
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
