// Package collab implements room synchronization for collaborative documents:
// session lifecycle, room presence, edit fan-out, the write-through room cache
// and debounced persistence. It is independent of the transport; a transport
// binding supplies a Conn per session and forwards inbound events.
package collab

import (
	"context"
	"docsync-server/core"
	"docsync-server/debounce"
	"docsync-server/metrics"
	"docsync-server/presence"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Store core.DocumentStore
	Cache core.Cache
	// Verifier checks connection tokens. Nil disables authentication.
	Verifier core.TokenVerifier
	// AuthRequired rejects connections that present no token.
	AuthRequired bool

	FlushDelay   time.Duration
	FlushTimeout time.Duration
	// CacheTTL applies to room snapshots. Zero keeps them until overwritten.
	CacheTTL time.Duration
	// CacheIdleTTL is set on a room snapshot when its last member leaves and
	// lifted when the room fills again. Zero leaves idle snapshots alone.
	CacheIdleTTL time.Duration

	Clock   quartz.Clock
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

type Engine struct {
	store        core.DocumentStore
	cache        core.Cache
	verifier     core.TokenVerifier
	authRequired bool
	flushDelay   time.Duration
	cacheTTL     time.Duration
	idleTTL      time.Duration
	log          logrus.FieldLogger
	metrics      *metrics.Metrics

	presence  *presence.Tracker
	scheduler *debounce.Scheduler
	// rooms serialises cache and presence changes per room.
	rooms *roomLocks

	mu       sync.RWMutex
	sessions map[string]*session
}

func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	e := &Engine{
		store:        opts.Store,
		cache:        opts.Cache,
		verifier:     opts.Verifier,
		authRequired: opts.AuthRequired,
		flushDelay:   opts.FlushDelay,
		cacheTTL:     opts.CacheTTL,
		idleTTL:      opts.CacheIdleTTL,
		log:          log,
		metrics:      opts.Metrics,
		presence:     presence.NewTracker(),
		rooms:        newRoomLocks(),
		sessions:     make(map[string]*session),
	}

	schedOpts := []debounce.Option{
		debounce.WithLogger(log),
		debounce.WithMetrics(opts.Metrics),
		debounce.WithFlushTimeout(opts.FlushTimeout),
	}
	if opts.Clock != nil {
		schedOpts = append(schedOpts, debounce.WithClock(opts.Clock))
	}
	e.scheduler = debounce.New(e.persist, schedOpts...)
	return e
}

func (e *Engine) persist(ctx context.Context, room string, update core.DocumentUpdate) error {
	return e.store.Update(ctx, room, update)
}

// Connect registers a new session. When authentication applies and the token
// does not verify, the session gets an error event and the connection is
// closed before it can touch any room.
func (e *Engine) Connect(ctx context.Context, conn Conn, token string) error {
	s := &session{conn: conn, state: Connected{}}
	log := e.log.WithField("sessionId", conn.ID())

	if e.verifier != nil && (token != "" || e.authRequired) {
		claims, err := e.verifier.Verify(token)
		if err != nil {
			if !errors.Is(err, core.ErrAuthenticationFailed) {
				err = fmt.Errorf("%w: %v", core.ErrAuthenticationFailed, err)
			}
			log.WithError(err).Warn("Rejected connection")
			e.emitError(s, MessageAuthFailed, err)
			s.state = Disconnected{}
			conn.Close()
			return err
		}
		s.claims = claims
		log = log.WithField("subject", claims.Subject)
	}

	e.mu.Lock()
	if _, exists := e.sessions[conn.ID()]; exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: session %s already connected", core.ErrProtocolViolation, conn.ID())
	}
	e.sessions[conn.ID()] = s
	count := len(e.sessions)
	e.mu.Unlock()

	e.metrics.SetSessions(count)
	log.Info("Client connected")
	return nil
}

func (e *Engine) session(id string) (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown session %s", core.ErrProtocolViolation, id)
	}
	return s, nil
}

// Join moves the session into room, sends it the room content and announces
// it to the other members. A load failure is reported to the session only;
// the session stays joined.
func (e *Engine) Join(ctx context.Context, sessionID, room string) error {
	s, err := e.session(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.(Disconnected); ok {
		return fmt.Errorf("%w: session %s is disconnected", core.ErrProtocolViolation, sessionID)
	}
	if room == "" {
		err := fmt.Errorf("%w: missing document id", core.ErrProtocolViolation)
		e.emitError(s, MessageJoinFailed, err)
		return err
	}

	log := e.log.WithFields(logrus.Fields{"sessionId": sessionID, "room": room})
	rejoin := s.joined(room)
	if current, ok := s.room(); ok && !rejoin {
		e.leaveRoom(ctx, s, current)
	}

	unlock := e.rooms.lock(room)
	if !rejoin {
		s.conn.JoinGroup(room)
		e.presence.Join(sessionID, room)
		s.state = Joined{Room: room}
		e.metrics.SetRooms(e.presence.RoomCount())
		if e.presence.CountOf(room) == 1 {
			e.expire(ctx, room, e.cacheTTL)
		}
		log.Info("Client joined document")
	}

	content, loadErr := e.loadContent(ctx, room)
	if loadErr != nil {
		log.WithError(loadErr).Error("Failed to load document")
		e.emitError(s, MessageJoinFailed, loadErr)
	} else if err := s.conn.Emit(EventLoad, json.RawMessage(content)); err != nil {
		log.WithError(err).Warn("Failed to send document content")
	}
	unlock()
	e.touchRoom(ctx, room)

	if !rejoin {
		e.broadcast(s, room, EventUserJoined, PresencePayload{
			ClientID: sessionID,
			Count:    e.presence.CountOf(room),
		})
	}
	return loadErr
}

// loadContent reads the room snapshot from the cache and falls back to the
// store, filling the cache on success. Cache failures count as misses. The
// caller holds the room lock.
func (e *Engine) loadContent(ctx context.Context, room string) ([]byte, error) {
	log := e.log.WithField("room", room)

	data, err := e.cache.Get(ctx, room)
	switch {
	case err == nil:
		e.metrics.CacheHit()
		return data, nil
	case errors.Is(err, core.ErrCacheMiss):
		e.metrics.CacheMiss()
	default:
		e.metrics.CacheError()
		log.WithError(err).Warn("Cache read failed, loading from store")
	}

	document, err := e.store.FindID(ctx, room)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Set(ctx, room, document.Content, e.cacheTTL); err != nil {
		log.WithError(err).Warn("Failed to fill cache")
	}
	return document.Content, nil
}

// Edit relays an edit to the other members of the room, overwrites the room
// snapshot and re-arms the room's pending flush.
func (e *Engine) Edit(ctx context.Context, sessionID string, msg EditMessage) error {
	s, err := e.session(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := e.requireJoined(s, msg.Room); err != nil {
		e.emitError(s, MessageTypingFailed, err)
		return err
	}
	if len(msg.Content) == 0 {
		err := fmt.Errorf("%w: missing content", core.ErrProtocolViolation)
		e.emitError(s, MessageTypingFailed, err)
		return err
	}

	room := msg.Room
	unlock := e.rooms.lock(room)
	e.presence.Join(sessionID, room)

	change := ChangePayload{
		ClientID: sessionID,
		Room:     room,
		Title:    msg.Title,
		Content:  msg.Content,
		Delta:    msg.Delta,
	}
	e.broadcast(s, room, ChangesEvent(room), change)
	e.broadcast(s, room, EventChanges, change)

	var cacheErr error
	if cacheErr = e.cache.Set(ctx, room, msg.Content, e.cacheTTL); cacheErr != nil {
		e.log.WithFields(logrus.Fields{"sessionId": sessionID, "room": room}).
			WithError(cacheErr).Error("Failed to update cache")
		e.emitError(s, MessageTypingFailed, cacheErr)
	}

	e.scheduler.Schedule(room, core.DocumentUpdate{Title: msg.Title, Content: msg.Content}, e.flushDelay)
	unlock()
	e.touchRoom(ctx, room)
	return cacheErr
}

// Save acknowledges a save request to the sender and the other members. The
// pending flush is left alone.
func (e *Engine) Save(ctx context.Context, sessionID string, msg SaveMessage) error {
	s, err := e.session(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := e.requireJoined(s, msg.Room); err != nil {
		e.emitError(s, MessageSaveFailed, err)
		return err
	}

	saved := SavedPayload{DocumentID: msg.Room, SavedBy: s.identity()}
	if err := s.conn.Emit(EventSaveSuccess, saved); err != nil {
		e.log.WithField("sessionId", sessionID).WithError(err).Warn("Failed to acknowledge save")
	}
	_ = s.conn.Emit(SavedEvent(msg.Room), saved)
	e.broadcast(s, msg.Room, EventDocumentSaved, saved)
	e.broadcast(s, msg.Room, SavedEvent(msg.Room), saved)
	return nil
}

// Leave removes the session from room and announces the new count.
func (e *Engine) Leave(ctx context.Context, sessionID, room string) error {
	s, err := e.session(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := e.requireJoined(s, room); err != nil {
		e.emitError(s, MessageLeaveFailed, err)
		return err
	}

	e.leaveRoom(ctx, s, room)
	s.state = Connected{}
	return nil
}

// Disconnect drops the session, leaving its room if it is in one. Unknown
// sessions are ignored.
func (e *Engine) Disconnect(ctx context.Context, sessionID string) {
	e.mu.RLock()
	s, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return
	}

	s.mu.Lock()
	if _, gone := s.state.(Disconnected); gone {
		s.mu.Unlock()
		return
	}
	if room, ok := s.room(); ok {
		e.leaveRoom(ctx, s, room)
	}
	s.state = Disconnected{}
	s.mu.Unlock()

	e.mu.Lock()
	delete(e.sessions, sessionID)
	count := len(e.sessions)
	e.mu.Unlock()

	e.metrics.SetSessions(count)
	e.log.WithField("sessionId", sessionID).Info("Client disconnected")
}

func (e *Engine) leaveRoom(ctx context.Context, s *session, room string) {
	unlock := e.rooms.lock(room)
	defer unlock()

	s.conn.LeaveGroup(room)
	e.presence.Leave(s.id())
	e.metrics.SetRooms(e.presence.RoomCount())

	count := e.presence.CountOf(room)
	e.broadcast(s, room, EventUserLeft, PresencePayload{
		ClientID: s.id(),
		Count:    count,
	})
	if count == 0 {
		e.expire(ctx, room, e.idleTTL)
	}
	e.log.WithFields(logrus.Fields{"sessionId": s.id(), "room": room}).Info("Client left document")
}

// expire moves the room snapshot between its idle and active lifetimes. It
// does nothing unless an idle lifetime is configured.
func (e *Engine) expire(ctx context.Context, room string, ttl time.Duration) {
	if e.idleTTL <= 0 {
		return
	}
	if err := e.cache.Expire(ctx, room, ttl); err != nil {
		e.log.WithField("room", room).WithError(err).Warn("Failed to update cache expiry")
	}
}

func (e *Engine) requireJoined(s *session, room string) error {
	if room == "" {
		return fmt.Errorf("%w: missing document id", core.ErrProtocolViolation)
	}
	if !s.joined(room) {
		return fmt.Errorf("%w: session %s has not joined %s", core.ErrProtocolViolation, s.id(), room)
	}
	return nil
}

func (e *Engine) broadcast(s *session, room, event string, payload any) {
	if err := s.conn.BroadcastGroup(room, event, payload); err != nil {
		e.log.WithFields(logrus.Fields{"room": room, "event": event}).WithError(err).Warn("Broadcast failed")
		return
	}
	e.metrics.Broadcast(event)
}

func (e *Engine) emitError(s *session, message string, err error) {
	if emitErr := s.conn.Emit(EventError, ErrorPayload{Message: message, Error: err.Error()}); emitErr != nil {
		e.log.WithField("sessionId", s.id()).WithError(emitErr).Warn("Failed to send error event")
	}
}

func (e *Engine) touchRoom(ctx context.Context, room string) {
	registry, ok := e.store.(core.RoomRegistry)
	if !ok {
		return
	}
	if err := registry.TouchRoom(ctx, room); err != nil {
		e.log.WithField("room", room).WithError(err).Debug("Failed to record room activity")
	}
}

// Rooms returns the member count of every live room.
func (e *Engine) Rooms() map[string]int {
	return e.presence.Rooms()
}

func (e *Engine) Sessions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// PendingFlush reports whether room has an unflushed edit.
func (e *Engine) PendingFlush(room string) bool {
	return e.scheduler.Pending(room)
}

// Shutdown closes every connection and flushes pending edits.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.RLock()
	conns := make([]Conn, 0, len(e.sessions))
	for _, s := range e.sessions {
		conns = append(conns, s.conn)
	}
	e.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
	for _, conn := range conns {
		e.Disconnect(ctx, conn.ID())
	}

	return e.scheduler.Shutdown(ctx)
}
