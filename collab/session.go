package collab

import (
	"docsync-server/core"
	"sync"
)

// State is the lifecycle position of a session: Disconnected, Connected or
// Joined.
type State interface {
	isState()
}

type (
	Disconnected struct{}
	Connected    struct{}
	Joined       struct{ Room string }
)

func (Disconnected) isState() {}
func (Connected) isState()    {}
func (Joined) isState()       {}

// Conn is the transport side of one session.
type Conn interface {
	ID() string
	// Emit sends an event to this session only.
	Emit(event string, payload any) error
	JoinGroup(room string)
	LeaveGroup(room string)
	// BroadcastGroup sends an event to every member of room except this session.
	BroadcastGroup(room, event string, payload any) error
	Close()
}

type session struct {
	// mu serialises the events of one session.
	mu     sync.Mutex
	conn   Conn
	state  State
	claims *core.Claims
}

func (s *session) id() string {
	return s.conn.ID()
}

// room returns the joined room, if any.
func (s *session) room() (string, bool) {
	if j, ok := s.state.(Joined); ok {
		return j.Room, true
	}
	return "", false
}

func (s *session) joined(room string) bool {
	current, ok := s.room()
	return ok && current == room
}

// identity names the session in document_saved notifications.
func (s *session) identity() string {
	if s.claims != nil && s.claims.Subject != "" {
		return s.claims.Subject
	}
	return s.id()
}
