// Package presence tracks which sessions are in which room on this instance.
package presence

import (
	"sort"
	"sync"
)

// Tracker maps rooms to member sessions. A session belongs to at most one
// room, and a room with no members is removed immediately.
type Tracker struct {
	mu        sync.RWMutex
	rooms     map[string]map[string]struct{}
	sessionOf map[string]string
}

func NewTracker() *Tracker {
	return &Tracker{
		rooms:     make(map[string]map[string]struct{}),
		sessionOf: make(map[string]string),
	}
}

// Join puts session into room. If the session was in a different room it is
// removed from that room first and previous names it.
func (t *Tracker) Join(session, room string) (previous string, switched bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.sessionOf[session]; ok {
		if cur == room {
			return "", false
		}
		t.remove(session, cur)
		previous, switched = cur, true
	}

	members, ok := t.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		t.rooms[room] = members
	}
	members[session] = struct{}{}
	t.sessionOf[session] = room
	return previous, switched
}

// Leave removes session from its room, if any.
func (t *Tracker) Leave(session string) (room string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok = t.sessionOf[session]
	if !ok {
		return "", false
	}
	t.remove(session, room)
	return room, true
}

func (t *Tracker) remove(session, room string) {
	delete(t.sessionOf, session)
	members := t.rooms[room]
	delete(members, session)
	if len(members) == 0 {
		delete(t.rooms, room)
	}
}

func (t *Tracker) CountOf(room string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms[room])
}

func (t *Tracker) RoomOf(session string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	room, ok := t.sessionOf[session]
	return room, ok
}

// Members returns the sessions in room in sorted order.
func (t *Tracker) Members(room string) []string {
	t.mu.RLock()
	members := make([]string, 0, len(t.rooms[room]))
	for session := range t.rooms[room] {
		members = append(members, session)
	}
	t.mu.RUnlock()

	sort.Strings(members)
	return members
}

func (t *Tracker) RoomCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}

// Rooms returns a snapshot of member counts for every non-empty room.
func (t *Tracker) Rooms() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[string]int, len(t.rooms))
	for room, members := range t.rooms {
		counts[room] = len(members)
	}
	return counts
}
