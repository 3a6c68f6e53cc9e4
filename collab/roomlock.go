package collab

import "sync"

// roomLocks hands out one mutex per room. Entries live only while some
// caller holds or waits for them.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

// lock blocks until room is free and returns the matching unlock.
func (l *roomLocks) lock(room string) (unlock func()) {
	l.mu.Lock()
	rl, ok := l.locks[room]
	if !ok {
		rl = &roomLock{}
		l.locks[room] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, room)
		}
		l.mu.Unlock()
	}
}

// refs reports how many callers hold or wait for room.
func (l *roomLocks) refs(room string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rl, ok := l.locks[room]; ok {
		return rl.refs
	}
	return 0
}
