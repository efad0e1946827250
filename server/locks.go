package server

import "sync"

// sessionLocks serializes turns that share a session id while letting
// distinct sessions proceed independently. The engine holds only its own
// session's lock across slow extractor and submitter calls, never a global
// one. Entries are not reclaimed; the map is bounded by distinct session ids
// seen by this process.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its release func.
func (l *sessionLocks) lock(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
