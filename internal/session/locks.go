// Package session tracks which users have a trade dialog open so the same
// user cannot run two at once.
package session

import "sync"

// Locks is a set of user ids currently holding a trade session.
type Locks struct {
	mu    sync.Mutex
	users map[string]struct{}
}

// NewLocks returns an empty lock set.
func NewLocks() *Locks {
	return &Locks{users: make(map[string]struct{})}
}

// Lock claims user's session. It reports false if the user already holds one.
func (l *Locks) Lock(user string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.users[user]; held {
		return false
	}
	l.users[user] = struct{}{}
	return true
}

// Unlock releases user's session. Unlocking a free user is a no-op.
func (l *Locks) Unlock(user string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.users, user)
}

// IsLocked reports whether user holds a session.
func (l *Locks) IsLocked(user string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, held := l.users[user]
	return held
}

// Len returns the number of held sessions.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
