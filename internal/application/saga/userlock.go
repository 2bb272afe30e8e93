package saga

import (
	"sync"
)

// UserLocks serializes progress mutations per user. All writes to a user's
// progress state (entry submission, absence evaluation, redemption) must run
// under the user's lock so the read-evaluate-write cycle never interleaves.
type UserLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewUserLocks creates an empty lock registry.
func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[string]*userLock)}
}

// Lock acquires the lock for the given user and returns the release func.
// Locks are created lazily and removed once no goroutine holds or waits
// for them, so the registry does not grow with the user base.
func (ul *UserLocks) Lock(userID string) func() {
	ul.mu.Lock()
	l, ok := ul.locks[userID]
	if !ok {
		l = &userLock{}
		ul.locks[userID] = l
	}
	l.refs++
	ul.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		ul.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(ul.locks, userID)
		}
		ul.mu.Unlock()
	}
}
