package saga

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserLocks_SerializesSameUser(t *testing.T) {
	locks := NewUserLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("user-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestUserLocks_DifferentUsersDoNotBlock(t *testing.T) {
	locks := NewUserLocks()

	unlockA := locks.Lock("user-a")

	// Another user's lock must be acquirable while user-a is held.
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("user-b")
		unlockB()
		close(done)
	}()
	<-done

	unlockA()
}

func TestUserLocks_RegistryShrinksAfterRelease(t *testing.T) {
	locks := NewUserLocks()

	unlock := locks.Lock("user-1")
	locks.mu.Lock()
	assert.Len(t, locks.locks, 1)
	locks.mu.Unlock()

	unlock()

	locks.mu.Lock()
	assert.Empty(t, locks.locks)
	locks.mu.Unlock()
}
