package session

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocks(t *testing.T) {
	l := NewLocks()

	assert.False(t, l.IsLocked("alice"))
	assert.True(t, l.Lock("alice"))
	assert.True(t, l.IsLocked("alice"))
	assert.False(t, l.Lock("alice"), "second dialog for the same user")
	assert.True(t, l.Lock("bob"))
	assert.Equal(t, 2, l.Len())

	l.Unlock("alice")
	assert.False(t, l.IsLocked("alice"))
	l.Unlock("alice")
	assert.True(t, l.Lock("alice"))
}

func TestLocks_OneWinner(t *testing.T) {
	l := NewLocks()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Lock("carol") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
