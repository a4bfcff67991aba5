package stream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionLimiter_PerClient(t *testing.T) {
	l := NewSessionLimiter(2, 0)

	assert.NoError(t, l.Acquire("10.0.0.1"))
	assert.NoError(t, l.Acquire("10.0.0.1"))
	assert.ErrorIs(t, l.Acquire("10.0.0.1"), ErrClientSessionLimit)
	assert.NoError(t, l.Acquire("10.0.0.2"))

	assert.Equal(t, 2, l.Count("10.0.0.1"))
	assert.Equal(t, 3, l.Total())

	l.Release("10.0.0.1")
	assert.NoError(t, l.Acquire("10.0.0.1"))
}

func TestSessionLimiter_Total(t *testing.T) {
	l := NewSessionLimiter(0, 2)

	assert.NoError(t, l.Acquire("a"))
	assert.NoError(t, l.Acquire("b"))
	assert.ErrorIs(t, l.Acquire("c"), ErrSessionLimit)

	l.Release("a")
	assert.Equal(t, 0, l.Count("a"))
	assert.NoError(t, l.Acquire("c"))
}

func TestSessionLimiter_ReleaseUnknown(t *testing.T) {
	l := NewSessionLimiter(1, 1)
	l.Release("nobody")
	assert.Equal(t, 0, l.Total())
	assert.NoError(t, l.Acquire("a"))
}

func TestSessionLimiter_Concurrent(t *testing.T) {
	l := NewSessionLimiter(0, 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire("host") == nil {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, acquired)
	assert.Equal(t, 50, l.Total())
}

func TestClientHost(t *testing.T) {
	assert.Equal(t, "192.0.2.1", clientHost("192.0.2.1:5555"))
	assert.Equal(t, "::1", clientHost("[::1]:80"))
	assert.Equal(t, "pipe", clientHost("pipe"))
}
