package stream

import (
	"errors"
	"net"
	"sync"
)

var (
	// ErrSessionLimit means the server-wide session cap is reached.
	ErrSessionLimit = errors.New("stream session limit reached")
	// ErrClientSessionLimit means one client host holds too many sessions.
	ErrClientSessionLimit = errors.New("too many stream sessions for this client")
)

// SessionLimiter caps concurrent stream sessions, overall and per client
// host. A zero limit disables that check.
type SessionLimiter struct {
	maxPerClient int
	maxTotal     int
	clients      map[string]int // host -> open sessions
	total        int
	mu           sync.RWMutex
}

// NewSessionLimiter creates a limiter.
func NewSessionLimiter(maxPerClient, maxTotal int) *SessionLimiter {
	return &SessionLimiter{
		maxPerClient: maxPerClient,
		maxTotal:     maxTotal,
		clients:      make(map[string]int),
	}
}

// Acquire takes a slot for client, or returns the limit that refused it.
func (l *SessionLimiter) Acquire(client string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxTotal > 0 && l.total >= l.maxTotal {
		return ErrSessionLimit
	}

	current := l.clients[client]
	if l.maxPerClient > 0 && current >= l.maxPerClient {
		return ErrClientSessionLimit
	}

	l.clients[client] = current + 1
	l.total++
	return nil
}

// Release returns a slot taken by Acquire.
func (l *SessionLimiter) Release(client string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, ok := l.clients[client]
	if !ok || count == 0 {
		return
	}
	if count == 1 {
		delete(l.clients, client)
	} else {
		l.clients[client] = count - 1
	}
	l.total--
}

// Count returns the open sessions for client.
func (l *SessionLimiter) Count(client string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.clients[client]
}

// Total returns all open sessions.
func (l *SessionLimiter) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// clientHost strips the port from a RemoteAddr.
func clientHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
