package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound is returned when a session is not in the registry
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when registering an id twice
	ErrSessionExists = errors.New("session already exists")
)

// Registry tracks live stream sessions.
type Registry interface {
	// Register adds a new session to the registry
	Register(ctx context.Context, s *Session) error

	// Unregister removes a session from the registry
	Unregister(ctx context.Context, id string) error

	// Get retrieves a session by ID
	Get(ctx context.Context, id string) (*Session, error)

	// List returns all live sessions, oldest first
	List(ctx context.Context) ([]*Session, error)

	// UpdateHeartbeat refreshes the heartbeat timestamp and TTL
	UpdateHeartbeat(ctx context.Context, id string) error

	// UpdateStats replaces the session counters and refreshes the heartbeat
	UpdateStats(ctx context.Context, id string, stats Stats) error

	// Close releases any resources held by the registry
	Close() error
}

// MemoryRegistry is an in-process Registry used when Redis is disabled.
// Sessions whose heartbeat is older than the TTL are treated as gone.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryRegistry creates an empty registry. A zero ttl disables expiry.
func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	return &MemoryRegistry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryRegistry) expired(s *Session) bool {
	return m.ttl > 0 && m.now().Sub(s.LastHeartbeat) > m.ttl
}

func (m *MemoryRegistry) Register(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[s.ID]; ok && !m.expired(existing) {
		return fmt.Errorf("%w: %s", ErrSessionExists, s.ID)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	s.LastHeartbeat = m.now()

	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryRegistry) Unregister(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryRegistry) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || m.expired(s) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRegistry) List(ctx context.Context) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sortSessions(out)
	return out, nil
}

func (m *MemoryRegistry) UpdateHeartbeat(ctx context.Context, id string) error {
	return m.update(id, func(s *Session) {})
}

func (m *MemoryRegistry) UpdateStats(ctx context.Context, id string, stats Stats) error {
	return m.update(id, func(s *Session) { s.ApplyStats(stats) })
}

func (m *MemoryRegistry) update(id string, fn func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || m.expired(s) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	fn(s)
	s.LastHeartbeat = m.now()
	return nil
}

func (m *MemoryRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*Session)
	return nil
}

func sortSessions(s []*Session) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].CreatedAt.Equal(s[j].CreatedAt) {
			return s[i].ID < s[j].ID
		}
		return s[i].CreatedAt.Before(s[j].CreatedAt)
	})
}
