// Package session manages per-connection state for the wire server:
// authentication identity and the set of live notification subscriptions,
// so a closed connection can unregister and drain them (spec.md §5).
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session holds per-connection state.
type Session struct {
	ID           string
	Identity     string // "" until AUTH succeeds
	Authenticated bool
	CreatedAt    time.Time
	LastActiveAt time.Time

	mu              sync.Mutex
	subscriptionIDs []string
}

// New creates an unauthenticated session.
func New() *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func (s *Session) Touch() { s.LastActiveAt = time.Now() }

// Authenticate records a successful AUTH handshake (spec.md §6); identity
// becomes the default writer on subsequent writes from this connection.
func (s *Session) Authenticate(identity string) {
	s.Identity = identity
	s.Authenticated = true
}

// TrackSubscription records a subscription id owned by this connection so
// the connection loop can unregister it on disconnect (Manager.Close does
// not).
func (s *Session) TrackSubscription(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptionIDs = append(s.subscriptionIDs, id)
}

// SubscriptionIDs returns a copy of every subscription id owned by this
// connection.
func (s *Session) SubscriptionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.subscriptionIDs))
	copy(out, s.subscriptionIDs)
	return out
}

// Manager tracks every live connection's Session, keyed by connection id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Open registers a fresh Session for a newly accepted connection.
func (m *Manager) Open() *Session {
	s := New()
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close removes s from the manager. The caller is responsible for
// unregistering s.SubscriptionIDs() from the notification registry
// beforehand (spec.md §5, "subscriptions belonging to a closed connection
// are unregistered; their queues are drained and discarded").
func (m *Manager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
