// internal/store/memory.go
//
// In-memory registry of live play sessions.
//
// Characteristics:
//   - Stores *Session objects keyed by ID in a map.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts; games are never restored.
//   - Removing a session (Delete or Sweep) closes its engine so no timer
//     outlives it.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robalobadob/concentration/internal/game"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("not found")

// Session is one player's game plus the bookkeeping around it.
type Session struct {
	ID        string
	ClientID  string // anonymous client that created the game
	Mode      string // "classic" | "daily"
	Date      string // deal date for daily games
	Engine    *game.Engine
	CreatedAt time.Time

	// FirstGeneration is the engine generation of the initial deal.
	FirstGeneration uint64

	mu       sync.Mutex
	lastSeen time.Time
}

// Touch marks the session as used now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen reports the last Touch (or creation) time.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Store defines the registry interface for sessions.
type Store interface {
	// Save adds or replaces a session.
	Save(ctx context.Context, s *Session) error

	// Get retrieves a session by ID or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session and closes its engine.
	Delete(ctx context.Context, id string) error

	// Sweep closes and drops sessions not touched since cutoff.
	Sweep(cutoff time.Time) int

	// Len reports how many sessions are live.
	Len() int
}

type memory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{sessions: make(map[string]*Session)}
}

func (m *memory) Save(ctx context.Context, s *Session) error {
	if s.ID == "" {
		return errors.New("store: session without id")
	}
	if s.LastSeen().IsZero() {
		s.Touch(s.CreatedAt)
	}
	m.mu.Lock()
	prev := m.sessions[s.ID]
	m.sessions[s.ID] = s
	m.mu.Unlock()
	if prev != nil && prev != s && prev.Engine != nil {
		prev.Engine.Close()
	}
	return nil
}

func (m *memory) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, ErrNotFound
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if s.Engine != nil {
		s.Engine.Close()
	}
	return nil
}

func (m *memory) Sweep(cutoff time.Time) int {
	var stale []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	// Close outside the lock: Close delivers nothing but takes the engine mutex.
	for _, s := range stale {
		if s.Engine != nil {
			s.Engine.Close()
		}
	}
	return len(stale)
}

func (m *memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
