package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Manager keeps at most one session per learner.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions share deps.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, sessions: make(map[string]*Session)}
}

// Start begins a new session for the learner. Any previous session is flushed first.
func (m *Manager) Start(ctx context.Context, userID string, deckID int64, newCap int) (*Session, error) {
	m.mu.Lock()
	prev := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if prev != nil {
		if err := prev.Flush(ctx); err != nil {
			prev.log.Warn("Failed to flush previous session", "error", err)
		}
	}

	s, err := Start(ctx, m.deps, userID, deckID, newCap)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the learner's running session.
func (m *Manager) Get(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// Close flushes and forgets every session.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for user, s := range sessions {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush session of user %s: %w", user, err))
		}
	}
	return errors.Join(errs...)
}
