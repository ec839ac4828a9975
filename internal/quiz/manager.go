package quiz

import (
	"context"
	"sync"

	"github.com/HammerMeetNail/levelup/internal/logging"
	"github.com/HammerMeetNail/levelup/internal/models"
)

// Manager keeps at most one live session per user.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	provider Provider
	store    XPStore
	cfg      settings
}

func NewManager(provider Provider, store XPStore, opts ...Option) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		provider: provider,
		store:    store,
		cfg:      defaultSettings(opts),
	}
}

// Start begins a new session for userID. It fails with ErrSessionActive
// while the user already has one and with ErrClosed after Teardown.
func (m *Manager) Start(ctx context.Context, userID string) (models.QuizState, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return models.QuizState{}, ErrClosed
	}
	if _, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return models.QuizState{}, ErrSessionActive
	}
	session := newSession(userID, m.provider, m.store, m.cfg)
	session.onEnd = m.remove
	m.sessions[userID] = session
	m.mu.Unlock()

	if err := session.Start(ctx); err != nil {
		m.remove(session)
		return models.QuizState{}, err
	}

	// Teardown skips sessions that are still starting; end this one here.
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		if _, err := session.End(context.WithoutCancel(ctx)); err != nil {
			m.remove(session)
		}
		return models.QuizState{}, ErrClosed
	}
	return session.Snapshot(), nil
}

func (m *Manager) Get(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	return session, nil
}

func (m *Manager) Snapshot(userID string) (models.QuizState, error) {
	session, err := m.Get(userID)
	if err != nil {
		return models.QuizState{}, err
	}
	return session.Snapshot(), nil
}

func (m *Manager) Submit(ctx context.Context, userID, answer string) (models.QuizState, error) {
	session, err := m.Get(userID)
	if err != nil {
		return models.QuizState{}, err
	}
	return session.Submit(ctx, answer)
}

func (m *Manager) Next(ctx context.Context, userID string) (models.QuizState, error) {
	session, err := m.Get(userID)
	if err != nil {
		return models.QuizState{}, err
	}
	return session.Next(ctx)
}

func (m *Manager) End(ctx context.Context, userID string) (models.QuizState, error) {
	session, err := m.Get(userID)
	if err != nil {
		return models.QuizState{}, err
	}
	return session.End(ctx)
}

// Teardown ends every live session, persisting their scores, and refuses new
// ones. A session still inside Start is ended by that Start call.
func (m *Manager) Teardown(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if _, err := s.End(ctx); err != nil {
			logging.Debug("Quiz session not ended during teardown", map[string]interface{}{
				"error":   err.Error(),
				"user_id": s.userID,
			})
		}
	}
}

func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.userID] == s {
		delete(m.sessions, s.userID)
	}
}
