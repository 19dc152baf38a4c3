package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neetly/session-backend/internal/model"
	"github.com/rs/zerolog"
)

const janitorInterval = time.Minute

// Manager is the in-process registry of live sessions. One attempt, one
// Controller; lookups are by session id only — the bearer token carries
// the id, so the registry itself needs no per-user index.
type Manager struct {
	upstream Upstream
	sink     EventSink
	ttl      time.Duration
	log      zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Controller

	opts []Option
}

// NewManager creates a session registry. ttl bounds how long an idle
// session survives before the janitor tears it down.
func NewManager(up Upstream, sink EventSink, ttl time.Duration, log zerolog.Logger, opts ...Option) *Manager {
	return &Manager{
		upstream: up,
		sink:     sink,
		ttl:      ttl,
		log:      log.With().Str("component", "session_manager").Logger(),
		sessions: make(map[uuid.UUID]*Controller),
		opts:     opts,
	}
}

// Create loads the question set and registers a new session. A load
// failure registers nothing; the caller gets the error to display.
func (m *Manager) Create(ctx context.Context, info model.TestInfo) (*Controller, error) {
	if info.TestID == "" || info.UserID == "" {
		return nil, ErrMissingIdentifiers
	}

	c := NewController(info, m.upstream, m.sink, m.log, m.opts...)
	if err := c.Load(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[c.ID()] = c
	m.mu.Unlock()

	// The countdown and lockdown guard outlive the creating request.
	c.Start(context.Background())

	m.log.Info().
		Str("session_id", c.ID().String()).
		Str("test_id", info.TestID).
		Str("user_id", info.UserID).
		Msg("Session created")
	return c, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id uuid.UUID) (*Controller, error) {
	m.mu.RLock()
	c, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// Teardown removes a session and stops everything it owns. Unknown ids
// are a no-op.
func (m *Manager) Teardown(id uuid.UUID) {
	m.mu.Lock()
	c, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		c.Teardown()
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RunJanitor sweeps idle and completed sessions until ctx is cancelled.
// Run it in its own goroutine.
func (m *Manager) RunJanitor(ctx context.Context) {
	m.log.Info().Dur("ttl", m.ttl).Msg("Session janitor started")

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("Session janitor stopped")
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*Controller
	for id, c := range m.sessions {
		if c.LastTouch().Before(cutoff) {
			expired = append(expired, c)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, c := range expired {
		c.Teardown()
		m.log.Info().Str("session_id", c.ID().String()).Msg("Expired idle session")
	}
}
