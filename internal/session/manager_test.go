package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neetly/session-backend/internal/model"
	"github.com/neetly/session-backend/internal/upstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(up *stubUpstream, opts ...Option) *Manager {
	if up.set == nil && up.loadErr == nil {
		up.set = &upstream.QuestionSet{Questions: makeQuestions(3)}
	}
	return NewManager(up, NopSink{}, time.Hour, zerolog.Nop(), opts...)
}

func TestManagerCreateAndGet(t *testing.T) {
	m := newTestManager(&stubUpstream{})

	c, err := m.Create(context.Background(), model.TestInfo{
		TestID: "77", UserID: "501", TestName: "Mock 1", TimeMinutes: 30,
	})
	require.NoError(t, err)
	defer c.Teardown()

	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, 1, m.Count())

	got, err := m.Get(c.ID())
	require.NoError(t, err)
	assert.Same(t, c, got)

	_, err = m.Get(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerCreateRejectsMissingIdentifiers(t *testing.T) {
	m := newTestManager(&stubUpstream{})

	_, err := m.Create(context.Background(), model.TestInfo{TestID: "77"})
	assert.ErrorIs(t, err, ErrMissingIdentifiers)

	_, err = m.Create(context.Background(), model.TestInfo{UserID: "501"})
	assert.ErrorIs(t, err, ErrMissingIdentifiers)

	assert.Zero(t, m.Count())
}

func TestManagerCreateDoesNotRegisterFailedLoad(t *testing.T) {
	m := newTestManager(&stubUpstream{loadErr: assertableErr{}})

	_, err := m.Create(context.Background(), model.TestInfo{TestID: "77", UserID: "501"})
	require.Error(t, err)
	assert.Zero(t, m.Count())
}

type assertableErr struct{}

func (assertableErr) Error() string { return "load failed" }

func TestManagerTeardownStopsSession(t *testing.T) {
	m := newTestManager(&stubUpstream{})

	c, err := m.Create(context.Background(), model.TestInfo{
		TestID: "77", UserID: "501", TimeMinutes: 30,
	})
	require.NoError(t, err)

	m.Teardown(c.ID())
	assert.Zero(t, m.Count())
	assert.False(t, c.Guard().Active())

	_, err = m.Get(c.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	// Unknown id is a no-op.
	m.Teardown(uuid.New())
}

func TestManagerSweepExpiresIdleSessions(t *testing.T) {
	// Fresh session on the real clock survives the sweep.
	fresh := newTestManager(&stubUpstream{})
	c, err := fresh.Create(context.Background(), model.TestInfo{TestID: "77", UserID: "501"})
	require.NoError(t, err)
	defer c.Teardown()

	fresh.sweep()
	assert.Equal(t, 1, fresh.Count())

	// A session whose clock froze a year ago is well past the TTL.
	old := newFakeClock()
	stale := newTestManager(&stubUpstream{}, WithClock(old.Now))
	s, err := stale.Create(context.Background(), model.TestInfo{TestID: "78", UserID: "501"})
	require.NoError(t, err)

	stale.sweep()
	assert.Zero(t, stale.Count())
	assert.False(t, s.Guard().Active())
}
