package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/neetly/session-backend/internal/config"
	"github.com/neetly/session-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ViolationKind names a lockdown rule breach reported by the client.
type ViolationKind string

const (
	ViolationTabBlur        ViolationKind = "tab_blur"
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
	ViolationCopy           ViolationKind = "copy"
	ViolationCut            ViolationKind = "cut"
	ViolationPaste          ViolationKind = "paste"
	ViolationSelection      ViolationKind = "selection"
	ViolationContextMenu    ViolationKind = "context_menu"
	ViolationDevTools       ViolationKind = "devtools"
	ViolationBackNav        ViolationKind = "back_navigation"
	ViolationReload         ViolationKind = "reload"
)

// Violation is one recorded lockdown breach.
type Violation struct {
	SessionID string        `json:"session_id"`
	TestID    string        `json:"test_id"`
	UserID    string        `json:"user_id"`
	Kind      ViolationKind `json:"kind"`
	Detail    string        `json:"detail,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// ArchiveRecord is the completed-attempt summary queued for the archive
// worker after a successful submission.
type ArchiveRecord struct {
	SessionID    string               `json:"session_id"`
	TestID       string               `json:"test_id"`
	UserID       string               `json:"user_id"`
	TestName     string               `json:"test_name"`
	ScorecardURL string               `json:"scorecard_url"`
	TotalTime    int64                `json:"total_time"`
	Answers      []model.AnswerRecord `json:"answers"`
	CompletedAt  int64                `json:"completed_at"`
}

// Snapshot is the advisory state image written after every mutation. A
// reconnecting client gets a read-only "state as of" view from it; it does
// not restore an interrupted attempt.
type Snapshot struct {
	SessionID string            `json:"session_id"`
	State     State             `json:"state"`
	Index     int               `json:"index"`
	Remaining int64             `json:"remaining"`
	Answers   map[string]string `json:"answers"`
	Flagged   []string          `json:"flagged"`
	Bookmarks []string          `json:"bookmarks"`
	UpdatedAt int64             `json:"updated_at"`
}

// EventSink receives session by-products: lockdown violations, attempt
// archives and state snapshots. Implementations must be safe for
// concurrent use and must never block the session for long.
type EventSink interface {
	RecordViolation(ctx context.Context, v Violation)
	ArchiveAttempt(ctx context.Context, rec ArchiveRecord)
	SaveSnapshot(ctx context.Context, snap Snapshot)
}

// RedisSink queues violations and archives onto Redis lists for the
// background workers and keeps snapshots in a Redis hash.
type RedisSink struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisSink creates a RedisSink.
func NewRedisSink(rdb *redis.Client, log zerolog.Logger) *RedisSink {
	return &RedisSink{
		rdb: rdb,
		log: log.With().Str("component", "redis_sink").Logger(),
	}
}

func (s *RedisSink) RecordViolation(ctx context.Context, v Violation) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.ProctorEventsQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Str("session_id", v.SessionID).Msg("Violation enqueue failed")
	}
}

func (s *RedisSink) ArchiveAttempt(ctx context.Context, rec ArchiveRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.AttemptArchiveQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Str("session_id", rec.SessionID).Msg("Archive enqueue failed")
	}
}

func (s *RedisSink) SaveSnapshot(ctx context.Context, snap Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	key := config.CacheKey.SessionSnapshotKey(snap.SessionID)
	if err := s.rdb.Set(ctx, key, payload, 24*time.Hour).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", snap.SessionID).Msg("Snapshot write failed")
	}
}

// NopSink discards everything. Used in tests.
type NopSink struct{}

func (NopSink) RecordViolation(context.Context, Violation)    {}
func (NopSink) ArchiveAttempt(context.Context, ArchiveRecord) {}
func (NopSink) SaveSnapshot(context.Context, Snapshot)        {}
