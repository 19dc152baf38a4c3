package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neetly/session-backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	ArchiveBatchSize    = 50
	ArchiveBatchTimeout = 2 * time.Second
	ArchivePollTimeout  = 1 * time.Second
)

// ArchiveWorker persists completed attempts into attempt_archive. The
// scorecard itself lives upstream; the archive keeps a local audit trail
// of what was submitted and when.
type ArchiveWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewArchiveWorker creates an ArchiveWorker.
func NewArchiveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ArchiveWorker {
	return &ArchiveWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "archive_worker").Logger(),
	}
}

type archivePayload struct {
	SessionID    string          `json:"session_id"`
	TestID       string          `json:"test_id"`
	UserID       string          `json:"user_id"`
	TestName     string          `json:"test_name"`
	ScorecardURL string          `json:"scorecard_url"`
	TotalTime    int64           `json:"total_time"`
	Answers      json.RawMessage `json:"answers"`
	CompletedAt  int64           `json:"completed_at"`
}

// Start runs the consume loop until ctx is cancelled.
func (w *ArchiveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ArchiveWorker started")

	batch := make([]*archivePayload, 0, ArchiveBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ArchiveBatchSize || time.Since(lastFlush) >= ArchiveBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ArchivePollTimeout, config.WorkerKey.AttemptArchiveQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p archivePayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *ArchiveWorker) flushSafe(ctx context.Context, batch []*archivePayload) {
	if len(batch) == 0 {
		return
	}

	for _, p := range batch {
		if err := w.persistSingle(ctx, p); err != nil {
			w.log.Error().Err(err).Str("session_id", p.SessionID).Msg("Archive insert failed — requeueing")
			raw, _ := json.Marshal(p)
			w.rdb.RPush(ctx, config.WorkerKey.AttemptArchiveQueue, raw)
		}
	}
}

func (w *ArchiveWorker) persistSingle(ctx context.Context, p *archivePayload) error {
	sessionID, err := uuid.Parse(p.SessionID)
	if err != nil {
		// Unparseable id never succeeds; drop instead of requeueing forever.
		w.log.Error().Str("session_id", p.SessionID).Msg("Dropping archive with invalid session id")
		return nil
	}

	answers := p.Answers
	if len(answers) == 0 {
		answers = json.RawMessage("[]")
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO attempt_archive
             (session_id, test_id, user_id, test_name, scorecard_url, total_time, answers, completed_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
         ON CONFLICT (session_id) DO NOTHING`,
		sessionID, p.TestID, p.UserID, p.TestName, p.ScorecardURL, p.TotalTime,
		answers, time.Unix(p.CompletedAt, 0),
	)
	return err
}
