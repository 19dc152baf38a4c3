// Package session implements the exam attempt lifecycle: question loading,
// navigation, the per-question timing ledger, the countdown clock, lockdown
// guarding and answer submission. One Controller owns one attempt; all
// mutations go through its methods.
package session

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neetly/session-backend/internal/model"
	"github.com/neetly/session-backend/internal/upstream"
	"github.com/rs/zerolog"
)

// State is the session lifecycle state.
type State string

const (
	StateLoading    State = "loading"
	StateError      State = "error"
	StateReady      State = "ready"
	StateInProgress State = "in_progress"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
)

// SubmitTrigger distinguishes how a submission started. Both triggers run
// the exact same procedure.
type SubmitTrigger string

const (
	TriggerManual SubmitTrigger = "manual"
	TriggerExpiry SubmitTrigger = "timer_expiry"
)

// Upstream is the slice of the legacy API the controller needs.
type Upstream interface {
	FetchQuestions(ctx context.Context, testID, userID string) (*upstream.QuestionSet, error)
	SubmitAnswers(ctx context.Context, testID, userID string, answers []model.AnswerRecord, live bool, totalTimeSeconds int64) (string, error)
}

// Controller drives one exam attempt from question load to submission.
// Safe for concurrent use; every HTTP/WS request for the session funnels
// through its mutex, which is what makes the read-and-clear of a
// visit-start marker atomic with respect to countdown ticks.
type Controller struct {
	id   uuid.UUID
	info model.TestInfo

	upstream Upstream
	sink     EventSink
	guard    *Guard
	log      zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     State
	started   bool
	questions []model.Question
	byID      map[string]*model.Question
	index     int

	answers    map[string]model.OptionKey
	flagged    map[string]struct{}
	bookmarked map[string]struct{}

	// ledger holds accumulated viewing seconds per question id.
	// visitStart marks when the currently displayed, unanswered question
	// became visible; absent means "not running".
	ledger     map[string]int64
	visitStart map[string]time.Time

	hasCountdown bool
	totalSecs    int64
	remaining    int64

	// pending caches the assembled payload after the first submit attempt
	// so a retry after a network failure resubmits the identical attempt.
	pending      []model.AnswerRecord
	pendingTotal int64
	submitErr    error
	scorecardURL string

	subs    map[int]subscriber
	nextSub int

	stopCountdown context.CancelFunc
	lastTouch     time.Time
	torndown      bool
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock overrides the wall clock. Tests use it to drive the timing
// ledger deterministically.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a controller in the Loading state. Call Load to
// fetch the question set.
func NewController(info model.TestInfo, up Upstream, sink EventSink, log zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		id:         uuid.New(),
		info:       info,
		upstream:   up,
		sink:       sink,
		now:        time.Now,
		state:      StateLoading,
		byID:       make(map[string]*model.Question),
		answers:    make(map[string]model.OptionKey),
		flagged:    make(map[string]struct{}),
		bookmarked: make(map[string]struct{}),
		ledger:     make(map[string]int64),
		visitStart: make(map[string]time.Time),
		subs:       make(map[int]subscriber),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = log.With().
		Str("component", "session_controller").
		Str("session_id", c.id.String()).
		Logger()
	c.guard = newGuard(c.id.String(), info.TestID, info.UserID, sink, c.notify, c.log)
	c.lastTouch = c.now()
	return c
}

// ID returns the session identifier.
func (c *Controller) ID() uuid.UUID { return c.id }

// Info returns the test metadata the session was created with.
func (c *Controller) Info() model.TestInfo { return c.info }

// Guard exposes the lockdown guard for violation intake.
func (c *Controller) Guard() *Guard { return c.guard }

// Load fetches the question set and moves the session to Ready (or Error).
// A load failure is terminal: the caller surfaces it and the session is
// never registered.
func (c *Controller) Load(ctx context.Context) error {
	if c.info.TestID == "" || c.info.UserID == "" {
		c.mu.Lock()
		c.state = StateError
		c.mu.Unlock()
		return ErrMissingIdentifiers
	}

	set, err := c.upstream.FetchQuestions(ctx, c.info.TestID, c.info.UserID)
	if err != nil {
		c.mu.Lock()
		c.state = StateError
		c.mu.Unlock()
		c.log.Error().Err(err).Str("test_id", c.info.TestID).Msg("Question load failed")
		return fmt.Errorf("load questions: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.questions = set.Questions
	for i := range c.questions {
		c.byID[c.questions[i].ID] = &c.questions[i]
	}
	if set.SubjectName != "" {
		c.info.SubjectName = set.SubjectName
	}
	if set.SubjectYear != "" {
		c.info.SubjectYear = set.SubjectYear
	}

	if len(c.questions) > 0 && c.info.TimeMinutes > 0 {
		c.hasCountdown = true
		c.totalSecs = int64(c.info.TimeMinutes) * 60
		c.remaining = c.totalSecs
	}

	c.state = StateReady
	// The first question is on screen from the moment the set arrives.
	if len(c.questions) > 0 {
		c.enterLocked(c.questions[0].ID)
	}

	c.log.Info().
		Str("test_id", c.info.TestID).
		Int("questions", len(c.questions)).
		Int64("total_seconds", c.totalSecs).
		Msg("Session ready")
	return nil
}

// Start acquires the lockdown guard and starts the countdown loop. ctx
// bounds both; Teardown or completion stops them early.
func (c *Controller) Start(ctx context.Context) {
	c.guard.Acquire(ctx)

	c.mu.Lock()
	run := c.hasCountdown && c.stopCountdown == nil && !c.torndown
	var loopCtx context.Context
	if run {
		loopCtx, c.stopCountdown = context.WithCancel(ctx)
	}
	c.mu.Unlock()

	if run {
		go c.runCountdown(loopCtx)
	}
}

// ─── Navigation ─────────────────────────────────────────────────────

// GoTo moves to the question at index i. Out-of-range indexes are
// silently ignored.
func (c *Controller) GoTo(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goToLocked(i)
}

// Next moves one question forward, clamped at the last question.
func (c *Controller) Next() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goToLocked(c.index + 1)
}

// Previous moves one question back, clamped at the first question.
func (c *Controller) Previous() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goToLocked(c.index - 1)
}

func (c *Controller) goToLocked(i int) {
	if i < 0 || i >= len(c.questions) || i == c.index {
		return
	}
	if !c.interactiveLocked() {
		return
	}

	leaving := c.questions[c.index].ID
	if _, answered := c.answers[leaving]; !answered {
		c.flushVisitLocked(leaving, c.now())
	}

	c.index = i
	c.enterLocked(c.questions[i].ID)
	c.touchLocked()
}

// enterLocked begins a visit for an unanswered question. Accumulated time
// is never reset — a revisit continues from where it left off.
func (c *Controller) enterLocked(qid string) {
	if _, answered := c.answers[qid]; answered {
		return
	}
	c.visitStart[qid] = c.now()
}

// flushVisitLocked folds the open visit duration into the ledger and
// clears the marker. A question with no open visit is a no-op, which is
// what makes answer selection idempotent with respect to timing.
func (c *Controller) flushVisitLocked(qid string, at time.Time) {
	start, ok := c.visitStart[qid]
	if !ok {
		return
	}
	secs := int64(math.Round(at.Sub(start).Seconds()))
	if secs > 0 {
		c.ledger[qid] += secs
	}
	delete(c.visitStart, qid)
}

// ─── Answering, flags, bookmarks ────────────────────────────────────

// SelectAnswer records the chosen option for a question. The open visit is
// flushed exactly once; re-selecting updates the choice without adding
// time. Marks the session started.
func (c *Controller) SelectAnswer(qid string, opt model.OptionKey) error {
	if !opt.Valid() {
		return ErrInvalidOption
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutableLocked(); err != nil {
		return err
	}
	if _, ok := c.byID[qid]; !ok {
		return ErrUnknownQuestion
	}

	c.flushVisitLocked(qid, c.now())
	c.answers[qid] = opt
	c.markStartedLocked()
	c.touchLocked()
	go c.sink.SaveSnapshot(context.Background(), c.snapshotLocked())
	return nil
}

// ToggleFlag flips the flagged-for-review marker. Pure set membership —
// no effect on answers or timing. Marks the session started.
func (c *Controller) ToggleFlag(qid string) (bool, error) {
	return c.toggleSet(qid, c.flagged)
}

// ToggleBookmark flips the bookmark marker. Bookmarks travel in the
// submit payload; flags stay client-side.
func (c *Controller) ToggleBookmark(qid string) (bool, error) {
	return c.toggleSet(qid, c.bookmarked)
}

func (c *Controller) toggleSet(qid string, set map[string]struct{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutableLocked(); err != nil {
		return false, err
	}
	if _, ok := c.byID[qid]; !ok {
		return false, ErrUnknownQuestion
	}

	var on bool
	if _, ok := set[qid]; ok {
		delete(set, qid)
	} else {
		set[qid] = struct{}{}
		on = true
	}
	c.markStartedLocked()
	c.touchLocked()
	go c.sink.SaveSnapshot(context.Background(), c.snapshotLocked())
	return on, nil
}

func (c *Controller) markStartedLocked() {
	if !c.started {
		c.started = true
	}
	if c.state == StateReady {
		c.state = StateInProgress
	}
}

// Started reports whether any answer/flag/bookmark action happened yet.
// Gates the client's reload/navigation warnings.
func (c *Controller) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// interactiveLocked reports whether navigation is meaningful.
func (c *Controller) interactiveLocked() bool {
	switch c.state {
	case StateReady, StateInProgress, StateSubmitting:
		return true
	}
	return false
}

// mutableLocked guards answer/flag/bookmark mutations. Once a submission
// has assembled its payload the attempt is locally final, even if the
// network call failed and a retry is pending.
func (c *Controller) mutableLocked() error {
	switch c.state {
	case StateSubmitting:
		return ErrSubmitInFlight
	case StateCompleted:
		return ErrCompleted
	case StateReady, StateInProgress:
		if c.pending != nil {
			return ErrCompleted
		}
		return nil
	}
	return ErrNotFound
}

// ─── Countdown ──────────────────────────────────────────────────────

func (c *Controller) runCountdown(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, stop := c.tick()
			if expired {
				c.autoSubmit()
			}
			if stop {
				return
			}
		}
	}
}

// tick decrements the countdown by one second. It never touches the
// ledger. Returns expired=true exactly once, on the zero crossing.
func (c *Controller) tick() (expired, stop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.torndown || c.state == StateCompleted || c.state == StateError {
		return false, true
	}
	if c.state == StateSubmitting {
		// A submission is already finishing the attempt.
		return false, false
	}
	if !c.hasCountdown || c.remaining <= 0 {
		return false, true
	}

	c.remaining--
	c.notifyLocked(Event{
		Type:      EventTick,
		Remaining: c.remaining,
		Display:   FormatClock(c.remaining),
	})

	if c.remaining == 0 {
		return true, true
	}
	return false, false
}

// autoSubmit runs the forced submission on timer expiry. A concurrent
// manual submit wins the race; the loser is suppressed by the state guard.
func (c *Controller) autoSubmit() {
	if _, err := c.Submit(context.Background(), TriggerExpiry); err != nil {
		c.log.Error().Err(err).Msg("Forced submission failed")
	}
}

// ─── Submission ─────────────────────────────────────────────────────

// Result is what a successful submission hands back to the results step.
type Result struct {
	ScorecardURL string               `json:"scorecard_url"`
	Test         model.TestInfo       `json:"test"`
	Answers      []model.AnswerRecord `json:"answers"`
	TotalTime    int64                `json:"total_time"`
}

// Submit runs the submission procedure: finalize timing, assemble one
// record per question in load order, post upstream. Manual and forced
// submissions share this path; re-entry while one is pending is rejected.
// On upstream failure the session stays InProgress and the identical
// payload is reused on retry.
func (c *Controller) Submit(ctx context.Context, trigger SubmitTrigger) (*Result, error) {
	c.mu.Lock()

	switch c.state {
	case StateSubmitting:
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	case StateCompleted:
		c.mu.Unlock()
		return nil, ErrCompleted
	case StateLoading, StateError:
		c.mu.Unlock()
		return nil, ErrNoQuestions
	}
	if len(c.questions) == 0 {
		c.mu.Unlock()
		return nil, ErrNoQuestions
	}

	if c.pending == nil {
		// Step 1: flush open visits of unanswered questions so "time ran
		// out while viewing" is accounted for.
		now := c.now()
		for i := range c.questions {
			qid := c.questions[i].ID
			if _, answered := c.answers[qid]; !answered {
				c.flushVisitLocked(qid, now)
			}
		}

		// Step 2: total time taken = allotted − remaining.
		c.pendingTotal = c.totalSecs - c.remaining

		// Step 3: one record per question, original order.
		records := make([]model.AnswerRecord, 0, len(c.questions))
		for i := range c.questions {
			q := &c.questions[i]
			_, bookmarked := c.bookmarked[q.ID]
			records = append(records, model.NewAnswerRecord(q, c.answers[q.ID], c.ledger[q.ID], bookmarked))
		}
		c.pending = records
	}

	records := c.pending
	total := c.pendingTotal
	info := c.info
	c.state = StateSubmitting
	c.submitErr = nil
	c.mu.Unlock()

	c.log.Info().
		Str("trigger", string(trigger)).
		Int("records", len(records)).
		Int64("total_time", total).
		Msg("Submitting attempt")

	url, err := c.upstream.SubmitAnswers(ctx, info.TestID, info.UserID, records, info.Live, total)

	c.mu.Lock()
	if err != nil {
		// Recoverable: back to InProgress, payload kept for retry.
		c.state = StateInProgress
		c.submitErr = err
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("Submission failed, retry permitted")
		return nil, fmt.Errorf("submit answers: %w", err)
	}

	c.state = StateCompleted
	c.scorecardURL = url
	snap := c.snapshotLocked()
	c.mu.Unlock()

	// Step 4 epilogue: no tick and no lockdown survives completion.
	c.guard.Release()
	c.stopCountdownLoop()

	c.notify(Event{Type: EventCompleted, Scorecard: url})
	c.sink.SaveSnapshot(ctx, snap)
	c.sink.ArchiveAttempt(ctx, ArchiveRecord{
		SessionID:    c.id.String(),
		TestID:       info.TestID,
		UserID:       info.UserID,
		TestName:     info.TestName,
		ScorecardURL: url,
		TotalTime:    total,
		Answers:      records,
		CompletedAt:  c.now().Unix(),
	})

	c.log.Info().Str("scorecard_url", url).Msg("Attempt completed")
	return &Result{
		ScorecardURL: url,
		Test:         info,
		Answers:      records,
		TotalTime:    total,
	}, nil
}

func (c *Controller) stopCountdownLoop() {
	c.mu.Lock()
	stop := c.stopCountdown
	c.stopCountdown = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// ─── Subscriptions ──────────────────────────────────────────────────

// Subscribe attaches an event stream. The returned cancel func detaches
// it; always call it.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	sub := make(subscriber, 16)
	c.subs[id] = sub

	return sub, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Controller) notify(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyLocked(e)
}

func (c *Controller) notifyLocked(e Event) {
	for _, sub := range c.subs {
		sub.push(e)
	}
}

// ─── Teardown ───────────────────────────────────────────────────────

// Teardown stops the countdown and releases the lockdown guard. Part of
// the resource-cleanup contract: nothing owned by the session may keep
// running after the session is gone. Idempotent.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.torndown {
		c.mu.Unlock()
		return
	}
	c.torndown = true
	c.mu.Unlock()

	c.stopCountdownLoop()
	c.guard.Release()
	c.log.Debug().Msg("Session torn down")
}

func (c *Controller) touchLocked() {
	c.lastTouch = c.now()
}

// LastTouch returns when the session last saw a mutation. The janitor
// uses it to expire abandoned sessions.
func (c *Controller) LastTouch() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTouch
}

func (c *Controller) snapshotLocked() Snapshot {
	answers := make(map[string]string, len(c.answers))
	for qid, opt := range c.answers {
		answers[qid] = string(opt)
	}
	return Snapshot{
		SessionID: c.id.String(),
		State:     c.state,
		Index:     c.index,
		Remaining: c.remaining,
		Answers:   answers,
		Flagged:   sortedKeys(c.flagged),
		Bookmarks: sortedKeys(c.bookmarked),
		UpdatedAt: c.now().Unix(),
	}
}
