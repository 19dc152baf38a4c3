package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LockdownRule is one advisory anti-cheat rule the client must enforce
// while the session is in progress. These are UX affordances, not a
// security boundary; the server's part is delivering the rule set, nagging
// about fullscreen and recording reported breaches.
type LockdownRule string

const (
	RuleBlockUnload     LockdownRule = "block_unload"
	RuleBlockBackNav    LockdownRule = "block_back_navigation"
	RuleSuppressCopy    LockdownRule = "suppress_copy"
	RuleSuppressCut     LockdownRule = "suppress_cut"
	RuleSuppressPaste   LockdownRule = "suppress_paste"
	RuleSuppressSelect  LockdownRule = "suppress_selection"
	RuleSuppressContext LockdownRule = "suppress_context_menu"
	RuleWarnOnBlur      LockdownRule = "warn_on_tab_blur"
	RuleForceFullscreen LockdownRule = "force_fullscreen"
)

// LockdownRules is the full rule set, delivered to the client on session
// creation. Tab blur deliberately warns instead of force-submitting.
var LockdownRules = []LockdownRule{
	RuleBlockUnload,
	RuleBlockBackNav,
	RuleSuppressCopy,
	RuleSuppressCut,
	RuleSuppressPaste,
	RuleSuppressSelect,
	RuleSuppressContext,
	RuleWarnOnBlur,
	RuleForceFullscreen,
}

// fullscreenReassertEvery paces the best-effort fullscreen nag loop.
const fullscreenReassertEvery = 15 * time.Second

// Guard bundles the lockdown lifecycle for one session: Acquire when the
// attempt starts, Release exactly once when it completes or is torn down.
// Violations reported after release are ignored.
type Guard struct {
	sessionID string
	testID    string
	userID    string
	sink      EventSink
	notify    func(Event)
	log       zerolog.Logger

	mu       sync.Mutex
	active   bool
	released bool
	stop     context.CancelFunc
}

// newGuard creates an inactive guard. notify pushes events toward the
// session's subscribers.
func newGuard(sessionID, testID, userID string, sink EventSink, notify func(Event), log zerolog.Logger) *Guard {
	return &Guard{
		sessionID: sessionID,
		testID:    testID,
		userID:    userID,
		sink:      sink,
		notify:    notify,
		log:       log.With().Str("component", "lockdown_guard").Logger(),
	}
}

// Acquire activates the guard and starts the fullscreen re-assertion loop.
// Acquiring an already-released guard is a no-op.
func (g *Guard) Acquire(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active || g.released {
		return
	}
	g.active = true

	loopCtx, cancel := context.WithCancel(ctx)
	g.stop = cancel
	go g.fullscreenLoop(loopCtx)

	g.log.Debug().Str("session_id", g.sessionID).Msg("Lockdown acquired")
}

// Release deactivates the guard. Safe to call more than once; only the
// first call has any effect.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return
	}
	g.released = true
	g.active = false
	if g.stop != nil {
		g.stop()
		g.stop = nil
	}

	g.log.Debug().Str("session_id", g.sessionID).Msg("Lockdown released")
}

// Active reports whether the guard is currently enforcing.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Report records a client-reported rule breach. Breaches arriving after
// release are dropped. Returns true when the violation was recorded.
func (g *Guard) Report(ctx context.Context, kind ViolationKind, detail string) bool {
	g.mu.Lock()
	active := g.active
	g.mu.Unlock()

	if !active {
		return false
	}

	g.sink.RecordViolation(ctx, Violation{
		SessionID: g.sessionID,
		TestID:    g.testID,
		UserID:    g.userID,
		Kind:      kind,
		Detail:    detail,
		Timestamp: time.Now().Unix(),
	})

	// Every breach is warn-only. Tab blur in particular does NOT force a
	// submit — a product decision carried over from the shipped client.
	g.notify(Event{
		Type:    EventWarning,
		Message: warningMessage(kind),
	})

	return true
}

// fullscreenLoop nags the client to re-enter fullscreen while the guard is
// active. Best effort only.
func (g *Guard) fullscreenLoop(ctx context.Context) {
	ticker := time.NewTicker(fullscreenReassertEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.notify(Event{Type: EventFullscreen})
		}
	}
}

func warningMessage(kind ViolationKind) string {
	switch kind {
	case ViolationTabBlur:
		return "Tab switching is not allowed during the test."
	case ViolationFullscreenExit:
		return "Please stay in fullscreen during the test."
	case ViolationCopy, ViolationCut, ViolationPaste, ViolationSelection:
		return "Clipboard operations are disabled during the test."
	case ViolationContextMenu:
		return "Right-click is disabled during the test."
	case ViolationDevTools:
		return "Developer tools are disabled during the test."
	case ViolationBackNav, ViolationReload:
		return "Browser navigation during the test will lose all progress."
	}
	return "Action not allowed during the test."
}
