package session

// EventType identifies a server-push message on a session stream.
type EventType string

const (
	// EventTick is emitted once per countdown second.
	EventTick EventType = "tick"
	// EventWarning surfaces a non-blocking lockdown warning (tab blur,
	// copy attempt, ...).
	EventWarning EventType = "warning"
	// EventFullscreen asks the client to re-assert fullscreen.
	EventFullscreen EventType = "fullscreen"
	// EventCompleted is the final message: the session reached Completed
	// and carries the scorecard pointer.
	EventCompleted EventType = "completed"
)

// Event is a server-push message delivered to session subscribers.
type Event struct {
	Type      EventType `json:"event"`
	Remaining int64     `json:"remaining,omitempty"`
	Display   string    `json:"display,omitempty"`
	Message   string    `json:"message,omitempty"`
	Scorecard string    `json:"scorecard_url,omitempty"`
}

// subscriber is one attached event stream. Sends never block: a slow
// consumer loses intermediate ticks, not the session.
type subscriber chan Event

func (s subscriber) push(e Event) {
	select {
	case s <- e:
	default:
	}
}
