package session

import "errors"

// Session lifecycle errors.
var (
	// ErrMissingIdentifiers means test id or user id was absent at load
	// time. Terminal, same handling as a load failure.
	ErrMissingIdentifiers = errors.New("missing test id or user id")
	// ErrNotFound means no live session with the given id exists.
	ErrNotFound = errors.New("session not found")
	// ErrNoQuestions blocks submission of a session with an empty
	// question sequence.
	ErrNoQuestions = errors.New("session has no questions")
	// ErrSubmitInFlight suppresses a second submit while one is pending.
	ErrSubmitInFlight = errors.New("submission already in progress")
	// ErrCompleted rejects mutations after the session reached a
	// terminal state.
	ErrCompleted = errors.New("session already completed")
	// ErrUnknownQuestion rejects operations on a question id outside the
	// loaded sequence.
	ErrUnknownQuestion = errors.New("unknown question id")
	// ErrInvalidOption rejects an answer outside optiona..optiond.
	ErrInvalidOption = errors.New("invalid option key")
)
