package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"
	ErrForbidden     ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Session lifecycle ─────────────────────────────────────────────
	ErrMissingIdentifiers ErrCode = "MISSING_IDENTIFIERS"
	ErrLoadFailed         ErrCode = "LOAD_FAILED"
	ErrSessionNotFound    ErrCode = "SESSION_NOT_FOUND"
	ErrSessionCompleted   ErrCode = "SESSION_COMPLETED"
	ErrSubmitInFlight     ErrCode = "SUBMIT_IN_FLIGHT"
	ErrSubmitFailed       ErrCode = "SUBMIT_FAILED"
	ErrNoQuestions        ErrCode = "NO_QUESTIONS"
	ErrUnknownQuestion    ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidOption      ErrCode = "INVALID_OPTION"

	// ─── Upstream passthrough ──────────────────────────────────────────
	ErrUpstreamUnavailable ErrCode = "UPSTREAM_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is not valid."
	case ErrTokenExpired:
		return "The authentication token has expired."
	case ErrForbidden:
		return "You do not have access to this session."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The identifier format is not valid."
	case ErrInvalidPayload:
		return "The request payload is not valid."

	// ─── Session lifecycle ─────────────────────────────────────────────
	case ErrMissingIdentifiers:
		return "Unable to load test questions."
	case ErrLoadFailed:
		return "Unable to load test questions."
	case ErrSessionNotFound:
		return "The test session does not exist or has expired."
	case ErrSessionCompleted:
		return "This test has already been submitted."
	case ErrSubmitInFlight:
		return "A submission is already in progress."
	case ErrSubmitFailed:
		return "Failed to submit the test. Please try again."
	case ErrNoQuestions:
		return "This test has no questions."
	case ErrUnknownQuestion:
		return "The question does not belong to this test."
	case ErrInvalidOption:
		return "The selected option is not valid."

	// ─── Upstream passthrough ──────────────────────────────────────────
	case ErrUpstreamUnavailable:
		return "The service is temporarily unavailable. Please try again."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
