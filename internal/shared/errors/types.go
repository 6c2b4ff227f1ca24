package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies coordination runtime errors for routing and retry decisions.
type Kind string

const (
	// KindNotFound - a referenced entity is missing
	KindNotFound Kind = "NOT_FOUND"
	// KindInvalidState - illegal status transition or missing prerequisite
	KindInvalidState Kind = "INVALID_STATE"
	// KindAccessDenied - path escape or unauthorized operation
	KindAccessDenied Kind = "ACCESS_DENIED"
	// KindBadInput - missing required field, malformed JSON, unknown provider
	KindBadInput Kind = "BAD_INPUT"
	// KindProviderUnavailable - built-in provider disabled or registry returned nothing
	KindProviderUnavailable Kind = "PROVIDER_UNAVAILABLE"
	// KindUpstream - LLM or HTTP call failed
	KindUpstream Kind = "UPSTREAM_ERROR"
	// KindCancelled - cooperative cancellation observed
	KindCancelled Kind = "CANCELLED"
	// KindMaxIterations - agent loop exceeded its iteration budget
	KindMaxIterations Kind = "MAX_ITERATIONS"
)

// CoordError is the typed error propagated across public API boundaries.
// It never escapes as a panic; callers coerce it into a typed result or a
// stream error chunk.
type CoordError struct {
	Kind    Kind
	Err     error
	Message string // LLM-friendly message
}

func (e *CoordError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *CoordError) Unwrap() error {
	return e.Err
}

// New creates a CoordError with a formatted message.
func New(kind Kind, format string, args ...any) *CoordError {
	return &CoordError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, message string) *CoordError {
	return &CoordError{Kind: kind, Err: err, Message: message}
}

// NotFound constructs a NOT_FOUND error for a missing entity.
func NotFound(entity, id string) *CoordError {
	return New(KindNotFound, "%s not found: %s", entity, id)
}

// InvalidState constructs an INVALID_STATE error.
func InvalidState(format string, args ...any) *CoordError {
	return New(KindInvalidState, format, args...)
}

// AccessDenied constructs an ACCESS_DENIED error.
func AccessDenied(format string, args ...any) *CoordError {
	return New(KindAccessDenied, format, args...)
}

// BadInput constructs a BAD_INPUT error.
func BadInput(format string, args ...any) *CoordError {
	return New(KindBadInput, format, args...)
}

// Upstream wraps an LLM or HTTP failure.
func Upstream(err error, message string) *CoordError {
	return Wrap(KindUpstream, err, message)
}

// Cancelled constructs a CANCELLED error.
func Cancelled(what string) *CoordError {
	return New(KindCancelled, "%s cancelled", what)
}

// KindOf returns the Kind of err, or "" when err carries no CoordError.
func KindOf(err error) Kind {
	var ce *CoordError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsInvalidState reports whether err is an INVALID_STATE error.
func IsInvalidState(err error) bool { return IsKind(err, KindInvalidState) }

// IsAccessDenied reports whether err is an ACCESS_DENIED error.
func IsAccessDenied(err error) bool { return IsKind(err, KindAccessDenied) }

// IsCancelled reports whether err is a CANCELLED error.
func IsCancelled(err error) bool { return IsKind(err, KindCancelled) }

// Recoverable reports whether the caller may reasonably retry or continue
// after err. Upstream failures are recoverable at the caller's discretion;
// everything else in the taxonomy is terminal for that call.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindUpstream:
		return true
	default:
		return false
	}
}

// FormatForLLM converts technical errors to LLM-friendly actionable messages.
func FormatForLLM(err error) string {
	if err == nil {
		return ""
	}

	var ce *CoordError
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}

	errStr := err.Error()
	lowerErr := strings.ToLower(errStr)

	if strings.Contains(lowerErr, "connection refused") {
		if strings.Contains(lowerErr, "11434") || strings.Contains(lowerErr, "ollama") {
			return "Ollama server is not running. Please start it with: ollama serve"
		}
		return "Service is not running. Please check if the required service is started."
	}

	if strings.Contains(lowerErr, "rate limit") || strings.Contains(lowerErr, "429") {
		return "API rate limit reached. Consider retrying after a short wait."
	}

	if strings.Contains(lowerErr, "timeout") || strings.Contains(lowerErr, "deadline exceeded") {
		return "Request timed out. The operation may be too complex. Try breaking it into smaller steps."
	}

	if strings.Contains(lowerErr, "unauthorized") || strings.Contains(lowerErr, "401") {
		return "Authentication failed. Please check your API key configuration."
	}

	if strings.Contains(lowerErr, "not found") || strings.Contains(lowerErr, "404") {
		return "Resource not found. Please verify the path or identifier."
	}

	return errStr
}
