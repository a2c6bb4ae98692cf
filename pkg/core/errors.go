package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of a transport or session error.
type ErrorType int

// Error type constants categorize errors for logging and metrics.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork indicates a network connectivity issue.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates the attempt exceeded its deadline.
	ErrorTypeTimeout
	// ErrorTypeRejected indicates the peer answered but refused the connection.
	ErrorTypeRejected
	// ErrorTypeCircuitOpen indicates the attempt was refused locally by a circuit breaker.
	ErrorTypeCircuitOpen
	// ErrorTypeCancelled indicates the attempt was abandoned because the session ended.
	ErrorTypeCancelled
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"NETWORK",
		"TIMEOUT",
		"REJECTED",
		"CIRCUIT_OPEN",
		"CANCELLED",
	}[t]
}

// Sentinel errors for common error conditions.
var (
	// ErrSessionClosed is returned when using a session after leave or destroy.
	ErrSessionClosed = errors.New("session is closed")
	// ErrAlreadyInitialized is returned when Init is called twice on one session.
	ErrAlreadyInitialized = errors.New("session already initialized")
	// ErrNotConnected is returned when the transport has no live connection.
	ErrNotConnected = errors.New("transport not connected")
	// ErrTransportClosed is returned by a transport after Leave.
	ErrTransportClosed = errors.New("transport is closed")
	// ErrCircuitOpen is returned when the attempt circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrAttemptRejected is returned by the simulated transport for an unlucky attempt.
	ErrAttemptRejected = errors.New("reconnect rejected")
)

// ReconnectError is the single error kind produced by a failed reconnect attempt.
// The state machine recovers from it locally; callers only see it through observers.
type ReconnectError struct {
	// Type categorizes the failure.
	Type ErrorType `json:"type"`
	// Session identifies the session that made the attempt.
	Session string `json:"session"`
	// Episode is the 1-based disconnect episode number within the session.
	Episode int `json:"episode"`
	// Attempt is the 1-based attempt number within the episode.
	Attempt int `json:"attempt"`
	// Cause is the error returned by the transport.
	Cause error `json:"-"`
	// Timestamp is when the attempt failed.
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface for ReconnectError.
func (e *ReconnectError) Error() string {
	return fmt.Sprintf("[%s] reconnect attempt %d (episode %d) failed: %s: %v",
		e.Session, e.Attempt, e.Episode, e.Type, e.Cause)
}

// Unwrap returns the transport error.
func (e *ReconnectError) Unwrap() error {
	return e.Cause
}

// NewReconnectError creates a ReconnectError and classifies cause.
// The timestamp is automatically set to the current time.
func NewReconnectError(session string, episode, attempt int, cause error) *ReconnectError {
	return &ReconnectError{
		Type:      Classify(cause),
		Session:   session,
		Episode:   episode,
		Attempt:   attempt,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// Classify maps a transport error onto an ErrorType.
func Classify(err error) ErrorType {
	var re *ReconnectError
	switch {
	case err == nil:
		return ErrorTypeUnknown
	case errors.As(err, &re):
		return re.Type
	case errors.Is(err, ErrCircuitOpen):
		return ErrorTypeCircuitOpen
	case errors.Is(err, ErrAttemptRejected):
		return ErrorTypeRejected
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrTransportClosed):
		return ErrorTypeCancelled
	case isTimeout(err):
		return ErrorTypeTimeout
	case isNetwork(err):
		return ErrorTypeNetwork
	}
	return ErrorTypeUnknown
}

// IsReconnectError returns true if err is, or wraps, a ReconnectError.
func IsReconnectError(err error) bool {
	var re *ReconnectError
	return errors.As(err, &re)
}

// IsTimeoutError returns true if the error is a timeout.
func IsTimeoutError(err error) bool {
	return Classify(err) == ErrorTypeTimeout
}
