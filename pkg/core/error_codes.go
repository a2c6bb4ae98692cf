package core

import (
	"context"
	"errors"
	"net"
)

// ErrorCode is a stable, machine-readable identifier for an error condition.
// Codes are used as metric labels and in CLI status output.
type ErrorCode string

// Error code constants.
const (
	ErrCodeNetwork     ErrorCode = "NETWORK_ERROR"
	ErrCodeTimeout     ErrorCode = "TIMEOUT"
	ErrCodeRejected    ErrorCode = "REJECTED"
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_BREAKER_OPEN"
	ErrCodeCancelled   ErrorCode = "CANCELLED"
	ErrCodeUnknown     ErrorCode = "UNKNOWN"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Session state errors
	ErrCodeSessionClosed ErrorCode = "SESSION_CLOSED"
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"
)

// Code returns the ErrorCode for err.
func Code(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrSessionClosed):
		return ErrCodeSessionClosed
	case errors.Is(err, ErrAlreadyInitialized):
		return ErrCodeInvalidState
	}
	switch Classify(err) {
	case ErrorTypeNetwork:
		return ErrCodeNetwork
	case ErrorTypeTimeout:
		return ErrCodeTimeout
	case ErrorTypeRejected:
		return ErrCodeRejected
	case ErrorTypeCircuitOpen:
		return ErrCodeCircuitOpen
	case ErrorTypeCancelled:
		return ErrCodeCancelled
	}
	return ErrCodeUnknown
}

// IsErrorCode checks if the error maps to the specified error code.
func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && Code(err) == code
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isNetwork(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
