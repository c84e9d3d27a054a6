package sellergo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorKind classifies a failure so the recovery engine and callers can
// switch on it.
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "INVALID_CREDENTIALS"
	KindTokenRefresh       ErrorKind = "TOKEN_REFRESH_FAILED"
	KindRequestSigning     ErrorKind = "REQUEST_SIGNING_FAILED"
	KindValidation         ErrorKind = "VALIDATION_ERROR"
	KindAuth               ErrorKind = "AUTH_ERROR"
	KindRateLimit          ErrorKind = "RATE_LIMIT_EXCEEDED"
	KindServer             ErrorKind = "SERVER_ERROR"
	KindNetwork            ErrorKind = "NETWORK_ERROR"
	KindClient             ErrorKind = "CLIENT_ERROR"
	KindCircuitOpen        ErrorKind = "CIRCUIT_OPEN"
	KindUnknown            ErrorKind = "UNKNOWN_ERROR"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrCircuitOpen is returned when the circuit breaker is in open state.
	ErrCircuitOpen = errors.New("sellergo: circuit open")

	// ErrInvalidConfiguration is returned when a client was constructed with
	// a configuration that failed validation.
	ErrInvalidConfiguration = errors.New("sellergo: invalid configuration")
)

// ClientError is the typed error surfaced by every layer of the pipeline.
type ClientError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Payload    []byte
	Cause      error

	// Diagnostics populated by the executor.
	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration

	// RetryAfter carries an upstream-requested delay (e.g. from a 429).
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Kind == targetErr.Kind
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Kind: %s\n", e.Kind)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if len(e.Payload) > 0 {
		info += fmt.Sprintf("Payload: %s\n", string(e.Payload))
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// KindOf extracts the error kind from err, or KindUnknown when err carries
// no classification.
func KindOf(err error) ErrorKind {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err represents a failure that might succeed on
// retry: rate limiting, server errors, connectivity failures and an open
// circuit (which heals after its recovery timeout).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	switch KindOf(err) {
	case KindRateLimit, KindServer, KindNetwork, KindCircuitOpen:
		return true
	default:
		return false
	}
}

// classifyStatus maps an upstream HTTP status code to an error kind.
func classifyStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == 401 || statusCode == 403:
		return KindAuth
	case statusCode == 429:
		return KindRateLimit
	case statusCode == 400 || statusCode == 422:
		return KindValidation
	case statusCode >= 400 && statusCode < 500:
		return KindClient
	case statusCode >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// classifySendError maps a transport-level failure to an error kind.
// Timeouts and connectivity failures are network errors; everything else is
// unknown and therefore not retried.
func classifySendError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}
	return KindUnknown
}

// retryableKind reports whether the recovery engine may retry this kind.
// Auth-construction kinds and 4xx classes are never retried.
func retryableKind(kind ErrorKind) bool {
	switch kind {
	case KindRateLimit, KindServer, KindNetwork:
		return true
	default:
		return false
	}
}
