package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var ErrUnauthorized = errors.New("request is not authorized")
var ErrNotFound = errors.New("not found")

// Checkout flow sentinels
var (
	ErrStepInFlight = errors.New("another checkout step is still in flight")
	ErrInvalidStep  = errors.New("operation not allowed in the current checkout step")
	ErrTimeout      = errors.New("request timed out")
)

// ValidationError - client-side field failure, never reaches the network
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every failed field of a form
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// First returns the first failure, which is the one surfaced to the user
func (v ValidationErrors) First() *ValidationError {
	if len(v) == 0 {
		return nil
	}
	return v[0]
}

// NetworkError wraps transport failures of outbound calls
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("%s: %v: %v", e.Op, ErrTimeout, e.Err)
	}
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTimeout) match timed out calls
func (e *NetworkError) Is(target error) bool {
	return target == ErrTimeout && e.Timeout()
}

func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// GatewayError - the payment processor answered with a structured failure
type GatewayError struct {
	Status  int
	Message string
	Code    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("rapikom API error (status %d): %s", e.Status, e.Message)
}

// BackendError - the booking backend rejected a request (e.g. seat already taken)
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("booking backend error (status %d): %s", e.Status, e.Message)
}

// SignatureError - webhook delivery failed authentication
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return "invalid webhook signature: " + e.Reason
}

// Is lets errors.Is(err, ErrUnauthorized) match failed signatures
func (e *SignatureError) Is(target error) bool {
	return target == ErrUnauthorized
}

// ReconciliationError - a handler failed while applying an event
type ReconciliationError struct {
	EventType     string
	TransactionID string
	Err           error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile %s (transaction %s): %v", e.EventType, e.TransactionID, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transport failure worth retrying
func IsRetryable(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	var ves ValidationErrors
	return errors.As(err, &ve) || errors.As(err, &ves)
}
