package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Class categorizes a provider API error for retry and fallback
// decisions.
type Class int

const (
	// ClassTransient covers auth/token-refresh failures, network
	// timeouts, and 5xx responses. Eligible for retry.
	ClassTransient Class = iota

	// ClassCapacity covers quota and availability failures. Not
	// retried as-is; adapters may apply a documented fallback.
	ClassCapacity

	// ClassFatal covers validation and permission failures. Never
	// retried.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassCapacity:
		return "capacity"
	default:
		return "fatal"
	}
}

// Error is a classified provider API error.
type Error struct {
	Provider ID
	Op       string
	Class    Class

	// Status is the HTTP status code for REST-backed adapters, 0
	// otherwise.
	Status int

	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable provider error.
func Transient(provider ID, op string, err error) error {
	return &Error{Provider: provider, Op: op, Class: ClassTransient, Err: err}
}

// Capacity wraps err as a quota/availability provider error.
func Capacity(provider ID, op string, err error) error {
	return &Error{Provider: provider, Op: op, Class: ClassCapacity, Err: err}
}

// Fatal wraps err as a non-retryable provider error.
func Fatal(provider ID, op string, err error) error {
	return &Error{Provider: provider, Op: op, Class: ClassFatal, Err: err}
}

// ClassOf returns the classification of err. Unclassified errors are
// treated as transient: network-level failures from the standard HTTP
// client arrive unwrapped, and retrying them is the safe default.
func ClassOf(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTransient
	}
	return ClassTransient
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return err != nil && ClassOf(err) == ClassTransient
}

// IsCapacity reports whether err is a quota/availability failure.
func IsCapacity(err error) bool {
	return err != nil && ClassOf(err) == ClassCapacity
}

// IsFatal reports whether err must not be retried.
func IsFatal(err error) bool {
	return err != nil && ClassOf(err) == ClassFatal
}

// classifyHTTPStatus maps a provider REST status code to an error
// class. 401 is transient: provider tokens expire mid-pipeline and are
// refreshed on the next attempt.
func classifyHTTPStatus(status int) Class {
	switch {
	case status == http.StatusUnauthorized:
		return ClassTransient
	case status == http.StatusTooManyRequests:
		return ClassCapacity
	case status == http.StatusConflict:
		return ClassTransient
	case status == http.StatusForbidden:
		return ClassFatal
	case status >= 500:
		return ClassTransient
	default:
		return ClassFatal
	}
}

// wrapHTTPStatus builds a classified error from a provider REST
// response status. Quota failures are reported with inconsistent
// status codes across providers, so the body is checked for capacity
// keywords before falling back to status-based classification.
func wrapHTTPStatus(provider ID, op string, status int, body string) error {
	err := fmt.Errorf("unexpected status %d: %s", status, body)
	class := classifyHTTPStatus(status)
	if isCapacityMessage(body) {
		class = ClassCapacity
	}
	return &Error{Provider: provider, Op: op, Class: class, Status: status, Err: err}
}

func isCapacityMessage(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "quota") ||
		strings.Contains(lower, "exhausted") ||
		strings.Contains(lower, "insufficient capacity") ||
		strings.Contains(lower, "out of capacity") ||
		strings.Contains(lower, "sku not available")
}
