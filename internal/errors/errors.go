// Package errors defines the service error taxonomy. Every error that crosses
// a component boundary is either a *ServiceError or wraps one.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure by how callers are expected to react.
type Kind string

const (
	// KindValidation is a rejected request. Messages are shown verbatim and
	// the request is never retried.
	KindValidation Kind = "validation"
	// KindConflict is a lost race on shared state. Callers re-read and re-quote.
	KindConflict Kind = "conflict"
	// KindConfiguration is missing or malformed admin data.
	KindConfiguration Kind = "configuration"
	// KindProcessing is an unexpected fault scoped to one unit of work.
	KindProcessing Kind = "processing"
	// KindNotFound is a missing entity.
	KindNotFound Kind = "not_found"
	// KindUnauthorized is a request without a usable identity.
	KindUnauthorized Kind = "unauthorized"
	// KindRateLimited is a caller over its request budget.
	KindRateLimited Kind = "rate_limited"
)

// ServiceError carries a kind, a machine code and user facing messages.
type ServiceError struct {
	Kind       Kind     `json:"kind"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Details    []string `json:"details,omitempty"`
	HTTPStatus int      `json:"-"`
	Err        error    `json:"-"`
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if len(e.Details) > 0 {
		msg = msg + ": " + strings.Join(e.Details, "; ")
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches on kind and code so sentinel comparisons work through wrapping.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

func statusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindConfiguration:
		return http.StatusServiceUnavailable
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, code, message string, details []string, cause error) *ServiceError {
	return &ServiceError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		Details:    details,
		HTTPStatus: statusFor(kind),
		Err:        cause,
	}
}

// Validation builds a validation error listing every failed check.
func Validation(messages ...string) *ServiceError {
	return newError(KindValidation, "VALIDATION_FAILED", "validation failed", messages, nil)
}

// Conflict builds a conflict error.
func Conflict(code, format string, args ...interface{}) *ServiceError {
	return newError(KindConflict, code, fmt.Sprintf(format, args...), nil, nil)
}

// Configuration builds a configuration error.
func Configuration(format string, args ...interface{}) *ServiceError {
	return newError(KindConfiguration, "CONFIGURATION_INVALID", fmt.Sprintf(format, args...), nil, nil)
}

// Processing wraps an unexpected fault.
func Processing(cause error, format string, args ...interface{}) *ServiceError {
	return newError(KindProcessing, "PROCESSING_FAILED", fmt.Sprintf(format, args...), nil, cause)
}

// NotFound reports a missing entity.
func NotFound(entity, id string) *ServiceError {
	return newError(KindNotFound, "NOT_FOUND", fmt.Sprintf("%s %s not found", entity, id), nil, nil)
}

// Unauthorized rejects a request without a valid identity.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return newError(KindUnauthorized, "UNAUTHORIZED", message, nil, nil)
}

// RateLimited rejects a caller that exceeded its request rate.
func RateLimited(perSecond float64) *ServiceError {
	return newError(KindRateLimited, "RATE_LIMIT_EXCEEDED", fmt.Sprintf("rate limit of %g requests per second exceeded", perSecond), nil, nil)
}

// KindOf returns the kind of the first ServiceError in the chain, or
// KindProcessing when there is none.
func KindOf(err error) Kind {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Kind
	}
	return KindProcessing
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var se *ServiceError
	return stderrors.As(err, &se) && se.Kind == kind
}

// HTTPStatus maps any error onto a response status.
func HTTPStatus(err error) int {
	var se *ServiceError
	if stderrors.As(err, &se) && se.HTTPStatus != 0 {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}

// As is re-exported so callers need a single errors import.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Is is re-exported so callers need a single errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// New is re-exported so callers need a single errors import.
func New(text string) error { return stderrors.New(text) }
