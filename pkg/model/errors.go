package model

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoRuntime is returned when an operation targets a VM with no
	// scheduler attached.
	ErrNoRuntime = errors.New("no runtime present")

	// ErrAlreadyAttached is returned when a VM already has a scheduler.
	ErrAlreadyAttached = errors.New("runtime already attached")

	// ErrStopped is returned when work is scheduled after the stop flag is set.
	ErrStopped = errors.New("scheduler stopped")

	// ErrThreadQueued is returned when a thread is enqueued while it already
	// has an outstanding resume.
	ErrThreadQueued = errors.New("thread already queued")
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrDisabled   ErrorCode = "DISABLED"
)

// HTTPStatus is the response status the admin API sends with c.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrDisabled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// APIError is a structured error returned by the admin API.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// ProtocolError reports a producer bug: something was handed to the
// scheduler that cannot be resumed.
type ProtocolError struct {
	Op     string
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation in %s: %s", e.Op, e.Detail)
}

// SetupError reports a native resource that could not be created while
// attaching a runtime.
type SetupError struct {
	Resource string
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %v", e.Resource, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}
