package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error carries an HTTP status and machine code alongside the cause.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

var (
	ErrNotFound      = errors.New("not found")
	ErrActiveSession = errors.New("project already has an active analysis session")
	ErrInvalidState  = errors.New("invalid state for operation")
	ErrCancelled     = errors.New("cancelled")
)

// NotFound wraps ErrNotFound with the entity kind and id.
func NotFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}

// PreconditionError lists the prerequisites a project is missing before analysis.
type PreconditionError struct {
	Missing []string
}

func (e *PreconditionError) Error() string {
	if e == nil || len(e.Missing) == 0 {
		return "precondition failed"
	}
	return "precondition failed: missing " + strings.Join(e.Missing, ", ")
}

// UpstreamCompletionError is an AI completion that failed or returned text that
// does not parse as the expected structure.
type UpstreamCompletionError struct {
	Task string
	Raw  string
	Err  error
}

func (e *UpstreamCompletionError) Error() string {
	if e == nil {
		return "upstream completion error"
	}
	msg := "upstream completion failed"
	if e.Task != "" {
		msg += " (" + e.Task + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamCompletionError) Unwrap() error { return e.Err }

// PersistenceError is a store read or write that failed mid-pipeline.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return "persistence error"
	}
	if e.Err == nil {
		return "persistence error: " + e.Op
	}
	return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persist wraps err as a PersistenceError unless it is nil, already wrapped,
// or a context cancellation.
func Persist(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// HTTPStatus maps an error from the service layer to a status and code.
func HTTPStatus(err error) (int, string) {
	var ae *Error
	var pre *PreconditionError
	var up *UpstreamCompletionError
	var pe *PersistenceError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &ae):
		return ae.Status, ae.Code
	case errors.As(err, &pre):
		return http.StatusUnprocessableEntity, "precondition_failed"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrActiveSession):
		return http.StatusConflict, "active_session"
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.As(err, &up):
		return http.StatusBadGateway, "upstream_completion"
	case errors.As(err, &pe):
		return http.StatusInternalServerError, "persistence"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
