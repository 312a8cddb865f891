package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed scheduling error with HTTP awareness so the calling
// web layer can map it without inspecting messages.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones and wraps of a
// predefined error still match it with errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for the scheduling taxonomy.
var (
	ErrMalformedInput        = New("MALFORMED_INPUT", http.StatusBadRequest, "malformed scheduling input")
	ErrInsufficientResources = New("INSUFFICIENT_RESOURCES", http.StatusUnprocessableEntity, "exams, rooms, proctors and time slots are all required")
	ErrInfeasibleDimensions  = New("INFEASIBLE_DIMENSIONS", http.StatusUnprocessableEntity, "exam span does not fit any room and slot combination")
	ErrNoFeasibleSchedule    = New("NO_FEASIBLE_SCHEDULE", http.StatusConflict, "no feasible schedule exists")
	ErrBudgetExceeded        = New("BUDGET_EXCEEDED_WITHOUT_SOLUTION", http.StatusServiceUnavailable, "search budget exhausted before a schedule was found")
	ErrValidation            = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrNotFound              = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrInternal              = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
