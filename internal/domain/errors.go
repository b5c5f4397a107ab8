package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable class of an error.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindInvalidQuestion Kind = "InvalidQuestion"
	KindNotFound        Kind = "NotFound"
	KindNotAvailable    Kind = "NotAvailable"
	KindUnauthorized    Kind = "UnauthorizedError"
	KindServer          Kind = "InternalServerError"
)

// Status maps the kind onto an HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindInvalidQuestion, KindNotAvailable:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error surfaced by every engine operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Status is the HTTP status code for the error.
func (e *Error) Status() int { return e.Kind.Status() }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	// ErrValidation is the generic malformed-input error.
	ErrValidation = newError(KindValidation, "validation failed")
	// ErrEmptyAnswers is returned when a submission carries no answers.
	ErrEmptyAnswers = newError(KindValidation, "answers must not be empty")
	// ErrTimeLimitExceeded is returned when an attempt ran past the quiz time limit.
	ErrTimeLimitExceeded = newError(KindValidation, "time spent exceeds quiz time limit")
	// ErrInvalidQuestion indicates a submitted question ID is not part of the quiz.
	ErrInvalidQuestion = newError(KindInvalidQuestion, "question not found in quiz")
	// ErrQuizNotFound indicates the quiz could not be loaded.
	ErrQuizNotFound = newError(KindNotFound, "Quiz not found")
	// ErrQuizNotAvailable is returned when starting an inactive, expired or empty quiz.
	ErrQuizNotAvailable = newError(KindNotAvailable, "Quiz is not available")
	// ErrAttemptNotFound indicates a quiz result could not be found.
	ErrAttemptNotFound = newError(KindNotFound, "Quiz result not found")
	// ErrNoActiveAttempt is returned when no in-progress attempt matches a submission.
	ErrNoActiveAttempt = newError(KindNotFound, "No active quiz session found")
	// ErrUserNotFound indicates the user record is missing.
	ErrUserNotFound = newError(KindNotFound, "User not found")
	// ErrUnauthorized is returned when the caller identity is missing or invalid.
	ErrUnauthorized = newError(KindUnauthorized, "Unauthorized")
)

// Wrap returns an error of the same kind as base with a contextual message.
// errors.Is(result, base) holds.
func Wrap(base *Error, format string, args ...any) error {
	return &Error{Kind: base.Kind, Message: fmt.Sprintf(format, args...), Err: base}
}

// KindOf extracts the kind of err, defaulting to KindServer.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}
