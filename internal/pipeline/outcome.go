package pipeline

import (
	"errors"
	"strings"
)

// Sentinel errors classify pipeline failures. Handlers map them to HTTP
// status codes; callers test with errors.Is.
var (
	ErrUngroundable     = errors.New("query could not be grounded")
	ErrValidationFailed = errors.New("SQL validation failed")
	ErrSafetyRejected   = errors.New("query rejected by safety gate")
	ErrUpstream         = errors.New("upstream service unavailable")
)

// Error is a classified pipeline failure with the stage's detail messages.
type Error struct {
	Code     string
	Messages []string
	class    error
}

func newError(class error, code string, messages ...string) *Error {
	return &Error{Code: code, Messages: messages, class: class}
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return e.class.Error()
	}
	return e.class.Error() + ": " + strings.Join(e.Messages, "; ")
}

func (e *Error) Unwrap() error { return e.class }
