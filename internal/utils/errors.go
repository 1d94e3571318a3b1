package utils

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can pick a status without string matching.
type Kind int

const (
	// KindInternal covers unexpected failures inside fit or predict.
	KindInternal Kind = iota
	// KindInvalidInput marks a structurally bad request (missing field, wrong type).
	KindInvalidInput
	// KindUnavailable means no usable model is loaded.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// AppError wraps an operation, failure kind, human-facing message, and underlying error.
type AppError struct {
	Op   string
	Kind Kind
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op string, kind Kind, msg string, err error) error {
	return &AppError{Op: op, Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of the outermost AppError in err's chain.
// Errors that carry no AppError are internal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
