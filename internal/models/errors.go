package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidRange     = errors.New("invalid range")
	ErrParse            = errors.New("parse error")
	ErrUnknownReference = errors.New("unknown reference type")
	ErrValidation       = errors.New("validation failed")
)

// ConflictError reports a storage invariant that would have been violated.
// Retryable is set when the cause was a concurrent writer rather than a bad sequence.
type ConflictError struct {
	Constraint string
	Retryable  bool
	Err        error
}

func (e *ConflictError) Error() string {
	msg := "conflict"
	if e.Constraint != "" {
		msg += " on " + e.Constraint
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func NewConflict(constraint string, retryable bool, err error) error {
	return &ConflictError{Constraint: constraint, Retryable: retryable, Err: err}
}

// IsRetryable reports whether err is a conflict caused by a concurrent writer.
func IsRetryable(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce) && ce.Retryable
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

func InvalidRangef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidRange}, args...)...)
}

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func UnknownReferencef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUnknownReference}, args...)...)
}
