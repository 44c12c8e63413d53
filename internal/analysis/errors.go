package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidScope is returned before any I/O when a run scope is incomplete
	ErrInvalidScope = errors.New("invalid run scope")
	// ErrUnknownProducer is returned when no producer is registered under a name
	ErrUnknownProducer = errors.New("unknown producer")

	// Per-result skip reasons. These are logged and never fail a run.
	ErrSkipNotFound     = errors.New("raw result not found")
	ErrSkipNoPayload    = errors.New("raw result has no usable payload")
	ErrSkipTypeMismatch = errors.New("raw result task type does not match producer")
)

// StoreError is a read or write failure against the result or indicator store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsSkippable reports whether err only means a result should be skipped
func IsSkippable(err error) bool {
	return errors.Is(err, ErrSkipNotFound) ||
		errors.Is(err, ErrSkipNoPayload) ||
		errors.Is(err, ErrSkipTypeMismatch)
}

// IsInputError reports whether err was caused by the caller's arguments
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidScope) || errors.Is(err, ErrUnknownProducer)
}
