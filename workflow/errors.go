package workflow

import (
	"errors"
	"fmt"
)

// ErrorClass separates faults surfaced before any computation starts from
// faults that abort a running computation. Both fail the run; nothing in this
// package is retried automatically.
type ErrorClass string

const (
	ErrorClassInput       ErrorClass = "InputError"
	ErrorClassComputation ErrorClass = "ComputationError"
)

type ErrorKind string

const (
	ErrNoTerminalReceipt  ErrorKind = "NoTerminalReceipt"
	ErrNoApprovedEntries  ErrorKind = "NoApprovedEntries"
	ErrInvalidMeasurement ErrorKind = "InvalidMeasurement"
	ErrZeroBasis          ErrorKind = "ZeroBasis"
	ErrNonFiniteResult    ErrorKind = "NonFiniteResult"
)

// AllocationError is the taxonomy surfaced on failed reconciliations. The
// message is stored verbatim as the run's human-readable error_message.
type AllocationError struct {
	Class ErrorClass
	Kind  ErrorKind
	msg   string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func newInputError(kind ErrorKind, format string, args ...interface{}) *AllocationError {
	return &AllocationError{Class: ErrorClassInput, Kind: kind, msg: fmt.Sprintf(format, args...)}
}

func newComputationError(kind ErrorKind, format string, args ...interface{}) *AllocationError {
	return &AllocationError{Class: ErrorClassComputation, Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// ErrorKindOf returns the taxonomy kind of err, or "" for unexpected faults.
func ErrorKindOf(err error) ErrorKind {
	var allocErr *AllocationError
	if errors.As(err, &allocErr) {
		return allocErr.Kind
	}
	return ""
}

// IsAllocationError reports whether err belongs to the reconciliation error
// taxonomy (and therefore fails only the single run it belongs to).
func IsAllocationError(err error) bool {
	var allocErr *AllocationError
	return errors.As(err, &allocErr)
}
