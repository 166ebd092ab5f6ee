package batch

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned by every call on an environment, connection or statement after Close.
	ErrClosed = errors.New("handle is closed")
	// ErrSequence is returned when an operation is called in a statement state that does not allow it.
	ErrSequence = errors.New("function sequence error")
	// ErrRowIndex is returned when a buffer row is read or written outside its valid range.
	ErrRowIndex = errors.New("row index out of range")
	// ErrCapacity is returned for a buffer or row array size below one, or a buffer smaller than the row array.
	ErrCapacity = errors.New("invalid buffer capacity")
	// ErrOrdinal is returned for ordinals below one or with gaps.
	ErrOrdinal = errors.New("invalid ordinal")
	// ErrParamCount is returned when the bound parameters do not match the placeholders of the statement.
	ErrParamCount = errors.New("parameter count mismatch")
	// ErrAttribute is returned for an attribute value the statement can not use, such as a paramset size
	// larger than the row array.
	ErrAttribute = errors.New("invalid attribute value")
	// ErrValueTooLong is returned when a value is wider than the column buffer element.
	ErrValueTooLong = errors.New("value exceeds element width")
)

// Kind groups errors by the phase of a transfer they abort.
type Kind int

const (
	// KindSetup covers environment, connection and prepare failures.
	KindSetup Kind = iota
	// KindBind covers ordinal, capacity and count mismatches found before execution.
	KindBind
	// KindSequence covers calls made in the wrong statement state.
	KindSequence
	// KindRound covers failures of an execute or fetch round. Rows from earlier rounds stay valid.
	KindRound
)

func (k Kind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindBind:
		return "bind"
	case KindSequence:
		return "sequence"
	case KindRound:
		return "round"
	default:
		return "unknown"
	}
}

// Error is returned by every failing batch operation.
type Error struct {
	Kind Kind
	Op   string
	Diag Diagnostic
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("batch %s: %s error: %s", e.Op, e.Kind, e.Diag)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// State is a shorthand for the SQLSTATE of the error.
func (e *Error) State() string {
	return e.Diag.State
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Diag: diagnose(err), Err: err}
}

func localError(kind Kind, op, state string, err error, format string, args ...any) *Error {
	err = errors.Wrapf(err, format, args...)

	return &Error{Kind: kind, Op: op, Diag: Diagnostic{State: state, Message: err.Error()}, Err: err}
}
