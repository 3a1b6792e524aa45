package rowstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rowstore/storage"
)

// Kind classifies every failure rowstore reports.
type Kind int

const (
	// KindIO is a file, disk or backend failure.
	KindIO Kind = iota + 1
	// KindState is an operation on a closed handle or a reader whose handle
	// was closed.
	KindState
	// KindValidation is a malformed command: unknown table or column, wrong
	// arity, wrong type, bad identifier.
	KindValidation
	// KindConstraint is a uniqueness or primary key violation.
	KindConstraint
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindState:
		return "state"
	case KindValidation:
		return "validation"
	case KindConstraint:
		return "constraint"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against any *Error of the same Kind.
var (
	ErrIO         = errors.New("rowstore: io error")
	ErrState      = errors.New("rowstore: state error")
	ErrValidation = errors.New("rowstore: validation error")
	ErrConstraint = errors.New("rowstore: constraint error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindIO:
		return ErrIO
	case KindState:
		return ErrState
	case KindValidation:
		return ErrValidation
	case KindConstraint:
		return ErrConstraint
	default:
		return nil
	}
}

var (
	errHandleClosed = errors.New("handle is closed")
	errReaderClosed = errors.New("reader's handle was closed")
)

// Error is the only error type returned by rowstore operations, apart from
// *BatchError which aggregates them.
//
// The cause comes first, followed by whatever command context is known:
//
//	insert: unique constraint violated on employees.id: ... (kind=constraint table=employees column=id value=2)
//
// Use errors.Is with ErrIO, ErrState, ErrValidation or ErrConstraint to test
// the kind, or errors.As to reach the fields.
type Error struct {
	Kind   Kind
	Op     string
	Table  string
	Column string
	// Value is the offending value, when one is known.
	Value *Value
	// Tuple is the position within an InsertBatch, or -1.
	Tuple int
	Err   error
}

func newError(kind Kind, op, table string, err error) *Error {
	return &Error{Kind: kind, Op: op, Table: table, Tuple: -1, Err: err}
}

func validationf(op, table, format string, args ...any) *Error {
	return newError(KindValidation, op, table, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(e.Kind.String() + " error")
	}

	parts := []string{"kind=" + e.Kind.String()}
	if e.Table != "" {
		parts = append(parts, "table="+e.Table)
	}
	if e.Column != "" {
		parts = append(parts, "column="+e.Column)
	}
	if e.Value != nil {
		parts = append(parts, "value="+e.Value.String())
	}
	if e.Tuple >= 0 {
		parts = append(parts, "tuple="+strconv.Itoa(e.Tuple))
	}
	b.WriteString(" (" + strings.Join(parts, " ") + ")")
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	return e != nil && target != nil && target == e.Kind.sentinel()
}

// BatchError reports the tuples of a ContinueOnError batch that failed. Rows
// from the other tuples were persisted. Aborted is set when a non-recoverable
// failure stopped the batch early; it is the last entry of Failures.
type BatchError struct {
	Table    string
	Failures []*Error
	Aborted  bool
}

func (e *BatchError) Error() string {
	msg := fmt.Sprintf("insert batch: %d tuple(s) failed (table=%s)", len(e.Failures), e.Table)
	if e.Aborted {
		msg += ", batch aborted"
	}
	if len(e.Failures) > 0 {
		msg += ": " + e.Failures[0].Error()
	}
	return msg
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// classify turns a storage failure into an *Error.
func classify(op, table string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var cv *storage.ConstraintViolation
	if errors.As(err, &cv) {
		out := newError(KindConstraint, op, table, err)
		out.Column = cv.Column
		return out
	}

	if errors.Is(err, storage.ErrTableNotFound) {
		return newError(KindValidation, op, table, err)
	}
	return newError(KindIO, op, table, err)
}
