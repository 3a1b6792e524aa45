package rowstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"rowstore/storage"
)

func TestErrorMessage(t *testing.T) {
	v := Int(2)
	e := &Error{
		Kind:   KindConstraint,
		Op:     "insert",
		Table:  "employees",
		Column: "id",
		Value:  &v,
		Tuple:  3,
		Err:    errors.New("duplicate key"),
	}
	require.Equal(t,
		"insert: duplicate key (kind=constraint table=employees column=id value=2 tuple=3)",
		e.Error())

	bare := newError(KindState, "", "", nil)
	require.Equal(t, "state error (kind=state)", bare.Error())
}

func TestErrorIsMatchesKind(t *testing.T) {
	cause := errors.New("disk on fire")
	e := newError(KindIO, "select", "t", cause)
	wrapped := fmt.Errorf("outer: %w", e)

	require.ErrorIs(t, wrapped, ErrIO)
	require.ErrorIs(t, wrapped, cause)
	require.NotErrorIs(t, wrapped, ErrState)
	require.NotErrorIs(t, wrapped, ErrValidation)
	require.NotErrorIs(t, wrapped, ErrConstraint)
}

func TestBatchErrorUnwrap(t *testing.T) {
	first := validationf("insert batch", "t", "bad tuple")
	first.Tuple = 0
	second := newError(KindConstraint, "insert batch", "t", errors.New("dup"))
	second.Tuple = 4
	be := &BatchError{Table: "t", Failures: []*Error{first, second}}

	require.ErrorIs(t, be, ErrValidation)
	require.ErrorIs(t, be, ErrConstraint)
	require.NotErrorIs(t, be, ErrIO)

	var e *Error
	require.True(t, errors.As(be, &e))
	require.Same(t, first, e)
	require.Contains(t, be.Error(), "2 tuple(s) failed")
	require.NotContains(t, be.Error(), "aborted")

	be.Aborted = true
	require.Contains(t, be.Error(), "batch aborted")
}

func TestClassify(t *testing.T) {
	cv := &storage.ConstraintViolation{Table: "t", Column: "id", Err: errors.New("UNIQUE constraint failed: t.id")}
	e := classify("insert", "t", fmt.Errorf("wrapped: %w", cv))
	require.Equal(t, KindConstraint, e.Kind)
	require.Equal(t, "id", e.Column)
	require.Equal(t, -1, e.Tuple)

	e = classify("select", "t", fmt.Errorf("lookup: %w", storage.ErrTableNotFound))
	require.Equal(t, KindValidation, e.Kind)

	e = classify("select", "t", errors.New("connection reset"))
	require.Equal(t, KindIO, e.Kind)

	orig := validationf("insert", "t", "nope")
	require.Same(t, orig, classify("insert", "t", orig))
}

func TestKindString(t *testing.T) {
	for kind, want := range map[Kind]string{
		KindIO:         "io",
		KindState:      "state",
		KindValidation: "validation",
		KindConstraint: "constraint",
		Kind(0):        "unknown",
	} {
		require.Equal(t, want, kind.String())
	}
}
