package storage

import (
	"context"
	"errors"
	"fmt"
)

// ColumnType is the declared type of a column. The zero value is not a
// valid column type; rowstore uses it to mark NULL values.
type ColumnType int

const (
	TypeInt ColumnType = iota + 1
	TypeText
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeText:
		return "TEXT"
	default:
		return "NULL"
	}
}

// Valid reports whether t names a storable column type.
func (t ColumnType) Valid() bool {
	return t == TypeInt || t == TypeText
}

type Column struct {
	Name       string     `json:"name" bson:"name"`
	Type       ColumnType `json:"type" bson:"type"`
	PrimaryKey bool       `json:"primary_key,omitempty" bson:"primary_key,omitempty"`
	Unique     bool       `json:"unique,omitempty" bson:"unique,omitempty"`
	NotNull    bool       `json:"not_null,omitempty" bson:"not_null,omitempty"`
}

// Required reports whether the column rejects NULL.
func (c Column) Required() bool { return c.PrimaryKey || c.NotNull }

// Distinct reports whether the backend must enforce uniqueness on the column.
func (c Column) Distinct() bool { return c.PrimaryKey || c.Unique }

type TableDef struct {
	Name    string   `json:"name" bson:"name"`
	Columns []Column `json:"columns" bson:"columns"`
}

func (t TableDef) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (t TableDef) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Filter selects rows whose column equals Value. A nil Value matches NULL.
type Filter struct {
	Column string
	Value  any
}

// Cursor streams raw rows out of a backend. Values are nil, int64 or string,
// in table column order.
type Cursor interface {
	Next() bool
	Values() ([]any, error)
	Err() error
	Close() error
}

// Writer inserts one row given in table column order.
type Writer interface {
	Insert(ctx context.Context, table TableDef, values []any) error
}

var ErrTableNotFound = errors.New("table not found")

// ConstraintViolation reports a uniqueness or primary key conflict raised by
// the backend.
type ConstraintViolation struct {
	Table  string
	Column string
	Err    error
}

func (e *ConstraintViolation) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("unique constraint violated on %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("unique constraint violated on %s.%s: %v", e.Table, e.Column, e.Err)
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }
