package rowstore

import (
	"fmt"
	"strconv"

	"rowstore/storage"
)

type (
	ColumnType = storage.ColumnType
	Column     = storage.Column
	TableDef   = storage.TableDef
)

const (
	TypeInt  = storage.TypeInt
	TypeText = storage.TypeText
)

// Value is a typed scalar: NULL, a 64-bit integer or text. The zero Value is
// NULL. Values are bound as parameters and never spliced into command text.
type Value struct {
	typ ColumnType
	i   int64
	s   string
}

func Int(v int64) Value   { return Value{typ: TypeInt, i: v} }
func Text(v string) Value { return Value{typ: TypeText, s: v} }
func Null() Value         { return Value{} }

// Type returns TypeInt, TypeText, or the zero ColumnType for NULL.
func (v Value) Type() ColumnType { return v.typ }

func (v Value) IsNull() bool { return v.typ == 0 }

func (v Value) AsInt() (int64, bool) { return v.i, v.typ == TypeInt }

func (v Value) AsText() (string, bool) { return v.s, v.typ == TypeText }

func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeInt:
		return v.i == o.i
	case TypeText:
		return v.s == o.s
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.typ {
	case TypeInt:
		return strconv.FormatInt(v.i, 10)
	case TypeText:
		return strconv.Quote(v.s)
	default:
		return "NULL"
	}
}

// fits reports whether v may be stored in a column of type t.
func (v Value) fits(t ColumnType) bool {
	return v.IsNull() || v.typ == t
}

func (v Value) raw() any {
	switch v.typ {
	case TypeInt:
		return v.i
	case TypeText:
		return v.s
	default:
		return nil
	}
}

// valueFromRaw converts a backend value for a column of type t.
func valueFromRaw(raw any, t ColumnType) (Value, error) {
	if raw == nil {
		return Null(), nil
	}
	switch x := raw.(type) {
	case int64:
		if t == TypeInt {
			return Int(x), nil
		}
	case string:
		if t == TypeText {
			return Text(x), nil
		}
	}
	return Value{}, fmt.Errorf("stored %T does not match column type %s", raw, t)
}
