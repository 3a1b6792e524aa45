package rowstore

import "strings"

// Row maps column names to values in column order. A Row never changes after
// it is produced; accessors hand out copies.
type Row struct {
	columns []string
	values  []Value
}

// NewRow pairs columns with values. It panics if the lengths differ.
func NewRow(columns []string, values []Value) Row {
	if len(columns) != len(values) {
		panic("rowstore: NewRow: column and value counts differ")
	}
	return Row{
		columns: append([]string(nil), columns...),
		values:  append([]Value(nil), values...),
	}
}

func (r Row) Len() int { return len(r.values) }

func (r Row) Columns() []string { return append([]string(nil), r.columns...) }

func (r Row) Values() []Value { return append([]Value(nil), r.values...) }

func (r Row) Get(column string) (Value, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return Value{}, false
}

func (r Row) Map() map[string]Value {
	m := make(map[string]Value, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}

// Equal reports whether both rows have the same columns, in the same order,
// holding equal values.
func (r Row) Equal(o Row) bool {
	if len(r.columns) != len(o.columns) {
		return false
	}
	for i := range r.columns {
		if r.columns[i] != o.columns[i] || !r.values[i].Equal(o.values[i]) {
			return false
		}
	}
	return true
}

func (r Row) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c)
		b.WriteByte('=')
		b.WriteString(r.values[i].String())
	}
	b.WriteByte('}')
	return b.String()
}
