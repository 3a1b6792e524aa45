package rowstore

// Command is a typed request executed by Handle.Execute. The set of commands
// is closed: CreateTable, Insert, InsertBatch and Select.
type Command interface {
	op() string
	table() string
}

// CreateTable defines a table. Executing it against an existing table is a
// successful no-op.
type CreateTable struct {
	Table   string
	Columns []Column
}

// Insert adds one row. With no Columns, Values must cover every column in
// table order; otherwise Values pair up with Columns and the rest are NULL.
type Insert struct {
	Table   string
	Columns []string
	Values  []Value
}

// InsertBatch inserts each tuple of Rows independently. Policy decides what a
// failing tuple does to the others and must be set.
type InsertBatch struct {
	Table   string
	Columns []string
	Rows    [][]Value
	Policy  BatchPolicy
}

// Select streams the rows of Table in insertion order, optionally restricted
// to those matching Where.
type Select struct {
	Table string
	Where *Predicate
}

// Predicate matches rows whose Column equals Value. A NULL Value matches NULL.
type Predicate struct {
	Column string
	Value  Value
}

// Eq builds a column = literal predicate.
func Eq(column string, v Value) *Predicate {
	return &Predicate{Column: column, Value: v}
}

type BatchPolicy int

const (
	// ContinueOnError keeps earlier tuples and still attempts later ones when
	// a tuple fails.
	ContinueOnError BatchPolicy = iota + 1
	// AllOrNothing persists either every tuple or none.
	AllOrNothing
)

func (p BatchPolicy) String() string {
	switch p {
	case ContinueOnError:
		return "continue"
	case AllOrNothing:
		return "all-or-nothing"
	default:
		return "unset"
	}
}

func (CreateTable) op() string { return "create table" }
func (Insert) op() string      { return "insert" }
func (InsertBatch) op() string { return "insert batch" }
func (Select) op() string      { return "select" }

func (c CreateTable) table() string { return c.Table }
func (c Insert) table() string      { return c.Table }
func (c InsertBatch) table() string { return c.Table }
func (c Select) table() string      { return c.Table }

// Result is what a successful Execute returns. Rows is set only for Select
// and must be closed by the caller.
type Result struct {
	RowsAffected int64
	Created      bool
	Rows         *Reader
}
