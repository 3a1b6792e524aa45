// Package rowstore is a small embedded table store with an
// open, execute, query, close lifecycle.
//
// A Handle owns one session to a database, by default a single SQLite file
// created on demand. Commands are typed values (CreateTable, Insert,
// InsertBatch, Select) whose Values are always bound as parameters. A Select
// yields a Reader that streams rows lazily and in insertion order.
//
//	h, err := rowstore.Open(ctx, "db/example.sqlite")
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//
//	_, err = h.Execute(ctx, rowstore.CreateTable{Table: "employees", Columns: []rowstore.Column{
//		{Name: "id", Type: rowstore.TypeInt, PrimaryKey: true},
//		{Name: "first", Type: rowstore.TypeText},
//	}})
//
// Every failure is a *Error of one of four kinds: IO, State, Validation or
// Constraint. Match them with errors.Is against ErrIO, ErrState,
// ErrValidation and ErrConstraint.
package rowstore
