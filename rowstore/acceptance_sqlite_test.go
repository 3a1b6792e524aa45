package rowstore_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"rowstore/rowstore"
)

var employeeColumns = []rowstore.Column{
	{Name: "id", Type: rowstore.TypeInt, PrimaryKey: true},
	{Name: "first", Type: rowstore.TypeText},
	{Name: "last", Type: rowstore.TypeText},
}

func employee(id int64, first, last string) rowstore.Row {
	return rowstore.NewRow(
		[]string{"id", "first", "last"},
		[]rowstore.Value{rowstore.Int(id), rowstore.Text(first), rowstore.Text(last)},
	)
}

func TestAcceptance_SQLite_EmployeesScenario(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "office.db")

	h, err := rowstore.Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if h.State() != rowstore.StateOpen {
		t.Fatalf("state after open = %v", h.State())
	}
	if h.Dialect() != "sqlite" {
		t.Fatalf("dialect = %q, want sqlite", h.Dialect())
	}

	res, err := h.Execute(ctx, rowstore.CreateTable{Table: "employees", Columns: employeeColumns})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	if !res.Created {
		t.Fatalf("expected table to be created")
	}

	for _, v := range [][]rowstore.Value{
		{rowstore.Int(1), rowstore.Text("Michael"), rowstore.Text("Scott")},
		{rowstore.Int(2), rowstore.Text("Jim"), rowstore.Text("Halpert")},
	} {
		res, err := h.Execute(ctx, rowstore.Insert{Table: "employees", Values: v})
		if err != nil {
			t.Fatalf("insert %v: %v", v, err)
		}
		if res.RowsAffected != 1 {
			t.Fatalf("rows affected = %d, want 1", res.RowsAffected)
		}
	}

	res, err = h.Execute(ctx, rowstore.Select{Table: "employees"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	got, err := res.Rows.Collect()
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := []rowstore.Row{employee(1, "Michael", "Scott"), employee(2, "Jim", "Halpert")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing after close: %v", err)
	}

	_, err = h.Execute(ctx, rowstore.Select{Table: "employees"})
	if !errors.Is(err, rowstore.ErrState) {
		t.Fatalf("execute after close: got %v, want state error", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestAcceptance_SQLite_ReopenSeesPersistedRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "office.db")

	h, err := rowstore.Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := h.Execute(ctx, rowstore.CreateTable{Table: "employees", Columns: employeeColumns}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := h.Execute(ctx, rowstore.Insert{Table: "employees", Values: []rowstore.Value{
		rowstore.Int(1), rowstore.Text("Michael"), rowstore.Text("Scott"),
	}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening the same handle and opening the path afresh both see the row.
	if err := h.Open(ctx); err != nil {
		t.Fatalf("reopen handle: %v", err)
	}
	assertEmployees(t, h, employee(1, "Michael", "Scott"))
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	h2, err := rowstore.Open(ctx, path)
	if err != nil {
		t.Fatalf("open again: %v", err)
	}
	defer h2.Close()
	if h2.ID() == h.ID() {
		t.Fatalf("distinct handles share id %s", h.ID())
	}

	res, err := h2.Execute(ctx, rowstore.CreateTable{Table: "employees", Columns: employeeColumns})
	if err != nil {
		t.Fatalf("create existing table: %v", err)
	}
	if res.Created {
		t.Fatalf("existing table reported as created")
	}
	assertEmployees(t, h2, employee(1, "Michael", "Scott"))

	tables, err := h2.Tables(ctx)
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	if diff := cmp.Diff([]string{"employees"}, tables); diff != "" {
		t.Fatalf("tables mismatch (-want +got):\n%s", diff)
	}

	def, err := h2.Schema(ctx, "employees")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if diff := cmp.Diff(employeeColumns, def.Columns); diff != "" {
		t.Fatalf("schema mismatch (-want +got):\n%s", diff)
	}
}

func TestAcceptance_SQLite_CallerOwnedConnection(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", "file:rowstore_conn_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	h, err := rowstore.OpenConn(ctx, db)
	if err != nil {
		t.Fatalf("open conn: %v", err)
	}
	if h.Path() != "" {
		t.Fatalf("path = %q, want empty", h.Path())
	}
	if _, err := h.Execute(ctx, rowstore.CreateTable{Table: "employees", Columns: employeeColumns}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("caller's connection closed by handle: %v", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rowstore_catalog`).Scan(&n); err != nil {
		t.Fatalf("query catalog: %v", err)
	}
	if n != 1 {
		t.Fatalf("catalog entries = %d, want 1", n)
	}
}

func TestAcceptance_SQLite_OpenFailures(t *testing.T) {
	ctx := context.Background()

	_, err := rowstore.Open(ctx, "")
	if !errors.Is(err, rowstore.ErrIO) {
		t.Fatalf("empty path: got %v, want io error", err)
	}

	// A regular file where a directory is needed.
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = rowstore.Open(ctx, filepath.Join(blocker, "db.sqlite"))
	if !errors.Is(err, rowstore.ErrIO) {
		t.Fatalf("unusable path: got %v, want io error", err)
	}

	_, err = rowstore.Open(ctx, "redis://localhost")
	if !errors.Is(err, rowstore.ErrIO) {
		t.Fatalf("unknown scheme: got %v, want io error", err)
	}

	_, err = rowstore.OpenConn(ctx, nil)
	if !errors.Is(err, rowstore.ErrIO) {
		t.Fatalf("nil conn: got %v, want io error", err)
	}
}

func assertEmployees(t *testing.T, h *rowstore.Handle, want ...rowstore.Row) {
	t.Helper()
	res, err := h.Execute(context.Background(), rowstore.Select{Table: "employees"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	got, err := res.Rows.Collect()
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
