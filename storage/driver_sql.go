package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type SQLDriver struct {
	a       *SQLAdapter
	dialect sqlDialect
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func newSQLDriver(dialect sqlDialect) driverFactory {
	return func(adapter Adapter) (Driver, error) {
		a, ok := adapter.(*SQLAdapter)
		if !ok {
			return nil, fmt.Errorf("sql driver expects *SQLAdapter, got %T", adapter)
		}
		return &SQLDriver{a: a, dialect: dialect}, nil
	}
}

func (d *SQLDriver) Dialect() string { return d.dialect.name }

func (d *SQLDriver) Migrate(ctx context.Context) error {
	if d.a == nil || d.a.DB == nil {
		return ErrNoConnection
	}

	migrations := d.dialect.migrations
	currentVersion := d.getSchemaVersion(ctx)
	maxVersion := len(migrations)

	if currentVersion >= maxVersion {
		return nil
	}

	tx, err := d.db().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for v := currentVersion + 1; v <= maxVersion; v++ {
		ops, ok := migrations[v]
		if !ok {
			continue
		}

		for _, op := range ops {
			if _, err := tx.ExecContext(ctx, op); err != nil {
				return fmt.Errorf("migration %d failed: %w", v, err)
			}
		}

		var updateSQL string
		if currentVersion == 0 {
			updateSQL = "INSERT INTO " + schemaVersionTable + " (num) VALUES (" + d.dialect.placeholder(1) + ")"
		} else {
			updateSQL = "UPDATE " + schemaVersionTable + " SET num = " + d.dialect.placeholder(1)
		}
		if _, err := tx.ExecContext(ctx, updateSQL, v); err != nil {
			return fmt.Errorf("record schema version %d: %w", v, err)
		}
		currentVersion = v
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

func (d *SQLDriver) getSchemaVersion(ctx context.Context) int {
	var version sql.NullInt64
	err := d.db().QueryRowContext(ctx, "SELECT num FROM "+schemaVersionTable+" LIMIT 1").Scan(&version)
	if err != nil || !version.Valid {
		return 0
	}
	return int(version.Int64)
}

func (d *SQLDriver) CreateTable(ctx context.Context, def TableDef) (bool, error) {
	definition, err := json.Marshal(def)
	if err != nil {
		return false, fmt.Errorf("encode table definition: %w", err)
	}

	tx, err := d.db().BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin create table: %w", err)
	}
	defer tx.Rollback()

	exists, err := d.catalogHas(ctx, tx, def.Name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, d.createTableSQL(def)); err != nil {
		return false, fmt.Errorf("create table %s: %w", def.Name, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (name, definition, date_created) VALUES (%s, %s, %s)",
		catalogTable, d.dialect.placeholder(1), d.dialect.placeholder(2), d.dialect.placeholder(3))
	if _, err := tx.ExecContext(ctx, insert, def.Name, string(definition), time.Now().UTC()); err != nil {
		return false, fmt.Errorf("record table %s: %w", def.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit create table %s: %w", def.Name, err)
	}
	return true, nil
}

func (d *SQLDriver) catalogHas(ctx context.Context, q execer, name string) (bool, error) {
	var one int
	query := "SELECT 1 FROM " + catalogTable + " WHERE " + catalogNameMatch(d.dialect)
	err := q.QueryRowContext(ctx, query, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read catalog: %w", err)
	}
	return true, nil
}

// catalogNameMatch matches a catalog row by table name, ignoring case.
func catalogNameMatch(dialect sqlDialect) string {
	return "lower(name) = lower(" + dialect.placeholder(1) + ")"
}

func (d *SQLDriver) createTableSQL(def TableDef) string {
	parts := make([]string, 0, len(def.Columns)+1)
	for _, c := range def.Columns {
		col := quoteIdent(c.Name) + " " + d.dialect.columnType(c.Type)
		switch {
		case c.PrimaryKey:
			col += " NOT NULL PRIMARY KEY"
		case c.Unique && c.NotNull:
			col += " NOT NULL UNIQUE"
		case c.Unique:
			col += " UNIQUE"
		case c.NotNull:
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	if d.dialect.seqColumn != "" {
		parts = append(parts, d.dialect.seqColumn)
	}
	return "CREATE TABLE " + quoteIdent(def.Name) + " (" + strings.Join(parts, ", ") + ")"
}

func (d *SQLDriver) LookupTable(ctx context.Context, name string) (*TableDef, error) {
	var definition string
	query := "SELECT definition FROM " + catalogTable + " WHERE " + catalogNameMatch(d.dialect)
	err := d.db().QueryRowContext(ctx, query, name).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var def TableDef
	if err := json.Unmarshal([]byte(definition), &def); err != nil {
		return nil, fmt.Errorf("decode definition of %s: %w", name, err)
	}
	return &def, nil
}

func (d *SQLDriver) ListTables(ctx context.Context) ([]string, error) {
	rows, err := d.db().QueryContext(ctx, "SELECT name FROM "+catalogTable+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

func (d *SQLDriver) Insert(ctx context.Context, table TableDef, values []any) error {
	return d.insert(ctx, d.db(), table, values)
}

func (d *SQLDriver) insert(ctx context.Context, q execer, table TableDef, values []any) error {
	if len(values) != len(table.Columns) {
		return fmt.Errorf("insert into %s: %d values for %d columns", table.Name, len(values), len(table.Columns))
	}

	cols := make([]string, len(table.Columns))
	marks := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = quoteIdent(c.Name)
		marks[i] = d.dialect.placeholder(i + 1)
	}
	query := "INSERT INTO " + quoteIdent(table.Name) +
		" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"

	if _, err := q.ExecContext(ctx, query, values...); err != nil {
		if column, ok := d.dialect.constraint(err); ok {
			return &ConstraintViolation{Table: table.Name, Column: column, Err: err}
		}
		return fmt.Errorf("insert into %s: %w", table.Name, err)
	}
	return nil
}

func (d *SQLDriver) Atomic(ctx context.Context, fn func(w Writer) error) error {
	tx, err := d.db().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTxWriter{d: d, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlTxWriter struct {
	d  *SQLDriver
	tx *sql.Tx
}

func (w *sqlTxWriter) Insert(ctx context.Context, table TableDef, values []any) error {
	return w.d.insert(ctx, w.tx, table, values)
}

func (d *SQLDriver) Scan(ctx context.Context, table TableDef, filter *Filter) (Cursor, error) {
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = quoteIdent(c.Name)
	}

	var args []any
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + quoteIdent(table.Name)
	if filter != nil {
		if filter.Value == nil {
			query += " WHERE " + quoteIdent(filter.Column) + " IS NULL"
		} else {
			query += " WHERE " + quoteIdent(filter.Column) + " = " + d.dialect.placeholder(1)
			args = append(args, filter.Value)
		}
	}
	query += " ORDER BY " + d.dialect.orderBy

	rows, err := d.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table.Name, err)
	}
	return &sqlCursor{rows: rows, width: len(cols)}, nil
}

type sqlCursor struct {
	rows  *sql.Rows
	width int
}

func (c *sqlCursor) Next() bool { return c.rows.Next() }

func (c *sqlCursor) Values() ([]any, error) {
	raw := make([]any, c.width)
	dest := make([]any, c.width)
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := c.rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	for i, v := range raw {
		raw[i] = normalize(v)
	}
	return raw, nil
}

func (c *sqlCursor) Err() error   { return c.rows.Err() }
func (c *sqlCursor) Close() error { return c.rows.Close() }

// normalize maps driver values onto nil, int64 and string.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	default:
		return v
	}
}

func (d *SQLDriver) db() *sql.DB { return d.a.DB }
