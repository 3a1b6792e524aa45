package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqlDialect captures everything the SQL driver does differently per engine.
type sqlDialect struct {
	name     string
	intType  string
	textType string
	// seqColumn is an extra hidden column that records insertion order.
	seqColumn  string
	orderBy    string
	migrations map[int][]string
	// constraint extracts the offending column from a uniqueness error.
	constraint func(err error) (column string, ok bool)
}

func (d sqlDialect) placeholder(n int) string {
	if d.name == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// BIGINT rather than INTEGER keeps sqlite from aliasing a primary key to the
// rowid, which would break insertion order. _rowid_ cannot be shadowed by a
// user column since names must start with a letter.
var sqliteDialect = sqlDialect{
	name:       "sqlite",
	intType:    "BIGINT",
	textType:   "TEXT",
	orderBy:    "_rowid_",
	migrations: sqliteMigrations,
	constraint: sqliteConstraint,
}

var postgresDialect = sqlDialect{
	name:       "postgres",
	intType:    "BIGINT",
	textType:   "TEXT",
	seqColumn:  "rowstore_seq BIGSERIAL",
	orderBy:    "rowstore_seq",
	migrations: postgresMigrations,
	constraint: postgresConstraint,
}

func (d sqlDialect) columnType(t ColumnType) string {
	if t == TypeInt {
		return d.intType
	}
	return d.textType
}

// quoteIdent quotes a table or column name. Names are validated upstream; the
// escaping still keeps a stray quote from ending the identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqliteConstraint(err error) (string, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return parseSQLiteConstraint(se.Error()), true
	}
	return "", false
}

// parseSQLiteConstraint pulls the column out of messages like
// "constraint failed: UNIQUE constraint failed: employees.id (2067)".
func parseSQLiteConstraint(msg string) string {
	const marker = "constraint failed: "
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		return ""
	}
	rest := msg[i+len(marker):]
	if j := strings.Index(rest, " ("); j >= 0 {
		rest = rest[:j]
	}
	if j := strings.Index(rest, ","); j >= 0 {
		rest = rest[:j]
	}
	if j := strings.LastIndex(rest, "."); j >= 0 {
		rest = rest[j+1:]
	}
	return strings.TrimSpace(rest)
}

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

func postgresConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return "", false
	}
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName, true
	}
	return parsePostgresDetail(pgErr.Detail), true
}

// parsePostgresDetail reads "Key (id)=(2) already exists.".
func parsePostgresDetail(detail string) string {
	start := strings.Index(detail, "Key (")
	if start < 0 {
		return ""
	}
	rest := detail[start+len("Key ("):]
	end := strings.Index(rest, ")=")
	if end < 0 {
		return ""
	}
	col := rest[:end]
	if j := strings.Index(col, ","); j >= 0 {
		col = col[:j]
	}
	return strings.Trim(strings.TrimSpace(col), `"`)
}
