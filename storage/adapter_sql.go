package storage

import (
	"database/sql"
	"reflect"
	"strings"
)

type SQLAdapter struct {
	DB      *sql.DB
	dialect string
}

func (a *SQLAdapter) Dialect() string { return a.dialect }

func isSQLDB(conn any) bool {
	db, ok := conn.(*sql.DB)
	return ok && db != nil
}

func newSQLAdapter(conn any) (Adapter, error) {
	db := conn.(*sql.DB)
	return &SQLAdapter{DB: db, dialect: detectSQLDialect(db)}, nil
}

// detectSQLDialect guesses the dialect from the package of the registered
// database/sql driver. Unknown drivers are treated as postgres.
func detectSQLDialect(db *sql.DB) string {
	t := reflect.TypeOf(db.Driver())
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := strings.ToLower(t.PkgPath() + "." + t.Name())
	switch {
	case strings.Contains(name, "sqlite"):
		return "sqlite"
	case strings.Contains(name, "pgx"), strings.Contains(name, "postgres"), strings.Contains(name, "lib/pq"):
		return "postgres"
	}
	return "postgres"
}
