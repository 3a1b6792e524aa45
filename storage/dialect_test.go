package storage

import (
	"database/sql"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseSQLiteConstraint(t *testing.T) {
	cases := []struct {
		msg, want string
	}{
		{"constraint failed: UNIQUE constraint failed: employees.id (2067)", "id"},
		{"constraint failed: UNIQUE constraint failed: users.email (2067)", "email"},
		{"constraint failed: UNIQUE constraint failed: t.a, t.b (2067)", "a"},
		{"UNIQUE constraint failed: employees.first_name", "first_name"},
		{"database is locked (5)", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, parseSQLiteConstraint(tc.msg), tc.msg)
	}
}

func TestParsePostgresDetail(t *testing.T) {
	require.Equal(t, "id", parsePostgresDetail("Key (id)=(2) already exists."))
	require.Equal(t, "email", parsePostgresDetail(`Key ("email")=(x@y) already exists.`))
	require.Equal(t, "a", parsePostgresDetail("Key (a, b)=(1, 2) already exists."))
	require.Equal(t, "", parsePostgresDetail("something else"))
	require.Equal(t, "", parsePostgresDetail("Key (broken"))
}

func TestParseMongoDuplicate(t *testing.T) {
	msg := `write exception: write errors: [E11000 duplicate key error collection: rowstore.employees index: uniq_id dup key: { id: 2 }]`
	require.Equal(t, "id", parseMongoDuplicate(msg))
	require.Equal(t, "", parseMongoDuplicate("E11000 duplicate key error"))
}

func TestQuoteIdent(t *testing.T) {
	require.Equal(t, `"employees"`, quoteIdent("employees"))
	require.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}

func TestPlaceholder(t *testing.T) {
	require.Equal(t, "?", sqliteDialect.placeholder(3))
	require.Equal(t, "$3", postgresDialect.placeholder(3))
}

func TestSQLiteDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "100%?#.db")
	dsn, err := sqliteDSN(path, OpenOptions{BusyTimeout: 2 * time.Second, JournalMode: "WAL", Synchronous: "FULL"})
	require.NoError(t, err)
	require.DirExists(t, filepath.Join(dir, "sub"))

	name, query, ok := strings.Cut(dsn, "?")
	require.True(t, ok)
	require.Equal(t, "file:"+filepath.Join(dir, "sub", "100%25%3f%23.db"), name)

	q, err := url.ParseQuery(query)
	require.NoError(t, err)
	require.ElementsMatch(t,
		[]string{"busy_timeout(2000)", "foreign_keys(1)", "journal_mode(WAL)", "synchronous(FULL)"},
		q["_pragma"])
}

func TestSQLiteDSNMemory(t *testing.T) {
	a, err := sqliteDSN(MemoryPath, OpenOptions{JournalMode: "WAL"})
	require.NoError(t, err)
	b, err := sqliteDSN(MemoryPath, OpenOptions{})
	require.NoError(t, err)

	require.NotEqual(t, a, b, "each memory database is private")

	name, query, ok := strings.Cut(a, "?")
	require.True(t, ok)
	require.True(t, strings.HasPrefix(name, "file:/rowstore-"), name)

	q, err := url.ParseQuery(query)
	require.NoError(t, err)
	require.Equal(t, "memdb", q.Get("vfs"))
	require.Empty(t, q.Get("cache"))
	require.Empty(t, q.Get("mode"))
	require.NotContains(t, a, "journal_mode")
}

func TestSQLiteFilePath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"office.db", "office.db"},
		{"/var/lib/office.db", "/var/lib/office.db"},
		{"file:office.db", "office.db"},
		{"file:/var/lib/office.db", "/var/lib/office.db"},
		{"file://rel/office.db", "rel/office.db"},
		{"file:///var/lib/office.db", "/var/lib/office.db"},
		{"file:///var/lib/office.db?mode=rwc", "/var/lib/office.db"},
		{"file:///var/lib/my%20office.db", "/var/lib/my office.db"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, sqliteFilePath(c.in), c.in)
	}
}

func TestSQLiteDSNFileURI(t *testing.T) {
	dir := t.TempDir()
	dsn, err := sqliteDSN("file://"+filepath.Join(dir, "db", "office.db"), OpenOptions{})
	require.NoError(t, err)
	require.DirExists(t, filepath.Join(dir, "db"))

	name, _, ok := strings.Cut(dsn, "?")
	require.True(t, ok)
	require.Equal(t, "file:"+filepath.Join(dir, "db", "office.db"), name)
}

func TestMongoDatabaseName(t *testing.T) {
	name, err := mongoDatabaseName("mongodb://localhost:27017/office?retryWrites=true")
	require.NoError(t, err)
	require.Equal(t, "office", name)

	name, err = mongoDatabaseName("mongodb+srv://user:pw@cluster.example.net/")
	require.NoError(t, err)
	require.Equal(t, "rowstore", name)
}

func TestRegistryOpener(t *testing.T) {
	for _, dsn := range []string{
		"office.db",
		"/var/lib/office.db",
		"file:///var/lib/office.db",
		":memory:",
		"postgres://u@localhost/db",
		"POSTGRESQL://u@localhost/db",
		"mongodb://localhost",
		"mongodb+srv://cluster.example.net/db",
	} {
		_, err := registryOpener(dsn)
		require.NoError(t, err, dsn)
	}

	_, err := registryOpener("redis://localhost")
	require.ErrorIs(t, err, ErrNoOpener)
}

func TestRegistryAdapter(t *testing.T) {
	_, err := RegistryAdapter("not a connection")
	require.ErrorIs(t, err, ErrNoAdapter)

	var db *sql.DB
	_, err = RegistryAdapter(db)
	require.ErrorIs(t, err, ErrNoAdapter)
}

func TestDetectSQLDialect(t *testing.T) {
	lite, err := sql.Open("sqlite", "file:detect_sqlite?mode=memory")
	require.NoError(t, err)
	defer lite.Close()
	require.Equal(t, "sqlite", detectSQLDialect(lite))

	pg, err := sql.Open("pgx", "postgres://nobody@127.0.0.1:1/none")
	require.NoError(t, err)
	defer pg.Close()
	require.Equal(t, "postgres", detectSQLDialect(pg))
}

func TestColumnHelpers(t *testing.T) {
	def := TableDef{Name: "t", Columns: []Column{
		{Name: "id", Type: TypeInt, PrimaryKey: true},
		{Name: "email", Type: TypeText, Unique: true},
		{Name: "note", Type: TypeText, NotNull: true},
	}}
	require.Equal(t, []string{"id", "email", "note"}, def.ColumnNames())
	require.Equal(t, 1, def.Index("email"))
	require.Equal(t, -1, def.Index("missing"))

	require.True(t, def.Columns[0].Required())
	require.True(t, def.Columns[0].Distinct())
	require.False(t, def.Columns[1].Required())
	require.True(t, def.Columns[1].Distinct())
	require.True(t, def.Columns[2].Required())
	require.False(t, def.Columns[2].Distinct())

	require.Equal(t, "INT", TypeInt.String())
	require.Equal(t, "TEXT", TypeText.String())
	require.False(t, ColumnType(0).Valid())
}
