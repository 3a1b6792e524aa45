package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

const defaultMongoDatabase = "rowstore"

func openSQLite(ctx context.Context, path string, opts OpenOptions) (any, func(context.Context) error, error) {
	dsn, err := sqliteDSN(path, opts)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	conns := opts.MaxOpenConns
	if conns <= 0 {
		conns = 1
	}
	db.SetMaxOpenConns(conns)
	// A memdb database is freed with its last connection.
	db.SetMaxIdleConns(conns)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping sqlite: %w", err)
	}

	release := func(context.Context) error { return db.Close() }
	return db, release, nil
}

// sqliteDSN builds a modernc.org/sqlite URI for path with the configured
// pragmas applied on every new connection.
func sqliteDSN(path string, opts OpenOptions) (string, error) {
	q := url.Values{}
	if opts.BusyTimeout > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	q.Add("_pragma", "foreign_keys(1)")

	if path == MemoryPath {
		// memdb names starting with a slash are shared by every connection
		// of the pool, and locks report SQLITE_BUSY instead of blocking.
		q.Set("vfs", "memdb")
		return "file:/rowstore-" + uuid.NewString() + "?" + q.Encode(), nil
	}

	path = sqliteFilePath(path)
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create database dir: %w", err)
		}
	}
	if opts.JournalMode != "" {
		q.Add("_pragma", fmt.Sprintf("journal_mode(%s)", opts.JournalMode))
	}
	if opts.Synchronous != "" {
		q.Add("_pragma", fmt.Sprintf("synchronous(%s)", opts.Synchronous))
	}
	return "file:" + escapeSQLitePath(path) + "?" + q.Encode(), nil
}

// sqliteFilePath strips a file: or file:// prefix and any query from path.
// file:///abs/x.db is absolute, file://rel/x.db and file:rel/x.db are
// relative to the working directory.
func sqliteFilePath(path string) string {
	switch {
	case strings.HasPrefix(path, "file://"):
		path = strings.TrimPrefix(path, "file://")
	case strings.HasPrefix(path, "file:"):
		path = strings.TrimPrefix(path, "file:")
	default:
		return path
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if p, err := url.PathUnescape(path); err == nil {
		path = p
	}
	return path
}

var sqlitePathEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func escapeSQLitePath(path string) string {
	return sqlitePathEscaper.Replace(path)
}

func openPostgres(ctx context.Context, dsn string, opts OpenOptions) (any, func(context.Context) error, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	pingCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	release := func(context.Context) error { return db.Close() }
	return db, release, nil
}

func openMongo(ctx context.Context, uri string, opts OpenOptions) (any, func(context.Context) error, error) {
	name, err := mongoDatabaseName(uri)
	if err != nil {
		return nil, nil, err
	}

	clientOpts := options.Client().ApplyURI(uri)
	if opts.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(opts.ConnectTimeout)
		clientOpts.SetServerSelectionTimeout(opts.ConnectTimeout)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}

	release := func(ctx context.Context) error { return client.Disconnect(ctx) }
	return client.Database(name), release, nil
}

// mongoDatabaseName takes the database from the URI path, falling back to
// "rowstore".
func mongoDatabaseName(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse mongodb uri: %w", err)
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return defaultMongoDatabase, nil
	}
	return name, nil
}
