package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Adapter interface {
	Dialect() string
}

type Driver interface {
	Writer

	Dialect() string
	Migrate(ctx context.Context) error

	// CreateTable creates the table and records it in the catalog. It reports
	// false without touching anything when the table already exists. Catalog
	// names are matched ignoring case.
	CreateTable(ctx context.Context, def TableDef) (bool, error)
	// LookupTable returns nil when the table is not in the catalog.
	LookupTable(ctx context.Context, name string) (*TableDef, error)
	ListTables(ctx context.Context) ([]string, error)

	// Atomic runs fn so that either every insert made through w persists or
	// none does.
	Atomic(ctx context.Context, fn func(w Writer) error) error
	// Scan returns the table's rows in insertion order.
	Scan(ctx context.Context, table TableDef, filter *Filter) (Cursor, error)
}

// OpenOptions tunes connections the manager opens itself.
type OpenOptions struct {
	BusyTimeout    time.Duration
	JournalMode    string
	Synchronous    string
	MaxOpenConns   int
	ConnectTimeout time.Duration
}

type adapterMatcher func(conn any) bool
type adapterFactory func(conn any) (Adapter, error)
type driverFactory func(adapter Adapter) (Driver, error)

// openerFunc connects to dsn and returns the raw connection plus the function
// that releases it.
type openerFunc func(ctx context.Context, dsn string, opts OpenOptions) (any, func(context.Context) error, error)

var (
	adapterRegistry = make([]struct {
		match   adapterMatcher
		factory adapterFactory
	}, 0)
	driverRegistry = make(map[string]driverFactory)
	openerRegistry = make(map[string]openerFunc)
)

func RegisterAdapter(match adapterMatcher, factory adapterFactory) {
	adapterRegistry = append(adapterRegistry, struct {
		match   adapterMatcher
		factory adapterFactory
	}{match: match, factory: factory})
}

func RegisterDriver(dialect string, factory driverFactory) {
	driverRegistry[dialect] = factory
}

// RegisterOpener binds a DSN scheme (without "://") to an opener. The empty
// scheme is used for plain filesystem paths.
func RegisterOpener(scheme string, open openerFunc) {
	openerRegistry[scheme] = open
}

func RegistryAdapter(conn any) (Adapter, error) {
	for _, entry := range adapterRegistry {
		if entry.match(conn) {
			return entry.factory(conn)
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrNoAdapter, conn)
}

func RegistryDriver(adapter Adapter) (Driver, error) {
	dialect := adapter.Dialect()
	f, ok := driverRegistry[dialect]
	if !ok {
		return nil, fmt.Errorf("no driver registered for dialect: %s", dialect)
	}
	return f(adapter)
}

func registryOpener(dsn string) (openerFunc, error) {
	scheme := ""
	if i := strings.Index(dsn, "://"); i > 0 {
		scheme = strings.ToLower(dsn[:i])
	}
	f, ok := openerRegistry[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoOpener, scheme)
	}
	return f, nil
}
