package rowstore

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"rowstore/storage"
)

type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Handle owns one open session to a database. It is meant for a single
// owner: commands are not serialized against each other, but Close may be
// called from any goroutine.
type Handle struct {
	Config *Config

	mu      sync.Mutex
	id      uuid.UUID
	path    string
	conn    any
	state   State
	gen     uint64
	storage *storage.Manager
	readers map[*Reader]struct{}
	schemas map[string]storage.TableDef // keyed by lower-cased name
	optErr  error
}

func newHandle(path string, conn any, opts []Option) *Handle {
	h := &Handle{
		Config: newConfig(),
		id:     uuid.New(),
		path:   path,
		conn:   conn,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Open opens or creates the database at path and returns an open handle.
//
// path is a SQLite file path, ":memory:", a postgres:// DSN or a mongodb://
// URI whose path names the database.
func Open(ctx context.Context, path string, opts ...Option) (*Handle, error) {
	h := newHandle(path, nil, opts)
	if err := h.Open(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// OpenConn attaches a handle to a connection owned by the caller: a *sql.DB
// using the sqlite or pgx driver, or a *mongo.Database. Closing the handle
// leaves the connection open.
func OpenConn(ctx context.Context, conn any, opts ...Option) (*Handle, error) {
	if conn == nil {
		return nil, newError(KindIO, "open", "", storage.ErrNoConnection)
	}
	h := newHandle("", conn, opts)
	if err := h.Open(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Open (re)opens the handle. It is a no-op when the handle is already open.
func (h *Handle) Open(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateOpen {
		return nil
	}
	if h.optErr != nil {
		return newError(KindIO, "open", "", h.optErr)
	}

	m := storage.NewManager()
	var err error
	if h.conn != nil {
		err = m.Start(h.conn)
	} else {
		err = m.Open(ctx, h.path, h.Config.storageOptions())
	}
	if err != nil {
		return newError(KindIO, "open", "", err)
	}
	if err := m.Build(ctx); err != nil {
		_ = m.Close(ctx)
		return newError(KindIO, "open", "", err)
	}

	h.storage = m
	h.state = StateOpen
	h.gen++
	h.readers = make(map[*Reader]struct{})
	h.schemas = make(map[string]storage.TableDef)
	h.log().Debug("handle opened", "dialect", m.Dialect())
	return nil
}

// Close invalidates every outstanding reader and releases the connection.
// Closing a closed handle is a no-op. The handle is closed even when an
// IOError is returned.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.state == StateClosed {
		h.mu.Unlock()
		return nil
	}
	h.state = StateClosed
	readers := h.readers
	m := h.storage
	h.readers = nil
	h.schemas = nil
	h.storage = nil
	h.mu.Unlock()

	for r := range readers {
		r.invalidate()
	}
	if err := m.Close(context.Background()); err != nil {
		e := newError(KindIO, "close", "", err)
		h.log().Warn("close failed", "err", e)
		return e
	}
	h.log().Debug("handle closed")
	return nil
}

func (h *Handle) ID() uuid.UUID { return h.id }

// Path is empty for handles created with OpenConn.
func (h *Handle) Path() string { return h.path }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Dialect names the backend: "sqlite", "postgres" or "mongodb". It is empty
// while the handle is closed.
func (h *Handle) Dialect() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.storage == nil {
		return ""
	}
	return h.storage.Dialect()
}

// Tables lists the tables created through rowstore, by name.
func (h *Handle) Tables(ctx context.Context) ([]string, error) {
	const op = "tables"
	drv, gen, e := h.driver(op, "")
	if e != nil {
		return nil, e
	}
	names, err := drv.ListTables(ctx)
	if err != nil {
		return nil, h.fail(op, "", gen, err)
	}
	return names, nil
}

// Schema returns the definition the table was created with.
func (h *Handle) Schema(ctx context.Context, table string) (TableDef, error) {
	const op = "schema"
	drv, gen, e := h.driver(op, table)
	if e != nil {
		return TableDef{}, e
	}
	def, e := h.table(ctx, drv, gen, op, table)
	if e != nil {
		return TableDef{}, e
	}
	def.Columns = append([]Column(nil), def.Columns...)
	return def, nil
}

func (h *Handle) driver(op, table string) (storage.Driver, uint64, *Error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateOpen {
		return nil, 0, newError(KindState, op, table, errHandleClosed)
	}
	return h.storage.Driver(), h.gen, nil
}

// live reports whether the session identified by gen is still open.
func (h *Handle) live(gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == StateOpen && h.gen == gen
}

// fail classifies a storage error. A failure caused by the handle being
// closed underneath the operation is a StateError.
func (h *Handle) fail(op, table string, gen uint64, err error) *Error {
	if !h.live(gen) {
		return newError(KindState, op, table, errHandleClosed)
	}
	return classify(op, table, err)
}

func (h *Handle) table(ctx context.Context, drv storage.Driver, gen uint64, op, name string) (storage.TableDef, *Error) {
	h.mu.Lock()
	def, ok := h.schemas[strings.ToLower(name)]
	h.mu.Unlock()
	if ok {
		return def, nil
	}

	found, err := drv.LookupTable(ctx, name)
	if err != nil {
		return storage.TableDef{}, h.fail(op, name, gen, err)
	}
	if found == nil {
		return storage.TableDef{}, validationf(op, name, "table %q does not exist", name)
	}
	h.remember(gen, *found)
	return *found, nil
}

func (h *Handle) remember(gen uint64, def storage.TableDef) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateOpen && h.gen == gen {
		h.schemas[strings.ToLower(def.Name)] = def
	}
}

// track registers r so that Close can invalidate it. It fails when the
// session r belongs to is gone.
func (h *Handle) track(r *Reader) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateOpen || h.gen != r.gen {
		return false
	}
	h.readers[r] = struct{}{}
	return true
}

func (h *Handle) untrack(r *Reader) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gen == r.gen {
		delete(h.readers, r)
	}
}

func (h *Handle) log() *slog.Logger {
	return h.Config.logger().With("handle", h.id.String())
}
