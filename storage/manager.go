package storage

import (
	"context"
	"errors"
)

type Manager struct {
	adapter Adapter
	driver  Driver
	release func(context.Context) error
}

func NewManager() *Manager {
	return &Manager{}
}

// Start attaches the manager to a connection owned by the caller. Close will
// not close it.
func (m *Manager) Start(conn any) error {
	if conn == nil {
		return ErrNoConnection
	}
	a, err := RegistryAdapter(conn)
	if err != nil {
		return err
	}
	d, err := RegistryDriver(a)
	if err != nil {
		return err
	}
	m.adapter = a
	m.driver = d
	return nil
}

// Open connects to dsn through the opener registered for its scheme. The
// manager owns the resulting connection.
func (m *Manager) Open(ctx context.Context, dsn string, opts OpenOptions) error {
	if dsn == "" {
		return ErrEmptyDSN
	}
	open, err := registryOpener(dsn)
	if err != nil {
		return err
	}
	conn, release, err := open(ctx, dsn, opts)
	if err != nil {
		return err
	}
	if err := m.Start(conn); err != nil {
		_ = release(ctx)
		return err
	}
	m.release = release
	return nil
}

func (m *Manager) Adapter() Adapter { return m.adapter }
func (m *Manager) Driver() Driver   { return m.driver }
func (m *Manager) Dialect() string {
	if m.adapter == nil {
		return ""
	}
	return m.adapter.Dialect()
}

func (m *Manager) Build(ctx context.Context) error {
	if m.driver == nil {
		return ErrNoConnection
	}
	return m.driver.Migrate(ctx)
}

// Close releases the connection if the manager opened it.
func (m *Manager) Close(ctx context.Context) error {
	release := m.release
	m.release = nil
	m.adapter = nil
	m.driver = nil
	if release == nil {
		return nil
	}
	return release(ctx)
}

var (
	ErrNoAdapter    = errors.New("no adapter registered for connection type")
	ErrNoOpener     = errors.New("no opener registered for scheme")
	ErrNoConnection = errors.New("no storage connection")
	ErrEmptyDSN     = errors.New("empty database path")
)
