package rowstore

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/tailscale/hujson"

	"rowstore/storage"
)

type Config struct {
	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration
	// JournalMode and Synchronous are SQLite pragmas for file databases.
	JournalMode string
	Synchronous string
	// MaxOpenConns caps the connection pool of SQL backends.
	MaxOpenConns int
	// ConnectTimeout bounds the initial ping of Postgres and MongoDB.
	ConnectTimeout time.Duration
	// Verbose logs every command at debug level.
	Verbose bool

	Logger *slog.Logger
}

func newConfig() *Config {
	c := &Config{
		BusyTimeout:    envDuration("ROWSTORE_BUSY_TIMEOUT", 10*time.Second),
		JournalMode:    envString("ROWSTORE_JOURNAL_MODE", "WAL"),
		Synchronous:    envString("ROWSTORE_SYNCHRONOUS", "FULL"),
		MaxOpenConns:   envInt("ROWSTORE_MAX_OPEN_CONNS", 4),
		ConnectTimeout: envDuration("ROWSTORE_CONNECT_TIMEOUT", 10*time.Second),
		Verbose:        os.Getenv("ROWSTORE_VERBOSE") == "1",
	}
	return c
}

func (c *Config) storageOptions() storage.OpenOptions {
	return storage.OpenOptions{
		BusyTimeout:    c.BusyTimeout,
		JournalMode:    c.JournalMode,
		Synchronous:    c.Synchronous,
		MaxOpenConns:   c.MaxOpenConns,
		ConnectTimeout: c.ConnectTimeout,
	}
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d >= 0 {
		return d
	}
	return def
}

// fileConfig is the on-disk shape of a config file. Unset fields keep the
// environment/default value.
type fileConfig struct {
	BusyTimeout    string `json:"busy_timeout,omitempty"`
	JournalMode    string `json:"journal_mode,omitempty"`
	Synchronous    string `json:"synchronous,omitempty"`
	MaxOpenConns   int    `json:"max_open_conns,omitempty"`
	ConnectTimeout string `json:"connect_timeout,omitempty"`
	Verbose        *bool  `json:"verbose,omitempty"`
}

// LoadConfigFile reads a JSON config file; comments and trailing commas are
// allowed. Fields missing from the file keep their environment or default
// values.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c := newConfig()
	if err := c.apply(data); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) apply(data []byte) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(standardized, &fc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if fc.BusyTimeout != "" {
		d, err := time.ParseDuration(fc.BusyTimeout)
		if err != nil {
			return fmt.Errorf("busy_timeout: %w", err)
		}
		c.BusyTimeout = d
	}
	if fc.ConnectTimeout != "" {
		d, err := time.ParseDuration(fc.ConnectTimeout)
		if err != nil {
			return fmt.Errorf("connect_timeout: %w", err)
		}
		c.ConnectTimeout = d
	}
	if fc.JournalMode != "" {
		c.JournalMode = fc.JournalMode
	}
	if fc.Synchronous != "" {
		c.Synchronous = fc.Synchronous
	}
	if fc.MaxOpenConns > 0 {
		c.MaxOpenConns = fc.MaxOpenConns
	}
	if fc.Verbose != nil {
		c.Verbose = *fc.Verbose
	}
	return nil
}

type Option func(*Handle)

// WithConfig replaces the handle's configuration. A nil config is ignored.
func WithConfig(cfg *Config) Option {
	return func(h *Handle) {
		if cfg != nil {
			cp := *cfg
			h.Config = &cp
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handle) { h.Config.Logger = l }
}

func WithVerbose(on bool) Option {
	return func(h *Handle) { h.Config.Verbose = on }
}

func WithBusyTimeout(d time.Duration) Option {
	return func(h *Handle) { h.Config.BusyTimeout = d }
}

func WithJournalMode(mode string) Option {
	return func(h *Handle) { h.Config.JournalMode = mode }
}

func WithMaxOpenConns(n int) Option {
	return func(h *Handle) { h.Config.MaxOpenConns = n }
}

// WithConfigFile applies a config file on top of the current configuration.
// A file that cannot be read or parsed makes Open fail.
func WithConfigFile(path string) Option {
	return func(h *Handle) {
		data, err := os.ReadFile(path)
		if err == nil {
			err = h.Config.apply(data)
		}
		if err != nil && h.optErr == nil {
			h.optErr = fmt.Errorf("config %s: %w", path, err)
		}
	}
}
