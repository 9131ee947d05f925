// Package sqlitepool provides claude-tracker's standard SQLite
// connection pool: WAL journal mode, NORMAL synchronous, a busy
// timeout so concurrent CLI invocations don't immediately fail on
// SQLITE_BUSY, and memory-mapped reads. It wraps
// zombiezen.com/go/sqlite's sqlitex.Pool rather than inventing a query
// builder — callers write SQL directly with sqlitex.Execute.
//
// claude-tracker's Store is the only consumer, but the pool itself
// knows nothing about plans; it is reusable plumbing.
package sqlitepool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds the parameters for opening a connection pool. Path is
// required; everything else has a default suited to a short-lived CLI
// process rather than a long-running daemon.
type Config struct {
	// Path is the filesystem path to the database file. The parent
	// directory must exist. ":memory:" gives an in-memory database;
	// Open does not change PoolSize for it, and each in-memory
	// connection is an independent database, so a shared in-memory
	// store needs PoolSize set to 1.
	Path string

	// PoolSize is the number of pooled connections. Zero or negative
	// defaults to min(runtime.NumCPU(), 4); claude-tracker's write
	// load is low and SQLite serializes writes regardless of pool
	// size, so a large pool buys nothing.
	PoolSize int

	// Logger receives pool open/close messages; pragma failures are
	// returned as errors, not logged. A nil Logger discards them.
	Logger *slog.Logger

	// OnConnect runs once per connection, after the standard pragmas,
	// for schema creation or other per-connection setup.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size set of SQLite connections with the pragmas
// above applied uniformly. Safe for concurrent use; individual
// connections are not — each caller must Take its own and Put it back.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool, applying pragmas to every connection lazily
// on first Take. The database file is created if missing.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize > 4 {
			poolSize = 4
		}
		if poolSize < 1 {
			poolSize = 1
		}
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Debug("sqlite pool opened", "path", cfg.Path, "pool_size", poolSize)

	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

// Take borrows a connection, blocking until one is available or ctx
// is cancelled. The caller must Put it back, typically via defer.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Safe to call with nil.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close closes every connection, blocking until all borrowed
// connections are returned.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error", "path", p.path, "error", err)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Debug("sqlite pool closed", "path", p.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
		"PRAGMA mmap_size=67108864",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}

	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: OnConnect: %w", err)
		}
	}

	return nil
}
