package anysqlite

import (
	"fmt"

	sqlite3 "modernc.org/sqlite/lib"

	"github.com/anyproto/any-sqlite/internal/bridge"
	"github.com/anyproto/any-sqlite/internal/driver"
)

// OpenFlags controls sqlite3_open_v2 behavior. The four options are
// independent and combine with bitwise or.
type OpenFlags int32

const (
	OpenReadWrite    OpenFlags = sqlite3.SQLITE_OPEN_READWRITE
	OpenCreate       OpenFlags = sqlite3.SQLITE_OPEN_CREATE
	OpenNoMutex      OpenFlags = sqlite3.SQLITE_OPEN_NOMUTEX
	OpenPrivateCache OpenFlags = sqlite3.SQLITE_OPEN_PRIVATECACHE
	OpenURI          OpenFlags = sqlite3.SQLITE_OPEN_URI
)

// MemoryPath is the engine's reserved path for an ephemeral,
// connection-local in-memory database.
const MemoryPath = ":memory:"

// NativeHandle is the raw engine resource backing a Conn. Borrow hands it
// out non-owning; Adopt takes ownership of one created by other means.
type NativeHandle = driver.Handle

// Conn is one open handle to the embedded engine.
//
// Conn is thread-confined: it holds no internal mutex and must not be used
// from multiple goroutines without external synchronization. Statements
// prepared on a Conn keep the native resource alive past Close.
type Conn struct {
	db       *driver.DB
	isClosed bool
}

// Open opens the database at path. With the default flags the file is
// created if missing. On failure no Conn is produced and any partially
// opened native resource is released.
func Open(path string, config *Config) (*Conn, error) {
	cfg := config.withDefaults()
	db, err := driver.Open(path, int32(cfg.Flags))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	return setup(db, cfg)
}

// OpenMemory opens an ephemeral in-memory database private to the
// returned connection.
func OpenMemory(config *Config) (*Conn, error) {
	return Open(MemoryPath, config)
}

// Adopt wraps a native handle created by other means (custom VFS setup,
// extension loading), taking ownership of it.
func Adopt(h NativeHandle, config *Config) (*Conn, error) {
	return setup(driver.Adopt(h), config.withDefaults())
}

func setup(db *driver.DB, config *Config) (*Conn, error) {
	c := &Conn{db: db}
	bridge.Register(db.Handle().Ptr, config.Logger)
	if config.BusyTimeout > 0 {
		if err := db.BusyTimeout(int(config.BusyTimeout.Milliseconds())); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
		}
	}
	for k, v := range config.Pragma {
		if err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", k, v)); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
		}
	}
	return c, nil
}

// Exec runs one or more statements in query and discards all results.
// Side effects of statements that ran before a failure are not rolled
// back; wrap query in a transaction if atomicity is required.
func (c *Conn) Exec(query string) error {
	if c.isClosed {
		return ErrConnClosed
	}
	if err := c.db.Exec(query); err != nil {
		return fmt.Errorf("%w: %v", ErrExecFailed, err)
	}
	return nil
}

// Prepare parses the first statement in query into a Stmt bound to this
// connection. The Stmt keeps the native resource alive until finalized.
func (c *Conn) Prepare(query string) (*Stmt, error) {
	if c.isClosed {
		return nil, ErrConnClosed
	}
	stmt, err := c.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrepareFailed, err)
	}
	c.db.Retain()
	return &Stmt{db: c.db, stmt: stmt}, nil
}

// LastInsertRowID returns the row id of the most recent successful insert
// performed through this connection, or 0 if the connection is closed.
func (c *Conn) LastInsertRowID() int64 {
	if c.isClosed {
		return 0
	}
	return c.db.LastInsertRowID()
}

// Changes returns the number of rows modified by the most recently
// completed statement on this connection, or 0 if the connection is
// closed.
func (c *Conn) Changes() int {
	if c.isClosed {
		return 0
	}
	return c.db.Changes()
}

// Borrow returns the raw native handle for operations this layer does not
// model. The caller must not release it and must not outlive the Conn; a
// closed Conn yields the zero handle.
func (c *Conn) Borrow() NativeHandle {
	if c.isClosed {
		return NativeHandle{}
	}
	return c.db.Handle()
}

// SetUpdateHook installs fn, replacing any previously installed update
// hook. fn is invoked synchronously, on the goroutine performing the
// mutation, once per row-level insert, update or delete. A nil fn removes
// the hook.
func (c *Conn) SetUpdateHook(fn UpdateFn) {
	if c.isClosed {
		return
	}
	h := c.db.Handle()
	bridge.SetUpdate(h.TLS, h.Ptr, fn)
}

// SetCommitHook installs fn, replacing any previously installed commit
// hook. fn runs at the point a transaction is about to commit; returning
// false forces the engine to roll the transaction back instead, after
// which the rollback hook fires. A nil fn removes the hook.
func (c *Conn) SetCommitHook(fn CommitFn) {
	if c.isClosed {
		return
	}
	h := c.db.Handle()
	bridge.SetCommit(h.TLS, h.Ptr, fn)
}

// SetRollbackHook installs fn, replacing any previously installed rollback
// hook. fn runs whenever a transaction rolls back, whether explicitly or
// through a denied commit. A nil fn removes the hook.
func (c *Conn) SetRollbackHook(fn RollbackFn) {
	if c.isClosed {
		return
	}
	h := c.db.Handle()
	bridge.SetRollback(h.TLS, h.Ptr, fn)
}

// Close drops the connection's reference to the native resource and
// deregisters its hooks. Statements still outstanding keep the resource
// alive; it is released when the last of them is finalized.
func (c *Conn) Close() error {
	if c.isClosed {
		return ErrConnClosed
	}
	c.isClosed = true
	h := c.db.Handle()
	bridge.UninstallAll(h.TLS, h.Ptr)
	bridge.Unregister(h.Ptr)
	return c.db.Release()
}
