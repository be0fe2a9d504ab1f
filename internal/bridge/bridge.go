// Package bridge carries caller closures across the engine's C-style hook
// boundary. The engine accepts a fixed-signature function pointer plus an
// opaque context pointer at registration time and hands both back on every
// invocation; the bridge registers a trampoline, passes the sqlite3* itself
// as the context pointer, and on each callback recovers the owning
// connection's hook state through a process-wide registry.
//
// A closure must never panic across the engine's call stack, so every
// trampoline recovers, reports through the connection's logger, and answers
// the engine with a safe default: update and rollback do nothing, commit
// denies.
package bridge

import (
	"errors"
	"sync"
	"unsafe"

	"go.uber.org/zap"
	"modernc.org/libc"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrInternalInconsistency is reported through the registered logger when
// the engine hands a trampoline a reason code outside the known
// enumeration.
var ErrInternalInconsistency = errors.New("any-sqlite: internal inconsistency")

// ChangeKind classifies a row-level change reported by the update hook.
type ChangeKind int32

const (
	Insert ChangeKind = iota + 1
	Update
	Delete
)

func (k ChangeKind) String() string {
	switch k {
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

type (
	// UpdateFn observes one row-level insert, update or delete.
	UpdateFn func(kind ChangeKind, dbName, tableName string, rowID int64)
	// CommitFn decides whether a pending transaction may commit.
	CommitFn func() (allow bool)
	// RollbackFn observes a transaction rollback.
	RollbackFn func()
)

// conns maps the opaque context pointer (the sqlite3* itself) to the hook
// state of the owning connection.
var conns sync.Map // uintptr -> *entry

type entry struct {
	mu       sync.Mutex
	update   UpdateFn
	commit   CommitFn
	rollback RollbackFn
	logger   *zap.Logger
}

func (e *entry) updateFn() UpdateFn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update
}

func (e *entry) commitFn() CommitFn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commit
}

func (e *entry) rollbackFn() RollbackFn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rollback
}

func lookup(db uintptr) *entry {
	if v, ok := conns.Load(db); ok {
		return v.(*entry)
	}
	return nil
}

// Register adds hook state for the given native handle. It must be called
// before any Set* and removed with Unregister when the connection closes.
func Register(db uintptr, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conns.Store(db, &entry{logger: logger})
}

// Unregister drops the hook state. A trampoline that fires for an
// unregistered handle falls back to the safe defaults.
func Unregister(db uintptr) {
	conns.Delete(db)
}

// SetUpdate installs fn as the update hook, replacing any previous one.
// A nil fn removes the engine-level hook entirely.
func SetUpdate(tls *libc.TLS, db uintptr, fn UpdateFn) {
	e := lookup(db)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.update = fn
	e.mu.Unlock()
	if fn == nil {
		sqlite3.Xsqlite3_update_hook(tls, db, 0, 0)
		return
	}
	sqlite3.Xsqlite3_update_hook(tls, db, cFuncPointer(updateTrampoline), db)
}

// SetCommit installs fn as the commit hook, replacing any previous one.
func SetCommit(tls *libc.TLS, db uintptr, fn CommitFn) {
	e := lookup(db)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.commit = fn
	e.mu.Unlock()
	if fn == nil {
		sqlite3.Xsqlite3_commit_hook(tls, db, 0, 0)
		return
	}
	sqlite3.Xsqlite3_commit_hook(tls, db, cFuncPointer(commitTrampoline), db)
}

// SetRollback installs fn as the rollback hook, replacing any previous one.
func SetRollback(tls *libc.TLS, db uintptr, fn RollbackFn) {
	e := lookup(db)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.rollback = fn
	e.mu.Unlock()
	if fn == nil {
		sqlite3.Xsqlite3_rollback_hook(tls, db, 0, 0)
		return
	}
	sqlite3.Xsqlite3_rollback_hook(tls, db, cFuncPointer(rollbackTrampoline), db)
}

// UninstallAll removes the engine-level hooks for db. The registry entry is
// left to Unregister.
func UninstallAll(tls *libc.TLS, db uintptr) {
	sqlite3.Xsqlite3_update_hook(tls, db, 0, 0)
	sqlite3.Xsqlite3_commit_hook(tls, db, 0, 0)
	sqlite3.Xsqlite3_rollback_hook(tls, db, 0, 0)
}

// void (*)(void*, int, char const*, char const*, sqlite3_int64)
func updateTrampoline(tls *libc.TLS, pArg uintptr, op int32, zDB, zTable uintptr, rowID sqlite3.Sqlite3_int64) {
	e := lookup(pArg)
	if e == nil {
		return
	}
	fn := e.updateFn()
	if fn == nil {
		return
	}
	kind, ok := changeKind(op)
	if !ok {
		e.logger.Error("update hook: unknown change code from engine",
			zap.Int32("code", op), zap.Error(ErrInternalInconsistency))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("update hook panicked", zap.Any("panic", r))
		}
	}()
	fn(kind, libc.GoString(zDB), libc.GoString(zTable), int64(rowID))
}

// int (*)(void*); non-zero turns the commit into a rollback
func commitTrampoline(tls *libc.TLS, pArg uintptr) int32 {
	e := lookup(pArg)
	if e == nil {
		return 0
	}
	fn := e.commitFn()
	if fn == nil {
		return 0
	}
	allow := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("commit hook panicked, denying commit", zap.Any("panic", r))
				allow = false
			}
		}()
		allow = fn()
	}()
	if allow {
		return 0
	}
	return 1
}

// void (*)(void*)
func rollbackTrampoline(tls *libc.TLS, pArg uintptr) {
	e := lookup(pArg)
	if e == nil {
		return
	}
	fn := e.rollbackFn()
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rollback hook panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

func changeKind(op int32) (ChangeKind, bool) {
	switch op {
	case sqlite3.SQLITE_INSERT:
		return Insert, true
	case sqlite3.SQLITE_UPDATE:
		return Update, true
	case sqlite3.SQLITE_DELETE:
		return Delete, true
	}
	return 0, false
}

// cFuncPointer converts a function defined by a function declaration to a C
// pointer. The result of using cFuncPointer on closures is undefined.
func cFuncPointer[T any](f T) uintptr {
	// assumes the memory representation described in https://golang.org/s/go11func
	return *(*uintptr)(unsafe.Pointer(&struct{ f T }{f}))
}
