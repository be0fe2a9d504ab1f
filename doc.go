// Package anysqlite manages the lifetime of a native SQLite connection and
// the prepared statements derived from it, and bridges the engine's C-style
// callback hooks (row change, commit, rollback) into Go closures.
//
// A Conn shares ownership of the native handle with every Stmt prepared on
// it, so the handle is released exactly once, when the last of them is
// closed. A Conn is thread-confined: it carries no internal mutex and must
// not be used concurrently without external synchronization.
package anysqlite
