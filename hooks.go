package anysqlite

import "github.com/anyproto/any-sqlite/internal/bridge"

// ChangeKind classifies a row-level change reported to the update hook.
type ChangeKind = bridge.ChangeKind

const (
	Insert = bridge.Insert
	Update = bridge.Update
	Delete = bridge.Delete
)

type (
	// UpdateFn observes one row-level insert, update or delete. It
	// receives the change kind, the database and table names and the id
	// of the affected row.
	UpdateFn = bridge.UpdateFn
	// CommitFn decides whether a pending transaction may commit.
	CommitFn = bridge.CommitFn
	// RollbackFn observes a transaction rollback.
	RollbackFn = bridge.RollbackFn
)
