package anysqlite

import (
	"errors"

	"github.com/anyproto/any-sqlite/internal/bridge"
)

var (
	ErrOpenFailed    = errors.New("any-sqlite: open failed")
	ErrPrepareFailed = errors.New("any-sqlite: prepare failed")
	ErrExecFailed    = errors.New("any-sqlite: exec failed")
	ErrConnClosed    = errors.New("any-sqlite: connection is closed")
	ErrStmtFinalized = errors.New("any-sqlite: statement is finalized")

	// ErrInternalInconsistency marks an unexpected status or reason code
	// from the engine. The hook bridge reports it through the configured
	// logger since nothing can be returned across the callback boundary.
	ErrInternalInconsistency = bridge.ErrInternalInconsistency
)
