package anysqlite

import (
	"errors"
	"fmt"

	"github.com/anyproto/any-sqlite/internal/driver"
)

// Stmt is one parsed, not yet finalized prepared statement. It holds a
// reference to its connection's native resource, so the resource outlives
// the Stmt even if the Conn is closed first. Stepping, binding and row
// reading beyond this minimal surface belong to higher layers.
type Stmt struct {
	db        *driver.DB
	stmt      uintptr
	allocs    []uintptr
	finalized bool
}

// Step advances the statement. It reports true while a result row is
// available and false once the statement has run to completion.
func (s *Stmt) Step() (bool, error) {
	if s.finalized {
		return false, ErrStmtFinalized
	}
	row, err := s.db.Step(s.stmt)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrExecFailed, err)
	}
	return row, nil
}

// Reset rewinds the statement for re-execution. Bindings are kept.
func (s *Stmt) Reset() error {
	if s.finalized {
		return ErrStmtFinalized
	}
	if err := s.db.Reset(s.stmt); err != nil {
		return fmt.Errorf("%w: %v", ErrExecFailed, err)
	}
	return nil
}

// BindInt64 binds value to the idx1-th parameter (1-based).
func (s *Stmt) BindInt64(idx1 int, value int64) error {
	if s.finalized {
		return ErrStmtFinalized
	}
	if err := s.db.BindInt64(s.stmt, idx1, value); err != nil {
		return fmt.Errorf("%w: %v", ErrExecFailed, err)
	}
	return nil
}

// BindText binds value to the idx1-th parameter (1-based).
func (s *Stmt) BindText(idx1 int, value string) error {
	if s.finalized {
		return ErrStmtFinalized
	}
	p, err := s.db.BindText(s.stmt, idx1, value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExecFailed, err)
	}
	s.allocs = append(s.allocs, p)
	return nil
}

// ColumnInt64 reads column iCol (0-based) of the current row.
func (s *Stmt) ColumnInt64(iCol int) int64 {
	return s.db.ColumnInt64(s.stmt, iCol)
}

// ColumnText reads column iCol (0-based) of the current row.
func (s *Stmt) ColumnText(iCol int) string {
	return s.db.ColumnText(s.stmt, iCol)
}

// ColumnCount returns the number of columns the statement produces.
func (s *Stmt) ColumnCount() int {
	return s.db.ColumnCount(s.stmt)
}

// Finalize releases the native statement and drops the reference to the
// connection's resource; if this was the last reference, the resource is
// released too. Finalize is idempotent.
func (s *Stmt) Finalize() error {
	if s.finalized {
		return nil
	}
	s.finalized = true
	err := s.db.Finalize(s.stmt)
	s.stmt = 0
	for _, p := range s.allocs {
		s.db.Free(p)
	}
	s.allocs = nil
	return errors.Join(err, s.db.Release())
}

// Close finalizes the statement.
func (s *Stmt) Close() error {
	return s.Finalize()
}
