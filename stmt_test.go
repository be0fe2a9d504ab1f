package anysqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStmt_BindAndRead(t *testing.T) {
	conn := newTestConn(t)
	require.NoError(t, conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)"))

	ins, err := conn.Prepare("INSERT INTO t (id, name) VALUES (?, ?)")
	require.NoError(t, err)
	require.NoError(t, ins.BindInt64(1, 10))
	require.NoError(t, ins.BindText(2, "first"))
	row, err := ins.Step()
	require.NoError(t, err)
	assert.False(t, row)
	require.NoError(t, ins.Finalize())

	sel, err := conn.Prepare("SELECT id, name FROM t")
	require.NoError(t, err)
	row, err = sel.Step()
	require.NoError(t, err)
	require.True(t, row)
	assert.Equal(t, 2, sel.ColumnCount())
	assert.Equal(t, int64(10), sel.ColumnInt64(0))
	assert.Equal(t, "first", sel.ColumnText(1))
	require.NoError(t, sel.Finalize())
}

func TestStmt_Reset(t *testing.T) {
	conn := newTestConn(t)
	require.NoError(t, conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"))
	require.NoError(t, conn.Exec("INSERT INTO t VALUES (1)"))

	stmt, err := conn.Prepare("SELECT id FROM t")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		row, err := stmt.Step()
		require.NoError(t, err)
		require.True(t, row)
		assert.Equal(t, int64(1), stmt.ColumnInt64(0))
		require.NoError(t, stmt.Reset())
	}
	require.NoError(t, stmt.Finalize())
}

func TestStmt_Finalize(t *testing.T) {
	conn := newTestConn(t)
	stmt, err := conn.Prepare("SELECT 1")
	require.NoError(t, err)
	require.NoError(t, stmt.Finalize())
	// idempotent
	require.NoError(t, stmt.Finalize())

	_, err = stmt.Step()
	require.ErrorIs(t, err, ErrStmtFinalized)
	require.ErrorIs(t, stmt.Reset(), ErrStmtFinalized)
	require.ErrorIs(t, stmt.BindInt64(1, 1), ErrStmtFinalized)
}

func TestStmt_ConstraintError(t *testing.T) {
	conn := newTestConn(t)
	require.NoError(t, conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"))
	require.NoError(t, conn.Exec("INSERT INTO t VALUES (1)"))

	stmt, err := conn.Prepare("INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	_, err = stmt.Step()
	require.ErrorIs(t, err, ErrExecFailed)
	assert.Contains(t, err.Error(), "UNIQUE")
	// finalize reports the failed evaluation again
	assert.Error(t, stmt.Finalize())
}
