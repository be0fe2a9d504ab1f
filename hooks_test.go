package anysqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observedChange struct {
	kind      ChangeKind
	dbName    string
	tableName string
	rowID     int64
}

func TestConn_UpdateHook(t *testing.T) {
	t.Run("fires per row change", func(t *testing.T) {
		conn := newTestConn(t)
		require.NoError(t, conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)"))

		var calls []observedChange
		conn.SetUpdateHook(func(kind ChangeKind, dbName, tableName string, rowID int64) {
			calls = append(calls, observedChange{kind, dbName, tableName, rowID})
		})

		require.NoError(t, conn.Exec("INSERT INTO t VALUES (1, 'a')"))
		require.Len(t, calls, 1)
		assert.Equal(t, observedChange{Insert, "main", "t", 1}, calls[0])

		require.NoError(t, conn.Exec("UPDATE t SET v = 'b' WHERE id = 1"))
		require.Len(t, calls, 2)
		assert.Equal(t, observedChange{Update, "main", "t", 1}, calls[1])

		require.NoError(t, conn.Exec("DELETE FROM t WHERE id = 1"))
		require.Len(t, calls, 3)
		assert.Equal(t, observedChange{Delete, "main", "t", 1}, calls[2])
	})
	t.Run("not fired on schema changes", func(t *testing.T) {
		conn := newTestConn(t)
		var calls int
		conn.SetUpdateHook(func(ChangeKind, string, string, int64) {
			calls++
		})
		require.NoError(t, conn.Exec("CREATE TABLE s (id INTEGER PRIMARY KEY)"))
		assert.Zero(t, calls)
	})
	t.Run("re-register replaces", func(t *testing.T) {
		conn := newTestConn(t)
		require.NoError(t, conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"))

		var first, second int
		conn.SetUpdateHook(func(ChangeKind, string, string, int64) {
			first++
		})
		require.NoError(t, conn.Exec("INSERT INTO t VALUES (1)"))

		conn.SetUpdateHook(func(ChangeKind, string, string, int64) {
			second++
		})
		require.NoError(t, conn.Exec("INSERT INTO t VALUES (2)"))

		assert.Equal(t, 1, first)
		assert.Equal(t, 1, second)
	})
	t.Run("nil removes", func(t *testing.T) {
		conn := newTestConn(t)
		require.NoError(t, conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"))

		var calls int
		conn.SetUpdateHook(func(ChangeKind, string, string, int64) {
			calls++
		})
		conn.SetUpdateHook(nil)
		require.NoError(t, conn.Exec("INSERT INTO t VALUES (1)"))
		assert.Zero(t, calls)
	})
}

func TestConn_CommitHook(t *testing.T) {
	t.Run("allow", func(t *testing.T) {
		conn := newTestConn(t)
		require.NoError(t, conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"))

		var commits, rollbacks int
		conn.SetCommitHook(func() bool {
			commits++
			return true
		})
		conn.SetRollbackHook(func() {
			rollbacks++
		})

		require.NoError(t, conn.Exec("BEGIN; INSERT INTO t VALUES (1); COMMIT;"))
		assert.Equal(t, 1, commits)
		assert.Zero(t, rollbacks)

		conn.SetCommitHook(nil)
		conn.SetRollbackHook(nil)
		assert.Equal(t, int64(1), countRows(t, conn, "t"))
	})
	t.Run("deny forces rollback", func(t *testing.T) {
		conn := newTestConn(t)
		require.NoError(t, conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"))

		var rollbacks int
		conn.SetCommitHook(func() bool {
			return false
		})
		conn.SetRollbackHook(func() {
			rollbacks++
		})

		err := conn.Exec("BEGIN; INSERT INTO t VALUES (1); COMMIT;")
		require.ErrorIs(t, err, ErrExecFailed)
		assert.Equal(t, 1, rollbacks)

		conn.SetCommitHook(nil)
		conn.SetRollbackHook(nil)
		assert.Zero(t, countRows(t, conn, "t"))
	})
}

func TestConn_RollbackHook(t *testing.T) {
	conn := newTestConn(t)
	require.NoError(t, conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"))

	var rollbacks int
	conn.SetRollbackHook(func() {
		rollbacks++
	})
	require.NoError(t, conn.Exec("BEGIN; INSERT INTO t VALUES (1); ROLLBACK;"))
	assert.Equal(t, 1, rollbacks)
	assert.Zero(t, countRows(t, conn, "t"))
}

func TestConn_HookOrdering(t *testing.T) {
	conn := newTestConn(t)
	require.NoError(t, conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"))

	var order []string
	conn.SetUpdateHook(func(kind ChangeKind, _, _ string, _ int64) {
		order = append(order, "update:"+kind.String())
	})
	conn.SetCommitHook(func() bool {
		order = append(order, "commit")
		return true
	})

	require.NoError(t, conn.Exec("BEGIN; INSERT INTO t VALUES (1); INSERT INTO t VALUES (2); COMMIT;"))
	assert.Equal(t, []string{"update:INSERT", "update:INSERT", "commit"}, order)
}
