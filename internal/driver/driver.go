package driver

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"modernc.org/libc"
	"modernc.org/libc/sys/types"
	sqlite3 "modernc.org/sqlite/lib"
)

const ptrSize = types.Size_t(unsafe.Sizeof(uintptr(0)))

var initOnce sync.Once

func initlib(tls *libc.TLS) {
	initOnce.Do(func() {
		sqlite3.Xsqlite3_initialize(tls)
	})
}

// Handle is the raw native resource pair: the sqlite3* pointer and the libc
// thread-local state it must be called on. A Handle obtained from DB.Handle
// is non-owning; the caller must not release it and must not use it after
// the owning DB is gone.
type Handle struct {
	TLS *libc.TLS
	Ptr uintptr
}

// Error carries the engine result code together with its diagnostic text.
type Error struct {
	Code int
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// DB owns one open sqlite3 handle. Ownership is shared through an explicit
// reference count: the connection holds one reference and every prepared
// statement derived from it holds another, so the native handle is closed
// exactly once, by whichever Release drops the count to zero.
//
// DB is not safe for unsynchronized use from multiple goroutines.
type DB struct {
	tls  *libc.TLS
	ptr  uintptr
	refs atomic.Int32
}

// OpenHandle opens a database and returns the raw owning handle without
// wrapping it in a DB. It exists for setup paths that need to touch the
// native handle before normal ownership begins; pair it with Adopt.
func OpenHandle(path string, flags int32) (Handle, error) {
	tls := libc.NewTLS()
	initlib(tls)
	ptr, err := openV2(tls, path, flags)
	if err != nil {
		tls.Close()
		return Handle{}, err
	}
	return Handle{TLS: tls, Ptr: ptr}, nil
}

// Open opens the database at path and returns a DB holding one reference.
func Open(path string, flags int32) (*DB, error) {
	h, err := OpenHandle(path, flags)
	if err != nil {
		return nil, err
	}
	return Adopt(h), nil
}

// Adopt takes ownership of an externally created handle.
func Adopt(h Handle) *DB {
	d := &DB{tls: h.TLS, ptr: h.Ptr}
	d.refs.Store(1)
	return d
}

// Handle returns the native resource without transferring ownership.
func (d *DB) Handle() Handle {
	return Handle{TLS: d.tls, Ptr: d.ptr}
}

// Retain adds a reference. Every Retain must be paired with a Release.
func (d *DB) Retain() {
	d.refs.Add(1)
}

// Release drops one reference. The last release closes the native handle
// and the TLS it lives on.
func (d *DB) Release() error {
	if d.refs.Add(-1) != 0 {
		return nil
	}
	var err error
	if rc := sqlite3.Xsqlite3_close_v2(d.tls, d.ptr); rc != sqlite3.SQLITE_OK {
		err = &Error{Code: int(rc), Msg: libc.GoString(sqlite3.Xsqlite3_errstr(d.tls, rc))}
	}
	d.ptr = 0
	d.tls.Close()
	d.tls = nil
	return err
}

// Exec runs one or more statements and discards any result rows.
func (d *DB) Exec(query string) error {
	zSQL, err := libc.CString(query)
	if err != nil {
		return err
	}
	defer libc.Xfree(d.tls, zSQL)

	pzErr, err := d.malloc(int(ptrSize))
	if err != nil {
		return err
	}
	defer d.free(pzErr)
	*(*uintptr)(unsafe.Pointer(pzErr)) = 0

	if rc := sqlite3.Xsqlite3_exec(d.tls, d.ptr, zSQL, 0, 0, pzErr); rc != sqlite3.SQLITE_OK {
		if zErr := *(*uintptr)(unsafe.Pointer(pzErr)); zErr != 0 {
			msg := libc.GoString(zErr)
			sqlite3.Xsqlite3_free(d.tls, zErr)
			return &Error{Code: int(rc), Msg: msg}
		}
		return d.errstr(rc)
	}
	return nil
}

// Prepare parses the first statement in query and returns the native
// statement pointer. No statement is left allocated on the failure path.
func (d *DB) Prepare(query string) (uintptr, error) {
	zSQL, err := libc.CString(query)
	if err != nil {
		return 0, err
	}
	defer libc.Xfree(d.tls, zSQL)

	// one slot for the statement out-param, one for the tail pointer
	pp, err := d.malloc(int(ptrSize) * 2)
	if err != nil {
		return 0, err
	}
	defer d.free(pp)
	ppStmt := pp
	ppTail := pp + uintptr(ptrSize)

	rc := sqlite3.Xsqlite3_prepare_v2(d.tls, d.ptr, zSQL, -1, ppStmt, ppTail)
	stmt := *(*uintptr)(unsafe.Pointer(ppStmt))
	if rc != sqlite3.SQLITE_OK {
		if stmt != 0 {
			sqlite3.Xsqlite3_finalize(d.tls, stmt)
		}
		return 0, d.errstr(rc)
	}
	if stmt == 0 {
		return 0, &Error{Code: int(sqlite3.SQLITE_MISUSE), Msg: "query contains no statement"}
	}
	return stmt, nil
}

// Step advances a prepared statement. It reports true while a result row is
// available and false once the statement has run to completion.
func (d *DB) Step(stmt uintptr) (bool, error) {
	switch rc := sqlite3.Xsqlite3_step(d.tls, stmt); rc {
	case sqlite3.SQLITE_ROW:
		return true, nil
	case sqlite3.SQLITE_DONE:
		return false, nil
	default:
		return false, d.errstr(rc)
	}
}

func (d *DB) Reset(stmt uintptr) error {
	if rc := sqlite3.Xsqlite3_reset(d.tls, stmt); rc != sqlite3.SQLITE_OK {
		return d.errstr(rc)
	}
	return nil
}

func (d *DB) Finalize(stmt uintptr) error {
	if rc := sqlite3.Xsqlite3_finalize(d.tls, stmt); rc != sqlite3.SQLITE_OK {
		return d.errstr(rc)
	}
	return nil
}

func (d *DB) BindInt64(stmt uintptr, idx1 int, value int64) error {
	if rc := sqlite3.Xsqlite3_bind_int64(d.tls, stmt, int32(idx1), value); rc != sqlite3.SQLITE_OK {
		return d.errstr(rc)
	}
	return nil
}

// BindText binds value at idx1 and returns the C copy of the string. The
// caller owns the allocation and must Free it after the statement is done
// with it (reset with fresh bindings, or finalized).
func (d *DB) BindText(stmt uintptr, idx1 int, value string) (uintptr, error) {
	p, err := libc.CString(value)
	if err != nil {
		return 0, err
	}
	if rc := sqlite3.Xsqlite3_bind_text(d.tls, stmt, int32(idx1), p, int32(len(value)), 0); rc != sqlite3.SQLITE_OK {
		libc.Xfree(d.tls, p)
		return 0, d.errstr(rc)
	}
	return p, nil
}

func (d *DB) ColumnInt64(stmt uintptr, iCol int) int64 {
	return sqlite3.Xsqlite3_column_int64(d.tls, stmt, int32(iCol))
}

func (d *DB) ColumnText(stmt uintptr, iCol int) string {
	return libc.GoString(sqlite3.Xsqlite3_column_text(d.tls, stmt, int32(iCol)))
}

func (d *DB) ColumnCount(stmt uintptr) int {
	return int(sqlite3.Xsqlite3_column_count(d.tls, stmt))
}

func (d *DB) LastInsertRowID() int64 {
	return sqlite3.Xsqlite3_last_insert_rowid(d.tls, d.ptr)
}

func (d *DB) Changes() int {
	return int(sqlite3.Xsqlite3_changes(d.tls, d.ptr))
}

func (d *DB) BusyTimeout(ms int) error {
	if rc := sqlite3.Xsqlite3_busy_timeout(d.tls, d.ptr, int32(ms)); rc != sqlite3.SQLITE_OK {
		return d.errstr(rc)
	}
	return nil
}

func (d *DB) Free(p uintptr) {
	if p != 0 {
		libc.Xfree(d.tls, p)
	}
}

func (d *DB) malloc(n int) (uintptr, error) {
	if p := libc.Xmalloc(d.tls, types.Size_t(n)); p != 0 || n == 0 {
		return p, nil
	}
	return 0, fmt.Errorf("sqlite: cannot allocate %d bytes of memory", n)
}

func (d *DB) free(p uintptr) {
	if p != 0 {
		libc.Xfree(d.tls, p)
	}
}

// errstr combines sqlite3_errstr for the result code with the per-handle
// sqlite3_errmsg diagnostic, the way the engine's own shell reports errors.
func (d *DB) errstr(rc int32) error {
	str := libc.GoString(sqlite3.Xsqlite3_errstr(d.tls, rc))
	msg := libc.GoString(sqlite3.Xsqlite3_errmsg(d.tls, d.ptr))
	if msg == "" || msg == str {
		return &Error{Code: int(rc), Msg: str}
	}
	return &Error{Code: int(rc), Msg: fmt.Sprintf("%s: %s", str, msg)}
}

// int sqlite3_open_v2(const char*, sqlite3**, int, const char*)
func openV2(tls *libc.TLS, path string, flags int32) (uintptr, error) {
	p := libc.Xmalloc(tls, ptrSize)
	if p == 0 {
		return 0, fmt.Errorf("sqlite: cannot allocate memory")
	}
	defer libc.Xfree(tls, p)

	s, err := libc.CString(path)
	if err != nil {
		return 0, err
	}
	defer libc.Xfree(tls, s)

	rc := sqlite3.Xsqlite3_open_v2(tls, s, p, flags, 0)
	db := *(*uintptr)(unsafe.Pointer(p))
	if rc != sqlite3.SQLITE_OK {
		// a partially opened handle still carries the diagnostic and
		// must be released before the error surfaces
		msg := libc.GoString(sqlite3.Xsqlite3_errstr(tls, rc))
		if db != 0 {
			if em := libc.GoString(sqlite3.Xsqlite3_errmsg(tls, db)); em != "" && em != msg {
				msg = fmt.Sprintf("%s: %s", msg, em)
			}
			sqlite3.Xsqlite3_close_v2(tls, db)
		}
		return 0, &Error{Code: int(rc), Msg: msg}
	}
	return db, nil
}
