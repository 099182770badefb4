package odbc

import (
	"errors"
	"sync/atomic"
)

// stmtHandle owns the one native statement handle a command may hold.
//
// The handle is stamped with the generation of the connection it was
// allocated against. Once that connection's generation moves on, the driver
// has already discarded the handle and it must be neither used nor freed.
// Handle, connection and generation are published together as one immutable
// stmtLease so Cancel can read them from another goroutine, and so a release
// racing connection teardown frees the handle at most once.
type stmtHandle struct {
	owner *Command
	lease atomic.Pointer[stmtLease]
}

type stmtLease struct {
	conn       *Connection
	generation Generation
	stmt       SQLHSTMT
}

func (h *stmtHandle) current() SQLHSTMT {
	if l := h.lease.Load(); l != nil {
		return l.stmt
	}
	return 0
}

// usable reports whether the held handle can still be executed on conn.
func (h *stmtHandle) usable(conn *Connection) bool {
	l := h.lease.Load()
	if conn == nil || l == nil || l.conn != conn {
		return false
	}
	return conn.Generation() == l.generation
}

// allocate replaces any held handle with a fresh one allocated on conn.
// A failed allocation leaves no handle behind.
func (h *stmtHandle) allocate(conn *Connection) (SQLHSTMT, error) {
	if err := h.release(true); err != nil {
		return 0, err
	}

	gen, err := conn.Link(h.owner)
	if err != nil {
		return 0, err
	}

	dbc := conn.NativeHandle()
	raw, ret := conn.bridge.AllocHandle(SQL_HANDLE_STMT, SQLHANDLE(dbc))
	if !IsSuccess(ret) {
		return 0, &CallError{
			Kind:       ErrHandleAllocation,
			Call:       "SQLAllocHandle",
			HandleType: SQL_HANDLE_DBC,
			Handle:     SQLHANDLE(dbc),
			Return:     ret,
			Diag:       conn.CreateDiagnosticError(SQL_HANDLE_DBC, SQLHANDLE(dbc)),
		}
	}

	h.lease.Store(&stmtLease{conn: conn, generation: gen, stmt: SQLHSTMT(raw)})
	conn.logger.Debug("statement handle allocated",
		"conn_id", conn.id, "handle", uintptr(raw), "generation", uint64(gen))
	return SQLHSTMT(raw), nil
}

// release frees the held handle, if any. With unlink set the owner is also
// removed from the connection's registry; bulk teardown clears the registry
// itself and passes false.
//
// The handle is forgotten in every case, including when a native free call
// fails: the caller must not retry.
func (h *stmtHandle) release(unlink bool) error {
	l := h.lease.Load()
	if l == nil {
		return nil
	}
	conn := l.conn
	if unlink {
		conn.Unlink(h.owner)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if !h.lease.CompareAndSwap(l, nil) {
		// freed concurrently by the connection's teardown
		return nil
	}
	stmt := l.stmt
	if conn.generation != l.generation {
		conn.logger.Debug("statement handle invalidated by connection, not freeing",
			"conn_id", conn.id, "handle", uintptr(stmt),
			"generation", uint64(l.generation), "current", uint64(conn.generation))
		return nil
	}

	var errs []error
	if ret := conn.bridge.FreeStmt(stmt, SQL_CLOSE); !IsSuccess(ret) {
		errs = append(errs, releaseError(conn, "SQLFreeStmt", stmt, ret))
	}
	if ret := conn.bridge.FreeHandle(SQL_HANDLE_STMT, SQLHANDLE(stmt)); !IsSuccess(ret) {
		errs = append(errs, releaseError(conn, "SQLFreeHandle", stmt, ret))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	conn.logger.Debug("statement handle freed", "conn_id", conn.id, "handle", uintptr(stmt))
	return nil
}

func releaseError(conn *Connection, call string, stmt SQLHSTMT, ret SQLRETURN) error {
	return &CallError{
		Kind:       ErrHandleRelease,
		Call:       call,
		HandleType: SQL_HANDLE_STMT,
		Handle:     SQLHANDLE(stmt),
		Return:     ret,
		Diag:       conn.CreateDiagnosticError(SQL_HANDLE_STMT, SQLHANDLE(stmt)),
	}
}
