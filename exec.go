package odbc

import (
	"errors"
	"strconv"
	"strings"
)

// ExecuteNonQuery runs the statement. For text containing INSERT, UPDATE or
// DELETE it returns the driver's affected-row count, otherwise -1.
func (c *Command) ExecuteNonQuery() (int64, error) {
	return c.execute("ExecuteNonQuery", false)
}

// ExecuteReader runs the statement and returns a cursor over its result.
// The statement handle stays open until the reader is closed.
func (c *Command) ExecuteReader(behavior CommandBehavior) (*Reader, error) {
	return c.executeReader("ExecuteReader", behavior)
}

// ExecuteScalar runs the statement and returns the first column of the
// first row, or nil when there is none. The reader is always closed.
func (c *Command) ExecuteScalar() (value any, err error) {
	r, err := c.executeReader("ExecuteScalar", BehaviorDefault)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}()

	ok, err := r.Read()
	if err != nil || !ok {
		return nil, err
	}
	return r.Value(0)
}

// Prepare allocates a fresh statement handle and prepares the current text
// on it. It always redoes the work, even when the command is already
// prepared.
func (c *Command) Prepare() error {
	if err := c.validate("Prepare"); err != nil {
		return err
	}
	return c.prepare()
}

// Cancel asks the driver to stop the statement running on the command's
// handle. It may be called from another goroutine. The connection mutex is
// held across the native call so the handle cannot be freed underneath it.
func (c *Command) Cancel() error {
	l := c.stmt.lease.Load()
	if l == nil {
		return &InvalidOperationError{Method: "Cancel", Message: "no statement to cancel"}
	}
	conn := l.conn

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if c.stmt.lease.Load() != l || conn.generation != l.generation {
		return &InvalidOperationError{Method: "Cancel", Message: "statement handle is no longer valid"}
	}
	if ret := conn.bridge.Cancel(l.stmt); !IsSuccess(ret) {
		return &CallError{
			Kind:       ErrCancel,
			Call:       "SQLCancel",
			HandleType: SQL_HANDLE_STMT,
			Handle:     SQLHANDLE(l.stmt),
			Return:     ret,
			Diag:       conn.CreateDiagnosticError(SQL_HANDLE_STMT, SQLHANDLE(l.stmt)),
		}
	}
	conn.logger.Debug("statement cancel requested", "conn_id", conn.id, "handle", uintptr(l.stmt))
	return nil
}

func (c *Command) executeReader(method string, behavior CommandBehavior) (*Reader, error) {
	if behavior&^behaviorMask != 0 {
		return nil, &ArgumentError{Name: "command behavior", Message: "unknown flags " + strconv.Itoa(int(behavior))}
	}

	records, err := c.execute(method, true)
	if err != nil {
		return nil, err
	}

	r, err := newReader(c, behavior, records)
	if err != nil {
		if ferr := c.freeIfNotPrepared(); ferr != nil {
			return nil, errors.Join(err, ferr)
		}
		return nil, err
	}
	return r, nil
}

// validate checks the preconditions of every execution. Nothing native has
// been called when it fails.
func (c *Command) validate(method string) error {
	if c.conn == nil {
		return &InvalidOperationError{Method: method, Message: "connection is not set"}
	}
	if c.conn.State() != StateOpen {
		return &InvalidOperationError{Method: method, Message: "connection is closed"}
	}
	if c.text == "" {
		return &InvalidOperationError{Method: method, Message: "command text is not set"}
	}
	return nil
}

// execute runs the statement and applies the post-execution release policy:
// the handle is kept when a reader will consume it or when the command is
// prepared, and freed otherwise. After a failed native call the handle is
// left as it is.
func (c *Command) execute(method string, createReader bool) (int64, error) {
	if err := c.validate(method); err != nil {
		return 0, err
	}

	if err := c.execSQL(); err != nil {
		return 0, err
	}

	records := int64(-1)
	if affectsRows(c.text) {
		n, ret := c.conn.bridge.RowCount(c.stmt.current())
		if IsSuccess(ret) {
			records = int64(n)
		} else {
			c.conn.logger.Debug("row count not available",
				"conn_id", c.conn.id, "method", method, "ret", FormatReturnCode(ret))
		}
	}

	if !createReader && !c.prepared.Load() {
		if err := c.freeStatement(true); err != nil {
			return records, err
		}
	}
	return records, nil
}

// execSQL executes directly when there is nothing to bind and nothing
// prepared, and through prepare, bind and execute otherwise.
func (c *Command) execSQL() error {
	if c.prepared.Load() && !c.stmt.usable(c.conn) {
		// prepared on a connection period that has since ended
		c.prepared.Store(false)
	}

	bridge := c.conn.bridge
	if !c.prepared.Load() && c.params.Len() == 0 {
		stmt, err := c.reallocate()
		if err != nil {
			return err
		}
		if ret := bridge.ExecDirect(stmt, c.text); !isExecSuccess(ret) {
			return c.stmtError(ErrExecution, "SQLExecDirect", stmt, ret)
		}
		return nil
	}

	if !c.prepared.Load() {
		if err := c.prepare(); err != nil {
			return err
		}
	}

	stmt := c.stmt.current()
	if err := c.bindParameters(stmt); err != nil {
		return err
	}
	if ret := bridge.Execute(stmt); !isExecSuccess(ret) {
		return c.stmtError(ErrExecution, "SQLExecute", stmt, ret)
	}

	for _, p := range c.params.items {
		if err := p.readOutput(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Command) prepare() error {
	stmt, err := c.reallocate()
	if err != nil {
		return err
	}
	if ret := c.conn.bridge.Prepare(stmt, c.text); !IsSuccess(ret) {
		return c.stmtError(ErrPrepare, "SQLPrepare", stmt, ret)
	}
	c.prepared.Store(true)
	return nil
}

// bindParameters binds every parameter at its 1-based ordinal and copies its
// current value. Values are re-copied on every execution.
func (c *Command) bindParameters(stmt SQLHSTMT) error {
	for i, p := range c.params.items {
		if err := p.Bind(c, stmt, SQLUSMALLINT(i+1)); err != nil {
			return err
		}
		if err := p.CopyValue(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Command) stmtError(kind error, call string, stmt SQLHSTMT, ret SQLRETURN) error {
	return &CallError{
		Kind:       kind,
		Call:       call,
		HandleType: SQL_HANDLE_STMT,
		Handle:     SQLHANDLE(stmt),
		Return:     ret,
		Diag:       c.conn.CreateDiagnosticError(SQL_HANDLE_STMT, SQLHANDLE(stmt)),
	}
}

// affectsRows reports whether text looks like it modifies rows. This is a
// substring match on the upper-cased text, not a parse: a keyword inside a
// literal, comment or identifier also matches.
func affectsRows(text string) bool {
	upper := strings.ToUpper(text)
	return strings.Contains(upper, "UPDATE") ||
		strings.Contains(upper, "INSERT") ||
		strings.Contains(upper, "DELETE")
}
