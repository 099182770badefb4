package odbc

import (
	"errors"
	"strconv"
)

// Reader is a forward-only cursor over the result of ExecuteReader.
//
// The reader borrows the command's statement handle. Close must be called;
// it closes the native cursor and lets the command free the handle unless
// the command is prepared.
type Reader struct {
	cmd             *Command
	conn            *Connection
	stmt            SQLHSTMT
	behavior        CommandBehavior
	recordsAffected int64

	columns  []ColumnDesc
	values   []any
	rowsRead int
	closed   bool
}

func newReader(cmd *Command, behavior CommandBehavior, recordsAffected int64) (*Reader, error) {
	r := &Reader{
		cmd:             cmd,
		conn:            cmd.conn,
		stmt:            cmd.stmt.current(),
		behavior:        behavior,
		recordsAffected: recordsAffected,
	}
	if err := r.describe(); err != nil {
		return nil, err
	}
	return r, nil
}

// describe loads the column metadata of the current result set.
func (r *Reader) describe() error {
	bridge := r.conn.bridge
	n, ret := bridge.NumResultCols(r.stmt)
	if !IsSuccess(ret) {
		return r.callError("SQLNumResultCols", ret)
	}

	r.columns = make([]ColumnDesc, n)
	for i := range r.columns {
		desc, ret := bridge.DescribeCol(r.stmt, SQLUSMALLINT(i+1))
		if !IsSuccess(ret) {
			return r.callError("SQLDescribeCol", ret)
		}
		r.columns[i] = desc
	}
	r.values = nil
	r.rowsRead = 0
	return nil
}

// Columns describes the columns of the current result set. It is empty for
// statements that return no rows.
func (r *Reader) Columns() []ColumnDesc {
	return r.columns
}

// ColumnNames returns the column names of the current result set.
func (r *Reader) ColumnNames() []string {
	names := make([]string, len(r.columns))
	for i, c := range r.columns {
		names[i] = c.Name
	}
	return names
}

// RecordsAffected is the row count computed when the command executed.
func (r *Reader) RecordsAffected() int64 {
	return r.recordsAffected
}

// Read advances to the next row and loads all of its values. It returns
// false once the result set is exhausted.
func (r *Reader) Read() (bool, error) {
	if err := r.check("Read"); err != nil {
		return false, err
	}
	if len(r.columns) == 0 || r.behavior&BehaviorSchemaOnly != 0 {
		return false, nil
	}
	if r.behavior&BehaviorSingleRow != 0 && r.rowsRead > 0 {
		return false, nil
	}

	ret := r.conn.bridge.Fetch(r.stmt)
	if ret == SQL_NO_DATA {
		r.values = nil
		return false, nil
	}
	if !IsSuccess(ret) {
		return false, r.callError("SQLFetch", ret)
	}

	values := make([]any, len(r.columns))
	for i, col := range r.columns {
		v, err := r.getData(SQLUSMALLINT(i+1), col)
		if err != nil {
			return false, err
		}
		values[i] = v
	}
	r.values = values
	r.rowsRead++
	return true, nil
}

// Value returns column i of the current row. SQL NULL is nil.
func (r *Reader) Value(i int) (any, error) {
	if r.values == nil {
		return nil, &InvalidOperationError{Method: "Value", Message: "no current row"}
	}
	if i < 0 || i >= len(r.values) {
		return nil, &ArgumentError{Name: "column index", Message: strconv.Itoa(i) + " out of range"}
	}
	return r.values[i], nil
}

// Values returns a copy of the current row.
func (r *Reader) Values() []any {
	out := make([]any, len(r.values))
	copy(out, r.values)
	return out
}

// NextResult moves to the next result set of a batch.
func (r *Reader) NextResult() (bool, error) {
	if err := r.check("NextResult"); err != nil {
		return false, err
	}
	if r.behavior&BehaviorSingleResult != 0 {
		return false, nil
	}

	ret := r.conn.bridge.MoreResults(r.stmt)
	if ret == SQL_NO_DATA {
		return false, nil
	}
	if !IsSuccess(ret) {
		return false, r.callError("SQLMoreResults", ret)
	}
	if err := r.describe(); err != nil {
		return false, err
	}
	return true, nil
}

// Close closes the cursor and applies the command's release policy. With
// BehaviorCloseConnection the connection is closed as well.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	if r.live() {
		if ret := r.conn.bridge.CloseCursor(r.stmt); !IsSuccess(ret) {
			r.conn.logger.Debug("close cursor failed", "conn_id", r.conn.id,
				"handle", uintptr(r.stmt), "ret", FormatReturnCode(ret))
		}
	}

	var errs []error
	if r.cmd.stmt.current() == r.stmt {
		errs = append(errs, r.cmd.freeIfNotPrepared())
	}
	if r.behavior&BehaviorCloseConnection != 0 {
		errs = append(errs, r.conn.Close())
	}
	return errors.Join(errs...)
}

// live reports whether the borrowed handle is still the command's current
// handle on a connection period that has not ended.
func (r *Reader) live() bool {
	return r.cmd.stmt.current() == r.stmt && r.cmd.stmt.usable(r.conn)
}

func (r *Reader) check(method string) error {
	if r.closed {
		return &InvalidOperationError{Method: method, Message: "reader is closed"}
	}
	if !r.live() {
		return &InvalidOperationError{Method: method, Message: "statement handle is no longer valid"}
	}
	return nil
}

// getData fetches one column of the current row. Variable-length values are
// read in chunks until the driver reports the remainder fits.
func (r *Reader) getData(col SQLUSMALLINT, desc ColumnDesc) (any, error) {
	bridge := r.conn.bridge
	cType := columnCType(desc.DataType)

	if size := fixedSize(cType); size > 0 {
		buf := make([]byte, size)
		ind, ret := bridge.GetData(r.stmt, col, cType, buf)
		if !IsSuccess(ret) {
			return nil, r.callError("SQLGetData", ret)
		}
		if ind == SQL_NULL_DATA {
			return nil, nil
		}
		return decodeValue(cType, buf)
	}

	// character data is terminated inside the buffer
	term := 0
	switch cType {
	case SQL_C_CHAR:
		term = 1
	case SQL_C_WCHAR:
		term = 2
	}
	size := min(max(int(desc.Size)+term, 256), 65536)
	if term == 2 && size%2 == 1 {
		size++
	}
	buf := make([]byte, size)
	avail := size - term

	var out []byte
	for {
		ind, ret := bridge.GetData(r.stmt, col, cType, buf)
		if ret == SQL_NO_DATA {
			break
		}
		if !IsSuccess(ret) {
			return nil, r.callError("SQLGetData", ret)
		}
		if ind == SQL_NULL_DATA {
			return nil, nil
		}
		if ret == SQL_SUCCESS_WITH_INFO && (ind == SQL_NO_TOTAL || int(ind) > avail) {
			out = append(out, buf[:avail]...)
			continue
		}
		out = append(out, buf[:int(ind)]...)
		break
	}
	if out == nil {
		out = []byte{}
	}
	return decodeValue(cType, out)
}

func (r *Reader) callError(call string, ret SQLRETURN) error {
	return &CallError{
		Kind:       ErrExecution,
		Call:       call,
		HandleType: SQL_HANDLE_STMT,
		Handle:     SQLHANDLE(r.stmt),
		Return:     ret,
		Diag:       r.conn.CreateDiagnosticError(SQL_HANDLE_STMT, SQLHANDLE(r.stmt)),
	}
}
