package odbc

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
	"unicode/utf16"
)

// =============================================================================
// Scripted Bridge
// =============================================================================

type fakeCall struct {
	name   string
	handle SQLHANDLE
	arg    string
}

type fakeResult struct {
	columns []ColumnDesc
	rows    [][]any
}

type fakeBind struct {
	ioType  SQLSMALLINT
	cType   SQLSMALLINT
	sqlType SQLSMALLINT
	buf     []byte
	ind     *SQLLEN
}

type fakeStmt struct {
	sets    []fakeResult
	row     int
	offsets map[SQLUSMALLINT]int
	binds   map[SQLUSMALLINT]fakeBind
}

// fakeBridge records every native call and tracks which handles are live.
// Return codes default to SQL_SUCCESS and can be scripted per call name.
type fakeBridge struct {
	mu sync.Mutex

	next  SQLHANDLE
	live  map[SQLHANDLE]SQLSMALLINT
	stmts map[SQLHSTMT]*fakeStmt
	calls []fakeCall

	// freeing a handle that is not live
	doubleFrees int
	// cancelling a handle that is not live
	deadCancels int

	rets      map[string]SQLRETURN
	diag      DiagRecord
	rowCount  SQLLEN
	results   []fakeResult
	onExecute func(binds map[SQLUSMALLINT]fakeBind)
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		next:  0x1000,
		live:  make(map[SQLHANDLE]SQLSMALLINT),
		stmts: make(map[SQLHSTMT]*fakeStmt),
		rets:  make(map[string]SQLRETURN),
	}
}

// fail scripts call to return ret and the handle diagnostics to report state.
func (b *fakeBridge) fail(call string, ret SQLRETURN, state, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rets[call] = ret
	b.diag = DiagRecord{SQLState: state, NativeError: 1, Message: msg}
}

func (b *fakeBridge) succeed(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rets, call)
}

func (b *fakeBridge) setResults(results ...fakeResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = results
}

func (b *fakeBridge) record(name string, h SQLHANDLE, arg string) SQLRETURN {
	b.calls = append(b.calls, fakeCall{name: name, handle: h, arg: arg})
	return b.rets[name]
}

func (b *fakeBridge) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

func (b *fakeBridge) callsNamed(name string) []fakeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []fakeCall
	for _, c := range b.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func (b *fakeBridge) totalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBridge) resetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

func (b *fakeBridge) liveStmts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ht := range b.live {
		if ht == SQL_HANDLE_STMT {
			n++
		}
	}
	return n
}

func (b *fakeBridge) liveHandles() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

func (b *fakeBridge) bindOf(stmt SQLHSTMT, ordinal SQLUSMALLINT) (fakeBind, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.stmts[stmt]
	if !ok {
		return fakeBind{}, false
	}
	bind, ok := s.binds[ordinal]
	return bind, ok
}

func (b *fakeBridge) AllocHandle(handleType SQLSMALLINT, input SQLHANDLE) (SQLHANDLE, SQLRETURN) {
	b.mu.Lock()
	defer b.mu.Unlock()
	name := "SQLAllocHandle"
	if handleType != SQL_HANDLE_STMT {
		name = fmt.Sprintf("SQLAllocHandle(%d)", handleType)
	}
	if ret := b.record(name, input, ""); !IsSuccess(ret) {
		return 0, ret
	}
	b.next += 8
	h := b.next
	b.live[h] = handleType
	if handleType == SQL_HANDLE_STMT {
		b.stmts[SQLHSTMT(h)] = &fakeStmt{row: -1, binds: make(map[SQLUSMALLINT]fakeBind)}
	}
	return h, SQL_SUCCESS
}

func (b *fakeBridge) FreeHandle(handleType SQLSMALLINT, handle SQLHANDLE) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	name := "SQLFreeHandle"
	if handleType != SQL_HANDLE_STMT {
		name = fmt.Sprintf("SQLFreeHandle(%d)", handleType)
	}
	ret := b.record(name, handle, "")
	if _, ok := b.live[handle]; !ok {
		b.doubleFrees++
	}
	delete(b.live, handle)
	delete(b.stmts, SQLHSTMT(handle))
	return ret
}

func (b *fakeBridge) GetDiagRec(handleType SQLSMALLINT, handle SQLHANDLE, recNum SQLSMALLINT) (DiagRecord, SQLRETURN) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if recNum != 1 || b.diag.SQLState == "" {
		return DiagRecord{}, SQL_NO_DATA
	}
	return b.diag, SQL_SUCCESS
}

func (b *fakeBridge) SetEnvAttr(env SQLHENV, attribute SQLINTEGER, value uintptr) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("SQLSetEnvAttr", SQLHANDLE(env), fmt.Sprint(attribute, "=", value))
}

func (b *fakeBridge) DriverConnect(dbc SQLHDBC, connStr string) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("SQLDriverConnect", SQLHANDLE(dbc), connStr)
}

// Disconnect discards every statement handle still allocated, as a driver
// manager does.
func (b *fakeBridge) Disconnect(dbc SQLHDBC) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	for h, ht := range b.live {
		if ht == SQL_HANDLE_STMT {
			delete(b.live, h)
			delete(b.stmts, SQLHSTMT(h))
		}
	}
	return b.record("SQLDisconnect", SQLHANDLE(dbc), "")
}

func (b *fakeBridge) SetConnectAttr(dbc SQLHDBC, attribute SQLINTEGER, value uintptr) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("SQLSetConnectAttr", SQLHANDLE(dbc), fmt.Sprint(attribute, "=", value))
}

func (b *fakeBridge) EndTran(handleType SQLSMALLINT, handle SQLHANDLE, completionType SQLSMALLINT) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("SQLEndTran", handle, fmt.Sprint(completionType))
}

func (b *fakeBridge) SetStmtAttr(stmt SQLHSTMT, attribute SQLINTEGER, value uintptr) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("SQLSetStmtAttr", SQLHANDLE(stmt), fmt.Sprint(attribute, "=", value))
}

func (b *fakeBridge) startResults(stmt SQLHSTMT) {
	s, ok := b.stmts[stmt]
	if !ok {
		return
	}
	s.sets = append([]fakeResult(nil), b.results...)
	s.row = -1
}

func (b *fakeBridge) ExecDirect(stmt SQLHSTMT, text string) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	ret := b.record("SQLExecDirect", SQLHANDLE(stmt), text)
	if isExecSuccess(ret) {
		b.startResults(stmt)
	}
	return ret
}

func (b *fakeBridge) Prepare(stmt SQLHSTMT, text string) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("SQLPrepare", SQLHANDLE(stmt), text)
}

func (b *fakeBridge) Execute(stmt SQLHSTMT) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	ret := b.record("SQLExecute", SQLHANDLE(stmt), "")
	if isExecSuccess(ret) {
		b.startResults(stmt)
		if s, ok := b.stmts[stmt]; ok && b.onExecute != nil {
			b.onExecute(s.binds)
		}
	}
	return ret
}

func (b *fakeBridge) BindParameter(stmt SQLHSTMT, paramNum SQLUSMALLINT, ioType, valueType, paramType SQLSMALLINT, colSize SQLULEN, decDigits SQLSMALLINT, buf []byte, strLenOrInd *SQLLEN) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	ret := b.record("SQLBindParameter", SQLHANDLE(stmt), fmt.Sprint(paramNum))
	if IsSuccess(ret) {
		if s, ok := b.stmts[stmt]; ok {
			s.binds[paramNum] = fakeBind{ioType: ioType, cType: valueType, sqlType: paramType, buf: buf, ind: strLenOrInd}
		}
	}
	return ret
}

func (b *fakeBridge) RowCount(stmt SQLHSTMT) (SQLLEN, SQLRETURN) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rowCount, b.record("SQLRowCount", SQLHANDLE(stmt), "")
}

func (b *fakeBridge) Cancel(stmt SQLHSTMT) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.live[SQLHANDLE(stmt)]; !ok {
		b.deadCancels++
	}
	return b.record("SQLCancel", SQLHANDLE(stmt), "")
}

func (b *fakeBridge) FreeStmt(stmt SQLHSTMT, option SQLUSMALLINT) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("SQLFreeStmt", SQLHANDLE(stmt), fmt.Sprint(option))
}

func (b *fakeBridge) NumResultCols(stmt SQLHSTMT) (SQLSMALLINT, SQLRETURN) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ret := b.record("SQLNumResultCols", SQLHANDLE(stmt), "")
	s, ok := b.stmts[stmt]
	if !ok || len(s.sets) == 0 {
		return 0, ret
	}
	return SQLSMALLINT(len(s.sets[0].columns)), ret
}

func (b *fakeBridge) DescribeCol(stmt SQLHSTMT, colNum SQLUSMALLINT) (ColumnDesc, SQLRETURN) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ret := b.record("SQLDescribeCol", SQLHANDLE(stmt), fmt.Sprint(colNum))
	s := b.stmts[stmt]
	return s.sets[0].columns[colNum-1], ret
}

func (b *fakeBridge) Fetch(stmt SQLHSTMT) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ret := b.record("SQLFetch", SQLHANDLE(stmt), ""); !IsSuccess(ret) {
		return ret
	}
	s, ok := b.stmts[stmt]
	if !ok || len(s.sets) == 0 || s.row+1 >= len(s.sets[0].rows) {
		return SQL_NO_DATA
	}
	s.row++
	s.offsets = make(map[SQLUSMALLINT]int)
	return SQL_SUCCESS
}

// GetData serves the current row. Variable-length values are returned in
// chunks the size of buf, the way drivers do.
func (b *fakeBridge) GetData(stmt SQLHSTMT, colNum SQLUSMALLINT, targetType SQLSMALLINT, buf []byte) (SQLLEN, SQLRETURN) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ret := b.record("SQLGetData", SQLHANDLE(stmt), fmt.Sprint(colNum)); !IsSuccess(ret) {
		return 0, ret
	}
	s := b.stmts[stmt]
	v := s.sets[0].rows[s.row][colNum-1]
	if v == nil {
		return SQL_NULL_DATA, SQL_SUCCESS
	}

	if fixedSize(targetType) > 0 {
		copy(buf, fakeFixed(targetType, v))
		return SQLLEN(fixedSize(targetType)), SQL_SUCCESS
	}

	var data []byte
	term := 0
	switch targetType {
	case SQL_C_CHAR:
		data, term = []byte(fmt.Sprint(v)), 1
	case SQL_C_WCHAR:
		for _, u := range utf16.Encode([]rune(v.(string))) {
			data = binary.NativeEndian.AppendUint16(data, u)
		}
		term = 2
	default:
		data = v.([]byte)
	}

	off := s.offsets[colNum]
	if off > len(data) {
		return 0, SQL_NO_DATA
	}
	remaining := data[off:]
	avail := len(buf) - term
	if len(remaining) > avail {
		copy(buf, remaining[:avail])
		clear(buf[avail:])
		s.offsets[colNum] = off + avail
		return SQLLEN(len(remaining)), SQL_SUCCESS_WITH_INFO
	}
	n := copy(buf, remaining)
	clear(buf[n:min(n+term, len(buf))])
	s.offsets[colNum] = len(data) + 1
	return SQLLEN(len(remaining)), SQL_SUCCESS
}

func fakeFixed(targetType SQLSMALLINT, v any) []byte {
	var enc encoded
	switch targetType {
	case SQL_C_BIT:
		enc, _ = encodeValue(v.(bool))
	case SQL_C_STINYINT:
		enc, _ = encodeValue(int8(v.(int64)))
	case SQL_C_SSHORT:
		enc, _ = encodeValue(int16(v.(int64)))
	case SQL_C_SLONG:
		enc, _ = encodeValue(int32(v.(int64)))
	case SQL_C_SBIGINT:
		enc, _ = encodeValue(v.(int64))
	case SQL_C_FLOAT:
		enc, _ = encodeValue(float32(v.(float64)))
	case SQL_C_DOUBLE:
		enc, _ = encodeValue(v.(float64))
	case SQL_C_TIMESTAMP:
		return encodeTimestamp(v.(time.Time))
	}
	return enc.data
}

func (b *fakeBridge) CloseCursor(stmt SQLHSTMT) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("SQLCloseCursor", SQLHANDLE(stmt), "")
}

func (b *fakeBridge) MoreResults(stmt SQLHSTMT) SQLRETURN {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ret := b.record("SQLMoreResults", SQLHANDLE(stmt), ""); !IsSuccess(ret) {
		return ret
	}
	s, ok := b.stmts[stmt]
	if !ok || len(s.sets) <= 1 {
		return SQL_NO_DATA
	}
	s.sets = s.sets[1:]
	s.row = -1
	return SQL_SUCCESS
}

var _ Bridge = (*fakeBridge)(nil)

// =============================================================================
// Helpers
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestConnection returns an open connection over b, closed at cleanup.
func openTestConnection(t *testing.T, b *fakeBridge, opts ...ConnectorOption) *Connection {
	t.Helper()
	opts = append([]ConnectorOption{WithBridge(b), WithLogger(testLogger())}, opts...)
	conn, err := OpenConnection(context.Background(), "DSN=fake", opts...)
	if err != nil {
		t.Fatalf("open connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func column(name string, dataType SQLSMALLINT, size SQLULEN) ColumnDesc {
	return ColumnDesc{Name: name, DataType: dataType, Size: size, Nullable: SQL_NULLABLE}
}
