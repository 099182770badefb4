package odbc

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Bridge is the native call-level interface the command layer drives.
// Every method maps onto one ODBC entry point and returns the driver's
// return code untouched; interpreting it is the caller's job.
//
// LoadLibrary returns the implementation backed by the system driver manager.
// Tests substitute a scripted implementation.
type Bridge interface {
	AllocHandle(handleType SQLSMALLINT, input SQLHANDLE) (SQLHANDLE, SQLRETURN)
	FreeHandle(handleType SQLSMALLINT, handle SQLHANDLE) SQLRETURN
	GetDiagRec(handleType SQLSMALLINT, handle SQLHANDLE, recNum SQLSMALLINT) (DiagRecord, SQLRETURN)

	SetEnvAttr(env SQLHENV, attribute SQLINTEGER, value uintptr) SQLRETURN
	DriverConnect(dbc SQLHDBC, connStr string) SQLRETURN
	Disconnect(dbc SQLHDBC) SQLRETURN
	SetConnectAttr(dbc SQLHDBC, attribute SQLINTEGER, value uintptr) SQLRETURN
	EndTran(handleType SQLSMALLINT, handle SQLHANDLE, completionType SQLSMALLINT) SQLRETURN

	SetStmtAttr(stmt SQLHSTMT, attribute SQLINTEGER, value uintptr) SQLRETURN
	ExecDirect(stmt SQLHSTMT, text string) SQLRETURN
	Prepare(stmt SQLHSTMT, text string) SQLRETURN
	Execute(stmt SQLHSTMT) SQLRETURN
	BindParameter(stmt SQLHSTMT, paramNum SQLUSMALLINT, ioType, valueType, paramType SQLSMALLINT, colSize SQLULEN, decDigits SQLSMALLINT, buf []byte, strLenOrInd *SQLLEN) SQLRETURN
	RowCount(stmt SQLHSTMT) (SQLLEN, SQLRETURN)
	Cancel(stmt SQLHSTMT) SQLRETURN
	FreeStmt(stmt SQLHSTMT, option SQLUSMALLINT) SQLRETURN

	NumResultCols(stmt SQLHSTMT) (SQLSMALLINT, SQLRETURN)
	DescribeCol(stmt SQLHSTMT, colNum SQLUSMALLINT) (ColumnDesc, SQLRETURN)
	Fetch(stmt SQLHSTMT) SQLRETURN
	GetData(stmt SQLHSTMT, colNum SQLUSMALLINT, targetType SQLSMALLINT, buf []byte) (SQLLEN, SQLRETURN)
	CloseCursor(stmt SQLHSTMT) SQLRETURN
	MoreResults(stmt SQLHSTMT) SQLRETURN
}

var (
	odbcLib  uintptr
	initOnce sync.Once
	initErr  error
)

// ODBC function pointers - populated by purego
var (
	sqlAllocHandle    func(handleType SQLSMALLINT, inputHandle SQLHANDLE, outputHandle *SQLHANDLE) SQLRETURN
	sqlFreeHandle     func(handleType SQLSMALLINT, handle SQLHANDLE) SQLRETURN
	sqlSetEnvAttr     func(env SQLHENV, attribute SQLINTEGER, value uintptr, stringLength SQLINTEGER) SQLRETURN
	sqlDriverConnect  func(dbc SQLHDBC, hwnd uintptr, inConnStr *byte, inConnStrLen SQLSMALLINT, outConnStr *byte, outConnStrMax SQLSMALLINT, outConnStrLen *SQLSMALLINT, driverCompletion SQLUSMALLINT) SQLRETURN
	sqlDisconnect     func(dbc SQLHDBC) SQLRETURN
	sqlSetConnectAttr func(dbc SQLHDBC, attribute SQLINTEGER, value uintptr, stringLength SQLINTEGER) SQLRETURN
	sqlExecDirect     func(stmt SQLHSTMT, stmtText *byte, textLength SQLINTEGER) SQLRETURN
	sqlPrepare        func(stmt SQLHSTMT, stmtText *byte, textLength SQLINTEGER) SQLRETURN
	sqlExecute        func(stmt SQLHSTMT) SQLRETURN
	sqlNumResultCols  func(stmt SQLHSTMT, columnCount *SQLSMALLINT) SQLRETURN
	sqlDescribeCol    func(stmt SQLHSTMT, colNum SQLUSMALLINT, colName *byte, bufferLen SQLSMALLINT, nameLen *SQLSMALLINT, dataType *SQLSMALLINT, colSize *SQLULEN, decDigits *SQLSMALLINT, nullable *SQLSMALLINT) SQLRETURN
	sqlBindParameter  func(stmt SQLHSTMT, paramNum SQLUSMALLINT, ioType SQLSMALLINT, valueType SQLSMALLINT, paramType SQLSMALLINT, colSize SQLULEN, decDigits SQLSMALLINT, paramValue uintptr, bufferLen SQLLEN, strLenOrInd *SQLLEN) SQLRETURN
	sqlFetch          func(stmt SQLHSTMT) SQLRETURN
	sqlGetData        func(stmt SQLHSTMT, colNum SQLUSMALLINT, targetType SQLSMALLINT, targetValue uintptr, bufferLen SQLLEN, strLenOrInd *SQLLEN) SQLRETURN
	sqlRowCount       func(stmt SQLHSTMT, rowCount *SQLLEN) SQLRETURN
	sqlGetDiagRec     func(handleType SQLSMALLINT, handle SQLHANDLE, recNum SQLSMALLINT, sqlState *byte, nativeError *SQLINTEGER, msgText *byte, bufferLen SQLSMALLINT, textLen *SQLSMALLINT) SQLRETURN
	sqlEndTran        func(handleType SQLSMALLINT, handle SQLHANDLE, completionType SQLSMALLINT) SQLRETURN
	sqlCloseCursor    func(stmt SQLHSTMT) SQLRETURN
	sqlCancel         func(stmt SQLHSTMT) SQLRETURN
	sqlFreeStmt       func(stmt SQLHSTMT, option SQLUSMALLINT) SQLRETURN
	sqlMoreResults    func(stmt SQLHSTMT) SQLRETURN
	sqlSetStmtAttr    func(stmt SQLHSTMT, attribute SQLINTEGER, value uintptr, stringLength SQLINTEGER) SQLRETURN
)

// getLibraryPath returns the platform-specific ODBC library path.
// The GODBC_LIBRARY_PATH environment variable can override the default path.
func getLibraryPath() string {
	if path := os.Getenv("GODBC_LIBRARY_PATH"); path != "" {
		return path
	}

	switch runtime.GOOS {
	case "windows":
		return "odbc32.dll"
	case "darwin":
		paths := []string{
			"/opt/homebrew/lib/libodbc.2.dylib", // Apple Silicon Homebrew
			"/usr/local/lib/libodbc.2.dylib",    // Intel Homebrew
			"/opt/homebrew/lib/libodbc.dylib",
			"/usr/local/lib/libodbc.dylib",
		}
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
		return "libodbc.2.dylib" // Let purego search standard paths
	default:
		return "libodbc.so.2"
	}
}

// initODBC loads the driver manager and registers all functions.
// If loading fails, set GODBC_LIBRARY_PATH to specify a custom library location.
func initODBC() error {
	initOnce.Do(func() {
		libPath := getLibraryPath()

		odbcLib, initErr = loadODBCLibrary(libPath)
		if initErr != nil {
			initErr = fmt.Errorf("failed to load ODBC library %q: %w (set GODBC_LIBRARY_PATH to override)", libPath, initErr)
			return
		}

		purego.RegisterLibFunc(&sqlAllocHandle, odbcLib, "SQLAllocHandle")
		purego.RegisterLibFunc(&sqlFreeHandle, odbcLib, "SQLFreeHandle")
		purego.RegisterLibFunc(&sqlSetEnvAttr, odbcLib, "SQLSetEnvAttr")

		// ANSI entry points carry an 'A' suffix on Windows only
		if runtime.GOOS == "windows" {
			purego.RegisterLibFunc(&sqlDriverConnect, odbcLib, "SQLDriverConnectA")
			purego.RegisterLibFunc(&sqlExecDirect, odbcLib, "SQLExecDirectA")
			purego.RegisterLibFunc(&sqlPrepare, odbcLib, "SQLPrepareA")
			purego.RegisterLibFunc(&sqlDescribeCol, odbcLib, "SQLDescribeColA")
			purego.RegisterLibFunc(&sqlGetDiagRec, odbcLib, "SQLGetDiagRecA")
		} else {
			purego.RegisterLibFunc(&sqlDriverConnect, odbcLib, "SQLDriverConnect")
			purego.RegisterLibFunc(&sqlExecDirect, odbcLib, "SQLExecDirect")
			purego.RegisterLibFunc(&sqlPrepare, odbcLib, "SQLPrepare")
			purego.RegisterLibFunc(&sqlDescribeCol, odbcLib, "SQLDescribeCol")
			purego.RegisterLibFunc(&sqlGetDiagRec, odbcLib, "SQLGetDiagRec")
		}
		purego.RegisterLibFunc(&sqlDisconnect, odbcLib, "SQLDisconnect")
		purego.RegisterLibFunc(&sqlSetConnectAttr, odbcLib, "SQLSetConnectAttr")
		purego.RegisterLibFunc(&sqlExecute, odbcLib, "SQLExecute")
		purego.RegisterLibFunc(&sqlNumResultCols, odbcLib, "SQLNumResultCols")
		purego.RegisterLibFunc(&sqlBindParameter, odbcLib, "SQLBindParameter")
		purego.RegisterLibFunc(&sqlFetch, odbcLib, "SQLFetch")
		purego.RegisterLibFunc(&sqlGetData, odbcLib, "SQLGetData")
		purego.RegisterLibFunc(&sqlRowCount, odbcLib, "SQLRowCount")
		purego.RegisterLibFunc(&sqlEndTran, odbcLib, "SQLEndTran")
		purego.RegisterLibFunc(&sqlCloseCursor, odbcLib, "SQLCloseCursor")
		purego.RegisterLibFunc(&sqlCancel, odbcLib, "SQLCancel")
		purego.RegisterLibFunc(&sqlFreeStmt, odbcLib, "SQLFreeStmt")
		purego.RegisterLibFunc(&sqlMoreResults, odbcLib, "SQLMoreResults")
		purego.RegisterLibFunc(&sqlSetStmtAttr, odbcLib, "SQLSetStmtAttr")
	})
	return initErr
}

// LoadLibrary loads the system ODBC driver manager once and returns a Bridge
// backed by it.
func LoadLibrary() (Bridge, error) {
	if err := initODBC(); err != nil {
		return nil, err
	}
	return libODBC{}, nil
}

// libODBC forwards every Bridge call to the loaded driver manager.
type libODBC struct{}

func (libODBC) AllocHandle(handleType SQLSMALLINT, input SQLHANDLE) (SQLHANDLE, SQLRETURN) {
	var out SQLHANDLE
	ret := sqlAllocHandle(handleType, input, &out)
	return out, ret
}

func (libODBC) FreeHandle(handleType SQLSMALLINT, handle SQLHANDLE) SQLRETURN {
	return sqlFreeHandle(handleType, handle)
}

func (libODBC) GetDiagRec(handleType SQLSMALLINT, handle SQLHANDLE, recNum SQLSMALLINT) (DiagRecord, SQLRETURN) {
	sqlState := make([]byte, 6)
	message := make([]byte, 1024)
	var nativeError SQLINTEGER
	var msgLen SQLSMALLINT
	ret := sqlGetDiagRec(handleType, handle, recNum, &sqlState[0], &nativeError, &message[0], SQLSMALLINT(len(message)), &msgLen)
	if !IsSuccess(ret) {
		return DiagRecord{}, ret
	}
	if int(msgLen) > len(message)-1 {
		msgLen = SQLSMALLINT(len(message) - 1)
	}
	return DiagRecord{
		SQLState:    string(sqlState[:5]),
		NativeError: int32(nativeError),
		Message:     string(message[:msgLen]),
	}, ret
}

func (libODBC) SetEnvAttr(env SQLHENV, attribute SQLINTEGER, value uintptr) SQLRETURN {
	return sqlSetEnvAttr(env, attribute, value, 0)
}

func (libODBC) DriverConnect(dbc SQLHDBC, connStr string) SQLRETURN {
	inBytes := append([]byte(connStr), 0)
	outConnStr := make([]byte, 1024)
	var outLen SQLSMALLINT
	return sqlDriverConnect(dbc, 0, &inBytes[0], SQLSMALLINT(SQL_NTS), &outConnStr[0], SQLSMALLINT(len(outConnStr)), &outLen, SQL_DRIVER_NOPROMPT)
}

func (libODBC) Disconnect(dbc SQLHDBC) SQLRETURN {
	return sqlDisconnect(dbc)
}

func (libODBC) SetConnectAttr(dbc SQLHDBC, attribute SQLINTEGER, value uintptr) SQLRETURN {
	return sqlSetConnectAttr(dbc, attribute, value, 0)
}

func (libODBC) EndTran(handleType SQLSMALLINT, handle SQLHANDLE, completionType SQLSMALLINT) SQLRETURN {
	return sqlEndTran(handleType, handle, completionType)
}

func (libODBC) SetStmtAttr(stmt SQLHSTMT, attribute SQLINTEGER, value uintptr) SQLRETURN {
	return sqlSetStmtAttr(stmt, attribute, value, 0)
}

func (libODBC) ExecDirect(stmt SQLHSTMT, text string) SQLRETURN {
	textBytes := append([]byte(text), 0)
	return sqlExecDirect(stmt, &textBytes[0], SQL_NTS)
}

func (libODBC) Prepare(stmt SQLHSTMT, text string) SQLRETURN {
	textBytes := append([]byte(text), 0)
	return sqlPrepare(stmt, &textBytes[0], SQL_NTS)
}

func (libODBC) Execute(stmt SQLHSTMT) SQLRETURN {
	return sqlExecute(stmt)
}

// BindParameter binds buf as the deferred buffer of a parameter. The driver
// reads buf at execute time, so the caller keeps it alive until then.
func (libODBC) BindParameter(stmt SQLHSTMT, paramNum SQLUSMALLINT, ioType, valueType, paramType SQLSMALLINT, colSize SQLULEN, decDigits SQLSMALLINT, buf []byte, strLenOrInd *SQLLEN) SQLRETURN {
	var dataPtr uintptr
	if len(buf) > 0 {
		dataPtr = uintptr(unsafe.Pointer(&buf[0]))
	}
	return sqlBindParameter(stmt, paramNum, ioType, valueType, paramType, colSize, decDigits, dataPtr, SQLLEN(len(buf)), strLenOrInd)
}

func (libODBC) RowCount(stmt SQLHSTMT) (SQLLEN, SQLRETURN) {
	var n SQLLEN
	ret := sqlRowCount(stmt, &n)
	return n, ret
}

func (libODBC) Cancel(stmt SQLHSTMT) SQLRETURN {
	return sqlCancel(stmt)
}

func (libODBC) FreeStmt(stmt SQLHSTMT, option SQLUSMALLINT) SQLRETURN {
	return sqlFreeStmt(stmt, option)
}

func (libODBC) NumResultCols(stmt SQLHSTMT) (SQLSMALLINT, SQLRETURN) {
	var n SQLSMALLINT
	ret := sqlNumResultCols(stmt, &n)
	return n, ret
}

func (libODBC) DescribeCol(stmt SQLHSTMT, colNum SQLUSMALLINT) (ColumnDesc, SQLRETURN) {
	colName := make([]byte, 256)
	var nameLen, dataType, decDigits, nullable SQLSMALLINT
	var colSize SQLULEN
	ret := sqlDescribeCol(stmt, colNum, &colName[0], SQLSMALLINT(len(colName)), &nameLen, &dataType, &colSize, &decDigits, &nullable)
	if !IsSuccess(ret) {
		return ColumnDesc{}, ret
	}
	if int(nameLen) > len(colName)-1 {
		nameLen = SQLSMALLINT(len(colName) - 1)
	}
	return ColumnDesc{
		Name:          string(colName[:nameLen]),
		DataType:      dataType,
		Size:          colSize,
		DecimalDigits: decDigits,
		Nullable:      nullable,
	}, ret
}

func (libODBC) Fetch(stmt SQLHSTMT) SQLRETURN {
	return sqlFetch(stmt)
}

func (libODBC) GetData(stmt SQLHSTMT, colNum SQLUSMALLINT, targetType SQLSMALLINT, buf []byte) (SQLLEN, SQLRETURN) {
	var indicator SQLLEN
	ret := sqlGetData(stmt, colNum, targetType, uintptr(unsafe.Pointer(&buf[0])), SQLLEN(len(buf)), &indicator)
	return indicator, ret
}

func (libODBC) CloseCursor(stmt SQLHSTMT) SQLRETURN {
	return sqlCloseCursor(stmt)
}

func (libODBC) MoreResults(stmt SQLHSTMT) SQLRETURN {
	return sqlMoreResults(stmt)
}
