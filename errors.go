package odbc

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents an ODBC error with diagnostic information from the driver.
// It implements the error interface and provides SQLState, native error code,
// and a human-readable message.
type Error struct {
	SQLState    string
	NativeError int32
	Message     string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s (native error: %d)", e.SQLState, e.Message, e.NativeError)
}

// Is reports whether target matches this error's SQLState.
// This allows using errors.Is to check for specific ODBC errors.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.SQLState == t.SQLState
	}
	return false
}

// DiagRecord represents a single diagnostic record from ODBC
type DiagRecord struct {
	SQLState    string
	NativeError int32
	Message     string
}

// Errors represents multiple ODBC errors
type Errors []Error

// Error implements the error interface for multiple errors
func (e Errors) Error() string {
	if len(e) == 0 {
		return "unknown ODBC error"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	for i, err := range e {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// GetDiagRecords retrieves all diagnostic records for a handle
func GetDiagRecords(bridge Bridge, handleType SQLSMALLINT, handle SQLHANDLE) []DiagRecord {
	var records []DiagRecord
	for i := SQLSMALLINT(1); ; i++ {
		rec, ret := bridge.GetDiagRec(handleType, handle, i)
		if !IsSuccess(ret) {
			break
		}
		records = append(records, rec)
	}
	return records
}

// NewError creates an Error from the diagnostic records of a handle
func NewError(bridge Bridge, handleType SQLSMALLINT, handle SQLHANDLE) error {
	records := GetDiagRecords(bridge, handleType, handle)
	if len(records) == 0 {
		return &Error{
			SQLState: SQLStateGeneralError,
			Message:  "unknown ODBC error",
		}
	}
	if len(records) == 1 {
		return &Error{
			SQLState:    records[0].SQLState,
			NativeError: records[0].NativeError,
			Message:     records[0].Message,
		}
	}
	errs := make(Errors, len(records))
	for i, rec := range records {
		errs[i] = Error{
			SQLState:    rec.SQLState,
			NativeError: rec.NativeError,
			Message:     rec.Message,
		}
	}
	return errs
}

// SQLState constants for common errors.
// These follow the ODBC specification and can be used with errors.Is.
const (
	// Connection errors (08xxx)
	SQLStateConnectionFailure  = "08001" // Unable to connect
	SQLStateConnectionNotOpen  = "08003" // Connection not open
	SQLStateConnectionRejected = "08004" // Connection rejected by server
	SQLStateConnectionError    = "08S01" // Communication link failure

	// Warning states (01xxx)
	SQLStateDataTruncation = "01004" // Data truncated

	// Constraint violations (23xxx)
	SQLStateConstraintViolation = "23000" // Integrity constraint violation

	// Cursor/Transaction states (24xxx, 25xxx)
	SQLStateInvalidCursorState = "24000" // Invalid cursor state
	SQLStateInvalidTransState  = "25000" // Invalid transaction state

	// Transaction errors (40xxx)
	SQLStateDeadlock          = "40001" // Serialization failure (deadlock)
	SQLStateTransactionFailed = "40003" // Statement completion unknown

	// Syntax/access errors (42xxx)
	SQLStateSyntaxError   = "42000" // Syntax error or access violation
	SQLStateTableNotFound = "42S02" // Table not found

	// General errors (HYxxx)
	SQLStateGeneralError          = "HY000" // General error
	SQLStateOperationCanceled     = "HY008" // Operation canceled
	SQLStateFunctionSequenceError = "HY010" // Function sequence error
	SQLStateTimeout               = "HYT00" // Timeout expired
	SQLStateConnectionTimeout     = "HYT01" // Connection timeout expired
)

// sqlStateOf returns the SQLState of the first diagnostic record found in err.
func sqlStateOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.SQLState
	}
	var es Errors
	if errors.As(err, &es) && len(es) > 0 {
		return es[0].SQLState
	}
	return ""
}

// IsConnectionError reports whether err indicates a connection problem.
// Connection errors have SQLState codes starting with "08".
func IsConnectionError(err error) bool {
	return strings.HasPrefix(sqlStateOf(err), "08")
}

// IsDataTruncation reports whether err indicates data truncation.
func IsDataTruncation(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.SQLState == SQLStateDataTruncation
	}
	return false
}

// IsRetryable reports whether err represents a transient error that may
// succeed if retried. Transient errors include connection failures,
// timeouts, and deadlocks. The command layer itself never retries.
func IsRetryable(err error) bool {
	sqlState := sqlStateOf(err)
	switch sqlState {
	case "":
		return false
	case SQLStateDeadlock, SQLStateTimeout, SQLStateConnectionTimeout,
		SQLStateTransactionFailed:
		return true
	}
	return strings.HasPrefix(sqlState, "08")
}

// FormatReturnCode returns a string representation of an ODBC return code
func FormatReturnCode(ret SQLRETURN) string {
	switch ret {
	case SQL_SUCCESS:
		return "SQL_SUCCESS"
	case SQL_SUCCESS_WITH_INFO:
		return "SQL_SUCCESS_WITH_INFO"
	case SQL_ERROR:
		return "SQL_ERROR"
	case SQL_INVALID_HANDLE:
		return "SQL_INVALID_HANDLE"
	case SQL_NO_DATA:
		return "SQL_NO_DATA"
	case SQL_NEED_DATA:
		return "SQL_NEED_DATA"
	case SQL_STILL_EXECUTING:
		return "SQL_STILL_EXECUTING"
	default:
		return fmt.Sprintf("SQLRETURN(%d)", ret)
	}
}

// =============================================================================
// Command errors
// =============================================================================

// Kinds of native call failure. A *CallError wraps exactly one of these, so
// callers can branch with errors.Is.
var (
	ErrHandleAllocation = errors.New("odbc: statement handle allocation failed")
	ErrPrepare          = errors.New("odbc: prepare failed")
	ErrExecution        = errors.New("odbc: execution failed")
	ErrCancel           = errors.New("odbc: cancel failed")
	ErrHandleRelease    = errors.New("odbc: statement handle release failed")
	ErrBind             = errors.New("odbc: parameter bind failed")
)

// CallError reports a failed native call together with the driver's
// diagnostics for the handle involved.
type CallError struct {
	Kind       error
	Call       string
	HandleType SQLSMALLINT
	Handle     SQLHANDLE
	Return     SQLRETURN
	Diag       error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%v: %s returned %s: %v", e.Kind, e.Call, FormatReturnCode(e.Return), e.Diag)
}

// Unwrap exposes both the failure kind and the driver diagnostics.
func (e *CallError) Unwrap() []error {
	return []error{e.Kind, e.Diag}
}

// ArgumentError is returned by setters given a value outside their domain.
// The receiver is left unchanged.
type ArgumentError struct {
	Name    string
	Message string
}

func (e *ArgumentError) Error() string {
	return "odbc: invalid " + e.Name + ": " + e.Message
}

// InvalidOperationError is returned when an operation is attempted in a
// state that forbids it. No native call has been issued.
type InvalidOperationError struct {
	Method  string
	Message string
}

func (e *InvalidOperationError) Error() string {
	return "odbc: " + e.Method + ": " + e.Message
}

// ParameterError represents an error with parameter binding
type ParameterError struct {
	Name    string
	Message string
}

func (e *ParameterError) Error() string {
	if e.Name != "" {
		return "parameter '" + e.Name + "': " + e.Message
	}
	return "parameter: " + e.Message
}
