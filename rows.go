package odbc

import (
	"database/sql/driver"
	"errors"
	"io"
	"reflect"
	"time"
)

// sqlRows implements driver.Rows over a Reader.
type sqlRows struct {
	reader *Reader
	owned  *Command // disposed on Close when set

	peeked  bool
	hasNext bool
	peekErr error
}

// Columns returns the column names
func (r *sqlRows) Columns() []string {
	return r.reader.ColumnNames()
}

// Close closes the rows iterator
func (r *sqlRows) Close() error {
	err := r.reader.Close()
	if r.owned != nil {
		err = errors.Join(err, r.owned.Dispose())
		r.owned = nil
	}
	return err
}

// Next fetches the next row
func (r *sqlRows) Next(dest []driver.Value) error {
	if r.reader.closed {
		return io.EOF
	}
	ok, err := r.reader.Read()
	if err != nil {
		return err
	}
	if !ok {
		return io.EOF
	}
	for i := range dest {
		if i < len(r.reader.values) {
			dest[i] = r.reader.values[i]
		}
	}
	return nil
}

// HasNextResultSet advances to the next result set if there is one; the
// following NextResultSet call only reports the outcome.
func (r *sqlRows) HasNextResultSet() bool {
	if !r.peeked {
		r.hasNext, r.peekErr = r.reader.NextResult()
		r.peeked = true
	}
	return r.hasNext && r.peekErr == nil
}

// NextResultSet advances to the next result set
func (r *sqlRows) NextResultSet() error {
	if !r.peeked {
		r.HasNextResultSet()
	}
	r.peeked = false
	if r.peekErr != nil {
		return r.peekErr
	}
	if !r.hasNext {
		return io.EOF
	}
	return nil
}

func (r *sqlRows) column(index int) (ColumnDesc, bool) {
	cols := r.reader.columns
	if index < 0 || index >= len(cols) {
		return ColumnDesc{}, false
	}
	return cols[index], true
}

// ColumnTypeScanType returns the Go type suitable for scanning into
func (r *sqlRows) ColumnTypeScanType(index int) reflect.Type {
	col, ok := r.column(index)
	if !ok {
		return reflect.TypeOf(new(any)).Elem()
	}

	switch columnCType(col.DataType) {
	case SQL_C_BIT:
		return reflect.TypeOf(false)
	case SQL_C_STINYINT, SQL_C_SSHORT, SQL_C_SLONG, SQL_C_SBIGINT:
		return reflect.TypeOf(int64(0))
	case SQL_C_FLOAT, SQL_C_DOUBLE:
		return reflect.TypeOf(float64(0))
	case SQL_C_BINARY:
		return reflect.TypeOf([]byte{})
	case SQL_C_DATE, SQL_C_TIME, SQL_C_TIMESTAMP:
		return reflect.TypeOf(time.Time{})
	default:
		// character data, and NUMERIC/DECIMAL as text
		return reflect.TypeOf("")
	}
}

// ColumnTypeDatabaseTypeName returns the database type name
func (r *sqlRows) ColumnTypeDatabaseTypeName(index int) string {
	col, ok := r.column(index)
	if !ok {
		return ""
	}
	return col.DatabaseTypeName()
}

// ColumnTypeLength returns the length of a column
func (r *sqlRows) ColumnTypeLength(index int) (length int64, ok bool) {
	col, ok := r.column(index)
	if !ok {
		return 0, false
	}
	// Only return length for variable-length types
	switch col.DataType {
	case SQL_CHAR, SQL_VARCHAR, SQL_LONGVARCHAR, SQL_WCHAR, SQL_WVARCHAR, SQL_WLONGVARCHAR,
		SQL_BINARY, SQL_VARBINARY, SQL_LONGVARBINARY:
		return int64(col.Size), true
	}
	return 0, false
}

// ColumnTypeNullable returns whether a column is nullable
func (r *sqlRows) ColumnTypeNullable(index int) (nullable, ok bool) {
	col, ok := r.column(index)
	if !ok {
		return false, false
	}
	switch col.Nullable {
	case SQL_NO_NULLS:
		return false, true
	case SQL_NULLABLE:
		return true, true
	default:
		return false, false // Unknown
	}
}

// ColumnTypePrecisionScale returns the precision and scale for NUMERIC/DECIMAL types
func (r *sqlRows) ColumnTypePrecisionScale(index int) (precision, scale int64, ok bool) {
	col, ok := r.column(index)
	if !ok {
		return 0, 0, false
	}
	switch col.DataType {
	case SQL_NUMERIC, SQL_DECIMAL:
		return int64(col.Size), int64(col.DecimalDigits), true
	default:
		return 0, 0, false
	}
}

// Ensure sqlRows implements the required interfaces
var (
	_ driver.Rows                           = (*sqlRows)(nil)
	_ driver.RowsColumnTypeScanType         = (*sqlRows)(nil)
	_ driver.RowsColumnTypeDatabaseTypeName = (*sqlRows)(nil)
	_ driver.RowsColumnTypeLength           = (*sqlRows)(nil)
	_ driver.RowsColumnTypeNullable         = (*sqlRows)(nil)
	_ driver.RowsColumnTypePrecisionScale   = (*sqlRows)(nil)
	_ driver.RowsNextResultSet              = (*sqlRows)(nil)
)
