package odbc

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf16"
)

// binding describes how a bound buffer is typed on both sides of the driver.
type binding struct {
	cType     SQLSMALLINT
	sqlType   SQLSMALLINT
	colSize   SQLULEN
	decDigits SQLSMALLINT
}

// encoded is a Go value laid out the way the driver reads it from a bound
// parameter buffer.
type encoded struct {
	binding
	data []byte
	null bool
}

var nullBinding = binding{cType: SQL_C_CHAR, sqlType: SQL_VARCHAR, colSize: 1}

// encodeValue converts a Go value to its native representation.
// Integers and floats use the platform's byte order, as the driver reads
// them through a pointer.
func encodeValue(value any) (encoded, error) {
	if value == nil {
		return encoded{binding: nullBinding, null: true}, nil
	}

	switch v := value.(type) {
	case driver.Valuer:
		inner, err := v.Value()
		if err != nil {
			return encoded{}, err
		}
		if _, again := inner.(driver.Valuer); again {
			return encoded{}, fmt.Errorf("odbc: Value() of %T returned another driver.Valuer", value)
		}
		return encodeValue(inner)

	case bool:
		b := []byte{0}
		if v {
			b[0] = 1
		}
		return encoded{binding: binding{SQL_C_BIT, SQL_BIT, 1, 0}, data: b}, nil

	case int:
		return encodeInt64(int64(v)), nil
	case int64:
		return encodeInt64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return encodeString(strconv.FormatUint(uint64(v), 10)), nil
		}
		return encodeInt64(int64(v)), nil

	case int8:
		return encoded{binding: binding{SQL_C_STINYINT, SQL_TINYINT, 4, 0}, data: []byte{byte(v)}}, nil
	case uint8:
		return encoded{binding: binding{SQL_C_UTINYINT, SQL_TINYINT, 3, 0}, data: []byte{v}}, nil

	case int16:
		b := binary.NativeEndian.AppendUint16(nil, uint16(v))
		return encoded{binding: binding{SQL_C_SSHORT, SQL_SMALLINT, 6, 0}, data: b}, nil
	case uint16:
		b := binary.NativeEndian.AppendUint16(nil, v)
		return encoded{binding: binding{SQL_C_USHORT, SQL_SMALLINT, 5, 0}, data: b}, nil

	case int32:
		b := binary.NativeEndian.AppendUint32(nil, uint32(v))
		return encoded{binding: binding{SQL_C_SLONG, SQL_INTEGER, 11, 0}, data: b}, nil
	case uint32:
		b := binary.NativeEndian.AppendUint32(nil, v)
		return encoded{binding: binding{SQL_C_ULONG, SQL_INTEGER, 10, 0}, data: b}, nil

	case uint64:
		// Large uint64 values overflow BIGINT, send them as text
		return encodeString(strconv.FormatUint(v, 10)), nil

	case float32:
		b := binary.NativeEndian.AppendUint32(nil, math.Float32bits(v))
		return encoded{binding: binding{SQL_C_FLOAT, SQL_REAL, 7, 0}, data: b}, nil
	case float64:
		b := binary.NativeEndian.AppendUint64(nil, math.Float64bits(v))
		return encoded{binding: binding{SQL_C_DOUBLE, SQL_DOUBLE, 15, 0}, data: b}, nil

	case string:
		return encodeString(v), nil

	case []byte:
		if v == nil {
			return encoded{binding: binding{SQL_C_BINARY, SQL_VARBINARY, 1, 0}, null: true}, nil
		}
		size := SQLULEN(len(v))
		if size == 0 {
			size = 1
		}
		return encoded{binding: binding{SQL_C_BINARY, SQL_VARBINARY, size, 0}, data: v}, nil

	case time.Time:
		// Column size 23 with 3 decimal digits matches datetime2(3) and is
		// accepted by most drivers; the fraction is truncated to match.
		return encoded{binding: binding{SQL_C_TIMESTAMP, SQL_TYPE_TIMESTAMP, 23, 3}, data: encodeTimestamp(v)}, nil

	default:
		return encodeString(fmt.Sprintf("%v", v)), nil
	}
}

func encodeInt64(v int64) encoded {
	b := binary.NativeEndian.AppendUint64(nil, uint64(v))
	return encoded{binding: binding{SQL_C_SBIGINT, SQL_BIGINT, 20, 0}, data: b}
}

func encodeString(s string) encoded {
	size := SQLULEN(len(s))
	if size == 0 {
		size = 1
	}
	return encoded{binding: binding{SQL_C_CHAR, SQL_VARCHAR, size, 0}, data: []byte(s)}
}

// encodeTimestamp lays t out as SQL_TIMESTAMP_STRUCT with millisecond
// precision.
func encodeTimestamp(t time.Time) []byte {
	b := make([]byte, 0, sizeofTimestamp)
	b = binary.NativeEndian.AppendUint16(b, uint16(int16(t.Year())))
	b = binary.NativeEndian.AppendUint16(b, uint16(t.Month()))
	b = binary.NativeEndian.AppendUint16(b, uint16(t.Day()))
	b = binary.NativeEndian.AppendUint16(b, uint16(t.Hour()))
	b = binary.NativeEndian.AppendUint16(b, uint16(t.Minute()))
	b = binary.NativeEndian.AppendUint16(b, uint16(t.Second()))
	b = binary.NativeEndian.AppendUint32(b, uint32((t.Nanosecond()/1_000_000)*1_000_000))
	return b
}

// decodeValue converts bytes produced by the driver for cType back into a Go
// value. Integers are widened to int64 and floats to float64, the types
// database/sql expects from a driver.
func decodeValue(cType SQLSMALLINT, data []byte) (any, error) {
	need := fixedSize(cType)
	if len(data) < need {
		return nil, fmt.Errorf("odbc: short buffer for C type %d: have %d bytes, need %d", cType, len(data), need)
	}
	ne := binary.NativeEndian

	switch cType {
	case SQL_C_BIT:
		return data[0] != 0, nil
	case SQL_C_STINYINT:
		return int64(int8(data[0])), nil
	case SQL_C_UTINYINT:
		return int64(data[0]), nil
	case SQL_C_SSHORT:
		return int64(int16(ne.Uint16(data))), nil
	case SQL_C_USHORT:
		return int64(ne.Uint16(data)), nil
	case SQL_C_SLONG:
		return int64(int32(ne.Uint32(data))), nil
	case SQL_C_ULONG:
		return int64(ne.Uint32(data)), nil
	case SQL_C_SBIGINT:
		return int64(ne.Uint64(data)), nil
	case SQL_C_FLOAT:
		return float64(math.Float32frombits(ne.Uint32(data))), nil
	case SQL_C_DOUBLE:
		return math.Float64frombits(ne.Uint64(data)), nil
	case SQL_C_DATE:
		return time.Date(int(int16(ne.Uint16(data))), time.Month(ne.Uint16(data[2:])), int(ne.Uint16(data[4:])),
			0, 0, 0, 0, time.UTC), nil
	case SQL_C_TIME:
		return time.Date(0, 1, 1, int(ne.Uint16(data)), int(ne.Uint16(data[2:])), int(ne.Uint16(data[4:])),
			0, time.UTC), nil
	case SQL_C_TIMESTAMP:
		return decodeTimestamp(data), nil
	case SQL_C_WCHAR:
		return decodeUTF16(data), nil
	case SQL_C_BINARY:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	default:
		return string(data), nil
	}
}

func decodeTimestamp(data []byte) time.Time {
	ne := binary.NativeEndian
	return time.Date(
		int(int16(ne.Uint16(data))), time.Month(ne.Uint16(data[2:])), int(ne.Uint16(data[4:])),
		int(ne.Uint16(data[6:])), int(ne.Uint16(data[8:])), int(ne.Uint16(data[10:])),
		int(ne.Uint32(data[12:])), time.UTC)
}

// decodeUTF16 converts native-order UTF-16 bytes to a UTF-8 string. A
// trailing odd byte is ignored.
func decodeUTF16(data []byte) string {
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = binary.NativeEndian.Uint16(data[2*i:])
	}
	return string(utf16.Decode(units))
}

// fixedSize returns the buffer size of a fixed-width C type, or 0 for
// variable-length types.
func fixedSize(cType SQLSMALLINT) int {
	switch cType {
	case SQL_C_BIT, SQL_C_STINYINT, SQL_C_UTINYINT:
		return 1
	case SQL_C_SSHORT, SQL_C_USHORT:
		return 2
	case SQL_C_SLONG, SQL_C_ULONG, SQL_C_FLOAT:
		return 4
	case SQL_C_SBIGINT, SQL_C_DOUBLE:
		return 8
	case SQL_C_DATE:
		return sizeofDate
	case SQL_C_TIME:
		return sizeofTime
	case SQL_C_TIMESTAMP:
		return sizeofTimestamp
	default:
		return 0
	}
}

// columnCType picks the C type a result column of sqlType is fetched as.
func columnCType(sqlType SQLSMALLINT) SQLSMALLINT {
	switch sqlType {
	case SQL_BIT, SQL_BOOLEAN:
		return SQL_C_BIT
	case SQL_TINYINT:
		return SQL_C_STINYINT
	case SQL_SMALLINT:
		return SQL_C_SSHORT
	case SQL_INTEGER:
		return SQL_C_SLONG
	case SQL_BIGINT:
		return SQL_C_SBIGINT
	case SQL_REAL:
		return SQL_C_FLOAT
	case SQL_FLOAT, SQL_DOUBLE:
		return SQL_C_DOUBLE
	case SQL_TYPE_DATE:
		return SQL_C_DATE
	case SQL_TYPE_TIME:
		return SQL_C_TIME
	case SQL_TYPE_TIMESTAMP, SQL_DATETIME:
		return SQL_C_TIMESTAMP
	case SQL_WCHAR, SQL_WVARCHAR, SQL_WLONGVARCHAR:
		return SQL_C_WCHAR
	case SQL_BINARY, SQL_VARBINARY, SQL_LONGVARBINARY:
		return SQL_C_BINARY
	default:
		// NUMERIC/DECIMAL travel as text to keep their precision
		return SQL_C_CHAR
	}
}
