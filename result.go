package odbc

import (
	"database/sql/driver"
	"errors"
)

var errNoLastInsertID = errors.New("odbc: LastInsertId is not supported")

// Result implements driver.Result for INSERT, UPDATE, DELETE operations
type Result struct {
	rowsAffected int64
	outputParams []any
}

// LastInsertId is not supported: ODBC has no portable way to report it.
func (r *Result) LastInsertId() (int64, error) {
	return 0, errNoLastInsertID
}

// RowsAffected returns the number of rows affected by the query, or -1 when
// the statement is not an INSERT, UPDATE or DELETE.
func (r *Result) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// OutputParams returns the values of output parameters after executing a stored procedure.
// The values are returned in the same order as the parameters were bound.
// Input-only parameters will have nil values in the corresponding positions.
func (r *Result) OutputParams() []any {
	return r.outputParams
}

// OutputParam returns a single output parameter value by index (0-based).
// Returns nil if the index is out of range or if the parameter was input-only.
func (r *Result) OutputParam(index int) any {
	if index < 0 || index >= len(r.outputParams) {
		return nil
	}
	return r.outputParams[index]
}

func newResult(rows int64, params *Parameters) *Result {
	res := &Result{rowsAffected: rows}
	for _, p := range params.items {
		if p.Direction == ParamInput {
			res.outputParams = append(res.outputParams, nil)
			continue
		}
		res.outputParams = append(res.outputParams, p.Value)
	}
	return res
}

// Ensure Result implements driver.Result
var _ driver.Result = (*Result)(nil)
