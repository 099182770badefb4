package odbc

import (
	"context"
	"database/sql/driver"
)

// sqlStmt implements driver.Stmt over a prepared Command. The handle is
// kept across executions and freed by Close.
type sqlStmt struct {
	conn  *sqlConn
	cmd   *Command
	named *NamedParams
}

// Close closes the statement
func (s *sqlStmt) Close() error {
	return s.cmd.Dispose()
}

// NumInput returns -1: the driver manager is not asked for the parameter
// count, so database/sql skips its own check.
func (s *sqlStmt) NumInput() int {
	return -1
}

// Exec executes a prepared statement (deprecated, use ExecContext)
func (s *sqlStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

// ExecContext executes a prepared statement with context
func (s *sqlStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if s.cmd.Disposed() {
		return nil, driver.ErrBadConn
	}
	return execCommand(ctx, s.cmd, s.named, args)
}

// Query executes a prepared query (deprecated, use QueryContext)
func (s *sqlStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

// QueryContext executes a prepared query with context. The rows borrow the
// statement; closing them keeps it prepared.
func (s *sqlStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if s.cmd.Disposed() {
		return nil, driver.ErrBadConn
	}
	rows, err := queryCommand(ctx, s.cmd, s.named, args)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, arg := range args {
		named[i] = driver.NamedValue{
			Ordinal: i + 1,
			Value:   arg,
		}
	}
	return named
}

// Ensure sqlStmt implements the required interfaces
var (
	_ driver.Stmt             = (*sqlStmt)(nil)
	_ driver.StmtExecContext  = (*sqlStmt)(nil)
	_ driver.StmtQueryContext = (*sqlStmt)(nil)
)
