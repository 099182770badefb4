package odbc

import (
	"context"
	"database/sql"
	"database/sql/driver"
)

// Tx is a transaction on a Connection. Commands join it with
// Command.SetTransaction; ODBC scopes transactions to the connection, so
// every statement on the connection takes part while it is open.
//
// A Tx is bound to the connection period it was started in and ends at most
// once, so it never completes a transaction begun after it.
type Tx struct {
	conn       *Connection
	generation Generation
	done       bool
}

// BeginTx turns autocommit off, applying the isolation level and read-only
// mode of opts first.
func (c *Connection) BeginTx(ctx context.Context, opts driver.TxOptions) (*Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return nil, &InvalidOperationError{Method: "BeginTx", Message: "connection is closed"}
	}
	if c.inTx {
		return nil, &InvalidOperationError{Method: "BeginTx", Message: "already in a transaction"}
	}

	if opts.Isolation != driver.IsolationLevel(sql.LevelDefault) {
		var isoLevel uintptr
		switch sql.IsolationLevel(opts.Isolation) {
		case sql.LevelReadUncommitted:
			isoLevel = SQL_TXN_READ_UNCOMMITTED
		case sql.LevelReadCommitted, sql.LevelWriteCommitted:
			isoLevel = SQL_TXN_READ_COMMITTED
		case sql.LevelRepeatableRead:
			isoLevel = SQL_TXN_REPEATABLE_READ
		case sql.LevelSnapshot, sql.LevelSerializable, sql.LevelLinearizable:
			isoLevel = SQL_TXN_SERIALIZABLE
		default:
			isoLevel = SQL_TXN_READ_COMMITTED
		}
		if ret := c.bridge.SetConnectAttr(c.dbc, SQL_ATTR_TXN_ISOLATION, isoLevel); !IsSuccess(ret) {
			return nil, NewError(c.bridge, SQL_HANDLE_DBC, SQLHANDLE(c.dbc))
		}
	}

	if opts.ReadOnly {
		if ret := c.bridge.SetConnectAttr(c.dbc, SQL_ATTR_ACCESS_MODE, SQL_MODE_READ_ONLY); !IsSuccess(ret) {
			return nil, NewError(c.bridge, SQL_HANDLE_DBC, SQLHANDLE(c.dbc))
		}
	}

	// Disable autocommit to start transaction
	if ret := c.bridge.SetConnectAttr(c.dbc, SQL_ATTR_AUTOCOMMIT, SQL_AUTOCOMMIT_OFF); !IsSuccess(ret) {
		return nil, NewError(c.bridge, SQL_HANDLE_DBC, SQLHANDLE(c.dbc))
	}

	c.inTx = true
	c.logger.Debug("transaction started", "conn_id", c.id, "read_only", opts.ReadOnly)
	return &Tx{conn: c, generation: c.generation}, nil
}

// InTx reports whether a transaction is open.
func (c *Connection) InTx() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTx
}

// Commit commits the transaction.
// If the commit succeeds, autocommit is re-enabled for subsequent operations.
func (t *Tx) Commit() error {
	return t.end("Commit", SQL_COMMIT)
}

// Rollback rolls back the transaction.
// If the rollback succeeds, autocommit is re-enabled for subsequent operations.
func (t *Tx) Rollback() error {
	return t.end("Rollback", SQL_ROLLBACK)
}

func (t *Tx) end(method string, completion SQLSMALLINT) error {
	c := t.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != t.generation {
		return &InvalidOperationError{Method: method, Message: "transaction ended when its connection closed"}
	}
	if t.done || !c.inTx {
		return nil // Already committed or rolled back
	}
	t.done = true

	ret := c.bridge.EndTran(SQL_HANDLE_DBC, SQLHANDLE(c.dbc), completion)
	c.inTx = false
	if !IsSuccess(ret) {
		return NewError(c.bridge, SQL_HANDLE_DBC, SQLHANDLE(c.dbc))
	}

	// Best-effort: the transaction itself is finished
	c.bridge.SetConnectAttr(c.dbc, SQL_ATTR_AUTOCOMMIT, SQL_AUTOCOMMIT_ON)
	c.bridge.SetConnectAttr(c.dbc, SQL_ATTR_ACCESS_MODE, SQL_MODE_READ_WRITE)
	return nil
}

// Ensure Tx implements driver.Tx
var _ driver.Tx = (*Tx)(nil)
