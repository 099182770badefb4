package odbc

import (
	"strconv"
	"sync/atomic"
)

// DefaultCommandTimeout is the timeout, in seconds, of a new command.
const DefaultCommandTimeout = 30

// CommandType tells how the command text is interpreted.
type CommandType int

const (
	CommandText CommandType = iota
	CommandStoredProcedure
	CommandTableDirect
)

func (t CommandType) String() string {
	switch t {
	case CommandText:
		return "Text"
	case CommandStoredProcedure:
		return "StoredProcedure"
	case CommandTableDirect:
		return "TableDirect"
	default:
		return "CommandType(" + strconv.Itoa(int(t)) + ")"
	}
}

// UpdateRowSource is a hint for callers applying command results back to
// their own rows. The command only stores it.
type UpdateRowSource int

const (
	UpdateNone UpdateRowSource = iota
	UpdateOutputParameters
	UpdateFirstReturnedRecord
	UpdateBoth
)

func (u UpdateRowSource) String() string {
	switch u {
	case UpdateNone:
		return "None"
	case UpdateOutputParameters:
		return "OutputParameters"
	case UpdateFirstReturnedRecord:
		return "FirstReturnedRecord"
	case UpdateBoth:
		return "Both"
	default:
		return "UpdateRowSource(" + strconv.Itoa(int(u)) + ")"
	}
}

// CommandBehavior flags adjust how ExecuteReader's result is consumed.
type CommandBehavior int

const BehaviorDefault CommandBehavior = 0

const (
	BehaviorSingleResult CommandBehavior = 1 << iota
	BehaviorSchemaOnly
	BehaviorKeyInfo
	BehaviorSingleRow
	BehaviorSequentialAccess
	BehaviorCloseConnection
)

const behaviorMask = BehaviorCloseConnection<<1 - 1

// Command is one statement definition executed against a Connection.
//
// A command holds at most one native statement handle. The handle is
// allocated lazily by the first execution or Prepare, reused by later
// executions while the command stays prepared, and released after an
// unprepared execution, when a reader over it closes, on Dispose, or by the
// connection's Close.
//
// A Command is not safe for concurrent use, with one exception: Cancel may
// be called from another goroutine while an execution is in progress.
type Command struct {
	text              string
	timeout           int
	commandType       CommandType
	updateRowSource   UpdateRowSource
	designTimeVisible bool
	conn              *Connection
	tx                *Tx
	params            *Parameters

	prepared atomic.Bool
	disposed atomic.Bool
	stmt     stmtHandle
}

// NewCommand returns a command for text. conn may be nil and set later.
func NewCommand(text string, conn *Connection) *Command {
	c := &Command{
		text:              text,
		timeout:           DefaultCommandTimeout,
		commandType:       CommandText,
		updateRowSource:   UpdateBoth,
		designTimeVisible: true,
		conn:              conn,
		params:            &Parameters{},
	}
	c.stmt.owner = c
	return c
}

// Text returns the statement text.
func (c *Command) Text() string {
	return c.text
}

// SetText replaces the statement text. A prepared statement no longer
// matches the text, so the command becomes unprepared; the handle itself is
// kept until the next execution replaces it.
func (c *Command) SetText(text string) {
	c.prepared.Store(false)
	c.text = text
}

// Timeout returns the timeout in seconds.
func (c *Command) Timeout() int {
	return c.timeout
}

// SetTimeout sets the timeout in seconds handed to the driver with every
// new statement handle. Zero means no limit.
func (c *Command) SetTimeout(seconds int) error {
	if seconds < 0 {
		return &ArgumentError{Name: "command timeout", Message: "value " + strconv.Itoa(seconds) + " is less than 0"}
	}
	c.timeout = seconds
	return nil
}

// ResetTimeout restores DefaultCommandTimeout.
func (c *Command) ResetTimeout() {
	c.timeout = DefaultCommandTimeout
}

func (c *Command) Type() CommandType {
	return c.commandType
}

func (c *Command) SetType(t CommandType) error {
	if t < CommandText || t > CommandTableDirect {
		return &ArgumentError{Name: "command type", Message: "unknown value " + t.String()}
	}
	c.commandType = t
	return nil
}

func (c *Command) UpdatedRowSource() UpdateRowSource {
	return c.updateRowSource
}

func (c *Command) SetUpdatedRowSource(u UpdateRowSource) error {
	if u < UpdateNone || u > UpdateBoth {
		return &ArgumentError{Name: "updated row source", Message: "unknown value " + u.String()}
	}
	c.updateRowSource = u
	return nil
}

func (c *Command) DesignTimeVisible() bool {
	return c.designTimeVisible
}

func (c *Command) SetDesignTimeVisible(v bool) {
	c.designTimeVisible = v
}

// Connection returns the connection the command executes on.
func (c *Command) Connection() *Connection {
	return c.conn
}

// SetConnection points the command at conn. A handle held on the previous
// connection stays tied to it and is released there.
func (c *Command) SetConnection(conn *Connection) {
	c.conn = conn
}

func (c *Command) Transaction() *Tx {
	return c.tx
}

func (c *Command) SetTransaction(tx *Tx) {
	c.tx = tx
}

// Parameters returns the positional parameters. The i-th parameter binds to
// ordinal i+1.
func (c *Command) Parameters() *Parameters {
	return c.params
}

// Prepared reports whether the last successful Prepare still matches the
// current text.
func (c *Command) Prepared() bool {
	return c.prepared.Load()
}

// Disposed reports whether Dispose has run since the last allocation.
func (c *Command) Disposed() bool {
	return c.disposed.Load()
}

// Clone returns a detached copy of the command. Parameters are copied, not
// shared, and the copy holds no statement handle.
func (c *Command) Clone() *Command {
	clone := NewCommand(c.text, c.conn)
	clone.timeout = c.timeout
	clone.commandType = c.commandType
	clone.designTimeVisible = c.designTimeVisible
	clone.tx = c.tx
	for _, p := range c.params.items {
		clone.params.AddParameter(p.Clone())
	}
	return clone
}

// Dispose releases the statement handle and clears the command. Repeated
// calls are no-ops.
func (c *Command) Dispose() error {
	if c.disposed.Load() {
		return nil
	}
	err := c.freeStatement(true)
	c.text = ""
	c.conn = nil
	c.tx = nil
	c.params.Clear()
	c.disposed.Store(true)
	return err
}

// Unlink releases the statement handle without touching the connection's
// registry. The connection calls it for every linked command while closing.
func (c *Command) Unlink() error {
	if c.disposed.Load() {
		return nil
	}
	return c.freeStatement(false)
}

// freeStatement releases the handle. A freed handle carries no prepared
// statement, so the command is unprepared afterwards.
func (c *Command) freeStatement(unlink bool) error {
	c.prepared.Store(false)
	return c.stmt.release(unlink)
}

func (c *Command) freeIfNotPrepared() error {
	if c.prepared.Load() {
		return nil
	}
	return c.freeStatement(true)
}

// reallocate replaces the statement handle with a fresh one on the current
// connection and applies the command timeout to it.
func (c *Command) reallocate() (SQLHSTMT, error) {
	c.prepared.Store(false)
	stmt, err := c.stmt.allocate(c.conn)
	if err != nil {
		return 0, err
	}
	c.disposed.Store(false)

	if ret := c.conn.bridge.SetStmtAttr(stmt, SQL_ATTR_QUERY_TIMEOUT, uintptr(c.timeout)); !IsSuccess(ret) {
		c.conn.logger.Debug("query timeout not applied",
			"conn_id", c.conn.id, "timeout", c.timeout, "ret", FormatReturnCode(ret))
	}
	return stmt, nil
}
