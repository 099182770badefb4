package odbc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ConnectionState is the open/closed state of a Connection.
type ConnectionState int

const (
	StateClosed ConnectionState = iota
	StateOpen
)

func (s ConnectionState) String() string {
	switch s {
	case StateOpen:
		return "Open"
	default:
		return "Closed"
	}
}

// Generation identifies one open period of a Connection. It advances every
// time the native connection is torn down, so a statement handle stamped
// with an older value is known to be gone without being told.
type Generation uint64

// Connection is a native ODBC connection shared by any number of commands.
//
// Besides the native handles it keeps the set of commands currently holding
// a statement handle against it. Close walks that set once to let each
// command free its handle, then advances the generation under the same
// mutex that commands hold while freeing, so a handle is never freed twice.
type Connection struct {
	id             string
	dsn            string
	bridge         Bridge
	logger         *slog.Logger
	commandTimeout int
	loginTimeout   int

	mu         sync.Mutex
	env        SQLHENV
	dbc        SQLHDBC
	state      ConnectionState
	generation Generation
	links      map[*Command]struct{}
	inTx       bool
}

// ID returns the identifier used to correlate this connection in logs.
func (c *Connection) ID() string {
	return c.id
}

// Open allocates the environment and connection handles and connects using
// the connection string. A closed connection may be opened again.
func (c *Connection) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateOpen {
		return &InvalidOperationError{Method: "Open", Message: "connection is already open"}
	}

	env, dbc, err := c.connect()
	if err != nil {
		return err
	}

	c.env = env
	c.dbc = dbc
	c.generation++
	c.state = StateOpen
	c.links = make(map[*Command]struct{})
	c.logger.Info("connection opened", "conn_id", c.id, "generation", uint64(c.generation))
	return nil
}

// connect performs the native handshake. Handles allocated along the way are
// freed again when a later step fails.
func (c *Connection) connect() (SQLHENV, SQLHDBC, error) {
	h, ret := c.bridge.AllocHandle(SQL_HANDLE_ENV, SQL_NULL_HANDLE)
	if !IsSuccess(ret) {
		return 0, 0, errors.New("odbc: failed to allocate environment handle")
	}
	env := SQLHENV(h)

	// Set ODBC version to 3.x
	if ret := c.bridge.SetEnvAttr(env, SQL_ATTR_ODBC_VERSION, SQL_OV_ODBC3); !IsSuccess(ret) {
		err := NewError(c.bridge, SQL_HANDLE_ENV, SQLHANDLE(env))
		c.bridge.FreeHandle(SQL_HANDLE_ENV, SQLHANDLE(env))
		return 0, 0, err
	}

	h, ret = c.bridge.AllocHandle(SQL_HANDLE_DBC, SQLHANDLE(env))
	if !IsSuccess(ret) {
		err := NewError(c.bridge, SQL_HANDLE_ENV, SQLHANDLE(env))
		c.bridge.FreeHandle(SQL_HANDLE_ENV, SQLHANDLE(env))
		return 0, 0, err
	}
	dbc := SQLHDBC(h)

	if c.loginTimeout > 0 {
		if ret := c.bridge.SetConnectAttr(dbc, SQL_ATTR_LOGIN_TIMEOUT, uintptr(c.loginTimeout)); !IsSuccess(ret) {
			c.logger.Debug("login timeout not supported by driver", "conn_id", c.id, "ret", FormatReturnCode(ret))
		}
	}

	if ret := c.bridge.DriverConnect(dbc, c.dsn); !IsSuccess(ret) {
		err := NewError(c.bridge, SQL_HANDLE_DBC, SQLHANDLE(dbc))
		c.bridge.FreeHandle(SQL_HANDLE_DBC, SQLHANDLE(dbc))
		c.bridge.FreeHandle(SQL_HANDLE_ENV, SQLHANDLE(env))
		return 0, 0, err
	}
	return env, dbc, nil
}

// Close releases every linked command's statement handle, rolls back an
// open transaction, disconnects and frees the native handles. Closing a
// closed connection is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	linked := make([]*Command, 0, len(c.links))
	for cmd := range c.links {
		linked = append(linked, cmd)
	}
	c.links = nil
	c.mu.Unlock()

	// The registry is already empty, so commands skip their own unlink.
	for _, cmd := range linked {
		if err := cmd.Unlink(); err != nil {
			c.logger.Warn("failed to release statement during close", "conn_id", c.id, "error", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Advance first: any command that has not released yet now sees a stale
	// handle and leaves it to the disconnect below.
	c.generation++

	if c.inTx {
		if ret := c.bridge.EndTran(SQL_HANDLE_DBC, SQLHANDLE(c.dbc), SQL_ROLLBACK); !IsSuccess(ret) {
			c.logger.Warn("rollback on close failed", "conn_id", c.id,
				"error", NewError(c.bridge, SQL_HANDLE_DBC, SQLHANDLE(c.dbc)))
		}
		c.inTx = false
	}

	var err error
	if ret := c.bridge.Disconnect(c.dbc); !IsSuccess(ret) {
		err = NewError(c.bridge, SQL_HANDLE_DBC, SQLHANDLE(c.dbc))
	}
	c.bridge.FreeHandle(SQL_HANDLE_DBC, SQLHANDLE(c.dbc))
	c.bridge.FreeHandle(SQL_HANDLE_ENV, SQLHANDLE(c.env))
	c.dbc = 0
	c.env = 0

	c.logger.Info("connection closed", "conn_id", c.id, "released", len(linked))
	return err
}

// State reports whether the connection is open.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generation returns the current generation.
func (c *Connection) Generation() Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// NativeHandle returns the native connection handle, zero when closed.
func (c *Connection) NativeHandle() SQLHDBC {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dbc
}

// Link records cmd as holding a statement handle against this connection and
// returns the generation the handle will belong to.
func (c *Connection) Link(cmd *Command) (Generation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return 0, &InvalidOperationError{Method: "Link", Message: "connection is closed"}
	}
	c.links[cmd] = struct{}{}
	return c.generation, nil
}

// Unlink forgets cmd. Unknown commands are ignored.
func (c *Connection) Unlink(cmd *Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.links, cmd)
}

func (c *Connection) linkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.links)
}

// CreateDiagnosticError translates the diagnostics of a failed native call
// on handle into an error. It does not take the connection mutex.
func (c *Connection) CreateDiagnosticError(handleType SQLSMALLINT, handle SQLHANDLE) error {
	return NewError(c.bridge, handleType, handle)
}

// CreateCommand returns a detached command bound to this connection, using
// the connection's default command timeout.
func (c *Connection) CreateCommand() *Command {
	cmd := NewCommand("", c)
	cmd.timeout = c.commandTimeout
	return cmd
}

// Ping verifies the connection is still alive by running a trivial
// statement. Databases that reject "SELECT 1" are still considered alive
// unless the driver reports a connection-class error.
func (c *Connection) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := c.CreateCommand()
	cmd.SetText("SELECT 1")
	defer cmd.Dispose()

	_, err := cmd.ExecuteNonQuery()
	if err != nil && errors.Is(err, ErrExecution) && !IsConnectionError(err) {
		return nil
	}
	return err
}
