package odbc

import (
	"context"
	"database/sql/driver"
	"sort"
)

// sqlConn adapts a Connection to database/sql. Every statement runs through
// a Command, so database/sql gets the same handle lifecycle as direct users.
type sqlConn struct {
	conn *Connection
}

// Prepare prepares a statement for execution
func (c *sqlConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext prepares a statement with context support
func (c *sqlConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd, named := c.newCommand(query)
	if err := cmd.Prepare(); err != nil {
		cmd.Dispose()
		return nil, err
	}
	return &sqlStmt{conn: c, cmd: cmd, named: named}, nil
}

// Close closes the connection
func (c *sqlConn) Close() error {
	return c.conn.Close()
}

// Begin starts a new transaction (deprecated, use BeginTx)
func (c *sqlConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx starts a new transaction with context and options
func (c *sqlConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	tx, err := c.conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Ping verifies the connection is still alive
func (c *sqlConn) Ping(ctx context.Context) error {
	if err := c.usable(); err != nil {
		return err
	}
	if err := c.conn.Ping(ctx); err != nil {
		if IsConnectionError(err) {
			return driver.ErrBadConn
		}
		return err
	}
	return nil
}

// ExecContext executes a query without returning rows
func (c *sqlConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}

	cmd, named := c.newCommand(query)
	defer cmd.Dispose()
	return execCommand(ctx, cmd, named, args)
}

// QueryContext executes a query that returns rows. The command is disposed
// when the rows are closed.
func (c *sqlConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}

	cmd, named := c.newCommand(query)
	rows, err := queryCommand(ctx, cmd, named, args)
	if err != nil {
		cmd.Dispose()
		return nil, err
	}
	rows.owned = cmd
	return rows, nil
}

// ResetSession is called before a connection is reused
func (c *sqlConn) ResetSession(ctx context.Context) error {
	if err := c.usable(); err != nil {
		return err
	}
	// If still in a transaction, the connection is in a bad state
	if c.conn.InTx() {
		return driver.ErrBadConn
	}
	return nil
}

// IsValid returns true if the connection is valid
func (c *sqlConn) IsValid() bool {
	return c.conn.State() == StateOpen
}

// CheckNamedValue accepts every value; conversion happens when parameters
// are bound. A *Parameter argument is bound as given, which is how output
// parameters are passed.
func (c *sqlConn) CheckNamedValue(nv *driver.NamedValue) error {
	return nil
}

func (c *sqlConn) usable() error {
	if c.conn.State() != StateOpen {
		return driver.ErrBadConn
	}
	return nil
}

// newCommand creates a command for query, rewriting named markers to
// positional ones.
func (c *sqlConn) newCommand(query string) (*Command, *NamedParams) {
	named := ParseNamedParams(query)
	if named != nil {
		query = named.Query
	}
	cmd := c.conn.CreateCommand()
	cmd.SetText(query)
	return cmd, named
}

func execCommand(ctx context.Context, cmd *Command, named *NamedParams, args []driver.NamedValue) (driver.Result, error) {
	if err := bindArgs(cmd.Parameters(), named, args); err != nil {
		return nil, err
	}

	var n int64
	err := withCancel(ctx, cmd, func() (err error) {
		n, err = cmd.ExecuteNonQuery()
		return err
	})
	if err != nil {
		return nil, err
	}
	return newResult(n, cmd.Parameters()), nil
}

func queryCommand(ctx context.Context, cmd *Command, named *NamedParams, args []driver.NamedValue) (*sqlRows, error) {
	if err := bindArgs(cmd.Parameters(), named, args); err != nil {
		return nil, err
	}

	var r *Reader
	err := withCancel(ctx, cmd, func() (err error) {
		r, err = cmd.ExecuteReader(BehaviorDefault)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &sqlRows{reader: r}, nil
}

// withCancel runs fn and forwards cancellation of ctx to cmd.Cancel while it
// runs. The watcher has exited by the time withCancel returns, so it never
// touches a handle released afterwards.
func withCancel(ctx context.Context, cmd *Command, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ctx.Done() == nil {
		return fn()
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			// Before allocation there is nothing to cancel yet
			_ = cmd.Cancel()
		case <-done:
		}
	}()

	err := fn()
	close(done)
	<-exited

	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// bindArgs replaces the command parameters with args. With named set the
// arguments are matched by name (or by their position among the names) and
// expanded to every place the name occurs.
func bindArgs(params *Parameters, named *NamedParams, args []driver.NamedValue) error {
	params.Clear()

	if named == nil {
		sorted := make([]driver.NamedValue, len(args))
		copy(sorted, args)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })
		for _, arg := range sorted {
			addArg(params, arg.Name, arg.Value, false)
		}
		return nil
	}

	values := make(map[string]any, len(args))
	for _, arg := range args {
		name := arg.Name
		if name == "" {
			if arg.Ordinal < 1 || arg.Ordinal > len(named.Names) {
				return &ParameterError{Message: "positional argument has no matching named parameter"}
			}
			name = named.Names[arg.Ordinal-1]
		}
		values[name] = arg.Value
	}

	bound, err := named.Bind(values)
	if err != nil {
		return err
	}
	seen := make(map[*Parameter]bool)
	for _, v := range bound {
		p, _ := v.(*Parameter)
		addArg(params, "", v, p != nil && seen[p])
		if p != nil {
			seen[p] = true
		}
	}
	return nil
}

// addArg appends one argument. A *Parameter is used as is unless it is
// already bound at another ordinal, in which case a copy is bound.
func addArg(params *Parameters, name string, value any, repeated bool) {
	if p, ok := value.(*Parameter); ok {
		if repeated {
			p = p.Clone()
		}
		params.AddParameter(p)
		return
	}
	params.Add(name, value)
}

// Ensure sqlConn implements the required interfaces
var (
	_ driver.Conn               = (*sqlConn)(nil)
	_ driver.ConnPrepareContext = (*sqlConn)(nil)
	_ driver.ConnBeginTx        = (*sqlConn)(nil)
	_ driver.Pinger             = (*sqlConn)(nil)
	_ driver.ExecerContext      = (*sqlConn)(nil)
	_ driver.QueryerContext     = (*sqlConn)(nil)
	_ driver.SessionResetter    = (*sqlConn)(nil)
	_ driver.Validator          = (*sqlConn)(nil)
	_ driver.NamedValueChecker  = (*sqlConn)(nil)
)
