package odbc

import (
	"context"
	"database/sql/driver"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Connector holds everything needed to open connections to one data source.
// It implements driver.Connector for database/sql and is also the
// configuration behind NewConnection.
type Connector struct {
	dsn    string
	driver *Driver

	Logger *slog.Logger // Defaults to slog.Default()
	Bridge Bridge       // Defaults to the system driver manager, see LoadLibrary

	// Execution options
	CommandTimeout time.Duration // Timeout given to new commands (defaults to 30s)
	LoginTimeout   time.Duration // SQL_ATTR_LOGIN_TIMEOUT applied before connecting (0 = driver default)
}

// ConnectorOption configures a Connector
type ConnectorOption func(*Connector)

// WithLogger sets the structured logger used by connections and their commands.
func WithLogger(logger *slog.Logger) ConnectorOption {
	return func(c *Connector) {
		c.Logger = logger
	}
}

// WithBridge replaces the native call-level interface.
func WithBridge(bridge Bridge) ConnectorOption {
	return func(c *Connector) {
		c.Bridge = bridge
	}
}

// WithCommandTimeout sets the timeout given to commands created through
// Connection.CreateCommand. It is passed to the driver as
// SQL_ATTR_QUERY_TIMEOUT, rounded down to whole seconds.
func WithCommandTimeout(d time.Duration) ConnectorOption {
	return func(c *Connector) {
		c.CommandTimeout = d
	}
}

// WithLoginTimeout sets the login timeout applied before connecting.
func WithLoginTimeout(d time.Duration) ConnectorOption {
	return func(c *Connector) {
		c.LoginTimeout = d
	}
}

// NewConnector returns a Connector for the given ODBC connection string, e.g.:
//   - "DSN=mydsn;UID=user;PWD=password"
//   - "Driver={SQL Server};Server=localhost;Database=mydb;UID=user;PWD=password"
func NewConnector(dsn string, opts ...ConnectorOption) *Connector {
	c := &Connector{dsn: dsn, CommandTimeout: DefaultCommandTimeout * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewConnection returns a closed Connection configured by this connector.
// The system driver manager is loaded on first use unless a Bridge is set.
func (c *Connector) NewConnection() (*Connection, error) {
	bridge := c.Bridge
	if bridge == nil {
		var err error
		if bridge, err = LoadLibrary(); err != nil {
			return nil, err
		}
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := int(c.CommandTimeout / time.Second)
	if timeout < 0 {
		timeout = DefaultCommandTimeout
	}
	return &Connection{
		id:             uuid.NewString(),
		dsn:            c.dsn,
		bridge:         bridge,
		logger:         logger,
		commandTimeout: timeout,
		loginTimeout:   int(c.LoginTimeout / time.Second),
	}, nil
}

// Connect establishes a new connection to the database
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.NewConnection()
	if err != nil {
		return nil, err
	}
	if err := conn.Open(ctx); err != nil {
		return nil, err
	}
	return &sqlConn{conn: conn}, nil
}

// Driver returns the underlying Driver
func (c *Connector) Driver() driver.Driver {
	if c.driver == nil {
		return &Driver{}
	}
	return c.driver
}

// NewConnection returns a closed Connection for dsn.
func NewConnection(dsn string, opts ...ConnectorOption) (*Connection, error) {
	return NewConnector(dsn, opts...).NewConnection()
}

// OpenConnection returns an open Connection for dsn.
func OpenConnection(ctx context.Context, dsn string, opts ...ConnectorOption) (*Connection, error) {
	conn, err := NewConnection(dsn, opts...)
	if err != nil {
		return nil, err
	}
	if err := conn.Open(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// Ensure Connector implements driver.Connector
var _ driver.Connector = (*Connector)(nil)
