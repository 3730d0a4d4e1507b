package connectors

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

// MySQLConnection executes statements against MySQL through database/sql
type MySQLConnection struct {
	id       string
	db       *sql.DB
	readOnly bool
}

// NewMySQLConnection opens a MySQL pool for dsn and verifies it. With readOnly every
// session is set to read-only transactions.
func NewMySQLConnection(ctx context.Context, id, dsn string, readOnly bool) (*MySQLConnection, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql DSN for %s: %w", id, err)
	}
	applyMySQLAccessMode(cfg, readOnly)
	cfg.ParseTime = true
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector for %s: %w", id, err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := pingWithRetry(ctx, id, db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to mysql %s: %w", id, err)
	}
	return &MySQLConnection{id: id, db: db, readOnly: readOnly}, nil
}

// applyMySQLAccessMode makes the driver SET transaction_read_only on every new connection.
func applyMySQLAccessMode(cfg *mysql.Config, readOnly bool) {
	if !readOnly {
		return
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]string)
	}
	cfg.Params["transaction_read_only"] = "1"
}

// NewMySQLConnectionFromDB wraps an already opened handle
func NewMySQLConnectionFromDB(id string, db *sql.DB) *MySQLConnection {
	return &MySQLConnection{id: id, db: db}
}

func (c *MySQLConnection) ID() string     { return c.id }
func (c *MySQLConnection) Kind() string   { return entities.DatabaseKindMySQL }
func (c *MySQLConnection) ReadOnly() bool { return c.readOnly }

// Execute runs sql and returns at most maxRows rows
func (c *MySQLConnection) Execute(ctx context.Context, sql string, maxRows int) (*entities.ExecResult, error) {
	return queryRows(ctx, c.db, c.id, c.Kind(), sql, maxRows)
}

// Ping verifies the connection to the database
func (c *MySQLConnection) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the pool
func (c *MySQLConnection) Close() error {
	return c.db.Close()
}
