package connectors

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

// SQLiteConnection is a synchronous SQLite driver. It does not observe cancellation, so it is
// always handed to the coordinator wrapped in a Pooled connection.
type SQLiteConnection struct {
	id       string
	db       *sql.DB
	readOnly bool
}

// NewSQLiteConnection opens the SQLite database at dsn. With readOnly the connection
// runs with query_only set.
func NewSQLiteConnection(ctx context.Context, id, dsn string, readOnly bool) (*SQLiteConnection, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn, readOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", id, err)
	}
	// In-memory databases live per connection.
	db.SetMaxOpenConns(1)

	if err := pingWithRetry(ctx, id, db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite %s: %w", id, err)
	}
	return &SQLiteConnection{id: id, db: db, readOnly: readOnly}, nil
}

// sqliteDSN adds the query_only pragma, which the driver applies to every connection it opens.
func sqliteDSN(dsn string, readOnly bool) string {
	if !readOnly {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=query_only(1)"
}

// NewSQLiteConnectionFromDB wraps an already opened handle
func NewSQLiteConnectionFromDB(id string, db *sql.DB) *SQLiteConnection {
	return &SQLiteConnection{id: id, db: db}
}

func (c *SQLiteConnection) ID() string     { return c.id }
func (c *SQLiteConnection) Kind() string   { return entities.DatabaseKindSQLite }
func (c *SQLiteConnection) ReadOnly() bool { return c.readOnly }

// ExecuteSync runs sql on the calling goroutine
func (c *SQLiteConnection) ExecuteSync(sql string, maxRows int) (*entities.ExecResult, error) {
	return queryRows(context.Background(), c.db, c.id, c.Kind(), sql, maxRows)
}

// Ping verifies the connection to the database
func (c *SQLiteConnection) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database
func (c *SQLiteConnection) Close() error {
	return c.db.Close()
}
