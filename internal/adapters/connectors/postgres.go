package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/observability"
)

// PostgresConnection executes statements against PostgreSQL through a pgx pool
type PostgresConnection struct {
	id       string
	pool     *pgxpool.Pool
	readOnly bool
}

// NewPostgresConnection creates a pgx pool for dsn and verifies it. With readOnly every
// session starts in read-only transaction mode.
func NewPostgresConnection(ctx context.Context, id, dsn string, readOnly bool) (*PostgresConnection, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres DSN for %s: %w", id, err)
	}
	applyPostgresAccessMode(poolCfg, readOnly)
	poolCfg.MaxConns = 10
	poolCfg.MaxConnLifetime = 5 * time.Minute
	poolCfg.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool for %s: %w", id, err)
	}
	if err := pingWithRetry(ctx, id, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres %s: %w", id, err)
	}
	return &PostgresConnection{id: id, pool: pool, readOnly: readOnly}, nil
}

// applyPostgresAccessMode sets default_transaction_read_only, which also covers statements
// pgx runs outside an explicit transaction.
func applyPostgresAccessMode(cfg *pgxpool.Config, readOnly bool) {
	if !readOnly {
		return
	}
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = make(map[string]string)
	}
	cfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
}

func (c *PostgresConnection) ID() string     { return c.id }
func (c *PostgresConnection) Kind() string   { return entities.DatabaseKindPostgres }
func (c *PostgresConnection) ReadOnly() bool { return c.readOnly }

// Execute runs sql and returns at most maxRows rows
func (c *PostgresConnection) Execute(ctx context.Context, sql string, maxRows int) (*entities.ExecResult, error) {
	ctx, span := observability.StartSpan(ctx, "connector.execute",
		attribute.String("connection.id", c.id),
		attribute.String("database.kind", c.Kind()),
	)
	defer span.End()

	start := time.Now()
	rows, err := c.pool.Query(ctx, sql)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := &entities.ExecResult{Columns: columns, Rows: []entities.Row{}}
	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		row := make(entities.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizePgValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	result.RowCount = len(result.Rows)
	result.ElapsedMs = float64(time.Since(start).Microseconds()) / 1000
	span.SetAttributes(attribute.Int("rows", result.RowCount), attribute.Bool("truncated", result.Truncated))
	return result, nil
}

// Ping verifies the connection to the database
func (c *PostgresConnection) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close closes the pool
func (c *PostgresConnection) Close() error {
	c.pool.Close()
	return nil
}

// normalizePgValue converts pgx decoded values that do not marshal as plain JSON.
func normalizePgValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(val).String()
	}
	return normalizeValue(v)
}
