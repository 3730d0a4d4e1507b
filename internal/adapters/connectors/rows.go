// Package connectors adapts PostgreSQL, MySQL and SQLite databases to the providers.Connection contract.
package connectors

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/observability"
	"github.com/zatekoja/databaseguru/backend/pkg/retry"
)

// pingWithRetry verifies a freshly opened database during startup.
func pingWithRetry(ctx context.Context, id string, ping func(context.Context) error) error {
	return retry.DoWithLog(ctx, retry.ConnectConfig(), "connection "+id,
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return ping(pingCtx)
		},
		func(attempt int, err error, nextDelay time.Duration) {
			log.Warn().Err(err).Str("connection_id", id).Int("attempt", attempt).Dur("retry_in", nextDelay).Msg("database connection attempt failed")
		},
	)
}

// queryRows runs a statement over database/sql and collects at most maxRows rows.
func queryRows(ctx context.Context, db *sql.DB, id, kind, statement string, maxRows int) (*entities.ExecResult, error) {
	ctx, span := observability.StartSpan(ctx, "connector.execute",
		attribute.String("connection.id", id),
		attribute.String("database.kind", kind),
	)
	defer span.End()

	start := time.Now()
	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	result := &entities.ExecResult{Columns: columns, Rows: []entities.Row{}}
	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			observability.RecordError(span, err)
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(entities.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
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

// normalizeValue turns driver values into JSON-friendly ones. Text and decimals arrive as []byte from MySQL.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC()
	}
	return v
}
