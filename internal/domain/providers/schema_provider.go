package providers

import (
	"context"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

// SchemaProvider returns the normalized schema of a connection.
type SchemaProvider interface {
	GetSchema(ctx context.Context, conn Connection) (*entities.Schema, error)
}
