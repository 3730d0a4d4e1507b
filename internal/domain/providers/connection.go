package providers

import (
	"context"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

// Connection is the uniform execution contract of a user database.
// Implementations enforce maxRows themselves and honour ctx cancellation.
type Connection interface {
	ID() string
	Kind() string
	Execute(ctx context.Context, sql string, maxRows int) (*entities.ExecResult, error)
}

// SyncConnection is a driver that can only execute on the calling goroutine and
// does not observe context cancellation. Wrap it before handing it to the coordinator.
type SyncConnection interface {
	ID() string
	Kind() string
	ExecuteSync(sql string, maxRows int) (*entities.ExecResult, error)
}

// AccessModeReporter is implemented by connections that know whether their sessions are read-only.
type AccessModeReporter interface {
	ReadOnly() bool
}

// ConnectionRegistry resolves connection IDs.
type ConnectionRegistry interface {
	Get(id string) (Connection, bool)
	List() []Connection
}
