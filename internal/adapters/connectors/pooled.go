package connectors

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/providers"
)

// DefaultSyncWorkers bounds concurrent executions of synchronous drivers.
const DefaultSyncWorkers = 4

// WorkerPool bounds how many synchronous executions run at once. One pool is shared by
// every synchronous connection of a process.
type WorkerPool struct {
	sem *semaphore.Weighted
}

// NewWorkerPool creates a pool with size workers
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = DefaultSyncWorkers
	}
	return &WorkerPool{sem: semaphore.NewWeighted(int64(size))}
}

// Pooled adapts a SyncConnection to providers.Connection. Each execution runs on a pool worker
// while the caller waits on its context; a timed out execution keeps its worker until the driver returns.
type Pooled struct {
	conn providers.SyncConnection
	pool *WorkerPool
}

// NewPooled wraps conn so it runs on pool
func NewPooled(conn providers.SyncConnection, pool *WorkerPool) *Pooled {
	if pool == nil {
		pool = NewWorkerPool(DefaultSyncWorkers)
	}
	return &Pooled{conn: conn, pool: pool}
}

func (p *Pooled) ID() string   { return p.conn.ID() }
func (p *Pooled) Kind() string { return p.conn.Kind() }

// ReadOnly reports the access mode of the wrapped driver
func (p *Pooled) ReadOnly() bool {
	am, ok := p.conn.(providers.AccessModeReporter)
	return ok && am.ReadOnly()
}

// Unwrap returns the synchronous connection
func (p *Pooled) Unwrap() providers.SyncConnection {
	return p.conn
}

type execOutcome struct {
	result *entities.ExecResult
	err    error
}

// Execute waits for a free worker, then for the driver or ctx, whichever comes first
func (p *Pooled) Execute(ctx context.Context, sql string, maxRows int) (*entities.ExecResult, error) {
	if err := p.pool.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	done := make(chan execOutcome, 1)
	go func() {
		defer p.pool.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- execOutcome{err: fmt.Errorf("driver panic: %v", r)}
			}
		}()
		res, err := p.conn.ExecuteSync(sql, maxRows)
		done <- execOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ping delegates to the synchronous connection when it supports it
func (p *Pooled) Ping(ctx context.Context) error {
	if pinger, ok := p.conn.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Close delegates to the synchronous connection when it supports it
func (p *Pooled) Close() error {
	if closer, ok := p.conn.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
