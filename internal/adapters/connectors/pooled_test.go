package connectors_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/databaseguru/backend/internal/adapters/connectors"
	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

type fakeSyncConnection struct {
	id      string
	delay   time.Duration
	err     error
	panics  bool
	running atomic.Int32
	peak    atomic.Int32
	closed  bool
}

func (f *fakeSyncConnection) ID() string   { return f.id }
func (f *fakeSyncConnection) Kind() string { return entities.DatabaseKindSQLite }

func (f *fakeSyncConnection) ExecuteSync(sql string, maxRows int) (*entities.ExecResult, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.panics {
		panic("driver exploded")
	}
	time.Sleep(f.delay)
	if f.err != nil {
		return nil, f.err
	}
	return &entities.ExecResult{Columns: []string{"sql"}, Rows: []entities.Row{{"sql": sql}}, RowCount: 1}, nil
}

func (f *fakeSyncConnection) Close() error {
	f.closed = true
	return nil
}

func TestPooled_Execute(t *testing.T) {
	driver := &fakeSyncConnection{id: "local"}
	conn := connectors.NewPooled(driver, connectors.NewWorkerPool(2))

	res, err := conn.Execute(context.Background(), "SELECT 1", 10)

	require.NoError(t, err)
	assert.Equal(t, "local", conn.ID())
	assert.Equal(t, "sqlite", conn.Kind())
	assert.Equal(t, "SELECT 1", res.Rows[0]["sql"])
}

func TestPooled_DriverError(t *testing.T) {
	conn := connectors.NewPooled(&fakeSyncConnection{id: "local", err: errors.New("no such table: prodcuts")}, nil)

	_, err := conn.Execute(context.Background(), "SELECT * FROM prodcuts", 10)

	assert.EqualError(t, err, "no such table: prodcuts")
}

func TestPooled_TimeoutReturnsWhileDriverRuns(t *testing.T) {
	conn := connectors.NewPooled(&fakeSyncConnection{id: "slow", delay: 500 * time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := conn.Execute(ctx, "SELECT 1", 10)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestPooled_BoundsConcurrency(t *testing.T) {
	driver := &fakeSyncConnection{id: "local", delay: 30 * time.Millisecond}
	pool := connectors.NewWorkerPool(2)
	conn := connectors.NewPooled(driver, pool)

	done := make(chan error, 6)
	for i := 0; i < 6; i++ {
		go func() {
			_, err := conn.Execute(context.Background(), "SELECT 1", 10)
			done <- err
		}()
	}
	for i := 0; i < 6; i++ {
		require.NoError(t, <-done)
	}
	assert.LessOrEqual(t, driver.peak.Load(), int32(2))
}

func TestPooled_PanicBecomesError(t *testing.T) {
	conn := connectors.NewPooled(&fakeSyncConnection{id: "local", panics: true}, nil)

	_, err := conn.Execute(context.Background(), "SELECT 1", 10)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver exploded")
}

func TestPooled_CloseDelegates(t *testing.T) {
	driver := &fakeSyncConnection{id: "local"}
	conn := connectors.NewPooled(driver, nil)

	require.NoError(t, conn.Close())
	assert.True(t, driver.closed)
	assert.NoError(t, conn.Ping(context.Background()))
}
