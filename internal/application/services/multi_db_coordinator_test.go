package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/databaseguru/backend/internal/adapters/connectors"
	"github.com/zatekoja/databaseguru/backend/internal/application/services"
	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/providers"
)

type stubSyncConnection struct {
	id   string
	rows []entities.Row
}

func (s *stubSyncConnection) ID() string   { return s.id }
func (s *stubSyncConnection) Kind() string { return entities.DatabaseKindSQLite }

func (s *stubSyncConnection) ExecuteSync(sql string, maxRows int) (*entities.ExecResult, error) {
	return rows(s.rows...), nil
}

func newCoordinator(f *orchestratorFixture) *services.MultiDBCoordinator {
	pool := connectors.NewWorkerPool(2)
	return services.NewMultiDBCoordinator(f.orch, func(s providers.SyncConnection) providers.Connection {
		return connectors.NewPooled(s, pool)
	})
}

func TestMultiDBCoordinator_TimeoutDoesNotBlockSiblings(t *testing.T) {
	f := newOrchestratorFixture(false)
	coordinator := newCoordinator(f)

	sales := newMockConnection("sales", "postgres")
	sales.On("Execute", mock.Anything, "SELECT id FROM orders", 1000).Return(rows(entities.Row{"id": 1}), nil)

	slow := newMockConnection("slow", "mysql")
	slow.On("Execute", mock.Anything, "SELECT id FROM orders", 1000).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	local := &stubSyncConnection{id: "local", rows: []entities.Row{{"id": 2}}}

	start := time.Now()
	results := coordinator.ExecuteAcross(context.Background(), "", []services.Target{
		{Connection: sales, SQL: "SELECT id FROM orders", Schema: shopSchema()},
		{Connection: slow, SQL: "SELECT id FROM orders", Schema: shopSchema(), Timeout: 100 * time.Millisecond},
		{Sync: local, SQL: "SELECT id FROM orders", Schema: shopSchema()},
	})

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"sales", "slow", "local"}, []string{results[0].ConnectionID, results[1].ConnectionID, results[2].ConnectionID})

	assert.True(t, results[0].Succeeded)
	assert.False(t, results[1].Succeeded)
	assert.Equal(t, entities.TimeoutError, results[1].Error)
	assert.NotEmpty(t, results[1].AttemptHistory)
	assert.True(t, results[2].Succeeded)
	assert.Equal(t, "sqlite", results[2].DatabaseKind)
}

func TestMultiDBCoordinator_FailureAndPanicAreIsolated(t *testing.T) {
	f := newOrchestratorFixture(false)
	coordinator := newCoordinator(f)

	healthy := newMockConnection("healthy", "postgres")
	healthy.On("Execute", mock.Anything, "SELECT id FROM products", 1000).Return(rows(entities.Row{"id": 1}), nil)

	broken := newMockConnection("broken", "postgres")
	broken.On("Execute", mock.Anything, "SELECT id FROM products", 1000).Return(nil, errors.New("permission denied for table products"))
	f.corrector.On("ProposeFix", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("model unavailable"))

	panicking := newMockConnection("panicking", "postgres")
	panicking.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { panic("driver bug") })

	results := coordinator.ExecuteAcross(context.Background(), "", []services.Target{
		{Connection: broken, SQL: "SELECT id FROM products", Schema: shopSchema()},
		{Connection: panicking, SQL: "SELECT id FROM products", Schema: shopSchema()},
		{Connection: healthy, SQL: "SELECT id FROM products", Schema: shopSchema()},
	})

	require.Len(t, results, 3)
	assert.False(t, results[0].Succeeded)
	assert.Equal(t, entities.ErrorKindPermissionDenied, results[0].AttemptHistory[0].ErrorKind)
	assert.LessOrEqual(t, len(results[0].AttemptHistory), services.DefaultMaxRetries)

	assert.False(t, results[1].Succeeded)
	assert.Equal(t, "panicking", results[1].ConnectionID)
	assert.Contains(t, results[1].Error, "driver bug")
	assert.Len(t, results[1].AttemptHistory, 1)

	assert.True(t, results[2].Succeeded)
}

func TestMultiDBCoordinator_MissingConnection(t *testing.T) {
	f := newOrchestratorFixture(false)
	coordinator := services.NewMultiDBCoordinator(f.orch, nil)

	results := coordinator.ExecuteAcross(context.Background(), "", []services.Target{
		{Sync: &stubSyncConnection{id: "local"}, SQL: "SELECT 1"},
		{SQL: "SELECT 1"},
	})

	require.Len(t, results, 2)
	assert.Equal(t, "local", results[0].ConnectionID)
	assert.False(t, results[0].Succeeded)
	assert.False(t, results[1].Succeeded)
	assert.Equal(t, 1, results[1].CorrectionAttempts)
}

func TestMultiDBCoordinator_Empty(t *testing.T) {
	f := newOrchestratorFixture(false)
	assert.Empty(t, services.NewMultiDBCoordinator(f.orch, nil).ExecuteAcross(context.Background(), "q", nil))
}
