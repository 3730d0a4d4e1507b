package services_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zatekoja/databaseguru/backend/internal/application/services"
	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/providers"
)

type MockConnection struct {
	mock.Mock
	id       string
	kind     string
	readOnly bool
}

func newMockConnection(id, kind string) *MockConnection {
	return &MockConnection{id: id, kind: kind}
}

func (m *MockConnection) ID() string     { return m.id }
func (m *MockConnection) Kind() string   { return m.kind }
func (m *MockConnection) ReadOnly() bool { return m.readOnly }

func (m *MockConnection) Execute(ctx context.Context, sql string, maxRows int) (*entities.ExecResult, error) {
	args := m.Called(ctx, sql, maxRows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ExecResult), args.Error(1)
}

type MockSQLGenerator struct {
	mock.Mock
}

func (m *MockSQLGenerator) Generate(ctx context.Context, question string, schema *entities.Schema, databaseKind string, hints string) (string, error) {
	args := m.Called(ctx, question, schema, databaseKind, hints)
	return args.String(0), args.Error(1)
}

type MockModelCorrector struct {
	mock.Mock
}

func (m *MockModelCorrector) ProposeFix(ctx context.Context, failingSQL, errorText string, schema *entities.Schema, hints string) (string, error) {
	args := m.Called(ctx, failingSQL, errorText, schema, hints)
	return args.String(0), args.Error(1)
}

type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockSchemaProvider struct {
	mock.Mock
}

func (m *MockSchemaProvider) GetSchema(ctx context.Context, conn providers.Connection) (*entities.Schema, error) {
	args := m.Called(ctx, conn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Schema), args.Error(1)
}

func rows(rs ...entities.Row) *entities.ExecResult {
	var cols []string
	if len(rs) > 0 {
		for k := range rs[0] {
			cols = append(cols, k)
		}
	}
	return &entities.ExecResult{Columns: cols, Rows: rs, RowCount: len(rs)}
}

type MockQueryPlanner struct {
	mock.Mock
}

func (m *MockQueryPlanner) PlanAcross(ctx context.Context, question string, schemas []services.NamedSchema) (map[string]string, error) {
	args := m.Called(ctx, question, schemas)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}
