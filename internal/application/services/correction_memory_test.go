package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/databaseguru/backend/internal/adapters/database"
	"github.com/zatekoja/databaseguru/backend/internal/application/services"
	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

type MockCorrectionRepository struct {
	mock.Mock
}

func (m *MockCorrectionRepository) Upsert(ctx context.Context, c *entities.LearnedCorrection) (*entities.LearnedCorrection, bool, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*entities.LearnedCorrection), args.Bool(1), args.Error(2)
}

func (m *MockCorrectionRepository) FindCandidates(ctx context.Context, q repositories.CandidateQuery) ([]*entities.LearnedCorrection, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LearnedCorrection), args.Error(1)
}

func (m *MockCorrectionRepository) RecordOutcome(ctx context.Context, id string, succeeded bool) (*entities.LearnedCorrection, error) {
	args := m.Called(ctx, id, succeeded)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.LearnedCorrection), args.Error(1)
}

func (m *MockCorrectionRepository) GetByID(ctx context.Context, id string) (*entities.LearnedCorrection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.LearnedCorrection), args.Error(1)
}

func (m *MockCorrectionRepository) List(ctx context.Context, filter repositories.CorrectionFilter) ([]*entities.LearnedCorrection, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LearnedCorrection), args.Error(1)
}

func (m *MockCorrectionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCorrectionRepository) DeleteAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

const prodcutsError = `pq: relation "prodcuts" does not exist`

func TestCorrectionMemory_LearnIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryCorrectionStore()
	memory := services.NewCorrectionMemory(store, nil, true)

	id1, err := memory.Learn(ctx, entities.ErrorKindTableNotFound, "SELECT * FROM prodcuts", prodcutsError, "SELECT * FROM products", "postgres")
	require.NoError(t, err)
	id2, err := memory.Learn(ctx, entities.ErrorKindTableNotFound, "SELECT * FROM prodcuts", prodcutsError, "SELECT * FROM products", "postgres")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)

	all, err := memory.List(ctx, repositories.CorrectionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].Score.TimesApplied())
	assert.Equal(t, "prodcuts", all[0].TablePattern)
	assert.Equal(t, `pq: relation "<name>" does not exist`, all[0].ErrorPattern)
	assert.Equal(t, "Fix for missing table: prodcuts", all[0].Description)
}

func TestCorrectionMemory_LearnValidation(t *testing.T) {
	ctx := context.Background()
	memory := services.NewCorrectionMemory(database.NewMemoryCorrectionStore(), nil, true)

	_, err := memory.Learn(ctx, entities.ErrorKindSyntax, "SELECT 1", "boom", "  ", "postgres")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = memory.Learn(ctx, entities.ErrorKindSyntax, "SELECT  1", "boom", "select 1", "postgres")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestCorrectionMemory_Disabled(t *testing.T) {
	ctx := context.Background()
	repo := new(MockCorrectionRepository)
	memory := services.NewCorrectionMemory(repo, nil, false)

	id, err := memory.Learn(ctx, entities.ErrorKindTableNotFound, "SELECT * FROM prodcuts", prodcutsError, "SELECT * FROM products", "postgres")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, memory.FindCandidates(ctx, entities.ErrorKindTableNotFound, prodcutsError, "postgres", 5))
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestCorrectionMemory_FindCandidates(t *testing.T) {
	ctx := context.Background()
	memory := services.NewCorrectionMemory(database.NewMemoryCorrectionStore(), nil, true)

	_, err := memory.Learn(ctx, entities.ErrorKindTableNotFound, "SELECT * FROM prodcuts", prodcutsError, "SELECT * FROM products", "postgres")
	require.NoError(t, err)
	_, err = memory.Learn(ctx, entities.ErrorKindSyntax, "SELEC * FROM products", `syntax error at or near "SELEC"`, "SELECT * FROM products", "postgres")
	require.NoError(t, err)

	t.Run("same table", func(t *testing.T) {
		got := memory.FindCandidates(ctx, entities.ErrorKindTableNotFound, prodcutsError, "postgres", 0)
		require.Len(t, got, 1)
		assert.Equal(t, "prodcuts", got[0].TablePattern)
	})

	t.Run("different table", func(t *testing.T) {
		got := memory.FindCandidates(ctx, entities.ErrorKindTableNotFound, `pq: relation "ordrs" does not exist`, "postgres", 0)
		assert.Empty(t, got)
	})

	t.Run("different database kind", func(t *testing.T) {
		got := memory.FindCandidates(ctx, entities.ErrorKindTableNotFound, prodcutsError, "mysql", 0)
		assert.Empty(t, got)
	})

	t.Run("similar pattern without identifiers", func(t *testing.T) {
		got := memory.FindCandidates(ctx, entities.ErrorKindSyntax, `syntax error at or near "FORM"`, "postgres", 0)
		require.Len(t, got, 1)
	})

	t.Run("dissimilar pattern without identifiers", func(t *testing.T) {
		got := memory.FindCandidates(ctx, entities.ErrorKindSyntax, "incomplete input", "postgres", 0)
		assert.Empty(t, got)
	})
}

func TestCorrectionMemory_FindCandidatesSwallowsErrors(t *testing.T) {
	repo := new(MockCorrectionRepository)
	repo.On("FindCandidates", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	memory := services.NewCorrectionMemory(repo, nil, true)
	got := memory.FindCandidates(context.Background(), entities.ErrorKindTableNotFound, prodcutsError, "postgres", 5)

	assert.Empty(t, got)
	repo.AssertExpectations(t)
}

func TestCorrectionMemory_Apply(t *testing.T) {
	memory := services.NewCorrectionMemory(database.NewMemoryCorrectionStore(), nil, true)
	learned := &entities.LearnedCorrection{
		OriginalSQL:  "SELECT name FROM prodcuts",
		CorrectedSQL: "SELECT name FROM products",
	}

	t.Run("same statement", func(t *testing.T) {
		fixed, ok := memory.Apply(learned, "select   name from PRODCUTS")
		require.True(t, ok)
		assert.Equal(t, "SELECT name FROM products", fixed)
	})

	t.Run("rename carries over", func(t *testing.T) {
		fixed, ok := memory.Apply(learned, "SELECT id, price FROM prodcuts WHERE price > 10")
		require.True(t, ok)
		assert.Equal(t, "SELECT id, price FROM products WHERE price > 10", fixed)
	})

	t.Run("rename does not apply", func(t *testing.T) {
		_, ok := memory.Apply(learned, "SELECT id FROM customers")
		assert.False(t, ok)
	})

	t.Run("shape changed", func(t *testing.T) {
		_, ok := memory.Apply(&entities.LearnedCorrection{
			OriginalSQL:  "SELECT a FROM t",
			CorrectedSQL: "SELECT a, b FROM t2",
		}, "SELECT a FROM t WHERE x = 1")
		assert.False(t, ok)
	})
}

func TestCorrectionMemory_OutcomeAndStats(t *testing.T) {
	ctx := context.Background()
	memory := services.NewCorrectionMemory(database.NewMemoryCorrectionStore(), nil, true)

	id, err := memory.Learn(ctx, entities.ErrorKindTableNotFound, "SELECT * FROM prodcuts", prodcutsError, "SELECT * FROM products", "postgres")
	require.NoError(t, err)
	_, err = memory.Learn(ctx, entities.ErrorKindColumnNotFound, "SELECT pric FROM products", `column "pric" does not exist`, "SELECT price FROM products", "postgres")
	require.NoError(t, err)

	require.NoError(t, memory.RecordOutcome(ctx, id, false))
	got, err := memory.Get(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got.Score.Confidence(), 1e-9)
	assert.InDelta(t, 0.5, got.Score.SuccessRate(), 1e-9)

	stats, err := memory.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByErrorKind[entities.ErrorKindTableNotFound])
	assert.Equal(t, 1, stats.ByErrorKind[entities.ErrorKindColumnNotFound])
	assert.InDelta(t, 0.65, stats.AverageConfidence, 1e-9)
	assert.Equal(t, 2, stats.Matchable)

	err = memory.RecordOutcome(ctx, "missing", true)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	n, err := memory.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
