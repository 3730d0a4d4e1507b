package database_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/databaseguru/backend/internal/adapters/database"
	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

func newLearned(table string) *entities.LearnedCorrection {
	return &entities.LearnedCorrection{
		ID:            uuid.New().String(),
		ErrorKind:     entities.ErrorKindTableNotFound,
		ErrorPattern:  `relation "<name>" does not exist`,
		DatabaseKind:  entities.DatabaseKindPostgres,
		OriginalSQL:   "SELECT * FROM " + table,
		OriginalError: `relation "` + table + `" does not exist`,
		CorrectedSQL:  "SELECT * FROM products",
		TablePattern:  table,
		Score:         entities.NewCorrectionScore(),
		LearnedAt:     time.Now().UTC(),
	}
}

func TestMemoryCorrectionStore_UpsertMerges(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryCorrectionStore()

	first, merged, err := store.Upsert(ctx, newLearned("prodcuts"))
	require.NoError(t, err)
	assert.False(t, merged)

	second, merged, err := store.Upsert(ctx, newLearned("prodcuts"))
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Score.TimesApplied())
	assert.NotNil(t, second.LastAppliedAt)

	all, err := store.List(ctx, repositories.CorrectionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryCorrectionStore_ConcurrentMergesKeepEveryCount(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryCorrectionStore()

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.Upsert(ctx, newLearned("prodcuts"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := store.List(ctx, repositories.CorrectionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, writers, all[0].Score.TimesApplied())
	assert.LessOrEqual(t, all[0].Score.Confidence(), 1.0)
}

func TestMemoryCorrectionStore_RecordOutcomeStaysBounded(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryCorrectionStore()

	stored, _, err := store.Upsert(ctx, newLearned("prodcuts"))
	require.NoError(t, err)

	var updated *entities.LearnedCorrection
	for i := 0; i < 20; i++ {
		updated, err = store.RecordOutcome(ctx, stored.ID, false)
		require.NoError(t, err)
	}
	assert.Equal(t, 0.0, updated.Score.Confidence())
	assert.GreaterOrEqual(t, updated.Score.SuccessRate(), 0.0)
	assert.False(t, updated.Score.IsMatchable())

	for i := 0; i < 40; i++ {
		updated, err = store.RecordOutcome(ctx, stored.ID, true)
		require.NoError(t, err)
	}
	assert.Equal(t, 1.0, updated.Score.Confidence())
	assert.LessOrEqual(t, updated.Score.SuccessRate(), 1.0)
}

func TestMemoryCorrectionStore_FindCandidates(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryCorrectionStore()

	strong, _, err := store.Upsert(ctx, newLearned("prodcuts"))
	require.NoError(t, err)
	_, _, err = store.Upsert(ctx, newLearned("prodcuts"))
	require.NoError(t, err)

	other, _, err := store.Upsert(ctx, newLearned("custmers"))
	require.NoError(t, err)

	weak, _, err := store.Upsert(ctx, newLearned("ordrs"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = store.RecordOutcome(ctx, weak.ID, false)
		require.NoError(t, err)
	}

	t.Run("pattern filter", func(t *testing.T) {
		got, err := store.FindCandidates(ctx, repositories.CandidateQuery{
			ErrorKind:     entities.ErrorKindTableNotFound,
			DatabaseKind:  entities.DatabaseKindPostgres,
			TablePattern:  "prodcuts",
			MinConfidence: entities.MinMatchConfidence,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, strong.ID, got[0].ID)
	})

	t.Run("ranked without pattern", func(t *testing.T) {
		got, err := store.FindCandidates(ctx, repositories.CandidateQuery{
			ErrorKind:     entities.ErrorKindTableNotFound,
			DatabaseKind:  entities.DatabaseKindPostgres,
			MinConfidence: entities.MinMatchConfidence,
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, strong.ID, got[0].ID)
		assert.Equal(t, other.ID, got[1].ID)
	})

	t.Run("other database kind", func(t *testing.T) {
		got, err := store.FindCandidates(ctx, repositories.CandidateQuery{
			ErrorKind:     entities.ErrorKindTableNotFound,
			DatabaseKind:  entities.DatabaseKindMySQL,
			MinConfidence: entities.MinMatchConfidence,
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMemoryCorrectionStore_DeleteAndReset(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryCorrectionStore()

	a, _, err := store.Upsert(ctx, newLearned("prodcuts"))
	require.NoError(t, err)
	_, _, err = store.Upsert(ctx, newLearned("custmers"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, a.ID))
	err = store.Delete(ctx, a.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	_, err = store.GetByID(ctx, a.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	n, err := store.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := store.List(ctx, repositories.CorrectionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}
