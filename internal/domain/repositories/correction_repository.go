package repositories

import (
	"context"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

// CorrectionRepository stores learned corrections. All score changes go through it.
type CorrectionRepository interface {
	// Upsert inserts the correction or merges it into the row sharing its merge key.
	// It returns the stored row and whether a merge happened.
	Upsert(ctx context.Context, correction *entities.LearnedCorrection) (*entities.LearnedCorrection, bool, error)

	// FindCandidates returns matchable corrections for the query, best first.
	FindCandidates(ctx context.Context, query CandidateQuery) ([]*entities.LearnedCorrection, error)

	// RecordOutcome applies a reuse success or failure to the correction's score.
	RecordOutcome(ctx context.Context, id string, succeeded bool) (*entities.LearnedCorrection, error)

	// GetByID retrieves a correction by ID
	GetByID(ctx context.Context, id string) (*entities.LearnedCorrection, error)

	// List retrieves corrections with filters
	List(ctx context.Context, filter CorrectionFilter) ([]*entities.LearnedCorrection, error)

	// Delete deletes a correction
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every correction and returns how many were removed.
	DeleteAll(ctx context.Context) (int, error)
}

// CandidateQuery narrows the lookup of learned corrections.
// Empty patterns match anything; a non-empty pattern matches rows with the same or no pattern.
type CandidateQuery struct {
	ErrorKind     entities.ErrorKind
	DatabaseKind  string
	TablePattern  string
	ColumnPattern string
	MinConfidence float64
	Limit         int
}

// CorrectionFilter defines filters for listing corrections
type CorrectionFilter struct {
	ErrorKind     entities.ErrorKind
	DatabaseKind  string
	MinConfidence float64
	Limit         int
	Offset        int
}
