package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

// MemoryCorrectionStore is a process-local CorrectionRepository. Merges serialize on a mutex.
type MemoryCorrectionStore struct {
	mu      sync.RWMutex
	byID    map[string]*entities.LearnedCorrection
	byMerge map[string]string
	now     func() time.Time
}

// NewMemoryCorrectionStore creates an empty in-memory store.
func NewMemoryCorrectionStore() *MemoryCorrectionStore {
	return &MemoryCorrectionStore{
		byID:    make(map[string]*entities.LearnedCorrection),
		byMerge: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upsert inserts the correction or merges it into the row with the same merge key.
func (s *MemoryCorrectionStore) Upsert(ctx context.Context, c *entities.LearnedCorrection) (*entities.LearnedCorrection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.MergeKey()
	if id, ok := s.byMerge[key]; ok {
		existing := s.byID[id]
		existing.Score = existing.Score.ApplySuccess()
		existing.CorrectedSQL = c.CorrectedSQL
		applied := s.now()
		existing.LastAppliedAt = &applied
		return clone(existing), true, nil
	}

	stored := clone(c)
	s.byID[stored.ID] = stored
	s.byMerge[key] = stored.ID
	return clone(stored), false, nil
}

// FindCandidates returns matchable corrections ordered by confidence then usage.
func (s *MemoryCorrectionStore) FindCandidates(ctx context.Context, q repositories.CandidateQuery) ([]*entities.LearnedCorrection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entities.LearnedCorrection
	for _, c := range s.byID {
		if c.ErrorKind != q.ErrorKind || c.DatabaseKind != q.DatabaseKind {
			continue
		}
		if c.Score.Confidence() < q.MinConfidence {
			continue
		}
		if !patternMatches(c.TablePattern, q.TablePattern) || !patternMatches(c.ColumnPattern, q.ColumnPattern) {
			continue
		}
		out = append(out, clone(c))
	}
	sortCandidates(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// RecordOutcome applies a reuse outcome to the correction's score.
func (s *MemoryCorrectionStore) RecordOutcome(ctx context.Context, id string, succeeded bool) (*entities.LearnedCorrection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("learned correction with id %s not found", id))
	}
	if succeeded {
		c.Score = c.Score.ApplySuccess()
	} else {
		c.Score = c.Score.ApplyFailure()
	}
	applied := s.now()
	c.LastAppliedAt = &applied
	return clone(c), nil
}

// GetByID retrieves a correction by ID
func (s *MemoryCorrectionStore) GetByID(ctx context.Context, id string) (*entities.LearnedCorrection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("learned correction with id %s not found", id))
	}
	return clone(c), nil
}

// List retrieves corrections with filters
func (s *MemoryCorrectionStore) List(ctx context.Context, filter repositories.CorrectionFilter) ([]*entities.LearnedCorrection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entities.LearnedCorrection
	for _, c := range s.byID {
		if filter.ErrorKind != "" && c.ErrorKind != filter.ErrorKind {
			continue
		}
		if filter.DatabaseKind != "" && c.DatabaseKind != filter.DatabaseKind {
			continue
		}
		if c.Score.Confidence() < filter.MinConfidence {
			continue
		}
		out = append(out, clone(c))
	}
	sortCandidates(out)

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*entities.LearnedCorrection{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Delete deletes a correction
func (s *MemoryCorrectionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("learned correction with id %s not found", id))
	}
	delete(s.byMerge, c.MergeKey())
	delete(s.byID, id)
	return nil
}

// DeleteAll removes every correction
func (s *MemoryCorrectionStore) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.byID)
	s.byID = make(map[string]*entities.LearnedCorrection)
	s.byMerge = make(map[string]string)
	return n, nil
}

func patternMatches(stored, wanted string) bool {
	return wanted == "" || stored == "" || stored == wanted
}

func sortCandidates(cs []*entities.LearnedCorrection) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i].Score, cs[j].Score
		if a.Confidence() != b.Confidence() {
			return a.Confidence() > b.Confidence()
		}
		if a.TimesApplied() != b.TimesApplied() {
			return a.TimesApplied() > b.TimesApplied()
		}
		if !cs[i].LearnedAt.Equal(cs[j].LearnedAt) {
			return cs[i].LearnedAt.After(cs[j].LearnedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}

func clone(c *entities.LearnedCorrection) *entities.LearnedCorrection {
	cp := *c
	if c.LastAppliedAt != nil {
		t := *c.LastAppliedAt
		cp.LastAppliedAt = &t
	}
	return &cp
}
