package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/repositories"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

const (
	// DefaultCandidateLimit is the number of learned corrections offered per failure.
	DefaultCandidateLimit = 5
	// minPatternSimilarity applies when neither error names a table or column.
	minPatternSimilarity = 0.6
	candidateOverfetch   = 4
)

var (
	doubleQuotedPattern = regexp.MustCompile(`"[^"]*"`)
	singleQuotedPattern = regexp.MustCompile(`'[^']*'`)
	numberPattern       = regexp.MustCompile(`\b\d+\b`)
	identifierPattern   = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
)

// CorrectionMemory learns from successful corrections and offers them for similar failures.
type CorrectionMemory struct {
	repo       repositories.CorrectionRepository
	classifier *ErrorClassifier
	enabled    bool
	now        func() time.Time
}

// NewCorrectionMemory creates a new correction memory. A disabled memory never learns or matches.
func NewCorrectionMemory(repo repositories.CorrectionRepository, classifier *ErrorClassifier, enabled bool) *CorrectionMemory {
	if classifier == nil {
		classifier = NewErrorClassifier()
	}
	return &CorrectionMemory{
		repo:       repo,
		classifier: classifier,
		enabled:    enabled,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether learning is switched on.
func (m *CorrectionMemory) Enabled() bool {
	return m.enabled
}

// Learn records that correctedSQL fixed originalSQL. Learning the same fix again merges into
// the existing row. It returns the ID of the stored correction, or "" when learning is disabled.
func (m *CorrectionMemory) Learn(ctx context.Context, kind entities.ErrorKind, originalSQL, originalError, correctedSQL, databaseKind string) (string, error) {
	if !m.enabled {
		return "", nil
	}
	if strings.TrimSpace(correctedSQL) == "" {
		return "", apperrors.NewValidationError("corrected SQL is required")
	}
	if normalizeSQL(originalSQL) == normalizeSQL(correctedSQL) {
		return "", apperrors.NewValidationError("corrected SQL is identical to the original")
	}

	tablePattern, columnPattern := m.patterns(kind, originalError)
	correction := &entities.LearnedCorrection{
		ID:            uuid.New().String(),
		ErrorKind:     kind,
		ErrorPattern:  NormalizeErrorPattern(originalError),
		DatabaseKind:  databaseKind,
		OriginalSQL:   originalSQL,
		OriginalError: originalError,
		CorrectedSQL:  correctedSQL,
		TablePattern:  tablePattern,
		ColumnPattern: columnPattern,
		Score:         entities.NewCorrectionScore(),
		LearnedAt:     m.now(),
	}
	correction.Description = describeCorrection(correction)

	stored, merged, err := m.repo.Upsert(ctx, correction)
	if err != nil {
		return "", err
	}

	observability.RecordCorrectionLearned(ctx, string(kind), merged)
	log.Info().
		Str("correction_id", stored.ID).
		Str("error_kind", string(kind)).
		Bool("merged", merged).
		Int("times_applied", stored.Score.TimesApplied()).
		Msg("learned correction")
	return stored.ID, nil
}

// FindCandidates returns matchable corrections for a new failure, best first.
// Lookup problems are logged and yield an empty list.
func (m *CorrectionMemory) FindCandidates(ctx context.Context, kind entities.ErrorKind, errorText, databaseKind string, limit int) []*entities.LearnedCorrection {
	if !m.enabled {
		return nil
	}
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	tablePattern, columnPattern := m.patterns(kind, errorText)
	rows, err := m.repo.FindCandidates(ctx, repositories.CandidateQuery{
		ErrorKind:     kind,
		DatabaseKind:  databaseKind,
		TablePattern:  tablePattern,
		ColumnPattern: columnPattern,
		MinConfidence: entities.MinMatchConfidence,
		Limit:         limit * candidateOverfetch,
	})
	if err != nil {
		log.Warn().Err(err).Str("error_kind", string(kind)).Msg("learned correction lookup failed")
		return nil
	}

	pattern := NormalizeErrorPattern(errorText)
	out := make([]*entities.LearnedCorrection, 0, limit)
	for _, c := range rows {
		if !c.Score.IsMatchable() {
			continue
		}
		if tablePattern == "" && columnPattern == "" && c.TablePattern == "" && c.ColumnPattern == "" &&
			patternSimilarity(pattern, c.ErrorPattern) < minPatternSimilarity {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Apply adapts a learned correction to failingSQL. It returns false when the correction
// does not carry over to this statement.
func (m *CorrectionMemory) Apply(c *entities.LearnedCorrection, failingSQL string) (string, bool) {
	if c == nil {
		return "", false
	}
	if normalizeSQL(c.OriginalSQL) == normalizeSQL(failingSQL) {
		return c.CorrectedSQL, true
	}

	renames := identifierRenames(c.OriginalSQL, c.CorrectedSQL)
	if len(renames) == 0 {
		return "", false
	}

	fixed := failingSQL
	applied := 0
	for _, r := range renames {
		var n int
		fixed, n = ReplaceIdentifier(fixed, r[0], r[1])
		applied += n
	}
	if applied == 0 || normalizeSQL(fixed) == normalizeSQL(failingSQL) {
		return "", false
	}
	return fixed, true
}

// RecordOutcome reinforces or decays a correction after it was reused.
func (m *CorrectionMemory) RecordOutcome(ctx context.Context, id string, succeeded bool) error {
	updated, err := m.repo.RecordOutcome(ctx, id, succeeded)
	if err != nil {
		return err
	}
	observability.RecordCorrectionOutcome(ctx, succeeded)
	log.Debug().
		Str("correction_id", id).
		Bool("succeeded", succeeded).
		Float64("confidence", updated.Score.Confidence()).
		Msg("recorded learned correction outcome")
	return nil
}

// List retrieves corrections with filters
func (m *CorrectionMemory) List(ctx context.Context, filter repositories.CorrectionFilter) ([]*entities.LearnedCorrection, error) {
	return m.repo.List(ctx, filter)
}

// Get retrieves a single correction
func (m *CorrectionMemory) Get(ctx context.Context, id string) (*entities.LearnedCorrection, error) {
	return m.repo.GetByID(ctx, id)
}

// Delete removes one correction
func (m *CorrectionMemory) Delete(ctx context.Context, id string) error {
	return m.repo.Delete(ctx, id)
}

// Reset removes every learned correction.
func (m *CorrectionMemory) Reset(ctx context.Context) (int, error) {
	n, err := m.repo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	log.Warn().Int("deleted", n).Msg("learned corrections reset")
	return n, nil
}

// Stats summarises the store.
func (m *CorrectionMemory) Stats(ctx context.Context) (*entities.CorrectionStats, error) {
	all, err := m.repo.List(ctx, repositories.CorrectionFilter{})
	if err != nil {
		return nil, err
	}

	stats := &entities.CorrectionStats{
		Total:       len(all),
		ByErrorKind: make(map[entities.ErrorKind]int),
	}
	var confidence float64
	for _, c := range all {
		stats.ByErrorKind[c.ErrorKind]++
		confidence += c.Score.Confidence()
		if c.Score.IsMatchable() {
			stats.Matchable++
		}
	}
	if len(all) > 0 {
		stats.AverageConfidence = confidence / float64(len(all))
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Score.TimesApplied() > all[j].Score.TimesApplied()
	})
	for i := 0; i < len(all) && i < 5; i++ {
		stats.MostApplied = append(stats.MostApplied, *all[i])
	}
	return stats, nil
}

func (m *CorrectionMemory) patterns(kind entities.ErrorKind, errorText string) (table, column string) {
	ec := m.classifier.ExtractContext(errorText, kind)
	switch kind {
	case entities.ErrorKindTableNotFound:
		return ec.Identifier, ""
	case entities.ErrorKindColumnNotFound:
		return "", ec.Identifier
	}
	return "", ""
}

// NormalizeErrorPattern strips names and numbers from an error so similar failures share a pattern.
func NormalizeErrorPattern(errorText string) string {
	p := strings.ToLower(strings.TrimSpace(errorText))
	p = doubleQuotedPattern.ReplaceAllString(p, `"<name>"`)
	p = singleQuotedPattern.ReplaceAllString(p, `'<name>'`)
	return numberPattern.ReplaceAllString(p, "<num>")
}

func patternSimilarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// identifierRenames pairs identifiers that differ between two statements with the same shape.
func identifierRenames(original, corrected string) [][2]string {
	from := identifierPattern.FindAllString(stripStringLiterals(original), -1)
	to := identifierPattern.FindAllString(stripStringLiterals(corrected), -1)
	if len(from) != len(to) {
		return nil
	}

	var renames [][2]string
	seen := make(map[string]string)
	for i := range from {
		if strings.EqualFold(from[i], to[i]) {
			continue
		}
		key := strings.ToLower(from[i])
		if prev, ok := seen[key]; ok {
			if !strings.EqualFold(prev, to[i]) {
				return nil
			}
			continue
		}
		seen[key] = to[i]
		renames = append(renames, [2]string{from[i], to[i]})
	}
	return renames
}

func describeCorrection(c *entities.LearnedCorrection) string {
	switch {
	case c.TablePattern != "":
		return "Fix for missing table: " + c.TablePattern
	case c.ColumnPattern != "":
		return "Fix for missing column: " + c.ColumnPattern
	}

	before := wordSet(c.OriginalSQL)
	after := wordSet(c.CorrectedSQL)
	added := difference(after, before)
	removed := difference(before, after)
	switch {
	case len(added) > 0 && len(removed) > 0:
		return fmt.Sprintf("Changed %s to %s", strings.Join(head(removed, 3), ", "), strings.Join(head(added, 3), ", "))
	case len(added) > 0:
		return "Added " + strings.Join(head(added, 3), ", ")
	case len(removed) > 0:
		return "Removed " + strings.Join(head(removed, 3), ", ")
	}
	return "Minor correction"
}

func wordSet(sql string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(sql)) {
		set[w] = struct{}{}
	}
	return set
}

func difference(a, b map[string]struct{}) []string {
	var out []string
	for w := range a {
		if _, ok := b[w]; !ok {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
