package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sahilm/fuzzy"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

const (
	// MinQuickFixConfidence is the similarity below which no substitution is made.
	MinQuickFixConfidence = 0.7
	nearMissFloor         = 0.5
	maxNearMisses         = 3
	scoreEpsilon          = 1e-9
)

// NameMatch is a schema name scored against an unresolved identifier.
type NameMatch struct {
	Name  string
	Score float64
}

// QuickFixer repairs table and column naming errors from schema metadata alone.
type QuickFixer struct {
	classifier *ErrorClassifier
}

// NewQuickFixer creates a new quick fixer.
func NewQuickFixer(classifier *ErrorClassifier) *QuickFixer {
	if classifier == nil {
		classifier = NewErrorClassifier()
	}
	return &QuickFixer{classifier: classifier}
}

// QuickFix attempts an instant correction of sql. Only table and column naming errors are handled.
func (f *QuickFixer) QuickFix(sql string, kind entities.ErrorKind, errorText string, schema *entities.Schema) entities.QuickFix {
	if !kind.IsNamingError() {
		return entities.QuickFix{Explanation: fmt.Sprintf("no schema-based fix for %s errors", kind)}
	}
	if schema == nil || len(schema.Tables) == 0 {
		return entities.QuickFix{Explanation: "no schema available"}
	}

	ec := f.classifier.ExtractContext(errorText, kind)
	if ec.Identifier == "" {
		return entities.QuickFix{Explanation: "could not extract the unresolved identifier"}
	}

	if kind == entities.ErrorKindTableNotFound {
		return f.fixTable(sql, ec, schema)
	}
	return f.fixColumn(sql, ec, schema)
}

// Suggestions returns the closest schema names for a naming error, including ones below the
// substitution floor. They are meant as hints for the model corrector.
func (f *QuickFixer) Suggestions(sql string, kind entities.ErrorKind, errorText string, schema *entities.Schema) []NameMatch {
	if !kind.IsNamingError() || schema == nil {
		return nil
	}
	ec := f.classifier.ExtractContext(errorText, kind)
	if ec.Identifier == "" {
		return nil
	}
	candidates := schema.TableNames()
	if kind == entities.ErrorKindColumnNotFound {
		candidates = candidateColumns(sql, ec, schema)
	}
	return NearMisses(ec.Identifier, candidates)
}

func (f *QuickFixer) fixTable(sql string, ec ErrorContext, schema *entities.Schema) entities.QuickFix {
	best, ok := bestMatch(ec.Identifier, schema.TableNames())
	if !ok || best.Score < MinQuickFixConfidence {
		return belowFloor("table", ec.Identifier, best)
	}

	fixed, n := ReplaceIdentifier(sql, ec.Identifier, best.Name)
	if n == 0 || fixed == sql {
		return entities.QuickFix{Confidence: best.Score, Explanation: fmt.Sprintf("table %q not found in statement text", ec.Identifier)}
	}

	log.Debug().Str("from", ec.Identifier).Str("to", best.Name).Float64("confidence", best.Score).Msg("quick fix: table name")
	return entities.QuickFix{
		Succeeded:   true,
		FixedSQL:    fixed,
		Confidence:  best.Score,
		Explanation: fmt.Sprintf("Corrected table name: %s → %s", ec.Identifier, best.Name),
		Original:    ec.Identifier,
		Replacement: best.Name,
		Kind:        "table_name",
	}
}

func (f *QuickFixer) fixColumn(sql string, ec ErrorContext, schema *entities.Schema) entities.QuickFix {
	best, ok := bestMatch(ec.Identifier, candidateColumns(sql, ec, schema))
	if !ok || best.Score < MinQuickFixConfidence {
		return belowFloor("column", ec.Identifier, best)
	}

	var fixed string
	var n int
	if ec.Qualifier != "" {
		fixed, n = ReplaceQualifiedIdentifier(sql, lastSegment(ec.Qualifier), ec.Identifier, best.Name)
	}
	if n == 0 {
		fixed, n = ReplaceIdentifier(sql, ec.Identifier, best.Name)
	}
	if n == 0 || fixed == sql {
		return entities.QuickFix{Confidence: best.Score, Explanation: fmt.Sprintf("column %q not found in statement text", ec.Identifier)}
	}

	log.Debug().Str("from", ec.Identifier).Str("to", best.Name).Float64("confidence", best.Score).Msg("quick fix: column name")
	return entities.QuickFix{
		Succeeded:   true,
		FixedSQL:    fixed,
		Confidence:  best.Score,
		Explanation: fmt.Sprintf("Corrected column name: %s → %s", ec.Identifier, best.Name),
		Original:    ec.Identifier,
		Replacement: best.Name,
		Kind:        "column_name",
	}
}

func belowFloor(what, identifier string, best NameMatch) entities.QuickFix {
	if best.Name == "" {
		return entities.QuickFix{Explanation: fmt.Sprintf("no %s resembles %q", what, identifier)}
	}
	return entities.QuickFix{
		Confidence:  best.Score,
		Explanation: fmt.Sprintf("closest %s %q scored %.2f, below %.2f", what, best.Name, best.Score, MinQuickFixConfidence),
	}
}

// candidateColumns prefers columns of the table the identifier belongs to, then of the tables
// referenced in sql, then every column in the schema.
func candidateColumns(sql string, ec ErrorContext, schema *entities.Schema) []string {
	refs := ReferencedTables(sql)

	if ec.Qualifier != "" {
		q := lastSegment(ec.Qualifier)
		for _, ref := range refs {
			if strings.EqualFold(ref.Alias, q) || strings.EqualFold(ref.Name, q) {
				if t, ok := schema.Table(ref.Name); ok {
					return t.ColumnNames()
				}
			}
		}
		if t, ok := schema.Table(q); ok {
			return t.ColumnNames()
		}
	}

	var cols []string
	seen := make(map[string]struct{})
	for _, ref := range refs {
		t, ok := schema.Table(ref.Name)
		if !ok {
			continue
		}
		for _, c := range t.ColumnNames() {
			key := strings.ToLower(c)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			cols = append(cols, c)
		}
	}
	if len(cols) > 0 {
		return cols
	}
	return schema.AllColumnNames()
}

// bestMatch picks the highest scoring candidate. Ties go to a plural-insensitive exact match,
// then to the earliest candidate.
func bestMatch(target string, candidates []string) (NameMatch, bool) {
	var best NameMatch
	found := false
	for _, c := range candidates {
		score := SimilarityRatio(target, c)
		switch {
		case !found || score > best.Score+scoreEpsilon:
			best, found = NameMatch{Name: c, Score: score}, true
		case score >= best.Score-scoreEpsilon:
			if singular(c) == singular(target) && singular(best.Name) != singular(target) {
				best = NameMatch{Name: c, Score: score}
			}
		}
	}
	return best, found
}

// NearMisses ranks candidates by similarity, keeping those above a loose floor, and adds
// subsequence matches such as "qty" for "quantity" that edit similarity misses.
func NearMisses(target string, candidates []string) []NameMatch {
	var matches []NameMatch
	seen := make(map[string]struct{})
	for _, c := range candidates {
		if score := SimilarityRatio(target, c); score >= nearMissFloor {
			matches = append(matches, NameMatch{Name: c, Score: score})
			seen[c] = struct{}{}
		}
	}
	for _, m := range fuzzy.Find(target, candidates) {
		if _, dup := seen[m.Str]; dup {
			continue
		}
		seen[m.Str] = struct{}{}
		matches = append(matches, NameMatch{Name: m.Str, Score: SimilarityRatio(target, m.Str)})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > maxNearMisses {
		matches = matches[:maxNearMisses]
	}
	return matches
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
