package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/providers"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/observability"
)

const (
	// DefaultExtremeValueThreshold is the magnitude above which a numeric value is suspicious.
	DefaultExtremeValueThreshold = 1e9

	emptyResultConfidence = 0.7
	allNullsConfidence    = 0.8
	extremeConfidence     = 0.6
	zeroCountConfidence   = 0.5
	negativeConfidence    = 1.0

	// populatedTableConfidence is the floor once a probe shows the table has rows.
	populatedTableConfidence = 0.75
	// emptyTableConfidence is the ceiling once every probed table turns out empty.
	emptyTableConfidence = 0.3

	diagnosticSampleRows = 5
)

var (
	countCallPattern   = regexp.MustCompile(`(?i)\bcount\s*\(`)
	textualTypePattern = regexp.MustCompile(`(?i)char|text|clob|string|uuid|json|enum`)
)

// VerifierConfig holds the tunable heuristics of the verifier.
type VerifierConfig struct {
	ExtremeValueThreshold float64
	EnableDiagnostics     bool
}

// ResultVerifier audits successful results for statistically suspicious shapes.
type ResultVerifier struct {
	cfg VerifierConfig
}

// NewResultVerifier creates a new result verifier
func NewResultVerifier(cfg VerifierConfig) *ResultVerifier {
	if cfg.ExtremeValueThreshold <= 0 {
		cfg.ExtremeValueThreshold = DefaultExtremeValueThreshold
	}
	return &ResultVerifier{cfg: cfg}
}

// Verify inspects the result of a successful execution. conn is only used for read-only
// diagnostic probes and may be nil.
func (v *ResultVerifier) Verify(ctx context.Context, question, sql string, result *entities.ExecResult, schema *entities.Schema, databaseKind string, conn providers.Connection) entities.VerificationResult {
	verdict := v.check(sql, result, schema)
	if !verdict.IsSuspicious {
		return verdict
	}

	switch verdict.IssueKind {
	case entities.IssueEmptyResult, entities.IssueAllNulls, entities.IssueUnexpectedZeroCount:
		verdict.DiagnosticQueries = diagnosticQueries(sql)
		if v.cfg.EnableDiagnostics && conn != nil {
			v.diagnose(ctx, conn, sql, &verdict)
		}
	}

	observability.RecordVerificationIssue(ctx, string(verdict.IssueKind), string(verdict.Severity()))
	log.Debug().
		Str("database_kind", databaseKind).
		Str("issue_kind", string(verdict.IssueKind)).
		Float64("confidence", verdict.Confidence).
		Msg("suspicious result")
	return verdict
}

func (v *ResultVerifier) check(sql string, result *entities.ExecResult, schema *entities.Schema) entities.VerificationResult {
	if result == nil || result.RowCount == 0 || len(result.Rows) == 0 {
		tables := strings.Join(referencedTableNames(sql), ", ")
		return entities.VerificationResult{
			IsSuspicious: true,
			Confidence:   emptyResultConfidence,
			IssueKind:    entities.IssueEmptyResult,
			Description:  fmt.Sprintf("Query returned 0 rows. Verify that %s actually contain data.", orDefault(tables, "the referenced tables")),
			SuggestedFix: "Check WHERE clause filters, join types and literal casing",
		}
	}

	if allNull(result.Rows) {
		return entities.VerificationResult{
			IsSuspicious: true,
			Confidence:   allNullsConfidence,
			IssueKind:    entities.IssueAllNulls,
			Description:  "All values in the result are NULL. This usually means wrong column names or join conditions.",
			SuggestedFix: "Check the selected columns and the JOIN conditions",
		}
	}

	numericText := numericTextColumns(sql, result, schema)
	for _, row := range result.Rows {
		for _, col := range orderedColumns(result.Columns, row) {
			n, ok := columnNumber(row[col], numericText[col])
			if ok && math.Abs(n) > v.cfg.ExtremeValueThreshold {
				return entities.VerificationResult{
					IsSuspicious: true,
					Confidence:   extremeConfidence,
					IssueKind:    entities.IssueExtremeValue,
					Description:  fmt.Sprintf("Found extreme value %s in column %q. This might indicate a wrong aggregation or join fan-out.", formatNumber(n), col),
					SuggestedFix: "Check SUM versus COUNT, duplicate rows from JOINs, or a missing DISTINCT",
				}
			}
		}
	}

	isCount := countCallPattern.MatchString(sql)
	if isCount && len(result.Rows) == 1 {
		row := result.Rows[0]
		for _, col := range orderedColumns(result.Columns, row) {
			if !countLike(col, len(row)) {
				continue
			}
			if n, ok := columnNumber(row[col], numericText[col]); ok && n == 0 {
				return entities.VerificationResult{
					IsSuspicious: true,
					Confidence:   zeroCountConfidence,
					IssueKind:    entities.IssueUnexpectedZeroCount,
					Description:  "COUNT returned 0. Verify this is expected.",
					SuggestedFix: "Check the table has data and the WHERE clause filters",
				}
			}
		}
	}

	for _, row := range result.Rows {
		for _, col := range orderedColumns(result.Columns, row) {
			if !countLike(col, len(row)) && !(isCount && len(row) == 1) {
				continue
			}
			if n, ok := columnNumber(row[col], numericText[col]); ok && n < 0 {
				return entities.VerificationResult{
					IsSuspicious: true,
					Confidence:   negativeConfidence,
					IssueKind:    entities.IssueNegativeCount,
					Description:  fmt.Sprintf("Negative count %s in column %q. Counts can never be negative.", formatNumber(n), col),
					SuggestedFix: "Check the aggregation functions and arithmetic on counts",
				}
			}
		}
	}

	return entities.VerificationResult{IssueKind: entities.IssueNone, Description: "Results look valid"}
}

// diagnose probes the referenced tables and adjusts confidence by whether they hold data.
func (v *ResultVerifier) diagnose(ctx context.Context, conn providers.Connection, sql string, verdict *entities.VerificationResult) {
	tables := referencedTableNames(sql)
	populated, empty := 0, 0
	var notes []string

	for _, table := range tables {
		countProbe := entities.DiagnosticProbe{Table: table, SQL: countProbeSQL(table)}
		res, err := conn.Execute(ctx, countProbe.SQL, 1)
		if err != nil {
			countProbe.Error = err.Error()
			verdict.Diagnostics = append(verdict.Diagnostics, countProbe)
			log.Debug().Err(err).Str("table", table).Msg("diagnostic probe failed")
			continue
		}
		if n, ok := firstNumber(res); ok {
			rows := int(n)
			countProbe.RowCount = &rows
			if rows > 0 {
				populated++
				notes = append(notes, fmt.Sprintf("table %s has %d rows", table, rows))
			} else {
				empty++
				notes = append(notes, fmt.Sprintf("table %s is empty", table))
			}
		}
		verdict.Diagnostics = append(verdict.Diagnostics, countProbe)

		sampleProbe := entities.DiagnosticProbe{Table: table, SQL: sampleProbeSQL(table)}
		if sample, err := conn.Execute(ctx, sampleProbe.SQL, diagnosticSampleRows); err != nil {
			sampleProbe.Error = err.Error()
		} else {
			sampleProbe.Sample = sample.Rows
		}
		verdict.Diagnostics = append(verdict.Diagnostics, sampleProbe)
	}

	switch {
	case populated > 0:
		verdict.Confidence = math.Max(verdict.Confidence, populatedTableConfidence)
		verdict.Description += " Diagnostics: " + strings.Join(notes, "; ") + ". The query logic likely needs adjustment."
	case empty > 0:
		verdict.Confidence = math.Min(verdict.Confidence, emptyTableConfidence)
		verdict.Description += " Diagnostics: " + strings.Join(notes, "; ") + ". The result is probably correct."
	}
}

// ImprovementHints renders a verification verdict as extra context for the next generation.
func (v *ResultVerifier) ImprovementHints(verdict entities.VerificationResult) string {
	var hints []string
	hints = append(hints, "Issue detected: "+verdict.Description)
	if verdict.SuggestedFix != "" {
		hints = append(hints, "Suggested fix: "+verdict.SuggestedFix)
	}
	for _, probe := range verdict.Diagnostics {
		if probe.RowCount != nil {
			hints = append(hints, fmt.Sprintf("Table %s has %d rows", probe.Table, *probe.RowCount))
		}
		if len(probe.Sample) > 0 {
			if data, err := json.Marshal(probe.Sample); err == nil {
				hints = append(hints, fmt.Sprintf("Sample rows from %s: %s", probe.Table, data))
			}
		}
	}

	switch verdict.IssueKind {
	case entities.IssueEmptyResult:
		hints = append(hints,
			"Consider: are the WHERE clause filters too restrictive?",
			"Consider: would a LEFT JOIN keep the rows an INNER JOIN drops?")
	case entities.IssueAllNulls:
		hints = append(hints,
			"Consider: are the column names correct?",
			"Consider: are the JOIN conditions correct?")
	case entities.IssueExtremeValue:
		hints = append(hints,
			"Consider: should this be COUNT instead of SUM?",
			"Consider: are JOINs duplicating rows?")
	case entities.IssueUnexpectedZeroCount:
		hints = append(hints, "Consider: do the filters match how values are stored, including case?")
	}
	return strings.Join(hints, "\n")
}

func diagnosticQueries(sql string) []string {
	var queries []string
	for _, table := range referencedTableNames(sql) {
		queries = append(queries, countProbeSQL(table), sampleProbeSQL(table))
	}
	return queries
}

func countProbeSQL(table string) string {
	return "SELECT COUNT(*) AS count FROM " + table
}

func sampleProbeSQL(table string) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, diagnosticSampleRows)
}

func referencedTableNames(sql string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, ref := range ReferencedTables(sql) {
		key := strings.ToLower(ref.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, ref.Name)
	}
	return names
}

func allNull(rows []entities.Row) bool {
	values := 0
	for _, row := range rows {
		for _, v := range row {
			if v != nil {
				return false
			}
			values++
		}
	}
	return values > 0
}

// orderedColumns returns the row's keys in result column order, falling back to the row itself.
func orderedColumns(columns []string, row entities.Row) []string {
	if len(columns) > 0 {
		return columns
	}
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	return keys
}

func countLike(column string, width int) bool {
	c := strings.ToLower(column)
	return strings.Contains(c, "count") || c == "cnt" || (width == 1 && (c == "total" || strings.HasPrefix(c, "num_")))
}

func firstNumber(res *entities.ExecResult) (float64, bool) {
	if res == nil || len(res.Rows) == 0 {
		return 0, false
	}
	row := res.Rows[0]
	for _, col := range orderedColumns(res.Columns, row) {
		if n, ok := numericValue(row[col]); ok {
			return n, true
		}
	}
	return 0, false
}

// numericTextColumns reports which result columns may carry numbers as text. A column declared
// textual in a referenced table never does, nor does one holding any non-numeric string.
func numericTextColumns(sql string, result *entities.ExecResult, schema *entities.Schema) map[string]bool {
	out := make(map[string]bool)
	for _, row := range result.Rows {
		for col := range row {
			if _, seen := out[col]; !seen {
				out[col] = !declaredTextual(sql, col, schema)
			}
		}
	}
	for _, row := range result.Rows {
		for col, v := range row {
			if !out[col] {
				continue
			}
			switch t := v.(type) {
			case string:
				_, ok := parseNumeric(t)
				out[col] = ok
			case []byte:
				_, ok := parseNumeric(string(t))
				out[col] = ok
			}
		}
	}
	return out
}

func declaredTextual(sql, column string, schema *entities.Schema) bool {
	if schema == nil {
		return false
	}
	for _, name := range referencedTableNames(sql) {
		table, ok := schema.Table(name)
		if !ok {
			continue
		}
		for _, c := range table.Columns {
			if strings.EqualFold(c.Name, column) {
				return textualTypePattern.MatchString(c.Type)
			}
		}
	}
	return false
}

// columnNumber reads v as a number. Strings only count in columns that carry numbers as text.
func columnNumber(v any, numericText bool) (float64, bool) {
	switch v.(type) {
	case string, []byte:
		if !numericText {
			return 0, false
		}
	}
	return numericValue(v)
}

// numericValue reports whether v is a number, including numeric strings from drivers that
// return DECIMAL as text.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		return parseNumeric(n)
	case []byte:
		return parseNumeric(string(n))
	}
	return 0, false
}

func parseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
