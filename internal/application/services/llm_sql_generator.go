package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/providers"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

var (
	fencePattern         = regexp.MustCompile("```[a-zA-Z]*")
	outputPrefixPattern  = regexp.MustCompile(`(?i)^\s*(sql query:|query:|answer:|sql:|sqlite|postgresql|postgres|mysql)\s*`)
	inlineDialectPattern = regexp.MustCompile(`(?i)\b(sqlite|postgresql|postgres|mysql)\s+(select|with|insert|update|delete)\b`)
	statementStartRegex  = regexp.MustCompile(`(?i)^(select|with|insert|update|delete|values|explain|show|pragma|merge|replace)\b`)
)

// LLMSQLGenerator generates and repairs SQL with a text-generation model.
type LLMSQLGenerator struct {
	llm providers.LLMClient
}

// NewLLMSQLGenerator creates a new LLM-backed SQL generator
func NewLLMSQLGenerator(llm providers.LLMClient) *LLMSQLGenerator {
	return &LLMSQLGenerator{llm: llm}
}

// Generate writes SQL for question against schema.
func (g *LLMSQLGenerator) Generate(ctx context.Context, question string, schema *entities.Schema, databaseKind, hints string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", apperrors.NewValidationError("question is required")
	}
	return g.complete(ctx, "sql.generate", buildGenerationPrompt(question, schema, databaseKind, hints))
}

// ProposeFix asks the model to repair failingSQL. The result is untrusted and must be validated.
func (g *LLMSQLGenerator) ProposeFix(ctx context.Context, failingSQL, errorText string, schema *entities.Schema, hints string) (string, error) {
	return g.complete(ctx, "sql.propose_fix", buildCorrectionPrompt(failingSQL, errorText, schema, hints))
}

// PlanAcross asks for one statement per relevant database in a single call. Databases the
// model did not address are absent from the result.
func (g *LLMSQLGenerator) PlanAcross(ctx context.Context, question string, schemas []NamedSchema) (map[string]string, error) {
	ctx, span := observability.StartSpan(ctx, "sql.plan_across", attribute.Int("databases", len(schemas)))
	defer span.End()

	text, err := g.llm.Generate(ctx, buildMultiDatabasePrompt(question, schemas))
	if err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewExternalError("multi-database generation failed", err)
	}

	known := make(map[string]struct{}, len(schemas))
	for _, s := range schemas {
		known[s.ConnectionID] = struct{}{}
	}
	planned := make(map[string]string)
	for id, sql := range parseDatabaseQueries(text) {
		if _, ok := known[id]; !ok {
			log.Warn().Str("connection_id", id).Msg("model planned a query for an unknown database")
			continue
		}
		planned[id] = sql
	}
	return planned, nil
}

func (g *LLMSQLGenerator) complete(ctx context.Context, spanName, prompt string) (string, error) {
	ctx, span := observability.StartSpan(ctx, spanName)
	defer span.End()

	start := time.Now()
	text, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		observability.RecordError(span, err)
		return "", apperrors.NewExternalError("sql generation failed", err)
	}

	sql := CleanSQLOutput(text)
	if sql == "" {
		err := apperrors.NewExternalError("model returned no SQL", nil)
		observability.RecordError(span, err)
		return "", err
	}
	log.Debug().
		Str("operation", spanName).
		Dur("duration", time.Since(start)).
		Msg("model produced SQL")
	return sql, nil
}

// CleanSQLOutput extracts the first SQL statement from model output. Markdown fences, answer
// prefixes, leading and trailing prose, and comment lines are dropped.
func CleanSQLOutput(text string) string {
	text = fencePattern.ReplaceAllString(text, "\n")
	text = outputPrefixPattern.ReplaceAllString(text, "")
	text = inlineDialectPattern.ReplaceAllString(text, "$2")

	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if len(lines) == 0 {
			line = outputPrefixPattern.ReplaceAllString(line, "")
			if !statementStartRegex.MatchString(line) {
				continue
			}
		}
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "--") || strings.HasPrefix(line, "/*") {
			continue
		}
		lines = append(lines, line)
		if strings.HasSuffix(line, ";") {
			break
		}
	}

	sql := strings.Join(lines, " ")
	literals := stringLiteralRanges(sql)
	for i := 0; i < len(sql); i++ {
		if sql[i] == ';' && !insideRanges(i, literals) {
			sql = sql[:i]
			break
		}
	}
	return strings.TrimSpace(sql)
}
