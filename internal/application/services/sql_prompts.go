package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

const generationTemplate = `Given the following database schema:

%s

Database type: %s

Write one SQL query that answers this question: %s

Use only the table names listed after "Table:" above and always include a FROM clause.
%s
SQL Query:`

const correctionTemplate = `This SQL query failed. Fix it.

Query:
%s

Error:
%s

Schema:
%s
%s
Return the corrected SQL query only.`

const multiDatabaseTemplate = `You have access to the following databases:

%s

User question: %s

For every database that holds data relevant to the question, write one query in that database's dialect.
Prefix each query with a line "DATABASE: <database id>". Every SELECT must include FROM table_name.`

var databaseMarkerPattern = regexp.MustCompile(`(?im)^\s*DATABASE:\s*([\w.-]+)\s*$`)

// NamedSchema is the schema of one connection in a multi-database prompt.
type NamedSchema struct {
	ConnectionID string
	DatabaseKind string
	Schema       *entities.Schema
}

// FormatSchema renders a schema as the plain-text block used in prompts.
func FormatSchema(schema *entities.Schema) string {
	if schema == nil || len(schema.Tables) == 0 {
		return "(schema unavailable)"
	}
	var b strings.Builder
	for i, t := range schema.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Table: %s\n", t.Name)
		for _, c := range t.Columns {
			fmt.Fprintf(&b, "  - %s %s", c.Name, c.Type)
			if containsFold(t.PrimaryKeys, c.Name) {
				b.WriteString(" PRIMARY KEY")
			}
			b.WriteString("\n")
		}
		for _, fk := range t.ForeignKeys {
			fmt.Fprintf(&b, "  FK (%s) -> %s(%s)\n",
				strings.Join(fk.Columns, ", "), fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", "))
		}
	}
	return b.String()
}

// FormatCombinedSchema renders several connections' schemas under per-database headers.
func FormatCombinedSchema(schemas []NamedSchema) string {
	parts := make([]string, 0, len(schemas))
	for _, s := range schemas {
		parts = append(parts, fmt.Sprintf("=== DATABASE: %s (%s) ===\n%s", s.ConnectionID, s.DatabaseKind, FormatSchema(s.Schema)))
	}
	return strings.Join(parts, "\n\n")
}

func buildGenerationPrompt(question string, schema *entities.Schema, databaseKind, hints string) string {
	return fmt.Sprintf(generationTemplate, FormatSchema(schema), databaseKind, question, hintBlock(hints))
}

func buildCorrectionPrompt(failingSQL, errorText string, schema *entities.Schema, hints string) string {
	return fmt.Sprintf(correctionTemplate, failingSQL, errorText, FormatSchema(schema), hintBlock(hints))
}

func buildMultiDatabasePrompt(question string, schemas []NamedSchema) string {
	return fmt.Sprintf(multiDatabaseTemplate, FormatCombinedSchema(schemas), question)
}

func hintBlock(hints string) string {
	hints = strings.TrimSpace(hints)
	if hints == "" {
		return ""
	}
	return "\nHints:\n" + hints + "\n"
}

// parseDatabaseQueries splits model output on "DATABASE:" markers into per-connection SQL.
func parseDatabaseQueries(text string) map[string]string {
	out := make(map[string]string)
	markers := databaseMarkerPattern.FindAllStringSubmatchIndex(text, -1)
	for i, m := range markers {
		id := text[m[2]:m[3]]
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		if sql := CleanSQLOutput(text[m[1]:end]); sql != "" {
			out[id] = sql
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
