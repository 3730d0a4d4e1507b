package services

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

var (
	writeKeywordPattern     = regexp.MustCompile(`(?i)\b(insert|update|delete|merge|grant|revoke|create|alter)\b|\breplace\s+into\b`)
	forbiddenPattern        = regexp.MustCompile(`(?i)\b(drop|truncate)\b|\balter\s+table\b|\bcreate\s+table\b`)
	lineCommentPattern      = regexp.MustCompile(`--[^\n]*`)
	blockCommentPattern     = regexp.MustCompile(`(?s)/\*.*?\*/`)
	leadingStatementPattern = regexp.MustCompile(`(?i)^\s*(select|with|values|show|explain|describe|desc|pragma|table)\b`)
	selectIntoPattern       = regexp.MustCompile(`(?i)\binto\b`)
	pragmaPattern           = regexp.MustCompile(`(?i)^\s*pragma\s+(?:\w+\.)?(\w+)\s*(\(\s*[\w".\x60]*\s*\))?\s*$`)

	// Pragmas that take a table or index name and only report on it.
	readPragmas = map[string]bool{
		"table_info":       true,
		"table_xinfo":      true,
		"index_list":       true,
		"index_info":       true,
		"index_xinfo":      true,
		"foreign_key_list": true,
	}
)

// SQLGuard validates statements before they reach a connection. Generated and model-proposed
// SQL are both untrusted and pass through the same checks.
type SQLGuard struct{}

// NewSQLGuard creates a new SQL guard
func NewSQLGuard() *SQLGuard {
	return &SQLGuard{}
}

// Check rejects empty input, multiple statements, destructive DDL, and writes unless allowWrite is set.
func (g *SQLGuard) Check(sql string, allowWrite bool) error {
	code := stripComments(stripStringLiterals(sql))
	code = strings.TrimSpace(code)
	if code == "" {
		return apperrors.NewValidationError("empty SQL statement")
	}

	body := strings.TrimSpace(strings.TrimSuffix(code, ";"))
	if strings.Contains(body, ";") {
		return apperrors.NewValidationError("multiple SQL statements are not allowed")
	}

	if m := forbiddenPattern.FindString(body); m != "" {
		return apperrors.NewValidationError(fmt.Sprintf("dangerous operation not allowed: %s", strings.ToUpper(whitespacePattern.ReplaceAllString(m, " "))))
	}

	if allowWrite {
		return nil
	}
	if m := writeKeywordPattern.FindString(body); m != "" {
		return apperrors.NewValidationError(fmt.Sprintf("write operation not allowed: %s", strings.ToUpper(m)))
	}
	if !leadingStatementPattern.MatchString(body) {
		return apperrors.NewValidationError("only read-only statements are allowed")
	}
	// SELECT ... INTO creates a table on Postgres and writes a file on MySQL.
	if selectIntoPattern.MatchString(body) {
		return apperrors.NewValidationError("write operation not allowed: SELECT INTO")
	}
	if strings.EqualFold(leadingKeyword(body), "pragma") && !isReadPragma(body) {
		return apperrors.NewValidationError("write operation not allowed: PRAGMA assignment")
	}
	return nil
}

func leadingKeyword(body string) string {
	m := leadingStatementPattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return m[1]
}

// isReadPragma accepts "PRAGMA name" and the introspection pragmas that take a table argument.
func isReadPragma(body string) bool {
	m := pragmaPattern.FindStringSubmatch(body)
	if m == nil {
		return false
	}
	if m[2] == "" {
		return true
	}
	return readPragmas[strings.ToLower(m[1])]
}

func stripComments(sql string) string {
	sql = blockCommentPattern.ReplaceAllString(sql, " ")
	return lineCommentPattern.ReplaceAllString(sql, " ")
}
