package services

import (
	"regexp"
	"strings"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

// ErrorContext is the structured detail pulled out of a driver error.
type ErrorContext struct {
	// Identifier is the unqualified table or column name the database could not resolve.
	Identifier string
	// Qualifier is the alias, table or schema prefix in front of Identifier, if any.
	Qualifier string
}

type kindRule struct {
	kind     entities.ErrorKind
	patterns []*regexp.Regexp
	// unquoted rules ignore quoted identifiers, so a column named "timeout" stays a column error.
	unquoted bool
}

var (
	quotedSegmentPattern    = regexp.MustCompile(`"[^"]*"|'[^']*'|` + "`[^`]*`")
	columnOfRelationPattern = regexp.MustCompile(`column "?[\w.]+"? of relation`)

	tableIdentifierPatterns = []*regexp.Regexp{
		regexp.MustCompile(`relation "([^"]+)" does not exist`),
		regexp.MustCompile(`no such table:\s*([\w.]+)`),
		regexp.MustCompile(`table '([^']+)' doesn't exist`),
		regexp.MustCompile(`table with name "?([\w.]+)"? does not exist`),
		regexp.MustCompile(`table "([^"]+)" does not exist`),
		regexp.MustCompile(`unknown table '([^']+)'`),
		regexp.MustCompile(`invalid object name '([^']+)'`),
	}

	columnIdentifierPatterns = []*regexp.Regexp{
		regexp.MustCompile(`column "?([\w.]+)"?(?: of relation "[^"]+")? does not exist`),
		regexp.MustCompile(`no such column:\s*([\w.]+)`),
		regexp.MustCompile(`unknown column '([^']+)'`),
		regexp.MustCompile(`referenced column "?([\w.]+)"? not found`),
		regexp.MustCompile(`invalid column name '([^']+)'`),
	}

	classificationRules = []kindRule{
		{entities.ErrorKindPermissionDenied, []*regexp.Regexp{
			regexp.MustCompile(`permission denied`),
			regexp.MustCompile(`access denied`),
			regexp.MustCompile(`insufficient privilege`),
			regexp.MustCompile(`command denied`),
			regexp.MustCompile(`must be owner of`),
			regexp.MustCompile(`not authorized`),
			regexp.MustCompile(`readonly database`),
			regexp.MustCompile(`read-only transaction`),
		}, true},
		{entities.ErrorKindTimeout, []*regexp.Regexp{
			regexp.MustCompile(`\btimeout\b`),
			regexp.MustCompile(`\btimed out\b`),
			regexp.MustCompile(`deadline exceeded`),
			regexp.MustCompile(`canceling statement due to`),
			regexp.MustCompile(`query execution was interrupted`),
		}, true},
		{entities.ErrorKindTableNotFound, tableIdentifierPatterns, false},
		{entities.ErrorKindColumnNotFound, columnIdentifierPatterns, false},
		{entities.ErrorKindTypeMismatch, []*regexp.Regexp{
			regexp.MustCompile(`invalid input syntax for`),
			regexp.MustCompile(`operator does not exist`),
			regexp.MustCompile(`cannot (?:be )?cast`),
			regexp.MustCompile(`type mismatch`),
			regexp.MustCompile(`datatype mismatch`),
			regexp.MustCompile(`is of type \w+ but expression is of type`),
			regexp.MustCompile(`incorrect \w+ value`),
			regexp.MustCompile(`conversion (?:failed|error)`),
			regexp.MustCompile(`could not convert`),
			regexp.MustCompile(`function \S+ does not exist`),
		}, false},
		{entities.ErrorKindSyntax, []*regexp.Regexp{
			regexp.MustCompile(`syntax error`),
			regexp.MustCompile(`error in your sql syntax`),
			regexp.MustCompile(`parser error`),
			regexp.MustCompile(`incomplete input`),
			regexp.MustCompile(`unrecognized token`),
			regexp.MustCompile(`unterminated`),
			regexp.MustCompile(`near "[^"]*":`),
		}, false},
	}

	fixHints = map[entities.ErrorKind][]string{
		entities.ErrorKindTableNotFound: {
			"Check the schema for the correct table name.",
			"Table names may be case-sensitive.",
		},
		entities.ErrorKindColumnNotFound: {
			"Check the schema for the correct column name.",
			"Make sure the column is referenced through the right table or alias.",
		},
		entities.ErrorKindSyntax: {
			"Check for missing commas, parentheses, or keywords.",
			"Use syntax valid for the target database engine.",
		},
		entities.ErrorKindTypeMismatch: {
			"Check data types in comparisons and operations.",
			"Cast values to the correct type where needed.",
		},
		entities.ErrorKindTimeout: {
			"Simplify the query or add selective filters so it finishes faster.",
		},
		entities.ErrorKindPermissionDenied: {
			"Only query tables the connection is allowed to read.",
		},
	}
)

// ErrorClassifier maps raw driver errors onto error kinds. It is stateless and safe for concurrent use.
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// Classify returns the kind of errorText, checking kinds in priority order.
func (c *ErrorClassifier) Classify(errorText string) entities.ErrorKind {
	text := strings.ToLower(errorText)
	if strings.TrimSpace(text) == "" {
		return entities.ErrorKindUnknown
	}
	unquoted := quotedSegmentPattern.ReplaceAllString(text, "''")
	for _, rule := range classificationRules {
		if rule.kind == entities.ErrorKindTableNotFound && columnOfRelationPattern.MatchString(text) {
			continue
		}
		subject := text
		if rule.unquoted {
			subject = unquoted
		}
		for _, p := range rule.patterns {
			if p.MatchString(subject) {
				return rule.kind
			}
		}
	}
	return entities.ErrorKindUnknown
}

// ExtractContext pulls the offending identifier out of errorText for naming errors.
func (c *ErrorClassifier) ExtractContext(errorText string, kind entities.ErrorKind) ErrorContext {
	var patterns []*regexp.Regexp
	switch kind {
	case entities.ErrorKindTableNotFound:
		patterns = tableIdentifierPatterns
	case entities.ErrorKindColumnNotFound:
		patterns = columnIdentifierPatterns
	default:
		return ErrorContext{}
	}

	text := strings.ToLower(errorText)
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return splitQualified(m[1])
		}
	}
	return ErrorContext{}
}

// FixHint returns guidance for a model trying to repair an error of the given kind.
func (c *ErrorClassifier) FixHint(kind entities.ErrorKind, ec ErrorContext) string {
	hints := append([]string(nil), fixHints[kind]...)
	switch {
	case ec.Identifier == "":
	case kind == entities.ErrorKindTableNotFound:
		hints = append(hints, "Could not find table: "+ec.Identifier)
	case kind == entities.ErrorKindColumnNotFound:
		hints = append(hints, "Could not find column: "+ec.Identifier)
	}
	return strings.Join(hints, "\n")
}

func splitQualified(name string) ErrorContext {
	name = strings.Trim(name, "`\"' ")
	if i := strings.LastIndex(name, "."); i >= 0 {
		return ErrorContext{Qualifier: name[:i], Identifier: name[i+1:]}
	}
	return ErrorContext{Identifier: name}
}
