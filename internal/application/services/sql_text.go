package services

import (
	"regexp"
	"strings"
)

// TableReference is a table named after FROM or JOIN, with its alias if present.
type TableReference struct {
	Name  string
	Alias string
}

var (
	tableReferencePattern = regexp.MustCompile("(?i)\\b(?:from|join)\\s+([\\w.\"`]+)(?:\\s+(?:as\\s+)?([a-z_]\\w*))?")
	orderGroupByPattern   = regexp.MustCompile(`(?i)^\s+by\b`)
	whitespacePattern     = regexp.MustCompile(`\s+`)

	aliasStopWords = map[string]struct{}{
		"where": {}, "join": {}, "inner": {}, "left": {}, "right": {}, "full": {}, "cross": {},
		"natural": {}, "outer": {}, "on": {}, "using": {}, "group": {}, "order": {}, "limit": {},
		"offset": {}, "having": {}, "union": {}, "except": {}, "intersect": {}, "window": {},
		"fetch": {}, "for": {}, "lateral": {},
	}
)

// ReferencedTables lists the tables named after FROM and JOIN in sql, in order of appearance.
func ReferencedTables(sql string) []TableReference {
	var refs []TableReference
	seen := make(map[string]struct{})
	for _, m := range tableReferencePattern.FindAllStringSubmatch(stripStringLiterals(sql), -1) {
		name := strings.Trim(m[1], "\"`")
		if name == "" || strings.HasPrefix(name, "(") {
			continue
		}
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = strings.Trim(name[i+1:], "\"`")
		}
		alias := m[2]
		if _, stop := aliasStopWords[strings.ToLower(alias)]; stop {
			alias = ""
		}
		key := strings.ToLower(name) + "|" + strings.ToLower(alias)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		refs = append(refs, TableReference{Name: name, Alias: alias})
	}
	return refs
}

// ReplaceIdentifier substitutes whole-word occurrences of oldName in sql with newName.
// Matching is case-insensitive; "_" is a word character so "order" never touches "order_items".
// Occurrences inside string literals and the ORDER/GROUP keywords of "ORDER BY"/"GROUP BY" are left alone.
func ReplaceIdentifier(sql, oldName, newName string) (string, int) {
	return replaceMatches(sql, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(oldName)+`\b`), newName)
}

// ReplaceQualifiedIdentifier substitutes qualifier.oldName with qualifier.newName.
func ReplaceQualifiedIdentifier(sql, qualifier, oldName, newName string) (string, int) {
	pattern := regexp.MustCompile(`(?i)\b(` + regexp.QuoteMeta(qualifier) + `\s*\.\s*)` + regexp.QuoteMeta(oldName) + `\b`)
	literals := stringLiteralRanges(sql)
	var b strings.Builder
	last, count := 0, 0
	for _, loc := range pattern.FindAllStringSubmatchIndex(sql, -1) {
		if insideRanges(loc[0], literals) {
			continue
		}
		b.WriteString(sql[last:loc[3]])
		b.WriteString(newName)
		last = loc[1]
		count++
	}
	b.WriteString(sql[last:])
	return b.String(), count
}

func replaceMatches(sql string, pattern *regexp.Regexp, replacement string) (string, int) {
	literals := stringLiteralRanges(sql)
	var b strings.Builder
	last, count := 0, 0
	for _, loc := range pattern.FindAllStringIndex(sql, -1) {
		if insideRanges(loc[0], literals) {
			continue
		}
		if orderGroupByPattern.MatchString(sql[loc[1]:]) {
			continue
		}
		b.WriteString(sql[last:loc[0]])
		b.WriteString(replacement)
		last = loc[1]
		count++
	}
	b.WriteString(sql[last:])
	return b.String(), count
}

// stringLiteralRanges returns [start,end) byte ranges of single-quoted literals.
// A doubled quote inside a literal is an escaped quote.
func stringLiteralRanges(sql string) [][2]int {
	var ranges [][2]int
	start := -1
	for i := 0; i < len(sql); i++ {
		if sql[i] != '\'' {
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		if i+1 < len(sql) && sql[i+1] == '\'' {
			i++
			continue
		}
		ranges = append(ranges, [2]int{start, i + 1})
		start = -1
	}
	if start >= 0 {
		ranges = append(ranges, [2]int{start, len(sql)})
	}
	return ranges
}

func insideRanges(pos int, ranges [][2]int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos < r[1] {
			return true
		}
	}
	return false
}

func stripStringLiterals(sql string) string {
	ranges := stringLiteralRanges(sql)
	if len(ranges) == 0 {
		return sql
	}
	b := []byte(sql)
	for _, r := range ranges {
		for i := r[0]; i < r[1]; i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

// normalizeSQL collapses whitespace, lower-cases and drops a trailing semicolon.
func normalizeSQL(sql string) string {
	s := strings.ToLower(strings.TrimSpace(whitespacePattern.ReplaceAllString(sql, " ")))
	return strings.TrimSpace(strings.TrimSuffix(s, ";"))
}

func singular(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.HasSuffix(n, "ies") && len(n) > 3:
		return n[:len(n)-3] + "y"
	case strings.HasSuffix(n, "ses") || strings.HasSuffix(n, "xes"):
		return n[:len(n)-2]
	case strings.HasSuffix(n, "s") && !strings.HasSuffix(n, "ss"):
		return n[:len(n)-1]
	}
	return n
}
