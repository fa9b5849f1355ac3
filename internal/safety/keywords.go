// Package safety implements the three independent validators every request
// must pass before its statement may reach the database: the table/column
// whitelist check, the forbidden-keyword scan, and the parameter type/range
// check. Each check is total — it always runs to completion and reports the
// first violation found.
package safety

import (
	"regexp"
	"strings"

	"querychat/internal/domain"
)

// deniedKeywords covers mutation, DDL, and DCL statements. Templates are
// pre-approved, so this scan is defense-in-depth against catalog corruption.
var deniedKeywords = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "TRUNCATE",
	"ALTER", "CREATE", "GRANT", "REVOKE", "EXEC",
	"EXECUTE", "MERGE", "REPLACE", "ATTACH", "PRAGMA",
}

var deniedRes = compileDenied()

func compileDenied() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(deniedKeywords))
	for _, kw := range deniedKeywords {
		// Word boundaries so DESCRIPTION does not match DELETE.
		out[kw] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}
	return out
}

// KeywordBlocker scans rendered statements for the fixed denylist plus
// comment markers and statement stacking.
type KeywordBlocker struct{}

// ScreenInput scans free-form user text for denied keywords. It imposes no
// statement shape; overtly mutating requests are turned away before
// classification ever runs.
func (KeywordBlocker) ScreenInput(text string) error {
	for _, kw := range deniedKeywords {
		if deniedRes[kw].MatchString(text) {
			return domain.ErrViolation(domain.ViolationKeyword, "denied keyword %s in request text", kw)
		}
	}
	return nil
}

// Check returns a keyword violation when the statement contains a denied
// keyword, a SQL comment, a stacked statement, or is not a SELECT.
func (KeywordBlocker) Check(statement string) error {
	trimmed := strings.TrimSpace(statement)

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return domain.ErrViolation(domain.ViolationKeyword, "statement is not a SELECT")
	}

	for _, kw := range deniedKeywords {
		if deniedRes[kw].MatchString(trimmed) {
			return domain.ErrViolation(domain.ViolationKeyword, "denied keyword %s", kw)
		}
	}

	if strings.Contains(trimmed, "--") || strings.Contains(trimmed, "/*") || strings.Contains(trimmed, "*/") {
		return domain.ErrViolation(domain.ViolationKeyword, "SQL comments are not allowed")
	}

	// A single trailing semicolon is tolerated; any other one means a
	// stacked statement.
	if strings.Contains(strings.TrimSuffix(strings.TrimSpace(trimmed), ";"), ";") {
		return domain.ErrViolation(domain.ViolationKeyword, "multiple statements are not allowed")
	}

	return nil
}
