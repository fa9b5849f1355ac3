package safety

import (
	"regexp"
	"strings"

	"querychat/internal/catalog"
	"querychat/internal/domain"
)

// WhitelistValidator checks that a template's SQL only touches its declared
// tables and columns. It runs against the template definition, not user
// input, since templates are the only SQL source.
type WhitelistValidator struct{}

var selectStarRe = regexp.MustCompile(`(?i)SELECT\s+\*`)

// sqlWords are tokens that look like identifiers but are part of the SQL
// grammar or common functions, so they are never treated as column names.
var sqlWords = map[string]bool{
	"select": true, "from": true, "where": true, "group": true, "order": true,
	"by": true, "having": true, "limit": true, "offset": true, "as": true,
	"and": true, "or": true, "not": true, "in": true, "between": true,
	"asc": true, "desc": true, "distinct": true, "on": true, "join": true,
	"inner": true, "left": true, "right": true, "outer": true, "with": true,
	"case": true, "when": true, "then": true, "else": true, "end": true,
	"is": true, "null": true, "like": true, "cast": true, "date": true,
	"sum": true, "avg": true, "count": true, "min": true, "max": true,
	"round": true, "coalesce": true, "nullif": true, "abs": true,
	"date_trunc": true, "strftime": true, "extract": true, "interval": true,
}

var identRe = regexp.MustCompile(`(?i)(:)?\b([a-zA-Z_][a-zA-Z0-9_]*)\b`)

// Check validates the template's table and column references against its
// whitelists.
func (WhitelistValidator) Check(t *domain.Template) error {
	if selectStarRe.MatchString(t.SQLStructure) {
		return domain.ErrViolation(domain.ViolationWhitelist, "template %s: SELECT * is not allowed", t.ID)
	}

	allowedTables := lowerSet(t.WhitelistedTables)
	for _, table := range catalog.TableRefs(t.SQLStructure) {
		if !allowedTables[table] {
			return domain.ErrViolation(domain.ViolationWhitelist, "template %s references table %s outside its whitelist", t.ID, table)
		}
	}

	allowedColumns := lowerSet(t.WhitelistedColumns)
	for _, col := range columnRefs(t.SQLStructure) {
		if allowedTables[col] {
			continue
		}
		if !allowedColumns[col] {
			return domain.ErrViolation(domain.ViolationWhitelist, "template %s references column %s outside its whitelist", t.ID, col)
		}
	}

	return nil
}

// columnRefs returns the identifier tokens of the SQL structure that are
// neither grammar words, placeholders, nor numeric/string literals.
func columnRefs(sqlStructure string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range identRe.FindAllStringSubmatch(stripLiterals(sqlStructure), -1) {
		if m[1] == ":" {
			continue // bound placeholder
		}
		tok := strings.ToLower(m[2])
		if sqlWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

var stringLiteralRe = regexp.MustCompile(`'[^']*'`)

func stripLiterals(s string) string {
	return stringLiteralRe.ReplaceAllString(s, "''")
}

func lowerSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[strings.ToLower(v)] = true
	}
	return out
}
