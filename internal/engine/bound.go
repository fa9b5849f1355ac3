// Package engine renders templates into bounded statements and executes them
// against the read-only analytics database.
//
// Every statement leaving this package carries a row cap in [1, maxRowLimit]
// and runs under a wall-clock timeout enforced by context cancellation.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"querychat/internal/domain"
)

// Bounder renders a template plus validated parameters into a bounded,
// bind-ready statement.
type Bounder struct {
	DefaultRowLimit int
	MaxRowLimit     int
	TimeoutMs       int64
}

var (
	namedPlaceholderRe = regexp.MustCompile(`(^|[^:\w]):([a-zA-Z_][a-zA-Z0-9_]*)`)
	limitClauseRe      = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+|\?)`)
)

// Bound renders :name placeholders into positional binds and guarantees a row
// cap: the statement's last LIMIT — literal or parameter-bound — is clamped to
// [1, max]; absent any LIMIT, the default is appended. Subquery limits before
// the last one are template-authored and left untouched.
func (b *Bounder) Bound(t *domain.Template, params domain.ExtractedParams) (domain.BoundedStatement, error) {
	rendered, args, err := render(t.SQLStructure, params)
	if err != nil {
		return domain.BoundedStatement{}, err
	}
	rendered = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rendered), ";"))

	rowLimit := b.DefaultRowLimit

	locs := limitClauseRe.FindAllStringSubmatchIndex(rendered, -1)
	switch {
	case len(locs) == 0:
		rendered = rendered + fmt.Sprintf(" LIMIT %d", b.DefaultRowLimit)

	default:
		// The last LIMIT is the outer statement's cap.
		loc := locs[len(locs)-1]
		if val := rendered[loc[2]:loc[3]]; val == "?" {
			argIdx := strings.Count(rendered[:loc[3]], "?") - 1
			if argIdx < 0 || argIdx >= len(args) {
				return domain.BoundedStatement{}, domain.ErrExecution("template %s: cannot locate bound LIMIT argument", t.ID)
			}
			n, ok := asInt(args[argIdx])
			if !ok {
				return domain.BoundedStatement{}, domain.ErrExecution("template %s: bound LIMIT is not an integer", t.ID)
			}
			rowLimit = b.clamp(n)
			args[argIdx] = int64(rowLimit)
		} else {
			n, _ := strconv.Atoi(val)
			rowLimit = b.clamp(n)
			rendered = rendered[:loc[0]] + fmt.Sprintf("LIMIT %d", rowLimit) + rendered[loc[1]:]
		}
	}

	return domain.BoundedStatement{
		SQL:       rendered,
		Args:      args,
		RowLimit:  rowLimit,
		TimeoutMs: b.TimeoutMs,
	}, nil
}

func (b *Bounder) clamp(n int) int {
	if n < 1 {
		return 1
	}
	if n > b.MaxRowLimit {
		return b.MaxRowLimit
	}
	return n
}

// render replaces each :name placeholder with a positional bind and collects
// the argument values in appearance order. Placeholders may repeat.
func render(sqlStructure string, params domain.ExtractedParams) (string, []interface{}, error) {
	var missing string
	args := make([]interface{}, 0, len(params))
	rendered := namedPlaceholderRe.ReplaceAllStringFunc(sqlStructure, func(m string) string {
		sub := namedPlaceholderRe.FindStringSubmatch(m)
		name := sub[2]
		v, ok := params[name]
		if !ok {
			missing = name
			return m
		}
		args = append(args, v.Typed)
		return sub[1] + "?"
	})
	if missing != "" {
		return "", nil, domain.ErrExecution("no value bound for placeholder :%s", missing)
	}
	return rendered, args, nil
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
