// Package extract pulls concrete parameter values for a chosen template out
// of the question text and, for follow-up questions, the conversational
// context.
//
// Extraction never invents values for required parameters: anything
// unresolved is reported back so the pipeline can ask the user. Only
// declared-optional parameters may receive template defaults.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"

	"querychat/internal/convo"
	"querychat/internal/domain"
)

// Extractor resolves template parameters from text and context. The clock is
// injected so relative date phrases are deterministic under test.
type Extractor struct {
	clock clockwork.Clock
}

// New creates an extractor using the given clock.
func New(clock clockwork.Clock) *Extractor {
	return &Extractor{clock: clock}
}

var followUpCues = []string{
	"what about", "how about", "and for", "same for", "same period",
	"instead", "compare that", "what if",
}

// IsFollowUp reports whether the text carries a referential cue indicating
// the question builds on the previous one.
func IsFollowUp(text string) bool {
	lower := strings.ToLower(text)
	for _, cue := range followUpCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// Extract resolves every declared parameter of the template. Required
// parameters missing from both the text and (for follow-ups) the context
// yield a MissingParametersError listing the unresolved names.
func (e *Extractor) Extract(text string, tmpl *domain.Template, ctxKey string, history *convo.Manager) (domain.ExtractedParams, error) {
	params := make(domain.ExtractedParams, len(tmpl.Parameters))
	followUp := IsFollowUp(text)

	dateRange, hasDates := resolveDateRange(text, e.clock.Now())

	for _, p := range tmpl.Parameters {
		if v, ok := e.extractOne(text, p, dateRange, hasDates); ok {
			params[p.Name] = v
			continue
		}
		// Follow-up questions may carry a value over from the session's
		// previous resolved parameters.
		if followUp && history != nil {
			if v, ok := history.LastValue(ctxKey, p.Name); ok {
				params[p.Name] = v
				continue
			}
		}
		if !p.Required && p.Default != "" {
			if v, ok := defaultValue(p); ok {
				params[p.Name] = v
			}
		}
	}

	if missing := params.MissingRequired(tmpl); len(missing) > 0 {
		return nil, &domain.MissingParametersError{TemplateID: tmpl.ID, Missing: missing}
	}
	return params, nil
}

func (e *Extractor) extractOne(text string, p domain.Parameter, dates DateRange, hasDates bool) (domain.ExtractedValue, bool) {
	switch p.Kind {
	case domain.KindDate:
		if !hasDates {
			return domain.ExtractedValue{}, false
		}
		d := dates.Start
		if isEndName(p.Name) {
			d = dates.End
		}
		return domain.ExtractedValue{Raw: text, Typed: d.Format(isoDate)}, true

	case domain.KindInteger:
		return extractInteger(text, p)

	case domain.KindEnum:
		return extractEnum(text, p)

	case domain.KindString:
		return extractString(text)
	}
	return domain.ExtractedValue{}, false
}

// isEndName reports whether a date parameter names the end of a range.
func isEndName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "end") || strings.Contains(lower, "until") || strings.HasSuffix(lower, "_to")
}

var topNRe = regexp.MustCompile(`(?i)\b(?:top|best|first|leading|worst|bottom)\s+(\d+)\b`)

// extractInteger recognises "top N" phrasings, then bare integers.
func extractInteger(text string, p domain.Parameter) (domain.ExtractedValue, bool) {
	if m := topNRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return domain.ExtractedValue{Raw: m[0], Typed: n}, true
		}
	}
	// "top products" with no number: a declared default covers it later.
	for _, field := range strings.Fields(text) {
		if n, err := strconv.ParseInt(field, 10, 64); err == nil {
			return domain.ExtractedValue{Raw: field, Typed: n}, true
		}
	}
	_ = p
	return domain.ExtractedValue{}, false
}

// aggregationSynonyms maps question words onto canonical aggregation values.
// Only applied when the canonical value is actually allowed by the parameter.
var aggregationSynonyms = map[string]string{
	"total": "SUM", "sum": "SUM",
	"average": "AVG", "avg": "AVG", "mean": "AVG",
	"count": "COUNT", "how many": "COUNT", "number of": "COUNT",
	"max": "MAX", "maximum": "MAX", "highest": "MAX",
	"min": "MIN", "minimum": "MIN", "lowest": "MIN",
}

func extractEnum(text string, p domain.Parameter) (domain.ExtractedValue, bool) {
	lower := strings.ToLower(text)

	// Literal mention of an allowed value wins.
	for _, allowed := range p.Allowed {
		if containsWord(lower, strings.ToLower(allowed)) {
			return domain.ExtractedValue{Raw: allowed, Typed: allowed}, true
		}
	}

	allowedSet := make(map[string]bool, len(p.Allowed))
	for _, a := range p.Allowed {
		allowedSet[strings.ToUpper(a)] = true
	}
	for phrase, canonical := range aggregationSynonyms {
		if strings.Contains(lower, phrase) && allowedSet[canonical] {
			return domain.ExtractedValue{Raw: phrase, Typed: canonical}, true
		}
	}
	return domain.ExtractedValue{}, false
}

var quotedRe = regexp.MustCompile(`['"]([^'"]{1,64})['"]`)

// extractString only accepts explicitly quoted values; free text is never
// promoted to a string parameter.
func extractString(text string) (domain.ExtractedValue, bool) {
	if m := quotedRe.FindStringSubmatch(text); m != nil {
		return domain.ExtractedValue{Raw: m[0], Typed: m[1]}, true
	}
	return domain.ExtractedValue{}, false
}

func defaultValue(p domain.Parameter) (domain.ExtractedValue, bool) {
	switch p.Kind {
	case domain.KindInteger:
		n, err := strconv.ParseInt(p.Default, 10, 64)
		if err != nil {
			return domain.ExtractedValue{}, false
		}
		return domain.ExtractedValue{Raw: p.Default, Typed: n}, true
	default:
		return domain.ExtractedValue{Raw: p.Default, Typed: p.Default}, true
	}
}

func containsWord(haystack, needle string) bool {
	idx := strings.Index(haystack, needle)
	for idx >= 0 {
		before := idx == 0 || !isWordRune(haystack[idx-1])
		afterIdx := idx + len(needle)
		after := afterIdx >= len(haystack) || !isWordRune(haystack[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(haystack[idx+1:], needle)
		if next < 0 {
			return false
		}
		idx = idx + 1 + next
	}
	return false
}

func isWordRune(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}
