// Package classify maps free-text questions onto catalog templates.
//
// Scoring is a pure function over the immutable catalog: token-set similarity
// against each template's few-shot example phrasings, plus a bonus per
// matched declared keyword. Identical inputs always produce identical
// rankings; ties keep catalog declaration order.
package classify

import (
	"sort"
	"strings"
	"unicode"

	"querychat/internal/catalog"
	"querychat/internal/domain"
)

// keywordBonus is added per declared template keyword present in the question.
const keywordBonus = 0.1

// Classifier scores questions against templates using thresholds τ and δ.
type Classifier struct {
	// Tau is the minimum top confidence required to consider a match at all.
	Tau float64
	// Delta is the minimum margin the top candidate needs over the runner-up
	// to resolve unambiguously.
	Delta float64
}

// New creates a classifier with the given thresholds.
func New(tau, delta float64) *Classifier {
	return &Classifier{Tau: tau, Delta: delta}
}

// Classify ranks every catalog template against the question and tags the
// outcome: resolved, ambiguous (top two within δ), or unmatched (top < τ).
func (c *Classifier) Classify(text string, cat *catalog.Catalog) domain.Classification {
	questionTokens := Tokenize(text)

	candidates := make([]domain.CandidateMatch, 0, cat.Len())
	for _, t := range cat.All() {
		score, matched := scoreTemplate(questionTokens, &t)
		candidates = append(candidates, domain.CandidateMatch{
			TemplateID:      t.ID,
			Confidence:      score,
			MatchedKeywords: matched,
		})
	}

	// Stable sort keeps declaration order for equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	outcome := domain.OutcomeUnmatched
	if len(candidates) > 0 && candidates[0].Confidence >= c.Tau {
		outcome = domain.OutcomeResolved
		if len(candidates) > 1 && candidates[0].Confidence-candidates[1].Confidence < c.Delta {
			outcome = domain.OutcomeAmbiguous
		}
	}

	return domain.Classification{Outcome: outcome, Candidates: candidates}
}

// scoreTemplate computes the confidence for one template: the best token-set
// similarity across its example phrasings, boosted by declared keywords found
// in the question, capped at 1.
func scoreTemplate(questionTokens []string, t *domain.Template) (float64, []string) {
	questionSet := toSet(questionTokens)

	var best float64
	for _, example := range t.Examples {
		if sim := similarity(questionSet, toSet(Tokenize(example))); sim > best {
			best = sim
		}
	}

	var matched []string
	for _, kw := range t.Keywords {
		if containsAll(questionSet, Tokenize(kw)) {
			matched = append(matched, kw)
		}
	}

	score := best + float64(len(matched))*keywordBonus
	if score > 1 {
		score = 1
	}
	return score, matched
}

// similarity is the Dice coefficient over two token sets.
func similarity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	for tok := range a {
		if b[tok] {
			common++
		}
	}
	return 2 * float64(common) / float64(len(a)+len(b))
}

func containsAll(set map[string]bool, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if !set[tok] {
			return false
		}
	}
	return true
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	return set
}

// stopwords are dropped before scoring: they carry no intent signal and
// inflate similarity between unrelated questions.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "did": true, "do": true,
	"for": true, "how": true, "in": true, "is": true, "me": true, "my": true,
	"of": true, "on": true, "our": true, "show": true, "the": true,
	"was": true, "we": true, "were": true, "what": true, "whats": true,
}

// Tokenize lowercases the text, splits on non-alphanumeric runs, and drops
// stopwords.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}
