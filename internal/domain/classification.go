package domain

// CandidateMatch scores one template against the user's question.
type CandidateMatch struct {
	TemplateID      string
	Confidence      float64 // in [0, 1]
	MatchedKeywords []string
}

// Outcome tags the result of a classification attempt. The trichotomy is
// deliberate: ambiguous and unmatched require different user responses
// (clarification vs. template-list fallback) and must not be collapsed.
type Outcome string

const (
	OutcomeResolved  Outcome = "resolved"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeUnmatched Outcome = "unmatched"
)

// Classification is the full result of one classification attempt:
// ranked candidates plus the tagged outcome for the top of the ranking.
type Classification struct {
	Outcome    Outcome
	Candidates []CandidateMatch // highest confidence first
}

// Best returns the top-ranked candidate, or nil when there are none.
func (c *Classification) Best() *CandidateMatch {
	if len(c.Candidates) == 0 {
		return nil
	}
	return &c.Candidates[0]
}
