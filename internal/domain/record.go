package domain

import "time"

// RecordOutcome classifies how a request terminated.
type RecordOutcome string

const (
	OutcomeSuccess  RecordOutcome = "success"
	OutcomeRejected RecordOutcome = "rejected"
	OutcomeError    RecordOutcome = "error"
)

// ExecutionRecord is the append-only audit entity written exactly once per
// request, success or failure. Unlike user-facing responses, it carries full
// detail: raw question, selected template, parameters, and the unsanitized
// rejection or error reason.
type ExecutionRecord struct {
	ID                 string
	Timestamp          time.Time
	UserID             string
	SessionID          string
	RawQuery           string
	SelectedTemplateID string
	Confidence         float64
	Parameters         map[string]interface{}
	ExecutionDuration  time.Duration
	RowCount           int
	Outcome            RecordOutcome
	RejectionReason    string
}

// RecordFilter narrows an audit listing.
type RecordFilter struct {
	UserID  string
	Outcome RecordOutcome
	Limit   int
	Offset  int
}
