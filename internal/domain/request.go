package domain

// Request is one inbound natural-language question.
type Request struct {
	QueryText string `json:"queryText"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// Identity returns the rate-limit / context key for the request. Sessions
// isolate conversational context; the user is the unit of rate limiting.
func (r Request) Identity() string {
	return r.UserID
}

// ContextKey returns the conversational-context key for the request.
func (r Request) ContextKey() string {
	return r.UserID + "/" + r.SessionID
}

// ResponseStatus enumerates the response union's discriminator.
type ResponseStatus string

const (
	StatusAnswered      ResponseStatus = "answered"
	StatusClarification ResponseStatus = "clarification_needed"
	StatusNoMatch       ResponseStatus = "no_match"
	StatusRejected      ResponseStatus = "rejected"
	StatusRateLimited   ResponseStatus = "rate_limited"
	StatusError         ResponseStatus = "error"
)

// TemplateSummary is the public listing form of a template: id and
// description only, no SQL.
type TemplateSummary struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Chart is the chart-selection payload consumed by the rendering collaborator.
type Chart struct {
	Type   string                   `json:"type"`
	Labels []string                 `json:"labels,omitempty"`
	Series []float64                `json:"series,omitempty"`
	Rows   []map[string]interface{} `json:"rows,omitempty"`
}

// Response is the tagged union returned for every request. Status selects
// which of the optional fields are populated.
type Response struct {
	Status ResponseStatus `json:"status"`

	// answered
	TemplateID string                   `json:"templateId,omitempty"`
	Text       string                   `json:"text,omitempty"`
	Rows       []map[string]interface{} `json:"rows,omitempty"`
	RowCount   int                      `json:"rowCount,omitempty"`
	ChartHint  string                   `json:"chartHint,omitempty"`
	Chart      *Chart                   `json:"chart,omitempty"`
	Citation   string                   `json:"citation,omitempty"`

	// clarification_needed
	Reason        string   `json:"reason,omitempty"` // "ambiguous" | "missing_parameters"
	Options       []string `json:"options,omitempty"`
	MissingFields []string `json:"missingFields,omitempty"`

	// no_match
	AvailableTemplates []TemplateSummary `json:"availableTemplates,omitempty"`

	// rejected / error
	UserMessage string `json:"userMessage,omitempty"`

	// rate_limited
	RetryAfterMs int64 `json:"retryAfterMs,omitempty"`
}
