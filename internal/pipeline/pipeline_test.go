package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querychat/internal/catalog"
	"querychat/internal/classify"
	"querychat/internal/convo"
	"querychat/internal/domain"
	"querychat/internal/engine"
	"querychat/internal/extract"
	"querychat/internal/ratelimit"
)

// Wednesday, 20 March 2024.
var testNow = time.Date(2024, time.March, 20, 15, 0, 0, 0, time.UTC)

// === Fakes ===

type fakeExecutor struct {
	rows  *domain.Rows
	err   error
	calls []domain.BoundedStatement
}

func (f *fakeExecutor) Execute(_ context.Context, stmt domain.BoundedStatement) (*domain.Rows, error) {
	f.calls = append(f.calls, stmt)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

type captureRecorder struct {
	records []*domain.ExecutionRecord
}

func (c *captureRecorder) Record(_ context.Context, rec *domain.ExecutionRecord) {
	c.records = append(c.records, rec)
}

// === Fixture ===

type fixture struct {
	svc      *Service
	executor *fakeExecutor
	recorder *captureRecorder
	history  *convo.Manager
	catalogs *catalog.Store
}

func salesTemplate() domain.Template {
	return domain.Template{
		ID:          "sales_by_date_range",
		Description: "Total revenue per day",
		Keywords:    []string{"sales", "revenue"},
		SQLStructure: `SELECT order_date, SUM(revenue) AS total_revenue
FROM sales
WHERE order_date BETWEEN :start_date AND :end_date
GROUP BY order_date
ORDER BY order_date`,
		Parameters: []domain.Parameter{
			{Name: "start_date", Kind: domain.KindDate, Required: true},
			{Name: "end_date", Kind: domain.KindDate, Required: true},
		},
		WhitelistedTables:  []string{"sales"},
		WhitelistedColumns: []string{"order_date", "revenue", "total_revenue"},
		ChartHint:          "line",
		Examples: []string{
			"What were sales last week?",
			"Show me revenue for last month",
		},
	}
}

func visitorsTemplate() domain.Template {
	return domain.Template{
		ID:           "daily_visitors",
		Description:  "Site visitors per day",
		Keywords:     []string{"visitors", "traffic"},
		SQLStructure: "SELECT visit_date, SUM(visitors) AS total_visitors FROM traffic WHERE visit_date BETWEEN :start_date AND :end_date GROUP BY visit_date",
		Parameters: []domain.Parameter{
			{Name: "start_date", Kind: domain.KindDate, Required: true},
			{Name: "end_date", Kind: domain.KindDate, Required: true},
		},
		WhitelistedTables:  []string{"traffic"},
		WhitelistedColumns: []string{"visit_date", "visitors", "total_visitors"},
		ChartHint:          "line",
		Examples:           []string{"How many visitors did we get last week?"},
	}
}

func newFixture(t *testing.T, templates ...domain.Template) *fixture {
	t.Helper()
	if len(templates) == 0 {
		templates = []domain.Template{salesTemplate(), visitorsTemplate()}
	}
	cat, err := catalog.New(templates)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(testNow)
	history := convo.NewManager(30*time.Minute, 5)
	t.Cleanup(history.Stop)

	executor := &fakeExecutor{rows: &domain.Rows{
		Columns: []string{"order_date", "total_revenue"},
		Rows: [][]interface{}{
			{"2024-03-13", 1200.50},
			{"2024-03-14", 980.00},
		},
	}}
	recorder := &captureRecorder{}
	catalogs := catalog.NewStore(cat)

	svc := New(Deps{
		Catalogs:   catalogs,
		Classifier: classify.New(0.3, 0.1),
		Extractor:  extract.New(clock),
		Bounder:    &engine.Bounder{DefaultRowLimit: 100, MaxRowLimit: 1000, TimeoutMs: 30000},
		Executor:   executor,
		History:    history,
		Limiter:    ratelimit.New(ratelimit.Config{Capacity: 10, Interval: time.Minute}, clock),
		Recorder:   recorder,
		Clock:      clock,
		Logger:     slog.New(slog.DiscardHandler),
	})

	return &fixture{svc: svc, executor: executor, recorder: recorder, history: history, catalogs: catalogs}
}

func ask(f *fixture, text string) domain.Response {
	return f.svc.Ask(context.Background(), domain.Request{
		QueryText: text,
		UserID:    "alice",
		SessionID: "s1",
	})
}

// === Scenarios ===

func TestAskAnsweredEndToEnd(t *testing.T) {
	f := newFixture(t)

	resp := ask(f, "What were sales last week?")

	assert.Equal(t, domain.StatusAnswered, resp.Status)
	assert.Equal(t, "sales_by_date_range", resp.TemplateID)
	assert.Equal(t, 2, resp.RowCount)
	assert.Contains(t, resp.Citation, "Source: sales")
	assert.Contains(t, resp.Citation, "Date range: 2024-03-13 to 2024-03-19")
	assert.Contains(t, resp.Citation, "2 record(s)")
	require.NotNil(t, resp.Chart)
	assert.Equal(t, "line", resp.Chart.Type)

	// The executed statement is bound, capped, and carries the resolved dates.
	require.Len(t, f.executor.calls, 1)
	stmt := f.executor.calls[0]
	assert.Equal(t, []interface{}{"2024-03-13", "2024-03-19"}, stmt.Args)
	assert.Equal(t, 100, stmt.RowLimit)
	assert.NotContains(t, stmt.SQL, ":start_date")

	// Exactly one audit record, with full detail.
	require.Len(t, f.recorder.records, 1)
	rec := f.recorder.records[0]
	assert.Equal(t, domain.OutcomeSuccess, rec.Outcome)
	assert.Equal(t, "sales_by_date_range", rec.SelectedTemplateID)
	assert.Equal(t, "What were sales last week?", rec.RawQuery)
	assert.Equal(t, 2, rec.RowCount)
	assert.NotEmpty(t, rec.ID)
}

func TestAskNoMatchListsTemplates(t *testing.T) {
	f := newFixture(t)

	resp := ask(f, "Tell me a joke about penguins")

	assert.Equal(t, domain.StatusNoMatch, resp.Status)
	require.Len(t, resp.AvailableTemplates, 2)
	assert.Equal(t, "sales_by_date_range", resp.AvailableTemplates[0].ID)

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, domain.OutcomeRejected, f.recorder.records[0].Outcome)
	assert.Contains(t, f.recorder.records[0].RejectionReason, "classification_unmatched")
	assert.Empty(t, f.executor.calls)
}

func TestAskAmbiguousAsksForClarification(t *testing.T) {
	shared := salesTemplate()
	twin := salesTemplate()
	twin.ID = "sales_twin"

	f := newFixture(t, shared, twin)
	resp := ask(f, "What were sales last week?")

	assert.Equal(t, domain.StatusClarification, resp.Status)
	assert.Equal(t, "ambiguous", resp.Reason)
	assert.Equal(t, []string{"sales_by_date_range", "sales_twin"}, resp.Options)

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, domain.OutcomeRejected, f.recorder.records[0].Outcome)
	assert.Empty(t, f.executor.calls)
}

func TestAskMissingParametersLeavesContextUntouched(t *testing.T) {
	f := newFixture(t)

	resp := ask(f, "Show me revenue numbers for sales")

	assert.Equal(t, domain.StatusClarification, resp.Status)
	assert.Equal(t, "missing_parameters", resp.Reason)
	assert.Equal(t, []string{"start_date", "end_date"}, resp.MissingFields)
	assert.Empty(t, f.executor.calls)

	// A clarification round must not pollute the session context.
	_, ok := f.history.Last("alice/s1")
	assert.False(t, ok)

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, domain.OutcomeRejected, f.recorder.records[0].Outcome)
	assert.Contains(t, f.recorder.records[0].RejectionReason, "missing_parameters")
}

func TestAskFollowUpReusesPreviousTemplate(t *testing.T) {
	f := newFixture(t)

	first := ask(f, "What were sales last week?")
	require.Equal(t, domain.StatusAnswered, first.Status)

	// "yesterday" alone classifies to nothing; the follow-up cue plus the
	// session history select the previous template.
	second := ask(f, "What about yesterday?")
	assert.Equal(t, domain.StatusAnswered, second.Status)
	assert.Equal(t, "sales_by_date_range", second.TemplateID)

	require.Len(t, f.executor.calls, 2)
	assert.Equal(t, []interface{}{"2024-03-19", "2024-03-19"}, f.executor.calls[1].Args)

	require.Len(t, f.recorder.records, 2)
	assert.Equal(t, domain.OutcomeSuccess, f.recorder.records[1].Outcome)
	// The carried-over resolution is recorded at full confidence.
	assert.Equal(t, 1.0, f.recorder.records[1].Confidence)
}

func TestAskFollowUpWithoutHistoryFallsThrough(t *testing.T) {
	f := newFixture(t)

	resp := ask(f, "What about something else entirely?")
	assert.Equal(t, domain.StatusNoMatch, resp.Status)
}

func TestAskRateLimitedFailsClosed(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 10; i++ {
		resp := ask(f, "What were sales last week?")
		require.Equal(t, domain.StatusAnswered, resp.Status, "request %d", i+1)
	}

	resp := ask(f, "What were sales last week?")
	assert.Equal(t, domain.StatusRateLimited, resp.Status)
	assert.Greater(t, resp.RetryAfterMs, int64(0))

	// The denied request never reached the executor but was still audited.
	assert.Len(t, f.executor.calls, 10)
	require.Len(t, f.recorder.records, 11)
	last := f.recorder.records[10]
	assert.Equal(t, domain.OutcomeRejected, last.Outcome)
	assert.Equal(t, "rate_limited", last.RejectionReason)
}

func TestAskRejectsMutatingRequestText(t *testing.T) {
	f := newFixture(t)

	resp := ask(f, "Delete all sales records")

	assert.Equal(t, domain.StatusRejected, resp.Status)
	assert.Empty(t, f.executor.calls)

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, domain.OutcomeRejected, f.recorder.records[0].Outcome)
	assert.Contains(t, f.recorder.records[0].RejectionReason, "denied keyword")
}

func TestAskRejectsTemplateOutsideColumnWhitelist(t *testing.T) {
	bad := salesTemplate()
	bad.SQLStructure = `SELECT order_date, credit_card FROM sales WHERE order_date BETWEEN :start_date AND :end_date`

	f := newFixture(t, bad)
	resp := ask(f, "What were sales last week?")

	assert.Equal(t, domain.StatusRejected, resp.Status)
	// The user-facing message never leaks identifiers.
	assert.NotContains(t, resp.UserMessage, "credit_card")
	assert.NotContains(t, resp.UserMessage, "sales")
	assert.Empty(t, f.executor.calls)

	// The audit record keeps the unsanitized reason.
	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, domain.OutcomeRejected, f.recorder.records[0].Outcome)
	assert.Contains(t, f.recorder.records[0].RejectionReason, "credit_card")
}

func TestAskRejectsCorruptedTemplateSQL(t *testing.T) {
	bad := salesTemplate()
	bad.SQLStructure = `SELECT order_date FROM sales WHERE order_date BETWEEN :start_date AND :end_date -- drop soon`
	bad.WhitelistedColumns = append(bad.WhitelistedColumns, "drop", "soon")

	f := newFixture(t, bad)
	resp := ask(f, "What were sales last week?")

	assert.Equal(t, domain.StatusRejected, resp.Status)
	assert.Empty(t, f.executor.calls)
}

func TestAskExecutionTimeout(t *testing.T) {
	f := newFixture(t)
	f.executor.err = &domain.ExecutionTimeoutError{TimeoutMs: 30000}

	resp := ask(f, "What were sales last week?")

	assert.Equal(t, domain.StatusError, resp.Status)
	assert.Contains(t, resp.UserMessage, "took too long")

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, domain.OutcomeError, f.recorder.records[0].Outcome)

	// A failed run must not update conversational context.
	_, ok := f.history.Last("alice/s1")
	assert.False(t, ok)
}

func TestAskExecutionErrorIsSanitized(t *testing.T) {
	f := newFixture(t)
	f.executor.err = errors.New(`table "sales" has gone missing`)

	resp := ask(f, "What were sales last week?")

	assert.Equal(t, domain.StatusError, resp.Status)
	assert.NotContains(t, resp.UserMessage, "sales")

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, domain.OutcomeError, f.recorder.records[0].Outcome)
	assert.Contains(t, f.recorder.records[0].RejectionReason, "gone missing")
}

func TestAskWritesExactlyOneRecordPerRequest(t *testing.T) {
	f := newFixture(t)

	questions := []string{
		"What were sales last week?",        // answered
		"Tell me a joke about penguins",     // no match
		"Show me revenue numbers for sales", // missing parameters
		"What about yesterday?",             // follow-up answered
	}
	for _, q := range questions {
		ask(f, q)
	}

	assert.Len(t, f.recorder.records, len(questions))
}
