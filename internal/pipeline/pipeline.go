// Package pipeline sequences one request through the template-constrained
// query lifecycle: rate check, classification, parameter extraction, safety
// validation, bounded execution, and audit.
//
// There is no path by which unvetted SQL reaches the database: the only SQL
// source is the catalog, and every statement passes the three safety
// validators and the limit/timeout enforcer first. Every request writes
// exactly one execution record, whatever branch it terminates on.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"querychat/internal/catalog"
	"querychat/internal/classify"
	"querychat/internal/convo"
	"querychat/internal/domain"
	"querychat/internal/engine"
	"querychat/internal/extract"
	"querychat/internal/format"
	"querychat/internal/ratelimit"
	"querychat/internal/safety"
)

// Recorder is the pipeline's view of the audit recorder: fire-and-log,
// never failing the request.
type Recorder interface {
	Record(ctx context.Context, rec *domain.ExecutionRecord)
}

// Sanitized user-facing messages. Internals (SQL text, table or column
// names, database errors) go only to the audit record.
const (
	msgRejected    = "This question can't be answered within the approved query set."
	msgExecFailed  = "Something went wrong while running your query. Please try again."
	msgExecTimeout = "Your query took too long and was cancelled. Try narrowing the date range."
)

// Service orchestrates the request lifecycle.
type Service struct {
	catalogs   *catalog.Store
	classifier *classify.Classifier
	extractor  *extract.Extractor
	whitelist  safety.WhitelistValidator
	keywords   safety.KeywordBlocker
	params     safety.ParameterValidator
	bounder    *engine.Bounder
	executor   domain.Executor
	history    *convo.Manager
	limiter    *ratelimit.Limiter
	recorder   Recorder
	clock      clockwork.Clock
	logger     *slog.Logger
}

// Deps carries the collaborators the service sequences.
type Deps struct {
	Catalogs   *catalog.Store
	Classifier *classify.Classifier
	Extractor  *extract.Extractor
	Bounder    *engine.Bounder
	Executor   domain.Executor
	History    *convo.Manager
	Limiter    *ratelimit.Limiter
	Recorder   Recorder
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

// New wires a pipeline service.
func New(d Deps) *Service {
	return &Service{
		catalogs:   d.Catalogs,
		classifier: d.Classifier,
		extractor:  d.Extractor,
		bounder:    d.Bounder,
		executor:   d.Executor,
		history:    d.History,
		limiter:    d.Limiter,
		recorder:   d.Recorder,
		clock:      d.Clock,
		logger:     d.Logger,
	}
}

// state accumulates what the terminal audit record needs as the request
// moves through the stages.
type state struct {
	req        domain.Request
	started    time.Time
	templateID string
	confidence float64
	params     domain.ExtractedParams
	rowCount   int
	duration   time.Duration
}

// Ask runs one request end to end and always returns a response. The
// execution record is written before returning on every branch.
func (s *Service) Ask(ctx context.Context, req domain.Request) domain.Response {
	st := &state{req: req, started: s.clock.Now()}

	// Rate check fails closed: no classification, no extraction, no
	// database access.
	if ok, retryAfter := s.limiter.Allow(req.Identity()); !ok {
		s.finish(ctx, st, domain.OutcomeRejected, "rate_limited")
		return domain.Response{
			Status:       domain.StatusRateLimited,
			RetryAfterMs: retryAfter.Milliseconds(),
		}
	}

	// Overtly mutating requests are turned away before classification.
	if err := s.keywords.ScreenInput(req.QueryText); err != nil {
		return s.reject(ctx, st, err)
	}

	cat := s.catalogs.Current()
	cls := s.classifier.Classify(req.QueryText, cat)

	tmpl, resp := s.selectTemplate(ctx, st, cat, cls)
	if tmpl == nil {
		return resp
	}
	st.templateID = tmpl.ID

	extracted, err := s.extractor.Extract(req.QueryText, tmpl, req.ContextKey(), s.history)
	if err != nil {
		var missing *domain.MissingParametersError
		if errors.As(err, &missing) {
			// Context is deliberately not updated for partial results.
			s.finish(ctx, st, domain.OutcomeRejected, "missing_parameters: "+joinNames(missing.Missing))
			return domain.Response{
				Status:        domain.StatusClarification,
				Reason:        "missing_parameters",
				MissingFields: missing.Missing,
			}
		}
		s.finish(ctx, st, domain.OutcomeError, err.Error())
		return domain.Response{Status: domain.StatusError, UserMessage: msgExecFailed}
	}
	st.params = extracted

	return s.validateAndExecute(ctx, st, tmpl, extracted)
}

// selectTemplate resolves the classification outcome to a single template,
// or produces the terminal clarification / no-match response. Follow-up
// questions that the classifier cannot place reuse the session's previous
// template.
func (s *Service) selectTemplate(ctx context.Context, st *state, cat *catalog.Catalog, cls domain.Classification) (*domain.Template, domain.Response) {
	if best := cls.Best(); best != nil {
		st.confidence = best.Confidence
	}

	if cls.Outcome != domain.OutcomeResolved && extract.IsFollowUp(st.req.QueryText) {
		if last, ok := s.history.Last(st.req.ContextKey()); ok {
			if tmpl, err := cat.Lookup(last.TemplateID); err == nil {
				st.confidence = 1 // carried over from the prior resolution
				return tmpl, domain.Response{}
			}
		}
	}

	switch cls.Outcome {
	case domain.OutcomeResolved:
		tmpl, err := cat.Lookup(cls.Best().TemplateID)
		if err != nil {
			// Catalog changed between classify and lookup; treat as no match.
			s.finish(ctx, st, domain.OutcomeRejected, "classification_unmatched: "+err.Error())
			return nil, domain.Response{Status: domain.StatusNoMatch, AvailableTemplates: cat.Summaries()}
		}
		return tmpl, domain.Response{}

	case domain.OutcomeAmbiguous:
		options := topOptions(cls.Candidates, 3)
		s.finish(ctx, st, domain.OutcomeRejected, "classification_ambiguous: "+joinNames(options))
		return nil, domain.Response{
			Status:  domain.StatusClarification,
			Reason:  "ambiguous",
			Options: options,
		}

	default: // unmatched
		s.finish(ctx, st, domain.OutcomeRejected, "classification_unmatched")
		return nil, domain.Response{
			Status:             domain.StatusNoMatch,
			AvailableTemplates: cat.Summaries(),
		}
	}
}

// validateAndExecute runs the three safety validators, bounds the statement,
// executes it, and assembles the answered response.
func (s *Service) validateAndExecute(ctx context.Context, st *state, tmpl *domain.Template, extracted domain.ExtractedParams) domain.Response {
	if err := s.whitelist.Check(tmpl); err != nil {
		return s.reject(ctx, st, err)
	}
	if err := s.params.Check(extracted, tmpl); err != nil {
		return s.reject(ctx, st, err)
	}

	stmt, err := s.bounder.Bound(tmpl, extracted)
	if err != nil {
		s.finish(ctx, st, domain.OutcomeError, err.Error())
		return domain.Response{Status: domain.StatusError, UserMessage: msgExecFailed}
	}

	// Defense-in-depth: the statement is template-sourced, but scan it
	// anyway in case the catalog itself was corrupted.
	if err := s.keywords.Check(stmt.SQL); err != nil {
		return s.reject(ctx, st, err)
	}

	execStart := s.clock.Now()
	rows, err := s.executor.Execute(ctx, stmt)
	st.duration = s.clock.Now().Sub(execStart)

	if err != nil {
		var timeout *domain.ExecutionTimeoutError
		switch {
		case errors.As(err, &timeout):
			s.finish(ctx, st, domain.OutcomeError, err.Error())
			return domain.Response{Status: domain.StatusError, UserMessage: msgExecTimeout}
		case errors.Is(err, context.Canceled):
			s.finish(ctx, st, domain.OutcomeError, "request cancelled")
			return domain.Response{Status: domain.StatusError, UserMessage: msgExecFailed}
		default:
			s.finish(ctx, st, domain.OutcomeError, err.Error())
			return domain.Response{Status: domain.StatusError, UserMessage: msgExecFailed}
		}
	}

	st.rowCount = rows.RowCount()

	// Only successful runs update conversational context, in arrival order
	// per session (the manager serializes per key).
	s.history.Record(st.req.ContextKey(), convo.Entry{
		TemplateID: tmpl.ID,
		Parameters: extracted,
		AskedAt:    s.clock.Now(),
	})

	s.finish(ctx, st, domain.OutcomeSuccess, "")

	return domain.Response{
		Status:     domain.StatusAnswered,
		TemplateID: tmpl.ID,
		Text:       format.Summarize(tmpl, rows),
		Rows:       rows.Maps(),
		RowCount:   rows.RowCount(),
		ChartHint:  tmpl.ChartHint,
		Chart:      format.SelectChart(tmpl, rows),
		Citation:   format.Citation(tmpl, extracted, rows.RowCount(), s.clock.Now()),
	}
}

func (s *Service) reject(ctx context.Context, st *state, err error) domain.Response {
	s.logger.Warn("request rejected by safety validation",
		"user_id", st.req.UserID,
		"template_id", st.templateID,
		"error", err,
	)
	s.finish(ctx, st, domain.OutcomeRejected, err.Error())
	// The user message never echoes SQL or table/column names.
	return domain.Response{Status: domain.StatusRejected, UserMessage: msgRejected}
}

// finish writes the single execution record for the request.
func (s *Service) finish(ctx context.Context, st *state, outcome domain.RecordOutcome, reason string) {
	rec := &domain.ExecutionRecord{
		ID:                 uuid.NewString(),
		Timestamp:          st.started,
		UserID:             st.req.UserID,
		SessionID:          st.req.SessionID,
		RawQuery:           st.req.QueryText,
		SelectedTemplateID: st.templateID,
		Confidence:         st.confidence,
		Parameters:         typedOrNil(st.params),
		ExecutionDuration:  st.duration,
		RowCount:           st.rowCount,
		Outcome:            outcome,
		RejectionReason:    reason,
	}
	s.recorder.Record(ctx, rec)
}

func typedOrNil(p domain.ExtractedParams) map[string]interface{} {
	if p == nil {
		return nil
	}
	return p.TypedValues()
}

func topOptions(candidates []domain.CandidateMatch, n int) []string {
	if len(candidates) < n {
		n = len(candidates)
	}
	out := make([]string, 0, n)
	for _, c := range candidates[:n] {
		out = append(out, c.TemplateID)
	}
	return out
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
