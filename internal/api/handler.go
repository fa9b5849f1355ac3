// Package api exposes the query pipeline over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"querychat/internal/catalog"
	"querychat/internal/domain"
	"querychat/internal/middleware"
	"querychat/internal/pipeline"
)

// Handler serves the query API.
type Handler struct {
	pipeline *pipeline.Service
	catalogs *catalog.Store
	audit    domain.AuditRepository
	reload   func() (*catalog.Catalog, error)
	logger   *slog.Logger
}

// New creates the handler. reload rebuilds the catalog from its source and is
// called by the reload endpoint; the returned catalog is installed atomically.
func New(p *pipeline.Service, catalogs *catalog.Store, audit domain.AuditRepository, reload func() (*catalog.Catalog, error), logger *slog.Logger) *Handler {
	return &Handler{pipeline: p, catalogs: catalogs, audit: audit, reload: reload, logger: logger}
}

// Router builds the chi router with the shared middleware stack.
func (h *Handler) Router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
	}))

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", h.ask)
		r.Get("/templates", h.listTemplates)
		r.Get("/audit", h.listAudit)
		r.Post("/catalog/reload", h.reloadCatalog)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ask(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.QueryText) == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "queryText and userId are required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = req.UserID
	}

	resp := h.pipeline.Ask(r.Context(), req)
	writeJSON(w, statusCode(resp.Status), resp)
}

// statusCode maps the response union's discriminator to an HTTP status. All
// pipeline outcomes are valid API responses; only rate limiting and internal
// failures leave the 2xx range.
func statusCode(s domain.ResponseStatus) int {
	switch s {
	case domain.StatusRateLimited:
		return http.StatusTooManyRequests
	case domain.StatusError:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

func (h *Handler) listTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"templates": h.catalogs.Current().Summaries(),
	})
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	filter := domain.RecordFilter{
		UserID:  r.URL.Query().Get("userId"),
		Outcome: domain.RecordOutcome(r.URL.Query().Get("outcome")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	records, err := h.audit.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("audit list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "audit store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": auditViews(records)})
}

func (h *Handler) reloadCatalog(w http.ResponseWriter, r *http.Request) {
	fresh, err := h.reload()
	if err != nil {
		// The prior catalog stays installed; surface the load error.
		h.logger.Error("catalog reload failed", "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.catalogs.Replace(fresh)
	h.logger.Info("catalog reloaded", "templates", fresh.Len(),
		"request_id", middleware.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": fresh.Len()})
}

// auditView is the wire form of an execution record.
type auditView struct {
	ID              string                 `json:"id"`
	Timestamp       string                 `json:"timestamp"`
	UserID          string                 `json:"userId"`
	SessionID       string                 `json:"sessionId"`
	RawQuery        string                 `json:"rawQuery"`
	TemplateID      string                 `json:"templateId,omitempty"`
	Confidence      float64                `json:"confidence"`
	Parameters      map[string]interface{} `json:"parameters,omitempty"`
	DurationMs      int64                  `json:"durationMs"`
	RowCount        int                    `json:"rowCount"`
	Outcome         string                 `json:"outcome"`
	RejectionReason string                 `json:"rejectionReason,omitempty"`
}

func auditViews(records []domain.ExecutionRecord) []auditView {
	out := make([]auditView, len(records))
	for i, rec := range records {
		out[i] = auditView{
			ID:              rec.ID,
			Timestamp:       rec.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			UserID:          rec.UserID,
			SessionID:       rec.SessionID,
			RawQuery:        rec.RawQuery,
			TemplateID:      rec.SelectedTemplateID,
			Confidence:      rec.Confidence,
			Parameters:      rec.Parameters,
			DurationMs:      rec.ExecutionDuration.Milliseconds(),
			RowCount:        rec.RowCount,
			Outcome:         string(rec.Outcome),
			RejectionReason: rec.RejectionReason,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"code": status, "message": msg})
}
