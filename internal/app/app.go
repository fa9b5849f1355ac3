// Package app provides application-level wiring for the query service.
package app

import (
	"database/sql"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"querychat/internal/audit"
	"querychat/internal/catalog"
	"querychat/internal/classify"
	"querychat/internal/config"
	"querychat/internal/convo"
	"querychat/internal/engine"
	"querychat/internal/extract"
	"querychat/internal/pipeline"
	"querychat/internal/ratelimit"
)

// Deps holds the external dependencies that main() must provide: open
// database handles, config, and the logger.
type Deps struct {
	Cfg         *config.Config
	AnalyticsDB *sql.DB // DuckDB, read-only surface
	AuditWrite  *sql.DB // SQLite write pool
	AuditRead   *sql.DB // SQLite read pool
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Pipeline  *pipeline.Service
	Catalogs  *catalog.Store
	AuditRepo *audit.SQLiteRepository
	History   *convo.Manager
	Limiter   *ratelimit.Limiter
}

// New loads the catalog and wires the pipeline from the provided deps.
func New(deps Deps) (*App, error) {
	cfg := deps.Cfg

	cat, err := catalog.Load(cfg.TemplateDir)
	if err != nil {
		return nil, err
	}
	catalogs := catalog.NewStore(cat)
	deps.Logger.Info("catalog loaded", "templates", cat.Len(), "dir", cfg.TemplateDir)

	auditRepo := audit.NewSQLiteRepository(deps.AuditWrite, deps.AuditRead)
	recorder := audit.NewRecorder(auditRepo, deps.Logger.With("component", "audit"))

	history := convo.NewManager(cfg.ContextTTL, cfg.ContextHistory)
	limiter := ratelimit.New(ratelimit.Config{
		Capacity: cfg.RateLimitCapacity,
		Interval: cfg.RateLimitInterval,
	}, deps.Clock)

	svc := pipeline.New(pipeline.Deps{
		Catalogs:   catalogs,
		Classifier: classify.New(cfg.ConfidenceThreshold, cfg.AmbiguityMargin),
		Extractor:  extract.New(deps.Clock),
		Bounder: &engine.Bounder{
			DefaultRowLimit: cfg.DefaultRowLimit,
			MaxRowLimit:     cfg.MaxRowLimit,
			TimeoutMs:       cfg.QueryTimeout.Milliseconds(),
		},
		Executor: engine.NewDuckDBExecutor(deps.AnalyticsDB),
		History:  history,
		Limiter:  limiter,
		Recorder: recorder,
		Clock:    deps.Clock,
		Logger:   deps.Logger.With("component", "pipeline"),
	})

	return &App{
		Pipeline:  svc,
		Catalogs:  catalogs,
		AuditRepo: auditRepo,
		History:   history,
		Limiter:   limiter,
	}, nil
}
