// Package config handles application configuration and environment loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for the query service.
type Config struct {
	ListenAddr string // HTTP listen address (default ":8080")
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	// Analytics database (read-only execution surface).
	AnalyticsDSN string // DuckDB DSN; empty opens an in-memory database

	// Audit store (SQLite, append-only).
	AuditDBPath string // path to SQLite audit file (default "querychat_audit.sqlite")

	// Template library.
	TemplateDir string // directory of template YAML files (default "templates")

	// Classification thresholds.
	ConfidenceThreshold float64 // τ: minimum top score to resolve (default 0.3)
	AmbiguityMargin     float64 // δ: minimum margin over the runner-up (default 0.1)

	// Statement bounds.
	DefaultRowLimit int           // LIMIT injected when absent (default 100)
	MaxRowLimit     int           // hard cap on any LIMIT (default 1000)
	QueryTimeout    time.Duration // wall-clock execution budget (default 30s)

	// Rate limiting (token bucket per user).
	RateLimitCapacity int           // bucket capacity (default 10)
	RateLimitInterval time.Duration // full-bucket refill interval (default 1m)

	// Conversational context.
	ContextTTL     time.Duration // session expiry (default 30m)
	ContextHistory int           // resolved parameter sets retained (default 5)

	// CORS
	CORSAllowedOrigins []string // allowed origins (default: ["*"])

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables and applies
// defaults. Call godotenv.Load beforehand if a .env file should participate.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		Env:          os.Getenv("ENV"),
		AnalyticsDSN: os.Getenv("ANALYTICS_DSN"),
		AuditDBPath:  os.Getenv("AUDIT_DB_PATH"),
		TemplateDir:  os.Getenv("TEMPLATE_DIR"),
	}

	if v := os.Getenv("CONFIDENCE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			return nil, fmt.Errorf("CONFIDENCE_THRESHOLD must be a float in (0, 1], got %q", v)
		}
		cfg.ConfidenceThreshold = f
	}
	if v := os.Getenv("AMBIGUITY_MARGIN"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return nil, fmt.Errorf("AMBIGUITY_MARGIN must be a float in [0, 1], got %q", v)
		}
		cfg.AmbiguityMargin = f
	}
	if v := os.Getenv("DEFAULT_ROW_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultRowLimit = n
		}
	}
	if v := os.Getenv("MAX_ROW_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRowLimit = n
		}
	}
	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.QueryTimeout = d
		}
	}
	if v := os.Getenv("RATE_LIMIT_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitCapacity = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RateLimitInterval = d
		}
	}
	if v := os.Getenv("CONTEXT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ContextTTL = d
		}
	}
	if v := os.Getenv("CONTEXT_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ContextHistory = n
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AuditDBPath == "" {
		cfg.AuditDBPath = "querychat_audit.sqlite"
	}
	if cfg.TemplateDir == "" {
		cfg.TemplateDir = "templates"
	}
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 0.3
	}
	if cfg.AmbiguityMargin == 0 {
		cfg.AmbiguityMargin = 0.1
	}
	if cfg.DefaultRowLimit <= 0 {
		cfg.DefaultRowLimit = 100
	}
	if cfg.MaxRowLimit <= 0 {
		cfg.MaxRowLimit = 1000
	}
	if cfg.DefaultRowLimit > cfg.MaxRowLimit {
		return nil, fmt.Errorf("DEFAULT_ROW_LIMIT (%d) must not exceed MAX_ROW_LIMIT (%d)",
			cfg.DefaultRowLimit, cfg.MaxRowLimit)
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if cfg.RateLimitCapacity <= 0 {
		cfg.RateLimitCapacity = 10
	}
	if cfg.RateLimitInterval == 0 {
		cfg.RateLimitInterval = time.Minute
	}
	if cfg.ContextTTL == 0 {
		cfg.ContextTTL = 30 * time.Minute
	}
	if cfg.ContextHistory <= 0 {
		cfg.ContextHistory = 5
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if cfg.AnalyticsDSN == "" {
		cfg.Warnings = append(cfg.Warnings, "ANALYTICS_DSN not set — using an in-memory DuckDB database")
	}

	// Production mode: permissive defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.AnalyticsDSN == "" {
			return nil, fmt.Errorf("ANALYTICS_DSN must be set in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}
