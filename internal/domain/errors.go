// Package domain defines core types, interfaces, and errors for the query service.
package domain

import "fmt"

// CatalogError indicates the template catalog failed validation at load time.
// It is startup-fatal: a catalog that fails to load is never installed.
type CatalogError struct {
	Message string
}

func (e *CatalogError) Error() string { return e.Message }

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AmbiguousError indicates the classifier found two or more templates whose
// scores are too close to pick one. Options carries the candidate template ids.
type AmbiguousError struct {
	Options []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("question matches %d templates equally well", len(e.Options))
}

// UnmatchedError indicates no template scored above the confidence threshold.
type UnmatchedError struct {
	BestScore float64
}

func (e *UnmatchedError) Error() string { return "no template matches the question" }

// MissingParametersError indicates required template parameters could not be
// resolved from the question or conversational context.
type MissingParametersError struct {
	TemplateID string
	Missing    []string
}

func (e *MissingParametersError) Error() string {
	return fmt.Sprintf("missing required parameters: %v", e.Missing)
}

// ViolationKind distinguishes the three independent safety checks.
type ViolationKind string

const (
	ViolationWhitelist      ViolationKind = "whitelist"
	ViolationKeyword        ViolationKind = "keyword"
	ViolationParameterRange ViolationKind = "parameter_range"
)

// SafetyViolationError indicates a safety validator rejected the request.
// Detail may reference SQL internals and must only ever reach the audit
// record, never the end user.
type SafetyViolationError struct {
	Kind   ViolationKind
	Detail string
}

func (e *SafetyViolationError) Error() string {
	return fmt.Sprintf("safety violation (%s): %s", e.Kind, e.Detail)
}

// RateLimitedError indicates the per-identity token bucket is empty.
type RateLimitedError struct {
	RetryAfterMs int64
}

func (e *RateLimitedError) Error() string { return "rate limit exceeded" }

// ExecutionTimeoutError indicates the bounded statement hit its wall-clock
// deadline and was cancelled.
type ExecutionTimeoutError struct {
	TimeoutMs int64
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("query cancelled after %dms", e.TimeoutMs)
}

// ExecutionError indicates the database rejected or failed the statement.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }

// AuditWriteError indicates the audit store was unavailable. Non-fatal: the
// orchestrator logs it and still completes the user-facing response.
type AuditWriteError struct {
	Message string
}

func (e *AuditWriteError) Error() string { return e.Message }

// ErrCatalog creates a CatalogError with a formatted message.
func ErrCatalog(format string, args ...interface{}) *CatalogError {
	return &CatalogError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrViolation creates a SafetyViolationError with a formatted detail message.
func ErrViolation(kind ViolationKind, format string, args ...interface{}) *SafetyViolationError {
	return &SafetyViolationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ErrExecution creates an ExecutionError with a formatted message.
func ErrExecution(format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...)}
}
