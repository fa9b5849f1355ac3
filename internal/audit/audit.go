// Package audit persists the append-only record of every request: inputs,
// decisions, and outcome. Audit failures are retried briefly and then
// logged — they never block the user-facing response.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"querychat/internal/domain"
)

// SQLiteRepository stores execution records in the SQLite audit database.
// Writes go through the single-connection write pool; listings use the read
// pool.
type SQLiteRepository struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewSQLiteRepository wraps an open write/read pool pair.
func NewSQLiteRepository(writeDB, readDB *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{writeDB: writeDB, readDB: readDB}
}

// Insert appends one execution record. Records are never updated or deleted
// by the core; retention is an external concern.
func (r *SQLiteRepository) Insert(ctx context.Context, rec *domain.ExecutionRecord) error {
	paramsJSON, err := json.Marshal(rec.Parameters)
	if err != nil {
		return &domain.AuditWriteError{Message: "marshal parameters: " + err.Error()}
	}
	_, err = r.writeDB.ExecContext(ctx, `
		INSERT INTO execution_records (
			id, created_at, user_id, session_id, raw_query,
			selected_template_id, confidence, parameters_json,
			duration_ms, row_count, outcome, rejection_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UTC(), rec.UserID, rec.SessionID, rec.RawQuery,
		rec.SelectedTemplateID, rec.Confidence, string(paramsJSON),
		rec.ExecutionDuration.Milliseconds(), rec.RowCount, string(rec.Outcome), rec.RejectionReason,
	)
	if err != nil {
		return &domain.AuditWriteError{Message: err.Error()}
	}
	return nil
}

// List returns records matching the filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter domain.RecordFilter) ([]domain.ExecutionRecord, error) {
	query := `
		SELECT id, created_at, user_id, session_id, raw_query,
		       selected_template_id, confidence, parameters_json,
		       duration_ms, row_count, outcome, rejection_reason
		FROM execution_records
		WHERE (? = '' OR user_id = ?)
		  AND (? = '' OR outcome = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.readDB.QueryContext(ctx, query,
		filter.UserID, filter.UserID,
		string(filter.Outcome), string(filter.Outcome),
		limit, filter.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var paramsJSON, outcome string
		var durationMs int64
		if err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.UserID, &rec.SessionID, &rec.RawQuery,
			&rec.SelectedTemplateID, &rec.Confidence, &paramsJSON,
			&durationMs, &rec.RowCount, &outcome, &rec.RejectionReason,
		); err != nil {
			return nil, err
		}
		rec.ExecutionDuration = time.Duration(durationMs) * time.Millisecond
		rec.Outcome = domain.RecordOutcome(outcome)
		if paramsJSON != "" {
			_ = json.Unmarshal([]byte(paramsJSON), &rec.Parameters)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Recorder writes execution records with a short retry on transient storage
// failure. A record that still cannot be written is logged and dropped; the
// pipeline completes the user response regardless.
type Recorder struct {
	repo   domain.AuditRepository
	logger *slog.Logger
}

// NewRecorder wraps a repository.
func NewRecorder(repo domain.AuditRepository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record persists one record, retrying transient failures for up to two
// seconds.
func (r *Recorder) Record(ctx context.Context, rec *domain.ExecutionRecord) {
	// The record must outlive the request: a client disconnect cancels the
	// request context, but the write still has to land. Detach from
	// cancellation and give the write its own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	policy := backoff.WithContext(
		backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(2*time.Second)), ctx)

	err := backoff.Retry(func() error {
		return r.repo.Insert(ctx, rec)
	}, policy)

	if err != nil {
		r.logger.Error("audit write failed",
			"record_id", rec.ID,
			"user_id", rec.UserID,
			"outcome", rec.Outcome,
			"error", err,
		)
	}
}
