package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"querychat/internal/domain"
)

// ReadOnlyDSN forces access_mode=read_only onto a file-backed DuckDB DSN.
// An empty DSN opens an in-memory database, which cannot be read-only, and
// is returned unchanged; so is a DSN that already pins an access_mode.
func ReadOnlyDSN(dsn string) string {
	if dsn == "" || strings.Contains(dsn, "access_mode=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "access_mode=read_only"
}

// DuckDBExecutor runs bounded statements against a DuckDB database through
// database/sql. The pool must be opened read-only by the caller; this
// executor adds the wall-clock timeout and cancellation propagation.
type DuckDBExecutor struct {
	db *sql.DB
}

// NewDuckDBExecutor wraps an open DuckDB pool.
func NewDuckDBExecutor(db *sql.DB) *DuckDBExecutor {
	return &DuckDBExecutor{db: db}
}

// Execute runs the statement under its timeout. On deadline the in-flight
// query is cancelled through the driver, not abandoned; the outcome is an
// ExecutionTimeoutError, distinct from data errors.
func (e *DuckDBExecutor) Execute(ctx context.Context, stmt domain.BoundedStatement) (*domain.Rows, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(stmt.TimeoutMs)*time.Millisecond)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, classifyExecErr(ctx, stmt, err)
	}
	defer rows.Close() //nolint:errcheck

	result, err := scanRows(rows)
	if err != nil {
		return nil, classifyExecErr(ctx, stmt, err)
	}
	return result, nil
}

func classifyExecErr(ctx context.Context, stmt domain.BoundedStatement, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.ExecutionTimeoutError{TimeoutMs: stmt.TimeoutMs}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return domain.ErrExecution("query failed: %v", err)
}

// scanRows materializes a *sql.Rows into columns and positional rows.
// Byte slices become strings for JSON serialization.
func scanRows(rows *sql.Rows) (*domain.Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var resultRows [][]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]interface{}, len(vals))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.Rows{Columns: cols, Rows: resultRows}, nil
}
