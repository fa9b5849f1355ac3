package domain

import "context"

// Rows is the structured result of a bounded statement.
type Rows struct {
	Columns []string
	Rows    [][]interface{}
}

// RowCount returns the number of data rows.
func (r *Rows) RowCount() int { return len(r.Rows) }

// Maps converts the positional rows to column-keyed maps.
func (r *Rows) Maps() []map[string]interface{} {
	out := make([]map[string]interface{}, len(r.Rows))
	for i, row := range r.Rows {
		m := make(map[string]interface{}, len(r.Columns))
		for j, col := range r.Columns {
			if j < len(row) {
				m[col] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

// BoundedStatement is a statement guaranteed to carry a row cap in
// [1, maxRowLimit] and to execute under a wall-clock timeout.
type BoundedStatement struct {
	SQL       string
	Args      []interface{}
	RowLimit  int
	TimeoutMs int64
}

// Executor is the read-only database execution surface. Implementations must
// honour ctx cancellation by aborting the in-flight query, not abandoning it.
type Executor interface {
	Execute(ctx context.Context, stmt BoundedStatement) (*Rows, error)
}

// AuditRepository persists execution records. Records are append-only; the
// core never mutates or deletes them.
type AuditRepository interface {
	Insert(ctx context.Context, rec *ExecutionRecord) error
	List(ctx context.Context, filter RecordFilter) ([]ExecutionRecord, error)
}
