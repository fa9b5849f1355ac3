// Package format turns query results into the user-facing answer pieces:
// a short text summary, a data source citation, and a chart payload for the
// rendering collaborator.
package format

import (
	"fmt"
	"strings"
	"time"

	"querychat/internal/domain"
)

// Summarize phrases the result as a one-or-two sentence English answer.
// Phrasing beyond this is a collaborator concern; the pipeline only needs a
// faithful minimal rendering.
func Summarize(t *domain.Template, rows *domain.Rows) string {
	n := rows.RowCount()
	switch n {
	case 0:
		return fmt.Sprintf("No data found for %s.", strings.ToLower(t.Description))
	case 1:
		return fmt.Sprintf("%s: %s.", t.Description, renderRow(rows.Columns, rows.Rows[0]))
	default:
		return fmt.Sprintf("%s — %d rows. Top result: %s.", t.Description, n, renderRow(rows.Columns, rows.Rows[0]))
	}
}

func renderRow(cols []string, row []interface{}) string {
	parts := make([]string, 0, len(cols))
	for i, col := range cols {
		if i >= len(row) {
			break
		}
		parts = append(parts, fmt.Sprintf("%s %v", col, row[i]))
	}
	return strings.Join(parts, ", ")
}

// Citation names the data sources, date range, and row count behind an
// answer.
func Citation(t *domain.Template, params domain.ExtractedParams, rowCount int, retrievedAt time.Time) string {
	parts := []string{"Source: " + strings.Join(t.WhitelistedTables, ", ")}

	start, end := dateRangeOf(params)
	switch {
	case start != "" && end != "" && start != end:
		parts = append(parts, fmt.Sprintf("Date range: %s to %s", start, end))
	case start != "":
		parts = append(parts, "Date: "+start)
	}

	parts = append(parts,
		fmt.Sprintf("%d record(s)", rowCount),
		"Retrieved: "+retrievedAt.Format("2006-01-02 15:04:05"),
	)
	return strings.Join(parts, " | ")
}

func dateRangeOf(params domain.ExtractedParams) (start, end string) {
	for name, v := range params {
		s, ok := v.Typed.(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "start"):
			start = s
		case strings.Contains(lower, "end"):
			end = s
		}
	}
	return start, end
}

// SelectChart picks a chart for the result from the template's hint and the
// result shape. Single-row or empty results render as none; a hinted pie
// keeps pie only when the label cardinality is small.
func SelectChart(t *domain.Template, rows *domain.Rows) *domain.Chart {
	if rows.RowCount() <= 1 || len(rows.Columns) < 2 {
		return nil
	}

	chartType := t.ChartHint
	if chartType == "" || chartType == "none" {
		return nil
	}
	if chartType == "pie" && rows.RowCount() > 8 {
		chartType = "bar"
	}

	labels := make([]string, 0, rows.RowCount())
	series := make([]float64, 0, rows.RowCount())
	for _, row := range rows.Rows {
		labels = append(labels, fmt.Sprintf("%v", row[0]))
		if v, ok := toFloat(row[len(row)-1]); ok {
			series = append(series, v)
		}
	}
	if len(series) != len(labels) {
		// Non-numeric series: hand the raw rows to the renderer instead.
		return &domain.Chart{Type: chartType, Rows: rows.Maps()}
	}
	return &domain.Chart{Type: chartType, Labels: labels, Series: series}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
