package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querychat/internal/domain"
)

func whitelistTemplate() *domain.Template {
	return &domain.Template{
		ID: "sales_by_date_range",
		SQLStructure: `SELECT order_date, SUM(revenue) AS total_revenue
FROM sales
WHERE order_date BETWEEN :start_date AND :end_date
GROUP BY order_date
ORDER BY order_date`,
		WhitelistedTables:  []string{"sales"},
		WhitelistedColumns: []string{"order_date", "revenue", "total_revenue"},
	}
}

func TestWhitelistAcceptsConformingTemplate(t *testing.T) {
	assert.NoError(t, WhitelistValidator{}.Check(whitelistTemplate()))
}

func TestWhitelistRejectsSelectStar(t *testing.T) {
	tmpl := whitelistTemplate()
	tmpl.SQLStructure = "SELECT * FROM sales"
	requireWhitelistViolation(t, WhitelistValidator{}.Check(tmpl))
}

func TestWhitelistRejectsForeignTable(t *testing.T) {
	tmpl := whitelistTemplate()
	tmpl.SQLStructure = "SELECT order_date FROM customers"
	requireWhitelistViolation(t, WhitelistValidator{}.Check(tmpl))
}

func TestWhitelistRejectsForeignColumn(t *testing.T) {
	tmpl := whitelistTemplate()
	tmpl.SQLStructure = "SELECT order_date, credit_card FROM sales"
	requireWhitelistViolation(t, WhitelistValidator{}.Check(tmpl))
}

func TestWhitelistIgnoresPlaceholdersAndLiterals(t *testing.T) {
	tmpl := whitelistTemplate()
	tmpl.SQLStructure = "SELECT order_date FROM sales WHERE order_date = :start_date AND revenue > 0 AND 'secret_column' = 'secret_column'"
	assert.NoError(t, WhitelistValidator{}.Check(tmpl))
}

func TestWhitelistAllowsQualifiedColumns(t *testing.T) {
	tmpl := &domain.Template{
		ID: "revenue_per_visitor",
		SQLStructure: `SELECT traffic.visit_date, ROUND(SUM(sales.revenue) / NULLIF(SUM(traffic.visitors), 0), 2) AS revenue_per_visitor
FROM traffic
LEFT JOIN sales ON sales.order_date = traffic.visit_date
WHERE traffic.visit_date BETWEEN :start_date AND :end_date
GROUP BY traffic.visit_date`,
		WhitelistedTables:  []string{"traffic", "sales"},
		WhitelistedColumns: []string{"visit_date", "visitors", "revenue", "order_date", "revenue_per_visitor"},
	}
	assert.NoError(t, WhitelistValidator{}.Check(tmpl))
}

func TestWhitelistMatchingIsCaseInsensitive(t *testing.T) {
	tmpl := whitelistTemplate()
	tmpl.SQLStructure = "SELECT ORDER_DATE FROM SALES"
	assert.NoError(t, WhitelistValidator{}.Check(tmpl))
}

func requireWhitelistViolation(t *testing.T, err error) {
	t.Helper()
	var violation *domain.SafetyViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, domain.ViolationWhitelist, violation.Kind)
}
