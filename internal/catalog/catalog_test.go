package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querychat/internal/domain"
)

func validTemplate(id string) domain.Template {
	return domain.Template{
		ID:          id,
		Description: "Total revenue per day",
		Keywords:    []string{"sales", "revenue"},
		SQLStructure: `SELECT order_date, SUM(revenue) AS total_revenue
FROM sales
WHERE order_date BETWEEN :start_date AND :end_date
GROUP BY order_date`,
		Parameters: []domain.Parameter{
			{Name: "start_date", Kind: domain.KindDate, Required: true},
			{Name: "end_date", Kind: domain.KindDate, Required: true},
		},
		WhitelistedTables:  []string{"sales"},
		WhitelistedColumns: []string{"order_date", "revenue", "total_revenue"},
		Examples:           []string{"What were sales last week?"},
	}
}

func TestNewBuildsValidCatalog(t *testing.T) {
	cat, err := New([]domain.Template{validTemplate("a"), validTemplate("b")})
	require.NoError(t, err)

	assert.Equal(t, 2, cat.Len())

	tmpl, err := cat.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, "a", tmpl.ID)

	_, err = cat.Lookup("nope")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	_, err := New([]domain.Template{validTemplate("a"), validTemplate("a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate template id")
}

func TestNewRejectsUndeclaredPlaceholder(t *testing.T) {
	tmpl := validTemplate("a")
	tmpl.Parameters = tmpl.Parameters[:1] // drop end_date declaration

	_, err := New([]domain.Template{tmpl})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":end_date has no parameter declaration")
}

func TestNewRejectsUnreferencedParameter(t *testing.T) {
	tmpl := validTemplate("a")
	tmpl.Parameters = append(tmpl.Parameters, domain.Parameter{
		Name: "orphan", Kind: domain.KindInteger,
	})

	_, err := New([]domain.Template{tmpl})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never referenced")
}

func TestNewRejectsUnwhitelistedTable(t *testing.T) {
	tmpl := validTemplate("a")
	tmpl.WhitelistedTables = []string{"orders"}

	_, err := New([]domain.Template{tmpl})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `table "sales" is not whitelisted`)
}

func TestNewRejectsEnumWithoutAllowedValues(t *testing.T) {
	tmpl := validTemplate("a")
	tmpl.SQLStructure += " HAVING channel = :channel"
	tmpl.Parameters = append(tmpl.Parameters, domain.Parameter{
		Name: "channel", Kind: domain.KindEnum, Required: true,
	})

	_, err := New([]domain.Template{tmpl})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no allowed values")
}

func TestNewRejectsRequiredParameterWithDefault(t *testing.T) {
	tmpl := validTemplate("a")
	tmpl.Parameters[0].Default = "2024-01-01"

	_, err := New([]domain.Template{tmpl})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not declare a default")
}

func TestPlaceholdersIgnoresSQLCasts(t *testing.T) {
	names := Placeholders("SELECT CAST(revenue AS DOUBLE), x::INTEGER FROM sales WHERE d = :start_date AND d2 = :start_date")
	assert.Equal(t, []string{"start_date"}, names)
}

func TestTableRefsFindsFromAndJoin(t *testing.T) {
	refs := TableRefs("SELECT a FROM traffic LEFT JOIN sales ON sales.d = traffic.d")
	assert.Equal(t, []string{"sales", "traffic"}, refs)
}

func TestLoadReadsDirectoryInFilenameOrder(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "20_second.yaml", "second")
	writeTemplateFile(t, dir, "10_first.yaml", "first")

	cat, err := Load(dir)
	require.NoError(t, err)

	all := cat.All()
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].ID)
	assert.Equal(t, "second", all[1].ID)
}

func TestLoadFailsOnEmptyDirectory(t *testing.T) {
	_, err := Load(t.TempDir())
	var catErr *domain.CatalogError
	require.ErrorAs(t, err, &catErr)
}

func TestLoadFailsOnInvalidTemplateWithoutInstalling(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "ok.yaml", "ok")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: bad\nsql: ''\n"), 0o600))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestStoreReplacesAtomically(t *testing.T) {
	first, err := New([]domain.Template{validTemplate("a")})
	require.NoError(t, err)
	second, err := New([]domain.Template{validTemplate("a"), validTemplate("b")})
	require.NoError(t, err)

	store := NewStore(first)
	assert.Equal(t, 1, store.Current().Len())

	store.Replace(second)
	assert.Equal(t, 2, store.Current().Len())
}

func writeTemplateFile(t *testing.T, dir, name, id string) {
	t.Helper()
	content := `id: ` + id + `
description: Total revenue per day
keywords: [sales]
sql: |
  SELECT order_date, SUM(revenue) AS total_revenue
  FROM sales
  WHERE order_date BETWEEN :start_date AND :end_date
  GROUP BY order_date
parameters:
  - name: start_date
    kind: date
    required: true
  - name: end_date
    kind: date
    required: true
whitelisted_tables: [sales]
whitelisted_columns: [order_date, revenue, total_revenue]
examples:
  - What were sales last week?
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}
