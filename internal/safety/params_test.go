package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querychat/internal/domain"
)

func i64(n int64) *int64 { return &n }

func paramsTemplate() *domain.Template {
	return &domain.Template{
		ID: "top_products",
		Parameters: []domain.Parameter{
			{Name: "start_date", Kind: domain.KindDate, Required: true},
			{Name: "end_date", Kind: domain.KindDate, Required: true},
			{Name: "top_n", Kind: domain.KindInteger, Required: false, Min: i64(1), Max: i64(50)},
			{Name: "channel", Kind: domain.KindEnum, Required: false, Allowed: []string{"online", "retail"}},
			{Name: "product", Kind: domain.KindString, Required: false},
		},
	}
}

func value(v interface{}) domain.ExtractedValue {
	return domain.ExtractedValue{Typed: v}
}

func TestParameterValidatorAcceptsCompleteSet(t *testing.T) {
	err := ParameterValidator{}.Check(domain.ExtractedParams{
		"start_date": value("2024-03-01"),
		"end_date":   value("2024-03-20"),
		"top_n":      value(int64(10)),
		"channel":    value("online"),
		"product":    value("Widget Pro"),
	}, paramsTemplate())
	assert.NoError(t, err)
}

func TestParameterValidatorRejectsMissingRequired(t *testing.T) {
	err := ParameterValidator{}.Check(domain.ExtractedParams{
		"start_date": value("2024-03-01"),
	}, paramsTemplate())
	requireRangeViolation(t, err)
}

func TestParameterValidatorRejectsUnknownParameter(t *testing.T) {
	err := ParameterValidator{}.Check(domain.ExtractedParams{
		"start_date": value("2024-03-01"),
		"end_date":   value("2024-03-20"),
		"smuggled":   value("x"),
	}, paramsTemplate())
	requireRangeViolation(t, err)
}

func TestParameterValidatorRejectsMalformedDate(t *testing.T) {
	err := ParameterValidator{}.Check(domain.ExtractedParams{
		"start_date": value("March 1st"),
		"end_date":   value("2024-03-20"),
	}, paramsTemplate())
	requireRangeViolation(t, err)
}

func TestParameterValidatorEnforcesIntegerRange(t *testing.T) {
	base := domain.ExtractedParams{
		"start_date": value("2024-03-01"),
		"end_date":   value("2024-03-20"),
	}

	base["top_n"] = value(int64(0))
	requireRangeViolation(t, ParameterValidator{}.Check(base, paramsTemplate()))

	base["top_n"] = value(int64(51))
	requireRangeViolation(t, ParameterValidator{}.Check(base, paramsTemplate()))

	base["top_n"] = value(int64(50))
	assert.NoError(t, ParameterValidator{}.Check(base, paramsTemplate()))
}

func TestParameterValidatorEnforcesEnumMembership(t *testing.T) {
	err := ParameterValidator{}.Check(domain.ExtractedParams{
		"start_date": value("2024-03-01"),
		"end_date":   value("2024-03-20"),
		"channel":    value("carrier-pigeon"),
	}, paramsTemplate())
	requireRangeViolation(t, err)
}

func TestParameterValidatorEnforcesStringAllowPattern(t *testing.T) {
	bad := []string{
		"Widget'; DROP TABLE sales--",
		"a;b",
		"",
		"x%y",
	}
	for _, s := range bad {
		err := ParameterValidator{}.Check(domain.ExtractedParams{
			"start_date": value("2024-03-01"),
			"end_date":   value("2024-03-20"),
			"product":    value(s),
		}, paramsTemplate())
		requireRangeViolation(t, err)
	}
}

func requireRangeViolation(t *testing.T, err error) {
	t.Helper()
	var violation *domain.SafetyViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, domain.ViolationParameterRange, violation.Kind)
}
