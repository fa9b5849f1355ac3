package safety

import (
	"regexp"
	"strconv"
	"time"

	"querychat/internal/domain"
)

// ParameterValidator checks extracted values against their declarations:
// every required parameter present, every value coercible to its kind and
// inside its declared range or enum. Values are bound, never concatenated,
// so the string allow-pattern is a second line of defense, not the first.
type ParameterValidator struct{}

// stringAllowRe is the allow-list pattern for free string parameters.
var stringAllowRe = regexp.MustCompile(`^[a-zA-Z0-9 _\-.]{1,64}$`)

// Check validates the extracted set against the template. The key set must
// exactly cover the required parameter names; unknown keys are violations.
func (ParameterValidator) Check(params domain.ExtractedParams, t *domain.Template) error {
	if missing := params.MissingRequired(t); len(missing) > 0 {
		return domain.ErrViolation(domain.ViolationParameterRange, "template %s: required parameters unresolved: %v", t.ID, missing)
	}

	for name, value := range params {
		decl := t.Parameter(name)
		if decl == nil {
			return domain.ErrViolation(domain.ViolationParameterRange, "template %s: unexpected parameter %q", t.ID, name)
		}
		if err := checkValue(t.ID, decl, value); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(templateID string, decl *domain.Parameter, value domain.ExtractedValue) error {
	switch decl.Kind {
	case domain.KindDate:
		s, ok := value.Typed.(string)
		if !ok {
			return badKind(templateID, decl.Name, "date")
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return domain.ErrViolation(domain.ViolationParameterRange, "template %s: parameter %q is not an ISO date", templateID, decl.Name)
		}

	case domain.KindInteger:
		n, ok := toInt64(value.Typed)
		if !ok {
			return badKind(templateID, decl.Name, "integer")
		}
		if decl.Min != nil && n < *decl.Min {
			return domain.ErrViolation(domain.ViolationParameterRange, "template %s: parameter %q below minimum %d", templateID, decl.Name, *decl.Min)
		}
		if decl.Max != nil && n > *decl.Max {
			return domain.ErrViolation(domain.ViolationParameterRange, "template %s: parameter %q above maximum %d", templateID, decl.Name, *decl.Max)
		}

	case domain.KindEnum:
		s, ok := value.Typed.(string)
		if !ok {
			return badKind(templateID, decl.Name, "enum")
		}
		for _, allowed := range decl.Allowed {
			if s == allowed {
				return nil
			}
		}
		return domain.ErrViolation(domain.ViolationParameterRange, "template %s: parameter %q value not in allowed set", templateID, decl.Name)

	case domain.KindString:
		s, ok := value.Typed.(string)
		if !ok {
			return badKind(templateID, decl.Name, "string")
		}
		if !stringAllowRe.MatchString(s) {
			return domain.ErrViolation(domain.ViolationParameterRange, "template %s: parameter %q fails the allow pattern", templateID, decl.Name)
		}
	}
	return nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func badKind(templateID, name, kind string) error {
	return domain.ErrViolation(domain.ViolationParameterRange, "template %s: parameter %q is not a valid %s", templateID, name, kind)
}
