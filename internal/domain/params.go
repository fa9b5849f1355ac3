package domain

// ExtractedValue pairs the raw text a value was pulled from with its typed form.
type ExtractedValue struct {
	Raw string
	// Typed holds the coerced value: string for date/enum/string kinds,
	// int64 for integer kinds.
	Typed interface{}
	// FromContext is true when the value was carried over from a previous
	// question in the same session rather than the current utterance.
	FromContext bool
}

// ExtractedParams maps parameter names to resolved values for one request.
// Before execution the key set must exactly cover the template's required
// parameter names; a partial set is an error, never a default.
type ExtractedParams map[string]ExtractedValue

// TypedValues returns the bind-ready values keyed by parameter name.
func (p ExtractedParams) TypedValues() map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for name, v := range p {
		out[name] = v.Typed
	}
	return out
}

// MissingRequired returns the template's required parameter names absent from
// the set, in declaration order.
func (p ExtractedParams) MissingRequired(t *Template) []string {
	var missing []string
	for _, name := range t.RequiredParameters() {
		if _, ok := p[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
