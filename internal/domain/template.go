package domain

// ParameterKind enumerates the typed placeholder kinds a template may declare.
type ParameterKind string

const (
	KindDate    ParameterKind = "date"
	KindEnum    ParameterKind = "enum"
	KindInteger ParameterKind = "integer"
	KindString  ParameterKind = "string"
)

// Parameter declares one named placeholder of a template.
type Parameter struct {
	Name     string
	Kind     ParameterKind
	Required bool
	Min      *int64   // integer kinds only
	Max      *int64   // integer kinds only
	Allowed  []string // enum kinds only
	Default  string   // optional parameters only; empty means no default
}

// Template is one pre-approved, parameterized SQL query. Templates are
// immutable after catalog load; a reload replaces the whole catalog.
type Template struct {
	ID          string
	Description string
	Category    string
	Keywords    []string
	// SQLStructure contains named :placeholders. Placeholders are the only
	// user-influenced positions; values are bound, never concatenated.
	SQLStructure       string
	Parameters         []Parameter
	WhitelistedTables  []string
	WhitelistedColumns []string
	ChartHint          string
	// Examples holds few-shot phrasings used by the classifier.
	Examples []string
}

// Parameter returns the declared parameter with the given name, or nil.
func (t *Template) Parameter(name string) *Parameter {
	for i := range t.Parameters {
		if t.Parameters[i].Name == name {
			return &t.Parameters[i]
		}
	}
	return nil
}

// RequiredParameters returns the names of all required parameters in
// declaration order.
func (t *Template) RequiredParameters() []string {
	var names []string
	for _, p := range t.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}
