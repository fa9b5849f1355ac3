// Package catalog loads and indexes the approved query template library.
//
// The catalog is immutable once installed. A reload builds and validates a
// complete new instance and swaps it in atomically; a partially invalid
// library is never installed.
package catalog

import (
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"querychat/internal/domain"
)

// Catalog is an immutable, indexed set of templates in declaration order.
type Catalog struct {
	templates []domain.Template
	byID      map[string]int
}

// Lookup returns the template with the given id.
func (c *Catalog) Lookup(id string) (*domain.Template, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, domain.ErrNotFound("template %q not found", id)
	}
	return &c.templates[i], nil
}

// All returns every template in declaration order.
func (c *Catalog) All() []domain.Template {
	return c.templates
}

// Summaries returns the public id+description listing used by the
// no-match fallback.
func (c *Catalog) Summaries() []domain.TemplateSummary {
	out := make([]domain.TemplateSummary, len(c.templates))
	for i, t := range c.templates {
		out[i] = domain.TemplateSummary{ID: t.ID, Description: t.Description}
	}
	return out
}

// Len returns the number of templates.
func (c *Catalog) Len() int { return len(c.templates) }

// New builds a validated catalog directly from templates. Load is the
// file-backed equivalent.
func New(templates []domain.Template) (*Catalog, error) {
	return build(templates)
}

var (
	// :name placeholders. A leading double colon (SQL cast) does not count.
	placeholderRe = regexp.MustCompile(`(^|[^:\w]):([a-zA-Z_][a-zA-Z0-9_]*)`)
	tableRefRe    = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
)

// Placeholders returns the distinct placeholder names referenced by the SQL
// structure, in first-appearance order.
func Placeholders(sqlStructure string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(sqlStructure, -1) {
		name := m[2]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// TableRefs returns the distinct table names literally referenced by FROM and
// JOIN clauses of the SQL structure.
func TableRefs(sqlStructure string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range tableRefRe.FindAllStringSubmatch(sqlStructure, -1) {
		name := strings.ToLower(m[1])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// build validates the template set and constructs an immutable catalog.
// Declaration order is preserved.
func build(templates []domain.Template) (*Catalog, error) {
	byID := make(map[string]int, len(templates))
	for i, t := range templates {
		if t.ID == "" {
			return nil, domain.ErrCatalog("template at position %d has no id", i)
		}
		if _, dup := byID[t.ID]; dup {
			return nil, domain.ErrCatalog("duplicate template id %q", t.ID)
		}
		if err := validateTemplate(&t); err != nil {
			return nil, err
		}
		byID[t.ID] = i
	}
	return &Catalog{templates: templates, byID: byID}, nil
}

// validateTemplate enforces the load-time invariants: every placeholder has
// exactly one parameter and vice versa, every referenced table is
// whitelisted, and parameter declarations are internally consistent.
func validateTemplate(t *domain.Template) error {
	if strings.TrimSpace(t.SQLStructure) == "" {
		return domain.ErrCatalog("template %q: empty sql structure", t.ID)
	}

	declared := make(map[string]*domain.Parameter, len(t.Parameters))
	for i := range t.Parameters {
		p := &t.Parameters[i]
		if p.Name == "" {
			return domain.ErrCatalog("template %q: parameter at position %d has no name", t.ID, i)
		}
		if _, dup := declared[p.Name]; dup {
			return domain.ErrCatalog("template %q: duplicate parameter %q", t.ID, p.Name)
		}
		switch p.Kind {
		case domain.KindDate, domain.KindInteger, domain.KindString:
		case domain.KindEnum:
			if len(p.Allowed) == 0 {
				return domain.ErrCatalog("template %q: enum parameter %q has no allowed values", t.ID, p.Name)
			}
		default:
			return domain.ErrCatalog("template %q: parameter %q has unknown kind %q", t.ID, p.Name, p.Kind)
		}
		if p.Required && p.Default != "" {
			return domain.ErrCatalog("template %q: required parameter %q must not declare a default", t.ID, p.Name)
		}
		declared[p.Name] = p
	}

	referenced := Placeholders(t.SQLStructure)
	refSet := make(map[string]bool, len(referenced))
	for _, name := range referenced {
		refSet[name] = true
		if _, ok := declared[name]; !ok {
			return domain.ErrCatalog("template %q: placeholder :%s has no parameter declaration", t.ID, name)
		}
	}
	for name := range declared {
		if !refSet[name] {
			return domain.ErrCatalog("template %q: parameter %q is never referenced in the sql structure", t.ID, name)
		}
	}

	whitelisted := make(map[string]bool, len(t.WhitelistedTables))
	for _, table := range t.WhitelistedTables {
		whitelisted[strings.ToLower(table)] = true
	}
	for _, table := range TableRefs(t.SQLStructure) {
		if !whitelisted[table] {
			return domain.ErrCatalog("template %q: table %q is not whitelisted", t.ID, table)
		}
	}

	return nil
}

// Store publishes the active catalog to concurrent readers. Reload swaps in a
// fully validated replacement; readers never observe a partial update.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore creates a store holding the given catalog.
func NewStore(c *Catalog) *Store {
	s := &Store{}
	s.current.Store(c)
	return s
}

// Current returns the active catalog.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// Replace installs a new catalog atomically.
func (s *Store) Replace(c *Catalog) {
	s.current.Store(c)
}
