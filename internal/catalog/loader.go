package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"querychat/internal/domain"
)

// templateFile is the YAML shape of one template definition on disk.
type templateFile struct {
	ID                 string          `yaml:"id"`
	Description        string          `yaml:"description"`
	Category           string          `yaml:"category"`
	Keywords           []string        `yaml:"keywords"`
	SQL                string          `yaml:"sql"`
	Parameters         []parameterFile `yaml:"parameters"`
	WhitelistedTables  []string        `yaml:"whitelisted_tables"`
	WhitelistedColumns []string        `yaml:"whitelisted_columns"`
	ChartHint          string          `yaml:"chart_hint"`
	Examples           []string        `yaml:"examples"`
}

type parameterFile struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Required bool     `yaml:"required"`
	Min      *int64   `yaml:"min"`
	Max      *int64   `yaml:"max"`
	Allowed  []string `yaml:"allowed"`
	Default  string   `yaml:"default"`
}

// Load reads every *.yaml/*.yml file in dir (one template per file, ordered
// by file name), validates the set, and returns an immutable catalog. On any
// error nothing is installed and the caller keeps its prior catalog.
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.ErrCatalog("read template dir %s: %v", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, domain.ErrCatalog("no template files found in %s", dir)
	}

	templates := make([]domain.Template, 0, len(files))
	for _, name := range files {
		raw, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // dir is operator-controlled
		if err != nil {
			return nil, domain.ErrCatalog("read template file %s: %v", name, err)
		}
		var tf templateFile
		if err := yaml.Unmarshal(raw, &tf); err != nil {
			return nil, domain.ErrCatalog("parse template file %s: %v", name, err)
		}
		templates = append(templates, tf.toDomain())
	}

	return build(templates)
}

func (tf templateFile) toDomain() domain.Template {
	params := make([]domain.Parameter, len(tf.Parameters))
	for i, p := range tf.Parameters {
		params[i] = domain.Parameter{
			Name:     p.Name,
			Kind:     domain.ParameterKind(p.Kind),
			Required: p.Required,
			Min:      p.Min,
			Max:      p.Max,
			Allowed:  p.Allowed,
			Default:  p.Default,
		}
	}
	return domain.Template{
		ID:                 tf.ID,
		Description:        tf.Description,
		Category:           tf.Category,
		Keywords:           tf.Keywords,
		SQLStructure:       tf.SQL,
		Parameters:         params,
		WhitelistedTables:  tf.WhitelistedTables,
		WhitelistedColumns: tf.WhitelistedColumns,
		ChartHint:          tf.ChartHint,
		Examples:           tf.Examples,
	}
}
