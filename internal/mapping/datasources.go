package mapping

import (
	"regexp"
	"strings"

	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/internal/translate"
)

// $ds, ${ds}, [[ds]]
var dsVarRe = regexp.MustCompile(`^\$\{?([A-Za-z_][A-Za-z0-9_]*)\}?$|^\[\[([A-Za-z_][A-Za-z0-9_]*)\]\]$`)

// DatasourceResolver maps a target's datasource reference onto a translator
// kind, following references to datasource-type template variables.
type DatasourceResolver struct {
	vars map[string]string
}

// NewDatasourceResolver indexes the datasource variables of a dashboard.
func NewDatasourceResolver(vars []models.TemplateVariable) *DatasourceResolver {
	r := &DatasourceResolver{vars: map[string]string{}}
	for _, v := range vars {
		if v.Kind == models.VariableDatasource && v.Query != "" {
			r.vars[v.Name] = v.Query
		}
	}
	return r
}

// Resolve returns the kind and dialect for ref plus the string it resolved.
func (r *DatasourceResolver) Resolve(ref models.DatasourceRef) (translate.Kind, translate.Dialect, string) {
	for _, candidate := range []string{ref.Type, ref.Name, ref.UID} {
		if candidate == "" {
			continue
		}
		key := r.expand(candidate)
		if kind, dialect := translate.Resolve(key); kind != translate.KindUnknown {
			return kind, dialect, key
		}
	}
	return translate.KindUnknown, translate.DialectNone, firstNonEmpty(ref.Type, ref.Name, ref.UID)
}

func (r *DatasourceResolver) expand(s string) string {
	if r == nil {
		return s
	}
	m := dsVarRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return s
	}
	name := m[1]
	if name == "" {
		name = m[2]
	}
	if plugin, ok := r.vars[name]; ok {
		return plugin
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
