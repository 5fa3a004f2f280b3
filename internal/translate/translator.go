// Package translate rewrites Grafana target expressions into Kibana queries.
//
// Dispatch is a closed table keyed by Kind. Every strategy follows the same
// contract: it either produces a Kibana query or hands the source expression
// back unchanged, and in both cases explains itself through warnings. Nothing
// in this package returns an error.
package translate

import (
	"strings"

	"github.com/platformbuilds/dashbridge/internal/models"
)

// Request is one expression to translate.
type Request struct {
	Expr          string
	Kind          Kind
	Dialect       Dialect
	LabelTemplate string
	// Path locates the expression in the source document for warnings.
	Path string
}

// Result is the outcome of a translation. When Translated is false Query
// equals the source expression byte for byte.
type Result struct {
	Query      string
	Language   string
	Label      string
	Translated bool
	Kind       Kind
	// Fields lists the target fields the query filters on.
	Fields []string
}

// ToModel converts the result into the persisted form.
func (r Result) ToModel(refID, source string) models.TranslatedQuery {
	return models.TranslatedQuery{
		RefID:          refID,
		Source:         source,
		Query:          r.Query,
		Language:       r.Language,
		Label:          r.Label,
		Translated:     r.Translated,
		DatasourceKind: r.Kind.String(),
	}
}

type strategy func(req Request) (Result, []models.Warning)

var strategies = map[Kind]strategy{
	KindSearch:     translateSearch,
	KindMetrics:    translateMetrics,
	KindRelational: translateRelational,
	KindCloud:      translateCloud,
	KindUnknown:    translateUnknown,
}

// Translate runs the strategy for req.Kind and converts the display label.
func Translate(req Request) (Result, []models.Warning) {
	s, ok := strategies[req.Kind]
	if !ok {
		s = translateUnknown
	}
	res, warnings := s(req)
	res.Kind = req.Kind

	label, lw := ConvertLabelTemplate(req.LabelTemplate, req.Path)
	res.Label = label
	warnings = append(warnings, lw...)
	return res, warnings
}

// Passthrough returns the source expression untouched. Used when query
// conversion is switched off.
func Passthrough(req Request) Result {
	return Result{
		Query:    req.Expr,
		Language: models.LanguageKQL,
		Label:    req.LabelTemplate,
		Kind:     req.Kind,
	}
}

func identity(req Request, language string) Result {
	return Result{Query: req.Expr, Language: language, Kind: req.Kind}
}

func translateUnknown(req Request) (Result, []models.Warning) {
	dialect := string(req.Dialect)
	if dialect == "" {
		dialect = "unrecognised"
	}
	return identity(req, models.LanguageKQL), []models.Warning{
		models.NewWarning(models.WarnUnknownDatasource, req.Path,
			"datasource %s has no translator; expression carried through unchanged", dialect),
	}
}

func manualReview(req Request, how string) models.Warning {
	return models.NewWarning(models.WarnManualReview, req.Path,
		"%s query %s; manual review recommended", dialectName(req.Dialect), how)
}

func parseFailed(req Request, err error) models.Warning {
	return models.NewWarning(models.WarnQueryParseFailed, req.Path,
		"could not parse %s expression (%v); carried through unchanged", dialectName(req.Dialect), err)
}

func dialectName(d Dialect) string {
	if d == DialectNone {
		return "source"
	}
	return string(d)
}

// kqlQuote renders s as a quoted KQL value.
func kqlQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// kqlWildcard renders s as an unquoted KQL value keeping * as a wildcard.
func kqlWildcard(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '(', ')', ':', '<', '>', '"', ' ', '{', '}':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// hasTemplateVar reports Grafana variable references ($var, ${var}, [[var]]).
func hasTemplateVar(s string) bool {
	return templateVarRe.MatchString(s)
}

func joinAnd(clauses []string) string {
	return strings.Join(clauses, " and ")
}
