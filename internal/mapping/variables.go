package mapping

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/internal/translate"
)

// VariableResult is the outcome of mapping every template variable.
type VariableResult struct {
	Controls    []models.Control
	Supported   int
	Unsupported int
	Translated  int
	Passthrough int
	Warnings    []models.Warning
}

// MapVariables converts template variables into dashboard input controls.
// Query variables are routed through the translator; kinds without a Kibana
// equivalent become disabled informational controls.
func MapVariables(vars []models.TemplateVariable, opts Options, ds *DatasourceResolver) VariableResult {
	var res VariableResult
	if !opts.ConvertVariables {
		if len(vars) > 0 {
			res.Warnings = append(res.Warnings, models.NewWarning(models.WarnConversionSkipped, "templating",
				"variable conversion disabled; %d variables omitted", len(vars)))
		}
		return res
	}

	for i, tv := range vars {
		path := fmt.Sprintf("templating.list[%d]", i)
		c := models.Control{
			ID:         ObjectID(opts.PreservePanelIDs, opts.DashboardKey, "variable", tv.Name),
			Name:       tv.Name,
			Label:      tv.Label,
			Multi:      tv.Multi,
			IncludeAll: tv.IncludeAll,
		}
		if c.Label == "" {
			c.Label = tv.Name
		}

		switch tv.Kind {
		case models.VariableQuery:
			c.Kind = models.ControlOptionsList
			kind, dialect, source := ds.Resolve(tv.Datasource)
			if kind == translate.KindUnknown {
				dialect = translate.Dialect(source)
			}
			req := translate.Request{Expr: tv.Query, Kind: kind, Dialect: dialect, Path: path + ".query"}
			var q models.TranslatedQuery
			if opts.ConvertQueries {
				out, ws := translateVariableQuery(req)
				res.Warnings = append(res.Warnings, ws...)
				q = out.ToModel(tv.Name, tv.Query)
				if len(out.Fields) > 0 {
					c.Field = out.Fields[len(out.Fields)-1]
				}
				if out.Translated {
					res.Translated++
				} else {
					res.Passthrough++
				}
			} else {
				q = translate.Passthrough(req).ToModel(tv.Name, tv.Query)
				res.Passthrough++
			}
			c.Query = &q
		case models.VariableCustom, models.VariableInterval, models.VariableConstant:
			c.Kind = models.ControlStatic
			c.Options = staticOptions(tv)
		case models.VariableTextbox:
			c.Kind = models.ControlStatic
			if tv.Query != "" {
				c.Options = []string{tv.Query}
			}
		case models.VariableDatasource:
			c.Kind = models.ControlDatasource
			if tv.Query != "" {
				c.Options = []string{tv.Query}
			}
		default:
			c.Kind = models.ControlInfo
			c.Disabled = true
			c.Raw = tv.Raw
			res.Controls = append(res.Controls, c)
			res.Unsupported++
			res.Warnings = append(res.Warnings, models.NewWarning(models.WarnUnsupportedVariable, path,
				"variable %q of type %q has no Kibana control; kept as a disabled placeholder", tv.Name, tv.Kind))
			continue
		}
		res.Controls = append(res.Controls, c)
		res.Supported++
	}
	return res
}

// label_values(label) or label_values(selector, label)
var labelValuesRe = regexp.MustCompile(`^\s*label_values\(\s*(?:(.*?)\s*,\s*)?([A-Za-z_][A-Za-z0-9_]*)\s*\)\s*$`)

// translateVariableQuery understands Grafana's Prometheus label_values()
// helper, which is not PromQL. The selector part is translated and the label
// becomes the control's field. Option values themselves are never queried, so
// every label_values variable is flagged for review.
func translateVariableQuery(req translate.Request) (translate.Result, []models.Warning) {
	m := labelValuesRe.FindStringSubmatch(req.Expr)
	if m == nil || req.Kind != translate.KindMetrics || req.Dialect == translate.DialectLoki {
		return translate.Translate(req)
	}
	field := "prometheus.labels." + m[2]
	review := models.NewWarning(models.WarnManualReview, req.Path,
		"label_values options come from field %s and must be reviewed in Kibana", field)
	if m[1] == "" {
		out := translate.Passthrough(req)
		out.Label = ""
		out.Fields = []string{field}
		return out, []models.Warning{review}
	}
	inner := req
	inner.Expr = m[1]
	out, ws := translate.Translate(inner)
	if !out.Translated {
		out.Query = req.Expr
	}
	out.Fields = append(out.Fields, field)
	return out, append(ws, review)
}

// staticOptions prefers the saved option list and falls back to splitting
// the definition ("a,b,c" or "key : value, ...").
func staticOptions(tv models.TemplateVariable) []string {
	if len(tv.Options) > 0 {
		return append([]string(nil), tv.Options...)
	}
	if tv.Kind == models.VariableConstant {
		return []string{tv.Query}
	}
	var out []string
	for _, part := range strings.Split(tv.Query, ",") {
		part = strings.TrimSpace(part)
		if _, val, ok := strings.Cut(part, " : "); ok {
			part = strings.TrimSpace(val)
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
