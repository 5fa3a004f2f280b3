package mapping

import (
	"fmt"

	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/internal/translate"
)

// AnnotationResult is the outcome of mapping the dashboard's annotation queries.
type AnnotationResult struct {
	Layers      []models.AnnotationLayer
	Converted   int
	Translated  int
	Passthrough int
	Warnings    []models.Warning
}

// MapAnnotations routes each annotation's filter through the translator and
// binds it as an annotation layer. Disabled annotations stay, inactive.
func MapAnnotations(anns []models.AnnotationQuery, opts Options, ds *DatasourceResolver) AnnotationResult {
	var res AnnotationResult
	if !opts.ConvertAnnotations {
		if len(anns) > 0 {
			res.Warnings = append(res.Warnings, models.NewWarning(models.WarnConversionSkipped, "annotations",
				"annotation conversion disabled; %d annotations omitted", len(anns)))
		}
		return res
	}

	for i, a := range anns {
		path := fmt.Sprintf("annotations.list[%d]", i)
		layer := models.AnnotationLayer{
			Name:   a.Name,
			Color:  a.IconColor,
			Active: a.Enabled,
		}

		// Grafana's own event store has no query to translate.
		if a.BuiltIn || a.Expr == "" {
			layer.Active = false
			layer.Raw = a.Raw
			res.Layers = append(res.Layers, layer)
			res.Warnings = append(res.Warnings, models.NewWarning(models.WarnAnnotationPassthrough, path,
				"annotation %q has no query; kept as an inactive layer", a.Name))
			continue
		}

		kind, dialect, source := ds.Resolve(a.Datasource)
		if kind == translate.KindUnknown {
			dialect = translate.Dialect(source)
		}
		label := a.TextTemplate
		if label == "" {
			label = a.TitleFormat
		}
		req := translate.Request{Expr: a.Expr, Kind: kind, Dialect: dialect, LabelTemplate: label, Path: path}

		if opts.ConvertQueries {
			out, ws := translate.Translate(req)
			res.Warnings = append(res.Warnings, ws...)
			layer.Query = out.ToModel(a.Name, a.Expr)
			layer.Text = out.Label
			if out.Translated {
				res.Translated++
			} else {
				res.Passthrough++
			}
		} else {
			out := translate.Passthrough(req)
			layer.Query = out.ToModel(a.Name, a.Expr)
			layer.Text = out.Label
			res.Passthrough++
		}
		res.Layers = append(res.Layers, layer)
		res.Converted++
	}
	return res
}
