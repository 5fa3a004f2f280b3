// Package mapping converts validated Grafana panels, template variables and
// annotations into their Kibana counterparts. Mappers never fail: anything
// they cannot express is carried through and explained by a warning.
package mapping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/internal/translate"
)

// panelFamilies is total together with the unsupported catch-all in FamilyFor.
var panelFamilies = map[string]models.Family{
	"graph":                  models.FamilyLine,
	"timeseries":             models.FamilyLine,
	"trend":                  models.FamilyLine,
	"xychart":                models.FamilyLine,
	"barchart":               models.FamilyLine,
	"stat":                   models.FamilyMetric,
	"singlestat":             models.FamilyMetric,
	"table":                  models.FamilyTable,
	"table-old":              models.FamilyTable,
	"heatmap":                models.FamilyHeatmap,
	"piechart":               models.FamilyPie,
	"grafana-piechart-panel": models.FamilyPie,
	"gauge":                  models.FamilyGauge,
	"bargauge":               models.FamilyGauge,
	"text":                   models.FamilyMarkdown,
}

// FamilyFor classifies a declared Grafana panel type.
func FamilyFor(panelType string) models.Family {
	if f, ok := panelFamilies[panelType]; ok {
		return f
	}
	return models.FamilyUnsupported
}

// IsSupported reports whether panelType maps to a real visualization.
func IsSupported(panelType string) bool {
	return FamilyFor(panelType) != models.FamilyUnsupported
}

// SupportedPanelTypes lists the mapped Grafana panel types, sorted.
func SupportedPanelTypes() []string {
	out := make([]string, 0, len(panelFamilies))
	for k := range panelFamilies {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// idNamespace seeds deterministic saved-object ids.
var idNamespace = uuid.MustParse("6f1d3c1e-4b8e-5a57-9a0e-2a4f0d9b7c11")

// ObjectID returns a stable id derived from parts when deterministic is set,
// otherwise a random one.
func ObjectID(deterministic bool, parts ...string) string {
	if !deterministic {
		return uuid.NewString()
	}
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "/"))).String()
}

// Options configures one mapping run.
type Options struct {
	models.ConversionOptions
	// DashboardKey scopes deterministic ids (dashboard uid, or title).
	DashboardKey string
}

// PanelResult is the single outcome of mapping one source panel.
type PanelResult struct {
	Visualization models.TargetVisualization
	Supported     bool
	Translated    int
	Passthrough   int
	Warnings      []models.Warning
}

// MapPanel converts one panel. index is the panel's position in the
// flattened source order and is only used for warning paths.
func MapPanel(p models.SourcePanel, index int, opts Options, ds *DatasourceResolver) PanelResult {
	path := fmt.Sprintf("panels[%d]", index)
	family := FamilyFor(p.Type)
	res := PanelResult{Supported: family != models.FamilyUnsupported}

	v := models.TargetVisualization{
		ID:            ObjectID(opts.PreservePanelIDs, opts.DashboardKey, "panel", p.ID),
		SourcePanelID: p.ID,
		Title:         p.Title,
		Description:   p.Description,
		Family:        family,
		SourceType:    p.Type,
		Grid:          p.GridPos,
	}
	if v.Title == "" {
		v.Title = fmt.Sprintf("Panel %s", p.ID)
	}

	switch {
	case family == models.FamilyUnsupported:
		v.Family = models.FamilyMarkdown
		v.Unsupported = true
		v.Raw = p.Raw
		v.Markdown = unsupportedStub(p)
		v.Config = models.VisualConfig{Params: familyParams(models.FamilyMarkdown, nil)}
		v.Config.Params["markdown"] = v.Markdown
		res.Warnings = append(res.Warnings, models.NewWarning(models.WarnUnsupportedPanel, path,
			"panel type %q has no Kibana equivalent; emitted a markdown stub with the original definition", p.Type))
		res.Visualization = v
		return res
	case !opts.ConvertVisualizations:
		v.Family = models.FamilyMarkdown
		v.Raw = p.Raw
		v.Markdown = passthroughStub(p)
	case family == models.FamilyMarkdown:
		v.Markdown = textContent(p)
	}

	v.Config = visualConfig(p, v.Family)
	if v.Markdown != "" {
		v.Config.Params["markdown"] = v.Markdown
	}

	for i, t := range p.Targets {
		tpath := fmt.Sprintf("%s.targets[%d]", path, i)
		if t.Unsupported {
			res.Warnings = append(res.Warnings, models.NewWarning(models.WarnUnsupportedTarget, tpath,
				"target %s skipped: %s", t.RefID, t.UnsupportedReason))
			continue
		}
		kind, dialect, source := ds.Resolve(t.Datasource)
		if kind == translate.KindUnknown {
			dialect = translate.Dialect(source)
		}
		req := translate.Request{
			Expr:          t.Expr,
			Kind:          kind,
			Dialect:       dialect,
			LabelTemplate: t.LegendFormat,
			Path:          tpath,
		}
		if !opts.ConvertQueries {
			v.Queries = append(v.Queries, translate.Passthrough(req).ToModel(t.RefID, t.Expr))
			res.Passthrough++
			continue
		}
		out, ws := translate.Translate(req)
		res.Warnings = append(res.Warnings, ws...)
		v.Queries = append(v.Queries, out.ToModel(t.RefID, t.Expr))
		if out.Translated {
			res.Translated++
		} else {
			res.Passthrough++
		}
	}

	if _, _, mixed := v.SearchQuery(); mixed {
		res.Warnings = append(res.Warnings, models.NewWarning(models.WarnMixedQueryLanguages, path,
			"targets use different query languages; only the first is applied"))
	}
	res.Visualization = v
	return res
}

func unsupportedStub(p models.SourcePanel) string {
	return fmt.Sprintf("**Unsupported Grafana panel** `%s`: %s\n\nOriginal definition:\n\n```json\n%s\n```\n",
		p.Type, p.Title, prettyRaw(p.Raw))
}

func passthroughStub(p models.SourcePanel) string {
	return fmt.Sprintf("**Grafana %s panel** (visualization conversion disabled)\n\n```json\n%s\n```\n",
		p.Type, prettyRaw(p.Raw))
}

func prettyRaw(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return gjson.GetBytes(raw, "@pretty").Raw
}

func textContent(p models.SourcePanel) string {
	if c, ok := p.Options["content"].(string); ok && c != "" {
		return c
	}
	return gjson.GetBytes(p.Raw, "content").String()
}

// visualConfig translates field display config and family defaults.
func visualConfig(p models.SourcePanel, family models.Family) models.VisualConfig {
	fc := p.FieldConfig
	cfg := models.VisualConfig{
		Unit:      fc.Unit,
		Decimals:  fc.Decimals,
		Min:       fc.Min,
		Max:       fc.Max,
		ColorMode: fc.ColorMode,
		Ranges:    colorRanges(fc.Thresholds),
		Params:    familyParams(family, p.Options),
	}
	for k, v := range fc.Extra {
		cfg.Params["grafana."+k] = v
	}
	return cfg
}

// colorRanges turns Grafana threshold steps into contiguous [from, to) bands.
// The base step (nil value) opens the first band.
func colorRanges(steps []models.Threshold) []models.ColorRange {
	if len(steps) == 0 {
		return nil
	}
	sorted := append([]models.Threshold(nil), steps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Value, sorted[j].Value
		if a == nil {
			return b != nil
		}
		return b != nil && *a < *b
	})
	out := make([]models.ColorRange, 0, len(sorted))
	for i, s := range sorted {
		r := models.ColorRange{From: s.Value, Color: s.Color}
		if i+1 < len(sorted) {
			r.To = sorted[i+1].Value
		}
		out = append(out, r)
	}
	return out
}

func familyParams(family models.Family, options map[string]any) map[string]any {
	params := map[string]any{}
	switch family {
	case models.FamilyLine:
		params["type"] = "line"
		params["addTooltip"] = true
		params["addLegend"] = legendVisible(options)
		params["legendPosition"] = "right"
	case models.FamilyMetric:
		params["fontSize"] = 60
	case models.FamilyTable:
		params["perPage"] = 10
		params["showTotal"] = false
	case models.FamilyHeatmap:
		params["colorsNumber"] = 4
		params["colorSchema"] = "Greens"
	case models.FamilyPie:
		params["isDonut"] = options["pieType"] == "donut"
		params["addLegend"] = legendVisible(options)
	case models.FamilyGauge:
		params["gaugeType"] = "Arc"
	case models.FamilyMarkdown:
		params["fontSize"] = 12
		params["openLinksInNewTab"] = false
	}
	return params
}

func legendVisible(options map[string]any) bool {
	legend, ok := options["legend"].(map[string]any)
	if !ok {
		return true
	}
	if show, ok := legend["showLegend"].(bool); ok {
		return show
	}
	if mode, ok := legend["displayMode"].(string); ok {
		return mode != "hidden"
	}
	return true
}
