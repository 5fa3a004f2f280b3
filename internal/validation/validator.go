// Package validation turns raw Grafana dashboard JSON into a normalized
// models.SourceDashboard, or a *models.ValidationError listing every
// structural problem by path.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/internal/translate"
)

// Top-level keys that are modelled explicitly; everything else is carried
// through in SourceDashboard.Meta.
var knownKeys = map[string]bool{
	"title":         true,
	"uid":           true,
	"schemaVersion": true,
	"description":   true,
	"tags":          true,
	"panels":        true,
	"templating":    true,
	"annotations":   true,
	"time":          true,
}

// maxGridUnits bounds gridPos coordinates. Grafana dashboards are 24 columns
// wide; anything this large is corrupt and would overflow once rescaled.
const maxGridUnits = 10000

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks raw and returns the normalized dashboard. It has no side
// effects.
func (v *Validator) Validate(raw []byte) (*models.SourceDashboard, error) {
	verr := &models.ValidationError{}

	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		verr.Add("$", "document is not valid JSON")
		return nil, verr
	}
	root := gjson.ParseBytes(raw)
	// Grafana's HTTP API wraps the model: {"dashboard": {...}, "meta": {...}}
	if inner := root.Get("dashboard"); inner.IsObject() && !root.Get("panels").Exists() {
		root = inner
	}
	if !root.IsObject() {
		verr.Add("$", "document must be a JSON object")
		return nil, verr
	}

	d := &models.SourceDashboard{
		UID:         root.Get("uid").String(),
		Description: root.Get("description").String(),
		Time: models.TimeRange{
			From: root.Get("time.from").String(),
			To:   root.Get("time.to").String(),
		},
	}

	title := root.Get("title")
	if title.Type != gjson.String || strings.TrimSpace(title.Str) == "" {
		verr.Add("title", "required non-empty string")
	} else {
		d.Title = title.Str
	}

	sv := root.Get("schemaVersion")
	switch {
	case !sv.Exists():
		verr.Add("schemaVersion", "required")
	case sv.Type != gjson.Number || sv.Num < 0 || sv.Num != float64(int64(sv.Num)):
		verr.Add("schemaVersion", "must be a non-negative integer")
	default:
		d.SchemaVersion = int(sv.Int())
	}

	panels := root.Get("panels")
	if !panels.IsArray() {
		verr.Add("panels", "required array")
	} else {
		for i, p := range panels.Array() {
			v.collectPanel(p, fmt.Sprintf("panels.%d", i), d, verr)
		}
	}

	root.Get("tags").ForEach(func(_, t gjson.Result) bool {
		if t.Type == gjson.String {
			d.Tags = append(d.Tags, t.Str)
		}
		return true
	})

	for i, t := range root.Get("templating.list").Array() {
		if tv, ok := parseVariable(t, fmt.Sprintf("templating.list.%d", i), verr); ok {
			d.Variables = append(d.Variables, tv)
		}
	}

	root.Get("annotations.list").ForEach(func(_, a gjson.Result) bool {
		d.Annotations = append(d.Annotations, parseAnnotation(a))
		return true
	})

	root.ForEach(func(k, val gjson.Result) bool {
		if !knownKeys[k.Str] {
			if d.Meta == nil {
				d.Meta = map[string]json.RawMessage{}
			}
			d.Meta[k.Str] = json.RawMessage(val.Raw)
		}
		return true
	})

	if len(verr.Issues) > 0 {
		return nil, verr
	}
	return d, nil
}

// collectPanel appends p to d, flattening rows that carry nested panels.
func (v *Validator) collectPanel(p gjson.Result, path string, d *models.SourceDashboard, verr *models.ValidationError) {
	if !p.IsObject() {
		verr.Add(path, "panel must be an object")
		return
	}
	if p.Get("type").Str == "row" {
		for i, child := range p.Get("panels").Array() {
			v.collectPanel(child, fmt.Sprintf("%s.panels.%d", path, i), d, verr)
		}
		return
	}
	if panel, ok := parsePanel(p, path, d, verr); ok {
		d.Panels = append(d.Panels, panel)
	}
}

func parsePanel(p gjson.Result, path string, d *models.SourceDashboard, verr *models.ValidationError) (models.SourcePanel, bool) {
	ok := true
	panel := models.SourcePanel{
		Title:       p.Get("title").String(),
		Description: p.Get("description").String(),
		Datasource:  parseDatasource(p.Get("datasource")),
		Raw:         json.RawMessage(p.Raw),
	}

	switch id := p.Get("id"); {
	case id.Type == gjson.Number:
		panel.ID = id.Raw
	case id.Type == gjson.String && id.Str != "":
		panel.ID = id.Str
	default:
		verr.Add(path+".id", "required number or string")
		ok = false
	}

	if t := p.Get("type"); t.Type != gjson.String || t.Str == "" {
		verr.Add(path+".type", "required string")
		ok = false
	} else {
		panel.Type = t.Str
	}

	gp := p.Get("gridPos")
	coord := func(key string) int {
		r := gp.Get(key)
		if !r.Exists() || r.Type == gjson.Null {
			return 0
		}
		switch {
		case r.Type != gjson.Number || math.IsNaN(r.Num):
			verr.Add(path+".gridPos."+key, "must be a number")
		case r.Num < 0:
			verr.Add(path+".gridPos."+key, "must be non-negative")
		case r.Num > maxGridUnits:
			verr.Add(path+".gridPos."+key, fmt.Sprintf("must not exceed %d", maxGridUnits))
		default:
			return int(r.Num)
		}
		ok = false
		return 0
	}
	panel.GridPos = models.GridPos{X: coord("x"), Y: coord("y"), W: coord("w"), H: coord("h")}

	panel.FieldConfig = parseFieldConfig(p, path, d)
	if opts, isMap := p.Get("options").Value().(map[string]any); isMap {
		panel.Options = scrubNonFinite(opts, path+".options", d).(map[string]any)
	}

	for i, t := range p.Get("targets").Array() {
		target, tok := parseTarget(t, panel.Datasource, fmt.Sprintf("%s.targets.%d", path, i), verr)
		if !tok {
			ok = false
			continue
		}
		panel.Targets = append(panel.Targets, target)
	}
	return panel, ok
}

func parseDatasource(r gjson.Result) models.DatasourceRef {
	switch {
	case r.Type == gjson.String:
		return models.DatasourceRef{Name: r.Str}
	case r.IsObject():
		return models.DatasourceRef{
			UID:  r.Get("uid").String(),
			Type: r.Get("type").String(),
		}
	}
	return models.DatasourceRef{}
}

// datasourceKey is the string Resolve understands for a reference.
func datasourceKey(ref models.DatasourceRef) string {
	if ref.Type != "" {
		return ref.Type
	}
	if ref.Name != "" {
		return ref.Name
	}
	return ref.UID
}

func parseTarget(t gjson.Result, panelDS models.DatasourceRef, path string, verr *models.ValidationError) (models.Target, bool) {
	target := models.Target{
		RefID:      t.Get("refId").String(),
		Datasource: parseDatasource(t.Get("datasource")),
		Hidden:     t.Get("hide").Bool(),
		Raw:        json.RawMessage(t.Raw),
	}
	if target.Datasource.IsEmpty() {
		target.Datasource = panelDS
	}
	target.LegendFormat = firstString(t, "legendFormat", "alias", "displayName")

	kind, _ := translate.Resolve(datasourceKey(target.Datasource))
	field, expr, found := extractExpression(t, kind)
	switch {
	case !found:
		target.Unsupported = true
		target.UnsupportedReason = "no query expression recognised"
	case strings.TrimSpace(expr) == "" && kind == translate.KindSearch:
		target.Expr = "*"
	case strings.TrimSpace(expr) == "" && target.Hidden:
		target.Unsupported = true
		target.UnsupportedReason = "hidden target with empty expression"
	case strings.TrimSpace(expr) == "":
		verr.Add(path+"."+field, "query expression must not be empty")
		return target, false
	default:
		target.Expr = expr
	}
	return target, true
}

// extractExpression finds the query text of a target. The field that held
// it is returned for error paths.
func extractExpression(t gjson.Result, kind translate.Kind) (field, expr string, found bool) {
	for _, f := range []string{"expr", "rawSql"} {
		if r := t.Get(f); r.Type == gjson.String {
			return f, r.Str, true
		}
	}
	// Graphite uses "target"; other plugins reuse the key for a nested object.
	if r := t.Get("target"); r.Type == gjson.String {
		return "target", r.Str, true
	}
	if r := t.Get("query"); r.Type == gjson.String {
		if kind == translate.KindSearch || t.Get("rawQuery").Bool() || r.Str != "" {
			return "query", r.Str, true
		}
	}
	if q, ok := influxBuilderQuery(t); ok {
		return "measurement", q, true
	}
	if kind == translate.KindCloud || kind == translate.KindUnknown {
		if q, ok := cloudExpression(t); ok {
			return "metricName", q, true
		}
	}
	if r := t.Get("query"); r.Type == gjson.String {
		return "query", r.Str, true
	}
	return "", "", false
}

// influxBuilderQuery renders the InfluxDB query builder form as InfluxQL.
func influxBuilderQuery(t gjson.Result) (string, bool) {
	m := t.Get("measurement").String()
	if m == "" {
		return "", false
	}
	var conds []string
	t.Get("tags").ForEach(func(_, tag gjson.Result) bool {
		key, val := tag.Get("key").String(), tag.Get("value").String()
		if key == "" {
			return true
		}
		op := tag.Get("operator").String()
		if op == "" {
			op = "="
		}
		if op == "=~" || op == "!~" {
			conds = append(conds, fmt.Sprintf(`"%s" %s %s`, key, op, val))
		} else {
			conds = append(conds, fmt.Sprintf(`"%s" %s '%s'`, key, op, val))
		}
		return true
	})
	q := fmt.Sprintf(`SELECT * FROM "%s"`, m)
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return q, true
}

// cloudExpression renders structured cloud metric targets as key="value"
// pairs for the cloud translator.
func cloudExpression(t gjson.Result) (string, bool) {
	var parts []string
	add := func(key, val string) {
		if val != "" {
			parts = append(parts, fmt.Sprintf(`%s=%q`, key, val))
		}
	}

	switch {
	case t.Get("namespace").Exists() || t.Get("metricName").Exists():
		// CloudWatch
		add("namespace", t.Get("namespace").String())
		add("metric", t.Get("metricName").String())
		add("region", t.Get("region").String())
		t.Get("dimensions").ForEach(func(k, v gjson.Result) bool {
			val := v.String()
			if v.IsArray() {
				val = v.Get("0").String()
			}
			add("dim."+k.Str, val)
			return true
		})
	case t.Get("azureMonitor").Exists():
		az := t.Get("azureMonitor")
		add("namespace", firstString(az, "metricNamespace", "metricDefinition"))
		add("metric", az.Get("metricName").String())
		add("resource", firstString(az, "resourceName", "resourceGroup"))
		add("region", az.Get("region").String())
		az.Get("dimensionFilters").ForEach(func(_, f gjson.Result) bool {
			add("dim."+f.Get("dimension").String(), f.Get("filters.0").String())
			return true
		})
	case t.Get("metricQuery").Exists():
		mq := t.Get("metricQuery")
		add("namespace", mq.Get("projectName").String())
		add("metric", mq.Get("metricType").String())
	default:
		return "", false
	}
	return strings.Join(parts, " "), len(parts) > 0
}

func parseFieldConfig(p gjson.Result, path string, d *models.SourceDashboard) models.FieldConfig {
	defs := p.Get("fieldConfig.defaults")
	defsPath := path + ".fieldConfig.defaults"
	fc := models.FieldConfig{
		Unit:      defs.Get("unit").String(),
		ColorMode: defs.Get("color.mode").String(),
	}
	if d := defs.Get("decimals"); d.Type == gjson.Number {
		n := int(d.Int())
		fc.Decimals = &n
	}
	fc.Min = finiteNumber(defs.Get("min"), defsPath+".min", d)
	fc.Max = finiteNumber(defs.Get("max"), defsPath+".max", d)
	for i, s := range defs.Get("thresholds.steps").Array() {
		stepPath := fmt.Sprintf("%s.thresholds.steps.%d", defsPath, i)
		th := models.Threshold{Color: s.Get("color").String()}
		if v := s.Get("value"); v.Type == gjson.Number {
			th.Value = finiteNumber(v, stepPath+".value", d)
			if th.Value == nil {
				continue
			}
		}
		fc.Thresholds = append(fc.Thresholds, th)
	}
	if custom, ok := defs.Get("custom").Value().(map[string]any); ok && len(custom) > 0 {
		fc.Extra = scrubNonFinite(custom, defsPath+".custom", d).(map[string]any)
	}

	// Legacy singlestat/graph panels: "format", "thresholds": "50,80", "colors".
	if fc.Unit == "" {
		fc.Unit = p.Get("format").String()
	}
	if len(fc.Thresholds) == 0 {
		if legacy := p.Get("thresholds"); legacy.Type == gjson.String && legacy.Str != "" {
			colors := p.Get("colors").Array()
			color := func(i int) string {
				if i < len(colors) {
					return colors[i].String()
				}
				return ""
			}
			fc.Thresholds = append(fc.Thresholds, models.Threshold{Color: color(0)})
			for i, raw := range strings.Split(legacy.Str, ",") {
				r := gjson.Parse(strings.TrimSpace(raw))
				if r.Type != gjson.Number {
					continue
				}
				if f := finiteNumber(r, fmt.Sprintf("%s.thresholds.%d", path, i), d); f != nil {
					fc.Thresholds = append(fc.Thresholds, models.Threshold{Color: color(i + 1), Value: f})
				}
			}
		}
	}
	return fc
}

// finiteNumber returns r as a float, or nil when r is not a number. Numbers
// outside float64 range parse to ±Inf; they are dropped with a warning since
// JSON cannot encode them.
func finiteNumber(r gjson.Result, path string, d *models.SourceDashboard) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	f := r.Float()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		dropNonFinite(path, r.Raw, d)
		return nil
	}
	return &f
}

// scrubNonFinite walks a decoded JSON bag and removes numbers that overflow
// float64. Map keys are deleted; slice elements become null.
func scrubNonFinite(v any, path string, d *models.SourceDashboard) any {
	switch t := v.(type) {
	case float64:
		if math.IsInf(t, 0) || math.IsNaN(t) {
			dropNonFinite(path, fmt.Sprint(t), d)
			return nil
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			val := t[k]
			if clean := scrubNonFinite(val, path+"."+k, d); clean == nil && val != nil {
				delete(t, k)
			} else {
				t[k] = clean
			}
		}
	case []any:
		for i, val := range t {
			t[i] = scrubNonFinite(val, fmt.Sprintf("%s.%d", path, i), d)
		}
	}
	return v
}

func dropNonFinite(path, raw string, d *models.SourceDashboard) {
	d.Warnings = append(d.Warnings, models.NewWarning(models.WarnNonFiniteValue, path,
		"number %s is outside the representable range and was dropped", raw))
}

func parseVariable(t gjson.Result, path string, verr *models.ValidationError) (models.TemplateVariable, bool) {
	name := t.Get("name").String()
	if name == "" {
		verr.Add(path+".name", "required string")
		return models.TemplateVariable{}, false
	}
	tv := models.TemplateVariable{
		Name:       name,
		Label:      t.Get("label").String(),
		Kind:       models.VariableKind(t.Get("type").String()),
		Multi:      t.Get("multi").Bool(),
		IncludeAll: t.Get("includeAll").Bool(),
		Datasource: parseDatasource(t.Get("datasource")),
		Raw:        json.RawMessage(t.Raw),
	}
	// Newer query variables nest the expression: {"query": {"query": "...", "refId": ...}}
	switch q := t.Get("query"); {
	case q.Type == gjson.String:
		tv.Query = q.Str
	case q.IsObject():
		tv.Query = firstString(q, "query", "expr", "rawSql")
	}
	t.Get("options").ForEach(func(_, o gjson.Result) bool {
		if val := o.Get("value").String(); val != "" {
			tv.Options = append(tv.Options, val)
		}
		return true
	})
	return tv, true
}

func parseAnnotation(a gjson.Result) models.AnnotationQuery {
	enabled := true
	if e := a.Get("enable"); e.Exists() {
		enabled = e.Bool()
	}
	return models.AnnotationQuery{
		Name:         a.Get("name").String(),
		Datasource:   parseDatasource(a.Get("datasource")),
		Expr:         firstString(a, "expr", "query", "rawQuery", "target.query", "target.expr"),
		TextTemplate: firstString(a, "textFormat", "textField"),
		TitleFormat:  a.Get("titleFormat").String(),
		IconColor:    a.Get("iconColor").String(),
		Enabled:      enabled,
		BuiltIn:      a.Get("builtIn").Bool(),
		Raw:          json.RawMessage(a.Raw),
	}
}

// firstString returns the first non-empty string value among paths.
func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
