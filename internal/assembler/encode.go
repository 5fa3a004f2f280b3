package assembler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/platformbuilds/dashbridge/internal/models"
)

// Panel version written into panelsJSON when the target is not a numbered
// release.
const serverlessPanelVersion = "8.11.0"

const indexRefName = "kibanaSavedObjectMeta.searchSourceJSON.index"

// SavedObject is one Kibana saved object as it appears in an export.
type SavedObject struct {
	ID                   string             `json:"id"`
	Type                 string             `json:"type"`
	Attributes           map[string]any     `json:"attributes"`
	References           []models.Reference `json:"references"`
	MigrationVersion     map[string]string  `json:"migrationVersion,omitempty"`
	TypeMigrationVersion string             `json:"typeMigrationVersion,omitempty"`
	CoreMigrationVersion string             `json:"coreMigrationVersion,omitempty"`
}

// Encoded holds both encodings of one dashboard. Every saved object is
// marshalled once, so the two encodings carry byte-identical records.
type Encoded struct {
	Single []byte
	NDJSON []byte
}

// singleDocument is the monolithic export layout.
type singleDocument struct {
	Dashboard      json.RawMessage    `json:"dashboard"`
	Visualizations []json.RawMessage  `json:"visualizations"`
	References     []models.Reference `json:"references"`
}

// Encode renders td as a single document and as NDJSON, visualizations
// first in source order and the dashboard record last.
func Encode(td *models.TargetDashboard) (*Encoded, error) {
	objects, err := SavedObjects(td)
	if err != nil {
		return nil, err
	}
	records := make([][]byte, len(objects))
	for i, o := range objects {
		b, err := json.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s: %w", o.Type, o.ID, err)
		}
		records[i] = b
	}

	var nd bytes.Buffer
	for _, r := range records {
		nd.Write(r)
		nd.WriteByte('\n')
	}

	last := len(records) - 1
	doc := singleDocument{
		Dashboard:      records[last],
		Visualizations: make([]json.RawMessage, 0, last),
		References:     objects[last].References,
	}
	for _, r := range records[:last] {
		doc.Visualizations = append(doc.Visualizations, r)
	}
	single, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal export document: %w", err)
	}
	return &Encoded{Single: single, NDJSON: nd.Bytes()}, nil
}

// SavedObjects returns the visualization objects followed by the dashboard.
func SavedObjects(td *models.TargetDashboard) ([]SavedObject, error) {
	out := make([]SavedObject, 0, len(td.Visualizations)+1)
	for _, v := range td.Visualizations {
		var enc attrEncoder
		o := visualizationObject(&enc, td, v)
		if enc.err != nil {
			return nil, fmt.Errorf("encode visualization %s (panel %s): %w", v.ID, v.SourcePanelID, enc.err)
		}
		out = append(out, o)
	}
	var enc attrEncoder
	o := dashboardObject(&enc, td)
	if enc.err != nil {
		return nil, fmt.Errorf("encode dashboard %s: %w", td.ID, enc.err)
	}
	return append(out, o), nil
}

func stampVersion(o *SavedObject, version string) {
	sv := versionOf(version)
	if sv == nil {
		return
	}
	if sv.LessThan(typeMigrationSince) {
		o.MigrationVersion = map[string]string{o.Type: sv.String()}
	} else {
		o.TypeMigrationVersion = sv.String()
	}
	o.CoreMigrationVersion = sv.String()
}

func panelVersion(version string) string {
	if sv := versionOf(version); sv != nil {
		return sv.String()
	}
	return serverlessPanelVersion
}

// attrEncoder renders the JSON-in-a-string attributes of a saved object and
// keeps the first marshal error.
type attrEncoder struct {
	err error
}

func (e *attrEncoder) json(v any) string {
	if e.err != nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		e.err = err
		return ""
	}
	return string(b)
}

func dashboardObject(enc *attrEncoder, td *models.TargetDashboard) SavedObject {
	panels := make([]map[string]any, len(td.Visualizations))
	for i, v := range td.Visualizations {
		idx := strconv.Itoa(i + 1)
		panels[i] = map[string]any{
			"version":    panelVersion(td.TargetVersion),
			"type":       v.SavedObjectType(),
			"panelIndex": idx,
			"gridData": map[string]any{
				"x": v.Grid.X,
				"y": v.Grid.Y,
				"w": v.Grid.W,
				"h": v.Grid.H,
				"i": idx,
			},
			"embeddableConfig": map[string]any{"enhancements": map[string]any{}},
			"panelRefName":     panelRefName(i),
		}
	}

	attrs := map[string]any{
		"title":       td.Title,
		"hits":        0,
		"description": td.Description,
		"panelsJSON":  enc.json(panels),
		"optionsJSON": enc.json(map[string]any{
			"hidePanelTitles": false,
			"useMargins":      true,
			"syncColors":      false,
			"syncCursor":      true,
			"syncTooltips":    false,
			"hideAllLegends":  false,
		}),
		"version":     1,
		"timeRestore": td.Time.From != "" && td.Time.To != "",
		"kibanaSavedObjectMeta": map[string]any{
			"searchSourceJSON": enc.json(map[string]any{
				"query":  map[string]any{"query": "", "language": models.LanguageKQL},
				"filter": []any{},
			}),
		},
	}
	if td.Time.From != "" && td.Time.To != "" {
		attrs["timeFrom"] = td.Time.From
		attrs["timeTo"] = td.Time.To
	}
	if len(td.Controls) > 0 && supportsControlGroup(td.TargetVersion) {
		attrs["controlGroupInput"] = controlGroupInput(enc, td)
	}

	refs := append([]models.Reference{}, td.References...)
	o := SavedObject{ID: td.ID, Type: "dashboard", Attributes: attrs, References: refs}
	stampVersion(&o, td.TargetVersion)
	return o
}

func controlGroupInput(enc *attrEncoder, td *models.TargetDashboard) map[string]any {
	panels := map[string]any{}
	order := 0
	for _, c := range td.Controls {
		if c.Disabled || c.Field == "" {
			continue
		}
		panels[c.ID] = map[string]any{
			"order": order,
			"width": "medium",
			"grow":  true,
			"type":  "optionsListControl",
			"explicitInput": map[string]any{
				"id":           c.ID,
				"title":        c.Label,
				"fieldName":    c.Field,
				"dataViewId":   td.IndexPattern,
				"singleSelect": !c.Multi,
			},
		}
		order++
	}
	return map[string]any{
		"controlStyle":   "oneLine",
		"chainingSystem": "HIERARCHICAL",
		"panelsJSON":     enc.json(panels),
	}
}

var visTypes = map[models.Family]string{
	models.FamilyLine:     "line",
	models.FamilyMetric:   "metric",
	models.FamilyTable:    "table",
	models.FamilyHeatmap:  "heatmap",
	models.FamilyPie:      "pie",
	models.FamilyGauge:    "gauge",
	models.FamilyMarkdown: "markdown",
}

func visualizationObject(enc *attrEncoder, td *models.TargetDashboard, v models.TargetVisualization) SavedObject {
	visType := visTypes[v.Family]
	if visType == "" {
		visType = "markdown"
	}

	params := map[string]any{}
	for k, val := range v.Config.Params {
		params[k] = val
	}
	if v.Config.Unit != "" {
		params["unit"] = v.Config.Unit
	}
	if len(v.Config.Ranges) > 0 {
		ranges := make([]map[string]any, 0, len(v.Config.Ranges))
		colors := make([]string, 0, len(v.Config.Ranges))
		for _, r := range v.Config.Ranges {
			rng := map[string]any{}
			if r.From != nil {
				rng["from"] = *r.From
			}
			if r.To != nil {
				rng["to"] = *r.To
			}
			ranges = append(ranges, rng)
			colors = append(colors, r.Color)
		}
		params["colorsRange"] = ranges
		params["colors"] = colors
	}
	if v.Family == models.FamilyLine && len(td.Annotations) > 0 {
		params["annotations"] = annotationParams(td)
	}
	params["grafana"] = map[string]any{
		"sourcePanelId": v.SourcePanelID,
		"sourceType":    v.SourceType,
		"unsupported":   v.Unsupported,
		"queries":       v.Queries,
	}

	visState := map[string]any{
		"title":  v.Title,
		"type":   visType,
		"params": params,
		"aggs":   aggsFor(v.Family),
	}

	description := v.Description
	if v.Unsupported {
		description = fmt.Sprintf("Converted from unsupported Grafana panel type %q", v.SourceType)
	}

	searchSource := map[string]any{"filter": []any{}}
	var refs []models.Reference
	if visType == "markdown" {
		searchSource["query"] = map[string]any{"query": "", "language": models.LanguageKQL}
	} else {
		query, language, _ := v.SearchQuery()
		searchSource["query"] = map[string]any{"query": query, "language": language}
		searchSource["indexRefName"] = indexRefName
		refs = append(refs, models.Reference{Name: indexRefName, Type: "index-pattern", ID: td.IndexPattern})
	}
	if refs == nil {
		refs = []models.Reference{}
	}

	attrs := map[string]any{
		"title":       v.Title,
		"description": description,
		"version":     1,
		"visState":    enc.json(visState),
		"uiStateJSON": "{}",
		"kibanaSavedObjectMeta": map[string]any{
			"searchSourceJSON": enc.json(searchSource),
		},
	}
	o := SavedObject{ID: v.ID, Type: v.SavedObjectType(), Attributes: attrs, References: refs}
	stampVersion(&o, td.TargetVersion)
	return o
}

func aggsFor(family models.Family) []map[string]any {
	if family == models.FamilyMarkdown {
		return []map[string]any{}
	}
	aggs := []map[string]any{
		{"id": "1", "enabled": true, "type": "count", "schema": "metric", "params": map[string]any{}},
	}
	switch family {
	case models.FamilyLine, models.FamilyHeatmap:
		aggs = append(aggs, map[string]any{
			"id": "2", "enabled": true, "type": "date_histogram", "schema": "segment",
			"params": map[string]any{"field": "@timestamp", "interval": "auto", "min_doc_count": 1},
		})
	}
	return aggs
}

func annotationParams(td *models.TargetDashboard) []map[string]any {
	out := make([]map[string]any, 0, len(td.Annotations))
	for i, a := range td.Annotations {
		color := a.Color
		if color == "" {
			color = "#F00"
		}
		out = append(out, map[string]any{
			"id":            fmt.Sprintf("annotation_%d", i),
			"name":          a.Name,
			"color":         color,
			"icon":          "fa-tag",
			"index_pattern": td.IndexPattern,
			"time_field":    "@timestamp",
			"template":      a.Text,
			"hidden":        !a.Active,
			"query_string":  map[string]any{"query": a.Query.Query, "language": queryLanguage(a.Query.Language)},
		})
	}
	return out
}

func queryLanguage(l string) string {
	if l == "" {
		return models.LanguageKQL
	}
	return l
}
