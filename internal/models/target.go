package models

import (
	"encoding/json"
	"strings"
)

// Family is the Kibana visualization family a panel is mapped to.
type Family string

const (
	FamilyLine        Family = "line"
	FamilyMetric      Family = "metric"
	FamilyTable       Family = "table"
	FamilyHeatmap     Family = "heatmap"
	FamilyPie         Family = "pie"
	FamilyGauge       Family = "gauge"
	FamilyMarkdown    Family = "markdown"
	FamilyUnsupported Family = "unsupported"
)

// Kibana query languages.
const (
	LanguageKQL    = "kuery"
	LanguageLucene = "lucene"
)

// TranslatedQuery is the result of translating one source target.
type TranslatedQuery struct {
	RefID    string `json:"refId"`
	Source   string `json:"source"`
	Query    string `json:"query"`
	Language string `json:"language"`
	Label    string `json:"label,omitempty"`
	// Translated is false when Query is the unmodified source expression.
	Translated     bool   `json:"translated"`
	DatasourceKind string `json:"datasourceKind"`
	SuggestedQuery string `json:"suggestedQuery,omitempty"`
}

// VisualConfig is the translated field, threshold and color config.
type VisualConfig struct {
	Unit      string         `json:"unit,omitempty"`
	Decimals  *int           `json:"decimals,omitempty"`
	Min       *float64       `json:"min,omitempty"`
	Max       *float64       `json:"max,omitempty"`
	ColorMode string         `json:"colorMode,omitempty"`
	Ranges    []ColorRange   `json:"ranges,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// ColorRange is a Kibana color band [From, To).
type ColorRange struct {
	From  *float64 `json:"from,omitempty"`
	To    *float64 `json:"to,omitempty"`
	Color string   `json:"color"`
}

type TargetVisualization struct {
	ID            string            `json:"id"`
	SourcePanelID string            `json:"sourcePanelId"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	Family        Family            `json:"family"`
	SourceType    string            `json:"sourceType"`
	Queries       []TranslatedQuery `json:"queries"`
	Config        VisualConfig      `json:"config"`
	Grid          GridPos           `json:"grid"`
	// Unsupported marks a markdown stub that embeds the source definition.
	Unsupported bool            `json:"unsupported"`
	Markdown    string          `json:"markdown,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// SavedObjectType is the Kibana saved object type of the visualization.
func (v TargetVisualization) SavedObjectType() string { return "visualization" }

// SearchQuery folds the visualization's queries into the single query a
// Kibana search source holds. Queries sharing a language are OR-ed; when
// languages differ the first query wins and mixed is true.
func (v TargetVisualization) SearchQuery() (query, language string, mixed bool) {
	var parts []string
	for _, q := range v.Queries {
		if q.Query == "" {
			continue
		}
		if language == "" {
			language = q.Language
		}
		if q.Language != language {
			mixed = true
			continue
		}
		parts = append(parts, q.Query)
	}
	switch len(parts) {
	case 0:
		return "", LanguageKQL, false
	case 1:
		return parts[0], language, mixed
	}
	if mixed {
		return parts[0], language, true
	}
	return "(" + strings.Join(parts, ") or (") + ")", language, false
}

// ControlKind is the Kibana input control type.
type ControlKind string

const (
	ControlOptionsList ControlKind = "list"
	ControlStatic      ControlKind = "static"
	ControlDatasource  ControlKind = "datasource"
	ControlInfo        ControlKind = "info"
)

// Control is a dashboard-level input control derived from a template variable.
type Control struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Label      string           `json:"label"`
	Kind       ControlKind      `json:"kind"`
	Field      string           `json:"field,omitempty"`
	Query      *TranslatedQuery `json:"query,omitempty"`
	Options    []string         `json:"options,omitempty"`
	Multi      bool             `json:"multi"`
	IncludeAll bool             `json:"includeAll"`
	Disabled   bool             `json:"disabled"`
	Raw        json.RawMessage  `json:"raw,omitempty"`
}

// AnnotationLayer is an event overlay bound to the dashboard.
type AnnotationLayer struct {
	Name   string          `json:"name"`
	Query  TranslatedQuery `json:"query"`
	Text   string          `json:"text,omitempty"`
	Color  string          `json:"color,omitempty"`
	Active bool            `json:"active"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// Reference links a dashboard to one of its saved objects.
type Reference struct {
	Name string `json:"name"`
	Type string `json:"type"`
	ID   string `json:"id"`
}

type TargetDashboard struct {
	ID             string                     `json:"id"`
	Title          string                     `json:"title"`
	Description    string                     `json:"description,omitempty"`
	Tags           []string                   `json:"tags,omitempty"`
	Visualizations []TargetVisualization      `json:"visualizations"`
	References     []Reference                `json:"references"`
	Controls       []Control                  `json:"controls,omitempty"`
	Annotations    []AnnotationLayer          `json:"annotations,omitempty"`
	Time           TimeRange                  `json:"time"`
	TargetVersion  string                     `json:"targetVersion"`
	ExportMode     ExportMode                 `json:"exportMode"`
	IndexPattern   string                     `json:"indexPattern"`
	Meta           map[string]json.RawMessage `json:"meta,omitempty"`
}
