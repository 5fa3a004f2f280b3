package models

import "encoding/json"

// SourceDashboard is a validated, normalized Grafana dashboard. It is built
// once by the validator and treated as read-only afterwards.
type SourceDashboard struct {
	Title         string             `json:"title"`
	UID           string             `json:"uid"`
	SchemaVersion int                `json:"schemaVersion"`
	Description   string             `json:"description,omitempty"`
	Tags          []string           `json:"tags,omitempty"`
	Panels        []SourcePanel      `json:"panels"`
	Variables     []TemplateVariable `json:"variables"`
	Annotations   []AnnotationQuery  `json:"annotations"`
	Time          TimeRange          `json:"time"`
	// Meta holds the display and time settings that are carried through
	// unchanged (timezone, refresh, links, graphTooltip, ...).
	Meta map[string]json.RawMessage `json:"meta,omitempty"`
	// Warnings are the values the validator dropped while normalizing.
	Warnings []Warning `json:"-"`
}

// TimeRange is Grafana's relative or absolute dashboard time window.
type TimeRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// GridPos is a rectangle in source grid units (24 columns).
type GridPos struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// IsZero reports a zero sized placeholder that still needs packing.
func (g GridPos) IsZero() bool { return g.W == 0 || g.H == 0 }

// DatasourceRef is either the legacy string form (Name) or the object form
// (UID and Type) of a Grafana datasource reference.
type DatasourceRef struct {
	UID  string `json:"uid,omitempty"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// IsEmpty reports whether no datasource information is present.
func (d DatasourceRef) IsEmpty() bool {
	return d.UID == "" && d.Type == "" && d.Name == ""
}

type SourcePanel struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	GridPos     GridPos         `json:"gridPos"`
	Datasource  DatasourceRef   `json:"datasource"`
	Targets     []Target        `json:"targets"`
	FieldConfig FieldConfig     `json:"fieldConfig"`
	Options     map[string]any  `json:"options,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// FieldConfig is the subset of fieldConfig.defaults that the mappers read.
// Everything else stays in Extra.
type FieldConfig struct {
	Unit       string         `json:"unit,omitempty"`
	Decimals   *int           `json:"decimals,omitempty"`
	Min        *float64       `json:"min,omitempty"`
	Max        *float64       `json:"max,omitempty"`
	ColorMode  string         `json:"colorMode,omitempty"`
	Thresholds []Threshold    `json:"thresholds,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Threshold is one step; a nil Value is the base step.
type Threshold struct {
	Color string   `json:"color"`
	Value *float64 `json:"value"`
}

// Target is one query of a panel.
type Target struct {
	RefID        string        `json:"refId"`
	Expr         string        `json:"expr"`
	LegendFormat string        `json:"legendFormat,omitempty"`
	Datasource   DatasourceRef `json:"datasource"`
	Hidden       bool          `json:"hide,omitempty"`
	// Unsupported marks a target the validator could not extract an
	// expression from; UnsupportedReason says why.
	Unsupported       bool            `json:"unsupported,omitempty"`
	UnsupportedReason string          `json:"unsupportedReason,omitempty"`
	Raw               json.RawMessage `json:"-"`
}

// VariableKind is the declared type of a template variable.
type VariableKind string

const (
	VariableQuery      VariableKind = "query"
	VariableCustom     VariableKind = "custom"
	VariableInterval   VariableKind = "interval"
	VariableDatasource VariableKind = "datasource"
	VariableConstant   VariableKind = "constant"
	VariableTextbox    VariableKind = "textbox"
)

type TemplateVariable struct {
	Name       string          `json:"name"`
	Label      string          `json:"label,omitempty"`
	Kind       VariableKind    `json:"kind"`
	Query      string          `json:"query"`
	Options    []string        `json:"options,omitempty"`
	Multi      bool            `json:"multi"`
	IncludeAll bool            `json:"includeAll"`
	Datasource DatasourceRef   `json:"datasource"`
	Raw        json.RawMessage `json:"-"`
}

type AnnotationQuery struct {
	Name         string          `json:"name"`
	Datasource   DatasourceRef   `json:"datasource"`
	Expr         string          `json:"expr"`
	TextTemplate string          `json:"textFormat,omitempty"`
	TitleFormat  string          `json:"titleFormat,omitempty"`
	IconColor    string          `json:"iconColor,omitempty"`
	Enabled      bool            `json:"enable"`
	BuiltIn      bool            `json:"builtIn,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

// DatasourceTypes returns the distinct datasource types referenced by the
// dashboard's panels and targets, in first-seen order.
func (d *SourceDashboard) DatasourceTypes() []string {
	seen := map[string]bool{}
	var out []string
	add := func(ref DatasourceRef) {
		t := ref.Type
		if t == "" {
			t = ref.Name
		}
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}
	for _, p := range d.Panels {
		add(p.Datasource)
		for _, t := range p.Targets {
			add(t.Datasource)
		}
	}
	return out
}
