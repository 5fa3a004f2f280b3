package validation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/dashbridge/internal/models"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

func issuePaths(t *testing.T, err error) []string {
	t.Helper()
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	out := make([]string, 0, len(verr.Issues))
	for _, is := range verr.Issues {
		out = append(out, is.Path)
	}
	return out
}

func TestValidate_FullDashboard(t *testing.T) {
	d, err := NewValidator().Validate(loadFixture(t, "full.json"))
	require.NoError(t, err)

	assert.Equal(t, "Service Overview", d.Title)
	assert.Equal(t, "svc-overview", d.UID)
	assert.Equal(t, 38, d.SchemaVersion)
	assert.Equal(t, []string{"prod", "api"}, d.Tags)
	assert.Equal(t, models.TimeRange{From: "now-6h", To: "now"}, d.Time)
	assert.Contains(t, d.Meta, "timezone")
	assert.Contains(t, d.Meta, "refresh")

	// The collapsed row is flattened into its children.
	require.Len(t, d.Panels, 5)
	ids := []string{}
	for _, p := range d.Panels {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"1", "2", "4", "5", "6"}, ids)

	ts := d.Panels[0]
	assert.Equal(t, "timeseries", ts.Type)
	assert.Equal(t, models.GridPos{X: 0, Y: 0, W: 12, H: 8}, ts.GridPos)
	assert.Equal(t, "reqps", ts.FieldConfig.Unit)
	require.NotNil(t, ts.FieldConfig.Decimals)
	assert.Equal(t, 1, *ts.FieldConfig.Decimals)
	require.Len(t, ts.FieldConfig.Thresholds, 2)
	assert.Nil(t, ts.FieldConfig.Thresholds[0].Value)
	assert.Equal(t, 80.0, *ts.FieldConfig.Thresholds[1].Value)
	require.Len(t, ts.Targets, 1)
	assert.Equal(t, "{{code}}", ts.Targets[0].LegendFormat)
	assert.Equal(t, "prometheus", ts.Targets[0].Datasource.Type)

	// Empty Elasticsearch queries match everything.
	assert.Equal(t, "*", d.Panels[1].Targets[0].Expr)

	// Legacy string datasource inherited by targets.
	assert.Equal(t, "${DS_PROMETHEUS}", d.Panels[2].Targets[0].Datasource.Name)

	legacy := d.Panels[4]
	assert.True(t, legacy.GridPos.IsZero())
	assert.Equal(t, "percent", legacy.FieldConfig.Unit)
	require.Len(t, legacy.FieldConfig.Thresholds, 3)
	assert.Equal(t, "red", legacy.FieldConfig.Thresholds[2].Color)
	assert.Equal(t,
		`namespace="AWS/EC2" metric="CPUUtilization" region="us-east-1" dim.InstanceId="i-123"`,
		legacy.Targets[0].Expr)

	require.Len(t, d.Variables, 4)
	assert.Equal(t, models.VariableQuery, d.Variables[0].Kind)
	assert.Equal(t, "label_values(up, job)", d.Variables[0].Query)
	assert.True(t, d.Variables[0].Multi)
	assert.Equal(t, []string{"prod", "staging"}, d.Variables[3].Options)

	require.Len(t, d.Annotations, 2)
	assert.True(t, d.Annotations[0].BuiltIn)
	assert.False(t, d.Annotations[1].Enabled)
	assert.Contains(t, d.Annotations[1].Expr, "deploy_timestamp")

	assert.Equal(t, []string{"prometheus", "elasticsearch", "${DS_PROMETHEUS}", "cloudwatch"}, d.DatasourceTypes())
}

func TestValidate_Issues(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		paths []string
	}{
		{"not json", `{"title":`, []string{"$"}},
		{"array root", `[1,2]`, []string{"$"}},
		{"missing everything", `{}`, []string{"title", "schemaVersion", "panels"}},
		{"panels not array", `{"title":"x","schemaVersion":1,"panels":{}}`, []string{"panels"}},
		{"negative schema", `{"title":"x","schemaVersion":-1,"panels":[]}`, []string{"schemaVersion"}},
		{"fractional schema", `{"title":"x","schemaVersion":1.5,"panels":[]}`, []string{"schemaVersion"}},
		{"blank title", `{"title":"  ","schemaVersion":1,"panels":[]}`, []string{"title"}},
		{
			"panel without id or type",
			`{"title":"x","schemaVersion":1,"panels":[{"title":"p"}]}`,
			[]string{"panels.0.id", "panels.0.type"},
		},
		{
			"empty prometheus expression",
			`{"title":"x","schemaVersion":1,"panels":[{"id":1,"type":"graph","datasource":"prometheus","targets":[{"refId":"A","expr":""}]}]}`,
			[]string{"panels.0.targets.0.expr"},
		},
		{
			"grid beyond range",
			`{"title":"x","schemaVersion":1,"panels":[{"id":1,"type":"graph","gridPos":{"x":1e18,"y":0,"w":-2,"h":"8"}}]}`,
			[]string{"panels.0.gridPos.x", "panels.0.gridPos.w", "panels.0.gridPos.h"},
		},
		{
			"nested row child",
			`{"title":"x","schemaVersion":1,"panels":[{"id":1,"type":"row","panels":[{"id":2}]}]}`,
			[]string{"panels.0.panels.0.type"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewValidator().Validate([]byte(tt.doc))
			assert.Nil(t, d)
			assert.Equal(t, tt.paths, issuePaths(t, err))
		})
	}
}

func TestValidate_TargetsFlaggedNotRejected(t *testing.T) {
	doc := `{"title":"x","schemaVersion":30,"panels":[{"id":"a","type":"graph","targets":[
		{"refId":"A","hide":true,"expr":""},
		{"refId":"B","datasource":{"type":"vendor-x"},"someField":1}
	]}]}`
	d, err := NewValidator().Validate([]byte(doc))
	require.NoError(t, err)
	require.Len(t, d.Panels[0].Targets, 2)
	for _, tg := range d.Panels[0].Targets {
		assert.True(t, tg.Unsupported, tg.RefID)
		assert.NotEmpty(t, tg.UnsupportedReason)
	}
	assert.Equal(t, "a", d.Panels[0].ID)
}

func TestValidate_InfluxBuilder(t *testing.T) {
	doc := `{"title":"x","schemaVersion":30,"panels":[{"id":1,"type":"graph","datasource":"influxdb","targets":[
		{"refId":"A","measurement":"cpu","tags":[{"key":"host","operator":"=","value":"web-1"}]}
	]}]}`
	d, err := NewValidator().Validate([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "cpu" WHERE "host" = 'web-1'`, d.Panels[0].Targets[0].Expr)
}

func TestValidate_EnvelopeNotUnwrappedWhenPanelsPresent(t *testing.T) {
	doc := `{"title":"outer","schemaVersion":1,"panels":[],"dashboard":{"title":"inner"}}`
	d, err := NewValidator().Validate([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "outer", d.Title)
	assert.Contains(t, d.Meta, "dashboard")
}

func TestValidate_NonFiniteNumbersDropped(t *testing.T) {
	doc := `{"title":"x","schemaVersion":30,"panels":[{"id":1,"type":"stat",
		"gridPos":{"x":0,"y":0,"w":10000,"h":null},
		"fieldConfig":{"defaults":{"max":-1e400,"min":0,
			"thresholds":{"steps":[{"value":null,"color":"green"},{"value":1e400,"color":"red"},{"value":80,"color":"orange"}]},
			"custom":{"lineWidth":1,"fillOpacity":1e999,"nested":{"a":[2,1e400]}}}},
		"options":{"reduceOptions":{"limit":1e400},"text":"ok"}}]}`
	d, err := NewValidator().Validate([]byte(doc))
	require.NoError(t, err)

	p := d.Panels[0]
	assert.Equal(t, models.GridPos{W: 10000}, p.GridPos)
	assert.Nil(t, p.FieldConfig.Max)
	require.NotNil(t, p.FieldConfig.Min)

	require.Len(t, p.FieldConfig.Thresholds, 2)
	assert.Nil(t, p.FieldConfig.Thresholds[0].Value)
	require.NotNil(t, p.FieldConfig.Thresholds[1].Value)
	assert.Equal(t, 80.0, *p.FieldConfig.Thresholds[1].Value)

	assert.NotContains(t, p.FieldConfig.Extra, "fillOpacity")
	assert.Equal(t, []any{2.0, nil}, p.FieldConfig.Extra["nested"].(map[string]any)["a"])
	assert.NotContains(t, p.Options["reduceOptions"], "limit")
	assert.Equal(t, "ok", p.Options["text"])

	paths := []string{}
	for _, w := range d.Warnings {
		assert.Equal(t, models.WarnNonFiniteValue, w.Code)
		paths = append(paths, w.Path)
	}
	assert.Equal(t, []string{
		"panels.0.fieldConfig.defaults.max",
		"panels.0.fieldConfig.defaults.thresholds.steps.1.value",
		"panels.0.fieldConfig.defaults.custom.fillOpacity",
		"panels.0.fieldConfig.defaults.custom.nested.a.1",
		"panels.0.options.reduceOptions.limit",
	}, paths)
}

func TestValidate_LegacyThresholdOverflow(t *testing.T) {
	doc := `{"title":"x","schemaVersion":16,"panels":[{"id":1,"type":"singlestat","thresholds":"50,1e400","colors":["g","o","r"]}]}`
	d, err := NewValidator().Validate([]byte(doc))
	require.NoError(t, err)
	require.Len(t, d.Panels[0].FieldConfig.Thresholds, 2)
	assert.Equal(t, 50.0, *d.Panels[0].FieldConfig.Thresholds[1].Value)
	require.Len(t, d.Warnings, 1)
	assert.Equal(t, "panels.0.thresholds.1", d.Warnings[0].Path)
}
