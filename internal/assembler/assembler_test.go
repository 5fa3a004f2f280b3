package assembler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/dashbridge/internal/config"
	"github.com/platformbuilds/dashbridge/internal/models"
)

func testAssembler() *Assembler {
	return New(config.DefaultTargetVersions())
}

func vis(id, panelID string, grid models.GridPos) models.TargetVisualization {
	return models.TargetVisualization{
		ID:            id,
		SourcePanelID: panelID,
		Title:         "Panel " + panelID,
		Family:        models.FamilyLine,
		SourceType:    "graph",
		Grid:          grid,
		Config:        models.VisualConfig{Params: map[string]any{"type": "line"}},
		Queries: []models.TranslatedQuery{{
			RefID: "A", Source: "up", Query: "prometheus.metrics.up : *", Language: models.LanguageKQL, Translated: true,
		}},
	}
}

func input(version string, visualizations ...models.TargetVisualization) Input {
	opts := models.DefaultConversionOptions()
	opts.TargetVersion = version
	return Input{
		Source: &models.SourceDashboard{
			Title: "Overview",
			UID:   "abc",
			Time:  models.TimeRange{From: "now-6h", To: "now"},
		},
		Options:        opts,
		Visualizations: visualizations,
	}
}

func TestBuild_RescalesAndReferences(t *testing.T) {
	td, warnings, err := testAssembler().Build(input("8.11.0",
		vis("a", "1", models.GridPos{X: 0, Y: 0, W: 12, H: 8}),
		vis("b", "2", models.GridPos{X: 12, Y: 0, W: 12, H: 8}),
	))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, models.GridPos{X: 24, Y: 0, W: 24, H: 16}, td.Visualizations[1].Grid)
	assert.Equal(t, models.ExportSingle, td.ExportMode)
	assert.Equal(t, "*", td.IndexPattern)
	require.Len(t, td.References, 2)
	assert.Equal(t, models.Reference{Name: "panel_0", Type: "visualization", ID: "a"}, td.References[0])
}

func TestBuild_UnknownVersion(t *testing.T) {
	_, _, err := testAssembler().Build(input("6.8.0"))
	assert.Error(t, err)
	assert.False(t, testAssembler().Supports("6.8.0"))
	assert.True(t, testAssembler().Supports("serverless"))
}

func TestBuild_DuplicateIDs(t *testing.T) {
	td, warnings, err := testAssembler().Build(input("8.11.0",
		vis("same", "1", models.GridPos{W: 6, H: 4}),
		vis("same", "1", models.GridPos{X: 6, W: 6, H: 4}),
		vis("same", "1", models.GridPos{X: 12, W: 6, H: 4}),
	))
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, v := range td.Visualizations {
		ids[v.ID] = true
	}
	assert.Len(t, ids, 3)
	assert.Equal(t, "same-2", td.Visualizations[1].ID)
	assert.Equal(t, "same-3", td.Visualizations[2].ID)
	require.Len(t, warnings, 2)
	assert.Equal(t, models.WarnDuplicatePanelID, warnings[0].Code)
	assert.Equal(t, "panels[1]", warnings[0].Path)
}

func TestBuild_PacksPlaceholders(t *testing.T) {
	td, warnings, err := testAssembler().Build(input("7.17.0",
		vis("a", "1", models.GridPos{X: 0, Y: 0, W: 24, H: 6}),
		vis("b", "2", models.GridPos{}),
		vis("c", "3", models.GridPos{}),
		vis("d", "4", models.GridPos{}),
	))
	require.NoError(t, err)
	require.Len(t, warnings, 3)

	// Source units: bottom=6, two columns of 12x8, then scaled by 2.
	assert.Equal(t, models.GridPos{X: 0, Y: 12, W: 24, H: 16}, td.Visualizations[1].Grid)
	assert.Equal(t, models.GridPos{X: 24, Y: 12, W: 24, H: 16}, td.Visualizations[2].Grid)
	assert.Equal(t, models.GridPos{X: 0, Y: 28, W: 24, H: 16}, td.Visualizations[3].Grid)
}

func TestBuild_ServerlessIsNDJSON(t *testing.T) {
	td, _, err := testAssembler().Build(input("serverless", vis("a", "1", models.GridPos{W: 1, H: 1})))
	require.NoError(t, err)
	assert.Equal(t, models.ExportNDJSON, td.ExportMode)
}

func TestBuild_ControlsWarnOnOldVersions(t *testing.T) {
	in := input("7.10.0")
	in.Controls = []models.Control{{ID: "c1", Name: "job", Kind: models.ControlOptionsList, Field: "prometheus.labels.job"}}
	_, warnings, err := testAssembler().Build(in)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, models.WarnConversionSkipped, warnings[0].Code)
}

func splitLines(t *testing.T, b []byte) [][]byte {
	t.Helper()
	var out [][]byte
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		out = append(out, append([]byte(nil), sc.Bytes()...))
	}
	require.NoError(t, sc.Err())
	return out
}

func TestEncode_BothEncodingsAgree(t *testing.T) {
	in := input("8.11.0",
		vis("a", "1", models.GridPos{W: 12, H: 8}),
		vis("b", "2", models.GridPos{X: 12, W: 12, H: 8}),
	)
	in.Controls = []models.Control{{ID: "c1", Name: "job", Label: "Job", Kind: models.ControlOptionsList, Field: "prometheus.labels.job"}}
	in.Annotations = []models.AnnotationLayer{{Name: "Deploys", Query: models.TranslatedQuery{Query: "event:deploy", Language: models.LanguageLucene}, Active: true}}
	td, _, err := testAssembler().Build(in)
	require.NoError(t, err)

	enc, err := Encode(td)
	require.NoError(t, err)

	lines := splitLines(t, enc.NDJSON)
	require.Len(t, lines, 3)

	var records []SavedObject
	for _, l := range lines {
		var o SavedObject
		require.NoError(t, json.Unmarshal(l, &o))
		records = append(records, o)
	}
	assert.Equal(t, "visualization", records[0].Type)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "visualization", records[1].Type)
	assert.Equal(t, "dashboard", records[2].Type, "dashboard record comes last")
	assert.Equal(t, td.ID, records[2].ID)
	assert.Equal(t, "8.11.0", records[2].TypeMigrationVersion)
	assert.Contains(t, records[2].Attributes, "controlGroupInput")

	var single struct {
		Dashboard      json.RawMessage    `json:"dashboard"`
		Visualizations []json.RawMessage  `json:"visualizations"`
		References     []models.Reference `json:"references"`
	}
	require.NoError(t, json.Unmarshal(enc.Single, &single))
	assert.Len(t, single.References, len(td.Visualizations))
	require.Len(t, single.Visualizations, 2)

	// Same records, different framing.
	assert.Equal(t, string(lines[0]), string(single.Visualizations[0]))
	assert.Equal(t, string(lines[2]), string(single.Dashboard))

	// The visualization points at the index pattern and carries its query.
	require.Len(t, records[0].References, 1)
	assert.Equal(t, "index-pattern", records[0].References[0].Type)
	meta := records[0].Attributes["kibanaSavedObjectMeta"].(map[string]any)
	var ss map[string]any
	require.NoError(t, json.Unmarshal([]byte(meta["searchSourceJSON"].(string)), &ss))
	assert.Equal(t, "prometheus.metrics.up : *", ss["query"].(map[string]any)["query"])

	var visState map[string]any
	require.NoError(t, json.Unmarshal([]byte(records[0].Attributes["visState"].(string)), &visState))
	assert.Equal(t, "line", visState["type"])
	assert.Contains(t, visState["params"], "annotations")
}

func TestEncode_MigrationVersionByRelease(t *testing.T) {
	td, _, err := testAssembler().Build(input("7.17.0", vis("a", "1", models.GridPos{W: 1, H: 1})))
	require.NoError(t, err)
	objs, err := SavedObjects(td)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"visualization": "7.17.0"}, objs[0].MigrationVersion)
	assert.Equal(t, map[string]string{"dashboard": "7.17.0"}, objs[1].MigrationVersion)
	assert.Empty(t, objs[1].TypeMigrationVersion)

	td, _, err = testAssembler().Build(input("serverless", vis("a", "1", models.GridPos{W: 1, H: 1})))
	require.NoError(t, err)
	objs, err = SavedObjects(td)
	require.NoError(t, err)
	assert.Empty(t, objs[1].MigrationVersion)
	assert.Empty(t, objs[1].CoreMigrationVersion)
}

func TestEncode_EmptyDashboard(t *testing.T) {
	td, _, err := testAssembler().Build(input("8.0.0"))
	require.NoError(t, err)
	enc, err := Encode(td)
	require.NoError(t, err)
	assert.Len(t, splitLines(t, enc.NDJSON), 1)
	assert.Contains(t, string(enc.Single), `"visualizations":[]`)
}

func TestEncode_UnencodableValueIsAnError(t *testing.T) {
	inf := math.Inf(1)
	bad := vis("a", "7", models.GridPos{W: 1, H: 1})
	bad.Config.Ranges = []models.ColorRange{{Color: "green"}, {From: &inf, Color: "red"}}

	td, _, err := testAssembler().Build(input("8.11.0", bad))
	require.NoError(t, err)

	enc, err := Encode(td)
	require.Error(t, err)
	assert.Nil(t, enc)
	assert.Contains(t, err.Error(), "panel 7")
}
