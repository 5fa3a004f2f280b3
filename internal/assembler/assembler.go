// Package assembler composes mapped panels, controls and annotation layers
// into a Kibana dashboard and encodes it as saved objects.
package assembler

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/platformbuilds/dashbridge/internal/config"
	"github.com/platformbuilds/dashbridge/internal/mapping"
	"github.com/platformbuilds/dashbridge/internal/models"
)

// Grafana grid defaults used when a panel has no gridPos.
const (
	sourceColumns     = 24
	placeholderWidth  = 12
	placeholderHeight = 8
)

// Input is everything the mappers produced for one dashboard.
type Input struct {
	Source         *models.SourceDashboard
	Options        models.ConversionOptions
	Visualizations []models.TargetVisualization
	Controls       []models.Control
	Annotations    []models.AnnotationLayer
}

type Assembler struct {
	versions map[string]config.TargetVersionConfig
}

func New(versions []config.TargetVersionConfig) *Assembler {
	a := &Assembler{versions: make(map[string]config.TargetVersionConfig, len(versions))}
	for _, v := range versions {
		a.versions[v.Version] = v
	}
	return a
}

// Supports reports whether version is in the version table.
func (a *Assembler) Supports(version string) bool {
	_, ok := a.versions[version]
	return ok
}

// Build produces the TargetDashboard. Visualizations keep source panel order.
func (a *Assembler) Build(in Input) (*models.TargetDashboard, []models.Warning, error) {
	tv, ok := a.versions[in.Options.TargetVersion]
	if !ok {
		return nil, nil, fmt.Errorf("unknown target version %q", in.Options.TargetVersion)
	}
	scale := tv.GridScale
	if scale < 1 {
		scale = 1
	}

	var warnings []models.Warning
	vis := make([]models.TargetVisualization, len(in.Visualizations))
	copy(vis, in.Visualizations)

	warnings = append(warnings, dedupeIDs(vis)...)
	warnings = append(warnings, packPlaceholders(vis)...)
	for i := range vis {
		vis[i].Grid = models.GridPos{
			X: vis[i].Grid.X * scale,
			Y: vis[i].Grid.Y * scale,
			W: vis[i].Grid.W * scale,
			H: vis[i].Grid.H * scale,
		}
	}

	refs := make([]models.Reference, len(vis))
	for i, v := range vis {
		refs[i] = models.Reference{Name: panelRefName(i), Type: v.SavedObjectType(), ID: v.ID}
	}

	src := in.Source
	key := src.UID
	if key == "" {
		key = src.Title
	}
	indexPattern := in.Options.IndexPattern
	if indexPattern == "" {
		indexPattern = "*"
	}

	td := &models.TargetDashboard{
		ID:             mapping.ObjectID(in.Options.PreservePanelIDs, key, "dashboard"),
		Title:          src.Title,
		Description:    src.Description,
		Tags:           src.Tags,
		Visualizations: vis,
		References:     refs,
		Controls:       in.Controls,
		Annotations:    in.Annotations,
		Time:           src.Time,
		TargetVersion:  tv.Version,
		ExportMode:     models.ExportMode(tv.ExportMode),
		IndexPattern:   indexPattern,
		Meta:           src.Meta,
	}

	if len(td.Controls) > 0 && !supportsControlGroup(tv.Version) {
		warnings = append(warnings, models.NewWarning(models.WarnConversionSkipped, "templating",
			"Kibana %s has no dashboard control group; %d controls are listed in the conversion result only",
			tv.Version, len(td.Controls)))
	}
	return td, warnings, nil
}

func panelRefName(i int) string { return fmt.Sprintf("panel_%d", i) }

// dedupeIDs suffixes colliding ids with -2, -3, ... in source order.
func dedupeIDs(vis []models.TargetVisualization) []models.Warning {
	var warnings []models.Warning
	seen := make(map[string]bool, len(vis))
	for i := range vis {
		id := vis[i].ID
		if !seen[id] {
			seen[id] = true
			continue
		}
		n := 2
		candidate := fmt.Sprintf("%s-%d", id, n)
		for seen[candidate] {
			n++
			candidate = fmt.Sprintf("%s-%d", id, n)
		}
		seen[candidate] = true
		vis[i].ID = candidate
		warnings = append(warnings, models.NewWarning(models.WarnDuplicatePanelID, fmt.Sprintf("panels[%d]", i),
			"panel id %s is used more than once; visualization id changed to %s", vis[i].SourcePanelID, candidate))
	}
	return warnings
}

// packPlaceholders places zero-sized panels in two columns below the lowest
// positioned panel, in source grid units.
func packPlaceholders(vis []models.TargetVisualization) []models.Warning {
	var warnings []models.Warning
	bottom := 0
	for _, v := range vis {
		if !v.Grid.IsZero() && v.Grid.Y+v.Grid.H > bottom {
			bottom = v.Grid.Y + v.Grid.H
		}
	}
	slot := 0
	for i := range vis {
		if !vis[i].Grid.IsZero() {
			continue
		}
		col := slot % (sourceColumns / placeholderWidth)
		row := slot / (sourceColumns / placeholderWidth)
		vis[i].Grid = models.GridPos{
			X: col * placeholderWidth,
			Y: bottom + row*placeholderHeight,
			W: placeholderWidth,
			H: placeholderHeight,
		}
		slot++
		warnings = append(warnings, models.NewWarning(models.WarnGridPacked, fmt.Sprintf("panels[%d]", i),
			"panel %s had no position; placed at x=%d y=%d", vis[i].SourcePanelID, vis[i].Grid.X, vis[i].Grid.Y))
	}
	return warnings
}

var (
	controlGroupSince  = semver.MustParse("8.0.0")
	typeMigrationSince = semver.MustParse("8.8.0")
)

// versionOf parses a numbered release; serverless and other labels return nil.
func versionOf(v string) *semver.Version {
	sv, err := semver.NewVersion(v)
	if err != nil {
		return nil
	}
	return sv
}

func supportsControlGroup(version string) bool {
	sv := versionOf(version)
	return sv == nil || !sv.LessThan(controlGroupSince)
}
