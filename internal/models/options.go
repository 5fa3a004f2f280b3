package models

// ExportMode selects the artifact encoding returned by default.
type ExportMode string

const (
	ExportSingle ExportMode = "single"
	ExportNDJSON ExportMode = "ndjson"
)

// TargetServerless is the target version that only accepts NDJSON imports.
const TargetServerless = "serverless"

// ConversionOptions are the caller supplied switches for one conversion.
// A false toggle skips that mapper; data is passed through or omitted, never
// rejected.
type ConversionOptions struct {
	PreservePanelIDs      bool   `json:"preserve_panel_ids" form:"preserve_panel_ids"`
	ConvertQueries        bool   `json:"convert_queries" form:"convert_queries"`
	ConvertVisualizations bool   `json:"convert_visualizations" form:"convert_visualizations"`
	ConvertVariables      bool   `json:"convert_variables" form:"convert_variables"`
	ConvertAnnotations    bool   `json:"convert_annotations" form:"convert_annotations"`
	TargetVersion         string `json:"target_version" form:"target_version"`
	IndexPattern          string `json:"index_pattern,omitempty" form:"index_pattern"`
}

// DefaultConversionOptions enables every mapper.
func DefaultConversionOptions() ConversionOptions {
	return ConversionOptions{
		PreservePanelIDs:      true,
		ConvertQueries:        true,
		ConvertVisualizations: true,
		ConvertVariables:      true,
		ConvertAnnotations:    true,
	}
}
