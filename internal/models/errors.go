package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrBatchNotFound    = errors.New("batch not found")
	// ErrJobTerminal is returned for writes against a completed or failed job.
	ErrJobTerminal = errors.New("job is in a terminal state")
)

// ValidationIssue is one structural problem, addressed by a dotted path
// into the source document (panels.3.targets.0.expr).
type ValidationIssue struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ValidationError carries every issue found in a rejected document.
type ValidationError struct {
	Issues []ValidationIssue `json:"issues"`
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid dashboard"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", is.Path, is.Reason))
	}
	return "invalid dashboard: " + strings.Join(parts, "; ")
}

// Add appends an issue.
func (e *ValidationError) Add(path, reason string) {
	e.Issues = append(e.Issues, ValidationIssue{Path: path, Reason: reason})
}

// StorageError wraps a failed job/artifact store operation. It is fatal to
// the job that hit it.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Warning codes.
const (
	WarnUnsupportedPanel      = "unsupported_panel"
	WarnUnsupportedTarget     = "unsupported_target"
	WarnUnknownDatasource     = "unknown_datasource"
	WarnManualReview          = "manual_review_recommended"
	WarnQueryParseFailed      = "query_parse_failed"
	WarnLabelTemplate         = "label_template_passthrough"
	WarnMixedQueryLanguages   = "mixed_query_languages"
	WarnDuplicatePanelID      = "duplicate_panel_id"
	WarnUnsupportedVariable   = "unsupported_variable"
	WarnAnnotationPassthrough = "annotation_passthrough"
	WarnGridPacked            = "grid_auto_packed"
	WarnLargeDashboard        = "large_dashboard"
	WarnNoDatasources         = "no_datasources"
	WarnTranslationSkipped    = "query_translation_disabled"
	WarnEnrichmentSuggested   = "query_suggestion_available"
	WarnConversionSkipped     = "conversion_skipped"
	WarnNonFiniteValue        = "non_finite_value_dropped"
)

// Warning is a non-fatal degradation recorded against a conversion.
type Warning struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.Path == "" {
		return fmt.Sprintf("[%s] %s", w.Code, w.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", w.Code, w.Path, w.Message)
}

// NewWarning builds a Warning with a formatted message.
func NewWarning(code, path, format string, args ...any) Warning {
	return Warning{Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}
