package models

import "time"

// JobStatus is the lifecycle state of a ConversionJob.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ConversionSummary counts the outcome of one conversion.
type ConversionSummary struct {
	TotalPanels          int            `json:"total_panels"`
	SupportedPanels      int            `json:"supported_panels"`
	UnsupportedPanels    int            `json:"unsupported_panels"`
	TotalVariables       int            `json:"total_variables"`
	SupportedVariables   int            `json:"supported_variables"`
	UnsupportedVariables int            `json:"unsupported_variables"`
	TotalAnnotations     int            `json:"total_annotations"`
	ConvertedAnnotations int            `json:"converted_annotations"`
	TranslatedQueries    int            `json:"translated_queries"`
	PassthroughQueries   int            `json:"passthrough_queries"`
	PanelTypes           map[string]int `json:"panel_types,omitempty"`
	Datasources          []string       `json:"datasources,omitempty"`
	ElapsedMs            int64          `json:"elapsed_ms"`
}

// ConversionJob is the tracked state of an asynchronous conversion.
type ConversionJob struct {
	ID          string            `json:"job_id"`
	ArtifactID  string            `json:"file_id"`
	Status      JobStatus         `json:"status"`
	Progress    int               `json:"progress"`
	Stage       string            `json:"stage,omitempty"`
	Title       string            `json:"title,omitempty"`
	Filename    string            `json:"filename,omitempty"`
	Options     ConversionOptions `json:"options"`
	Summary     ConversionSummary `json:"summary"`
	Warnings    []Warning         `json:"warnings"`
	Error       string            `json:"error,omitempty"`
	ErrorCode   string            `json:"error_code,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Clone returns a deep enough copy for handing to readers.
func (j *ConversionJob) Clone() *ConversionJob {
	if j == nil {
		return nil
	}
	c := *j
	c.Warnings = append([]Warning(nil), j.Warnings...)
	if j.Summary.PanelTypes != nil {
		c.Summary.PanelTypes = make(map[string]int, len(j.Summary.PanelTypes))
		for k, v := range j.Summary.PanelTypes {
			c.Summary.PanelTypes[k] = v
		}
	}
	c.Summary.Datasources = append([]string(nil), j.Summary.Datasources...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Artifact is the persisted output of one conversion. Both encodings are
// produced from the same TargetDashboard.
type Artifact struct {
	ID            string     `json:"file_id"`
	JobID         string     `json:"job_id,omitempty"`
	Title         string     `json:"title"`
	DashboardID   string     `json:"dashboard_id"`
	DefaultFormat ExportMode `json:"default_format"`
	Single        []byte     `json:"single"`
	NDJSON        []byte     `json:"ndjson"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Encoding returns the bytes for the requested mode.
func (a *Artifact) Encoding(mode ExportMode) []byte {
	if mode == ExportNDJSON {
		return a.NDJSON
	}
	return a.Single
}

// BatchResult is the stored aggregate of one batch request, ordered by input index.
type BatchResult struct {
	ID        string            `json:"batch_id"`
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []BatchItemResult `json:"results"`
	CreatedAt time.Time         `json:"created_at"`
	ElapsedMs int64             `json:"elapsed_ms"`
}

// BatchItemResult is shaped like a synchronous convert response.
type BatchItemResult struct {
	Index            int                `json:"index"`
	Success          bool               `json:"success"`
	JobID            string             `json:"job_id,omitempty"`
	FileID           string             `json:"file_id,omitempty"`
	TargetDocument   any                `json:"target_document,omitempty"`
	ValidationErrors []ValidationIssue  `json:"validation_errors,omitempty"`
	Error            string             `json:"error,omitempty"`
	Summary          *ConversionSummary `json:"summary,omitempty"`
	Warnings         []Warning          `json:"warnings"`
	ElapsedMs        int64              `json:"elapsed_ms"`
}
