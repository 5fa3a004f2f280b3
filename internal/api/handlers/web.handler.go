package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/dashbridge/internal/config"
	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/internal/services"
	"github.com/platformbuilds/dashbridge/pkg/logger"
)

// multipartSlack leaves room for multipart framing and option fields on top
// of the file size limit.
const multipartSlack = 64 << 10

// WebHandler serves the upload, poll and download flow.
type WebHandler struct {
	jobs        *services.JobService
	conversions *services.ConversionService
	uploads     config.UploadsConfig
	logger      logger.Logger
}

func NewWebHandler(jobs *services.JobService, conversions *services.ConversionService, uploads config.UploadsConfig, logger logger.Logger) *WebHandler {
	return &WebHandler{jobs: jobs, conversions: conversions, uploads: uploads, logger: logger}
}

// POST /upload
func (h *WebHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploads.MaxBytes+multipartSlack)

	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.tooLarge(c)
			return
		}
		badRequest(c, "missing_file", "multipart field \"file\" is required")
		return
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !h.extensionAllowed(ext) {
		badRequest(c, "unsupported_file_type",
			fmt.Sprintf("file must end in one of %s", strings.Join(h.uploads.AllowedExtensions, ", ")))
		return
	}
	if fh.Size > h.uploads.MaxBytes {
		h.tooLarge(c)
		return
	}

	f, err := fh.Open()
	if err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.uploads.MaxBytes+1))
	if err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if int64(len(data)) > h.uploads.MaxBytes {
		h.tooLarge(c)
		return
	}
	if ext == ".ndjson" {
		data = firstDocument(data)
	}

	opts, err := formOptions(c)
	if err != nil {
		respondError(c, err)
		return
	}

	job, err := h.jobs.StartJob(c.Request.Context(), data, fh.Filename, opts)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":      true,
		"job_id":       job.ID,
		"file_id":      job.ArtifactID,
		"status":       job.Status,
		"progress_url": "/progress/" + job.ID,
		"download_url": "/download/" + job.ArtifactID,
	})
}

// GET /progress/:jobId
func (h *WebHandler) Progress(c *gin.Context) {
	job, err := h.jobs.GetProgress(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{
		"job_id":     job.ID,
		"file_id":    job.ArtifactID,
		"status":     job.Status,
		"progress":   job.Progress,
		"stage":      job.Stage,
		"summary":    job.Summary,
		"warnings":   job.Warnings,
		"updated_at": job.UpdatedAt,
	}
	if job.Status == models.JobFailed {
		resp["error"] = job.Error
		resp["error_code"] = job.ErrorCode
	}
	c.JSON(http.StatusOK, resp)
}

// GET /download/:fileId?format=json|ndjson
func (h *WebHandler) Download(c *gin.Context) {
	art, err := h.conversions.GetArtifact(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		respondError(c, err)
		return
	}

	mode := art.DefaultFormat
	switch c.Query("format") {
	case "":
	case "json":
		mode = models.ExportSingle
	case "ndjson":
		mode = models.ExportNDJSON
	default:
		badRequest(c, "invalid_format", "format must be json or ndjson")
		return
	}

	contentType, ext := "application/json", ".json"
	if mode == models.ExportNDJSON {
		contentType, ext = "application/x-ndjson", ".ndjson"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, downloadName(art.Title, art.ID)+ext))
	c.Data(http.StatusOK, contentType, art.Encoding(mode))
}

// GET /preview/:fileId
func (h *WebHandler) Preview(c *gin.Context) {
	art, err := h.conversions.GetArtifact(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"file_id":        art.ID,
		"job_id":         art.JobID,
		"title":          art.Title,
		"dashboard_id":   art.DashboardID,
		"default_format": art.DefaultFormat,
		"created_at":     art.CreatedAt,
		"document":       json.RawMessage(art.Single),
	})
}

// GET /api/v1/jobs/:jobId
func (h *WebHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetProgress(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// GET /api/v1/jobs?limit=n
func (h *WebHandler) ListJobs(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(c, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	jobs := h.jobs.ListJobs(limit)
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (h *WebHandler) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"status":    "error",
		"error":     "file_too_large",
		"max_bytes": h.uploads.MaxBytes,
	})
}

func (h *WebHandler) extensionAllowed(ext string) bool {
	for _, a := range h.uploads.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

// formOptions reads conversion switches from multipart fields. An
// "options" field holding a JSON object is applied first; individual
// fields override it.
func formOptions(c *gin.Context) (models.ConversionOptions, error) {
	opts, err := decodeOptions(json.RawMessage(c.PostForm("options")))
	if err != nil {
		return opts, err
	}

	verr := &models.ValidationError{}
	flags := []struct {
		name string
		dst  *bool
	}{
		{"preserve_panel_ids", &opts.PreservePanelIDs},
		{"convert_queries", &opts.ConvertQueries},
		{"convert_visualizations", &opts.ConvertVisualizations},
		{"convert_variables", &opts.ConvertVariables},
		{"convert_annotations", &opts.ConvertAnnotations},
	}
	for _, f := range flags {
		v, ok := c.GetPostForm(f.name)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			verr.Add("options."+f.name, "must be true or false")
			continue
		}
		*f.dst = b
	}
	if v := c.PostForm("target_version"); v != "" {
		opts.TargetVersion = v
	}
	if v := c.PostForm("index_pattern"); v != "" {
		opts.IndexPattern = v
	}
	if len(verr.Issues) > 0 {
		return opts, verr
	}
	return opts, nil
}

// firstDocument returns the first non-empty line of an NDJSON upload.
func firstDocument(data []byte) []byte {
	for _, line := range bytes.Split(data, []byte("\n")) {
		if line = bytes.TrimSpace(line); len(line) > 0 {
			return line
		}
	}
	return nil
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func downloadName(title, fallback string) string {
	name := strings.Trim(unsafeFilename.ReplaceAllString(strings.TrimSpace(title), "-"), "-.")
	if name == "" {
		return fallback
	}
	if len(name) > 100 {
		name = name[:100]
	}
	return strings.ToLower(name)
}
