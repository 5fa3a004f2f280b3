package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/dashbridge/internal/config"
	"github.com/platformbuilds/dashbridge/internal/mapping"
	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/internal/services"
	"github.com/platformbuilds/dashbridge/internal/translate"
	"github.com/platformbuilds/dashbridge/internal/version"
)

// InfoHandler describes what the service can convert and how busy it is.
type InfoHandler struct {
	conversions *services.ConversionService
	jobs        *services.JobService
	uploads     config.UploadsConfig
	startedAt   time.Time
}

func NewInfoHandler(conversions *services.ConversionService, jobs *services.JobService, uploads config.UploadsConfig) *InfoHandler {
	return &InfoHandler{conversions: conversions, jobs: jobs, uploads: uploads, startedAt: time.Now()}
}

// GET /api/v1/capabilities
func (h *InfoHandler) Capabilities(c *gin.Context) {
	conv := h.conversions.Converter()
	cfg := conv.Config()

	c.JSON(http.StatusOK, gin.H{
		"panel_types": mapping.SupportedPanelTypes(),
		"visualization_families": []models.Family{
			models.FamilyLine, models.FamilyMetric, models.FamilyTable, models.FamilyHeatmap,
			models.FamilyPie, models.FamilyGauge, models.FamilyMarkdown,
		},
		"datasources":            translate.SupportedDatasources(),
		"target_versions":        cfg.TargetVersions,
		"default_target_version": cfg.DefaultTargetVersion,
		"export_formats":         []string{"json", "ndjson"},
		"default_options":        models.DefaultConversionOptions(),
		"query_suggestions":      conv.EnrichmentEnabled(),
		"limits": gin.H{
			"max_batch_size":         cfg.MaxBatchSize,
			"max_upload_bytes":       h.uploads.MaxBytes,
			"allowed_extensions":     h.uploads.AllowedExtensions,
			"large_dashboard_panels": cfg.LargeDashboardPanels,
		},
	})
}

// GET /api/v1/status
func (h *InfoHandler) Status(c *gin.Context) {
	stats := h.jobs.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":         "operational",
		"service":        "dashbridge",
		"version":        version.Version,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"active_jobs":    stats.Active,
		"total_jobs":     stats.Total,
		"jobs_by_status": stats.ByStatus,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
