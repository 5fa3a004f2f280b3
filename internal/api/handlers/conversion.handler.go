package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/internal/services"
	"github.com/platformbuilds/dashbridge/pkg/logger"
)

// ConversionHandler serves synchronous, validate-only and batch conversions.
type ConversionHandler struct {
	conversions *services.ConversionService
	maxBytes    int64
	logger      logger.Logger
}

func NewConversionHandler(conversions *services.ConversionService, maxBytes int64, logger logger.Logger) *ConversionHandler {
	return &ConversionHandler{conversions: conversions, maxBytes: maxBytes, logger: logger}
}

type convertRequest struct {
	Dashboard json.RawMessage `json:"dashboard"`
	Options   json.RawMessage `json:"options"`
}

type batchRequest struct {
	Dashboards []json.RawMessage `json:"dashboards"`
	Options    json.RawMessage   `json:"options"`
}

// POST /api/v1/convert
func (h *ConversionHandler) Convert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if len(req.Dashboard) == 0 || string(req.Dashboard) == "null" {
		verr := &models.ValidationError{}
		verr.Add("dashboard", "dashboard is required")
		respondError(c, verr)
		return
	}
	opts, err := decodeOptions(req.Options)
	if err != nil {
		respondError(c, err)
		return
	}

	item, err := h.conversions.Convert(c.Request.Context(), req.Dashboard, opts, "sync")
	if err != nil {
		h.logger.Error("conversion failed", "error", err)
		respondError(c, err)
		return
	}
	if !item.Success {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":            "error",
			"error":             "validation_failed",
			"success":           false,
			"validation_errors": item.ValidationErrors,
			"elapsed_ms":        item.ElapsedMs,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"file_id":         item.FileID,
		"target_document": item.TargetDocument,
		"summary":         item.Summary,
		"warnings":        item.Warnings,
		"elapsed_ms":      item.ElapsedMs,
	})
}

// GET /api/v1/convert/:fileId
func (h *ConversionHandler) GetConversion(c *gin.Context) {
	art, err := h.conversions.GetArtifact(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"file_id":         art.ID,
		"title":           art.Title,
		"dashboard_id":    art.DashboardID,
		"default_format":  art.DefaultFormat,
		"created_at":      art.CreatedAt,
		"target_document": json.RawMessage(art.Single),
	})
}

// DELETE /api/v1/convert/:fileId
func (h *ConversionHandler) DeleteConversion(c *gin.Context) {
	id := c.Param("fileId")
	if err := h.conversions.DeleteArtifact(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "file_id": id})
}

// POST /api/v1/validate
//
// The body is the raw dashboard. Rejected documents are a normal answer
// here, reported with valid=false.
func (h *ConversionHandler) Validate(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": "error", "error": "file_too_large"})
			return
		}
		badRequest(c, "invalid_request", err.Error())
		return
	}

	src, summary, warnings, err := h.conversions.Validate(body)
	if err != nil {
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"valid":    false,
			"errors":   verr.Issues,
			"warnings": []models.Warning{},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":          true,
		"errors":         []models.ValidationIssue{},
		"title":          src.Title,
		"uid":            src.UID,
		"schema_version": src.SchemaVersion,
		"summary":        summary,
		"warnings":       warnings,
	})
}

// POST /api/v1/batch
func (h *ConversionHandler) Batch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	opts, err := decodeOptions(req.Options)
	if err != nil {
		respondError(c, err)
		return
	}

	batch, err := h.conversions.RunBatch(c.Request.Context(), req.Dashboards, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// GET /api/v1/batch/:batchId
func (h *ConversionHandler) GetBatch(c *gin.Context) {
	batch, err := h.conversions.GetBatch(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// DELETE /api/v1/batch/:batchId
func (h *ConversionHandler) DeleteBatch(c *gin.Context) {
	id := c.Param("batchId")
	if err := h.conversions.DeleteBatch(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "batch_id": id})
}
