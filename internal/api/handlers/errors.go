package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/dashbridge/internal/models"
)

// respondError maps service errors onto the JSON error envelope.
func respondError(c *gin.Context, err error) {
	var verr *models.ValidationError
	var serr *models.StorageError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "validation_failed",
			"errors": verr.Issues,
		})
	case errors.Is(err, models.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "job_not_found"})
	case errors.Is(err, models.ErrArtifactNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "file_not_found"})
	case errors.Is(err, models.ErrBatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "batch_not_found"})
	case errors.As(err, &serr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "storage_error",
			"detail": serr.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "internal_error",
			"detail": err.Error(),
		})
	}
}

func badRequest(c *gin.Context, code, detail string) {
	c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": code, "detail": detail})
}

// decodeOptions overlays caller options on the defaults, so omitted
// toggles stay enabled.
func decodeOptions(raw json.RawMessage) (models.ConversionOptions, error) {
	opts := models.DefaultConversionOptions()
	if len(raw) == 0 || string(raw) == "null" {
		return opts, nil
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		verr := &models.ValidationError{}
		verr.Add("options", "options must be an object of conversion switches: "+err.Error())
		return opts, verr
	}
	return opts, nil
}
