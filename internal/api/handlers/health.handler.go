package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/dashbridge/internal/version"
	"github.com/platformbuilds/dashbridge/pkg/logger"
)

// Pinger is the readiness probe of the artifact store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store  Pinger
	logger logger.Logger
}

func NewHealthHandler(store Pinger, logger logger.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: logger}
}

// GET /health - liveness only
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "dashbridge",
		"version":   version.Version,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// GET /ready - the service is ready when its store answers
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, httpStatus := "healthy", http.StatusOK
	resp := gin.H{
		"service": "dashbridge",
		"version": version.Version,
	}
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("readiness probe failed", "error", err)
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
		resp["error"] = err.Error()
	}
	resp["status"] = status
	resp["timestamp"] = time.Now().Format(time.RFC3339)
	c.JSON(httpStatus, resp)
}
