package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/dashbridge/internal/version"
)

// ResolveOpenAPIPath finds openapi.yaml from the repo root or from a
// package directory under test. DASHBRIDGE_OPENAPI_PATH wins when set.
func ResolveOpenAPIPath() string {
	if p := os.Getenv("DASHBRIDGE_OPENAPI_PATH"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	candidates := []string{
		"api/openapi.yaml",
		filepath.FromSlash("../../api/openapi.yaml"),
		filepath.FromSlash("../../../api/openapi.yaml"),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "api/openapi.yaml"
}

// GET /api/openapi.json - the YAML document rendered as JSON with the
// running build's version.
func GetOpenAPISpec(c *gin.Context) {
	data, err := os.ReadFile(ResolveOpenAPIPath())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "openapi_unavailable"})
		return
	}
	var obj map[string]any
	if err := yaml.Unmarshal(data, &obj); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "openapi_invalid"})
		return
	}
	if info, ok := obj["info"].(map[string]any); ok && version.Version != "dev" {
		info["version"] = version.Version
	}
	c.JSON(http.StatusOK, obj)
}
