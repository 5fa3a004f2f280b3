package monitoring

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestSetupPrometheusMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(HTTPMetricsMiddleware())
	SetupPrometheusMetrics(r, "/metrics", "test")
	r.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })

	RecordCacheOperation("get", "hit")
	RecordStoreOperation("put", "artifact", time.Millisecond, true)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"dashbridge_http_requests_total", "dashbridge_cache_operations_total", "dashbridge_store_operations_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	got := normalizeEndpoint("/progress/123e4567-e89b-12d3-a456-426614174000")
	if got != "/progress/:id" {
		t.Fatalf("unexpected %q", got)
	}
	if got := normalizeEndpoint("/api/v1/jobs/42"); got != "/api/v1/jobs/:id" {
		t.Fatalf("unexpected %q", got)
	}
}
