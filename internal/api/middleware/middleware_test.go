package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/dashbridge/internal/config"
	"github.com/platformbuilds/dashbridge/pkg/cache"
	"github.com/platformbuilds/dashbridge/pkg/logger"
)

func init() { gin.SetMode(gin.TestMode) }

func okRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestCORSMiddleware(t *testing.T) {
	r := okRouter(CORSMiddleware(config.CORSConfig{
		AllowedOrigins: []string{"https://ui.example.com", "*.corp.example"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         600,
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://ui.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://ui.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Content-Disposition", w.Header().Get("Access-Control-Expose-Headers"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://dash.corp.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://dash.corp.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://ui.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestIsOriginAllowed(t *testing.T) {
	assert.True(t, isOriginAllowed("http://localhost:3000", nil))
	assert.False(t, isOriginAllowed("https://example.com", nil))
	assert.True(t, isOriginAllowed("https://anything", []string{"*"}))
	assert.False(t, isOriginAllowed("https://notcorp.example", []string{"*.corp.example"}))
}

func TestRequestID(t *testing.T) {
	r := okRouter(RequestID(), RequestLogger(logger.NewNop()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRateLimiter(t *testing.T) {
	store := cache.NewNoopValkeyCache(logger.NewNop(), time.Minute)
	rl := NewRateLimiter(store, 2)
	fixed := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	r := okRouter(rl.Middleware())

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
		return w
	}

	w := send()
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-Rate-Limit-Remaining"))
	require.Equal(t, http.StatusOK, send().Code)

	w = send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	// Next window starts fresh.
	fixed = fixed.Add(time.Minute)
	assert.Equal(t, http.StatusOK, send().Code)

	rl.SetLimit(0)
	assert.Equal(t, int64(0), rl.Limit())
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, send().Code)
	}
}

func TestRateLimiter_ConcurrentRequestsShareOneBudget(t *testing.T) {
	store := cache.NewNoopValkeyCache(logger.NewNop(), time.Minute)
	rl := NewRateLimiter(store, 10)
	fixed := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	r := okRouter(rl.Middleware())

	var allowed, limited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
			switch w.Code {
			case http.StatusOK:
				allowed.Add(1)
			case http.StatusTooManyRequests:
				limited.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, allowed.Load())
	assert.EqualValues(t, 30, limited.Load())
}
