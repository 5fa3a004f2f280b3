package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/platformbuilds/dashbridge/internal/api/handlers"
	"github.com/platformbuilds/dashbridge/internal/api/middleware"
	"github.com/platformbuilds/dashbridge/internal/config"
	"github.com/platformbuilds/dashbridge/internal/monitoring"
	"github.com/platformbuilds/dashbridge/internal/services"
	"github.com/platformbuilds/dashbridge/internal/version"
	"github.com/platformbuilds/dashbridge/pkg/cache"
	"github.com/platformbuilds/dashbridge/pkg/logger"
)

type Server struct {
	config      *config.Config
	logger      logger.Logger
	cache       cache.ValkeyCluster
	conversions *services.ConversionService
	jobs        *services.JobService
	rateLimiter *middleware.RateLimiter
	router      *gin.Engine
	httpServer  *http.Server
}

func NewServer(
	cfg *config.Config,
	log logger.Logger,
	valkeyCache cache.ValkeyCluster,
	conversions *services.ConversionService,
	jobs *services.JobService,
) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	limit := cfg.RateLimit.RequestsPerMinute
	if !cfg.RateLimit.Enabled {
		limit = 0
	}

	server := &Server{
		config:      cfg,
		logger:      log,
		cache:       valkeyCache,
		conversions: conversions,
		jobs:        jobs,
		rateLimiter: middleware.NewRateLimiter(valkeyCache, limit),
		router:      gin.New(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.CORSMiddleware(s.config.CORS))
	s.router.Use(middleware.RequestLogger(s.logger))

	if s.config.Monitoring.Enabled {
		s.router.Use(monitoring.HTTPMetricsMiddleware())
		monitoring.SetupPrometheusMetrics(s.router, s.config.Monitoring.MetricsPath, version.Version)
	}

	// OpenAPI document and Swagger UI at /swagger/index.html
	s.router.StaticFile("/api/openapi.yaml", handlers.ResolveOpenAPIPath())
	s.router.GET("/api/openapi.json", handlers.GetOpenAPISpec)
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/api/openapi.yaml")))
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.conversions, s.logger)
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)

	s.router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/swagger/index.html")
	})

	limited := s.rateLimiter.Middleware()

	conversionHandler := handlers.NewConversionHandler(s.conversions, s.config.Uploads.MaxBytes, s.logger)
	webHandler := handlers.NewWebHandler(s.jobs, s.conversions, s.config.Uploads, s.logger)
	infoHandler := handlers.NewInfoHandler(s.conversions, s.jobs, s.config.Uploads)

	v1 := s.router.Group("/api/v1")
	v1.GET("/health", healthHandler.HealthCheck)
	v1.GET("/ready", healthHandler.ReadinessCheck)

	v1.POST("/convert", limited, conversionHandler.Convert)
	v1.GET("/convert/:fileId", conversionHandler.GetConversion)
	v1.DELETE("/convert/:fileId", conversionHandler.DeleteConversion)
	v1.POST("/validate", limited, conversionHandler.Validate)

	v1.POST("/batch", limited, conversionHandler.Batch)
	v1.GET("/batch/:batchId", conversionHandler.GetBatch)
	v1.DELETE("/batch/:batchId", conversionHandler.DeleteBatch)

	v1.GET("/jobs", webHandler.ListJobs)
	v1.GET("/jobs/:jobId", webHandler.GetJob)

	v1.GET("/capabilities", infoHandler.Capabilities)
	v1.GET("/status", infoHandler.Status)

	// Browser flow
	s.router.POST("/upload", limited, webHandler.Upload)
	s.router.GET("/progress/:jobId", webHandler.Progress)
	s.router.GET("/download/:fileId", webHandler.Download)
	s.router.GET("/preview/:fileId", webHandler.Preview)
}

// ApplyConfig picks up the settings that can change without a restart.
func (s *Server) ApplyConfig(cfg *config.Config) {
	limit := cfg.RateLimit.RequestsPerMinute
	if !cfg.RateLimit.Enabled {
		limit = 0
	}
	if limit != s.rateLimiter.Limit() {
		s.logger.Info("rate limit changed", "requests_per_minute", limit)
		s.rateLimiter.SetLimit(limit)
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashbridge API server starting", "port", s.config.Port, "version", version.Version)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutting down dashbridge gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// Let running jobs record their outcome before the process exits.
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("conversion jobs still running at shutdown")
	}
	return nil
}

// Handler returns the underlying Gin engine so tests (or embedders) can mount it.
func (s *Server) Handler() http.Handler {
	return s.router
}
