package config

// Grafana lays panels out on a 24 column grid, Kibana on a 48 column grid.
// Every supported release keeps that ratio, so the table is uniform today.
var defaultTargetVersions = []TargetVersionConfig{
	{Version: "7.10.0", GridScale: 2, ExportMode: "single"},
	{Version: "7.17.0", GridScale: 2, ExportMode: "single"},
	{Version: "8.0.0", GridScale: 2, ExportMode: "single"},
	{Version: "8.11.0", GridScale: 2, ExportMode: "single"},
	{Version: "serverless", GridScale: 2, ExportMode: "ndjson"},
}

// DefaultTargetVersions returns a copy of the built-in version table.
func DefaultTargetVersions() []TargetVersionConfig {
	out := make([]TargetVersionConfig, len(defaultTargetVersions))
	copy(out, defaultTargetVersions)
	return out
}

// GetDefaultConfig returns the configuration used when no file or
// environment overrides are present.
func GetDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Port:        8080,
		LogLevel:    "info",
		Cache: CacheConfig{
			Mode:  "memory",
			Nodes: []string{"localhost:6379"},
			TTL:   3600,
		},
		Conversion: ConversionConfig{
			DefaultTargetVersion: "8.11.0",
			DefaultIndexPattern:  "*",
			PanelConcurrency:     8,
			BatchConcurrency:     4,
			MaxBatchSize:         50,
			LargeDashboardPanels: 50,
			JobTTL:               86400,
			TargetVersions:       DefaultTargetVersions(),
		},
		Uploads: UploadsConfig{
			MaxBytes:          10 * 1024 * 1024,
			AllowedExtensions: []string{".json", ".ndjson"},
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			ExposedHeaders: []string{"Content-Disposition"},
			MaxAge:         3600,
		},
		Monitoring: MonitoringConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
			ServiceName: "dashbridge",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
		},
		Enrichment: EnrichmentConfig{
			Provider:  "openai",
			TimeoutMs: 5000,
			MaxTokens: 512,
			CacheSize: 1024,
		},
	}
}
