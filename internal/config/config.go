package config

// Config is the root configuration for the dashbridge server.
type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Conversion ConversionConfig `mapstructure:"conversion" yaml:"conversion"`
	Uploads    UploadsConfig    `mapstructure:"uploads" yaml:"uploads"`
	CORS       CORSConfig       `mapstructure:"cors" yaml:"cors"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment" yaml:"enrichment"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" yaml:"rate_limit"`

	// Source is the config file that was read, empty when none was found.
	Source string `mapstructure:"-" yaml:"-"`
}

// CacheConfig selects the byte store behind jobs and artifacts.
// Mode is one of memory, single or cluster.
type CacheConfig struct {
	Mode     string   `mapstructure:"mode" yaml:"mode"`
	Nodes    []string `mapstructure:"nodes" yaml:"nodes"`
	Password string   `mapstructure:"password" yaml:"password"`
	DB       int      `mapstructure:"db" yaml:"db"`
	TTL      int      `mapstructure:"ttl" yaml:"ttl"` // seconds
	// AutoSwap starts on the in-memory store and upgrades once Valkey answers.
	AutoSwap bool `mapstructure:"auto_swap" yaml:"auto_swap"`
}

type ConversionConfig struct {
	DefaultTargetVersion string                `mapstructure:"default_target_version" yaml:"default_target_version"`
	DefaultIndexPattern  string                `mapstructure:"default_index_pattern" yaml:"default_index_pattern"`
	PanelConcurrency     int                   `mapstructure:"panel_concurrency" yaml:"panel_concurrency"`
	BatchConcurrency     int                   `mapstructure:"batch_concurrency" yaml:"batch_concurrency"`
	MaxBatchSize         int                   `mapstructure:"max_batch_size" yaml:"max_batch_size"`
	LargeDashboardPanels int                   `mapstructure:"large_dashboard_panels" yaml:"large_dashboard_panels"`
	JobTTL               int                   `mapstructure:"job_ttl" yaml:"job_ttl"` // seconds
	TargetVersions       []TargetVersionConfig `mapstructure:"target_versions" yaml:"target_versions"`
}

// TargetVersionConfig is one row of the target version table. GridScale
// multiplies every source grid coordinate; ExportMode is single or ndjson.
type TargetVersionConfig struct {
	Version    string `mapstructure:"version" yaml:"version" json:"version"`
	GridScale  int    `mapstructure:"grid_scale" yaml:"grid_scale" json:"grid_scale"`
	ExportMode string `mapstructure:"export_mode" yaml:"export_mode" json:"export_mode"`
}

type UploadsConfig struct {
	MaxBytes          int64    `mapstructure:"max_bytes" yaml:"max_bytes"`
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers" yaml:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

// RateLimitConfig bounds conversion requests per client per minute.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

type MonitoringConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	MetricsPath    string `mapstructure:"metrics_path" yaml:"metrics_path"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name" yaml:"service_name"`
}

// EnrichmentConfig configures the optional language-model query suggestions.
type EnrichmentConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Provider  string `mapstructure:"provider" yaml:"provider"` // openai or anthropic
	Model     string `mapstructure:"model" yaml:"model"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutMs int    `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	CacheSize int    `mapstructure:"cache_size" yaml:"cache_size"`
}

// TargetVersion looks up a row of the version table.
func (c ConversionConfig) TargetVersion(version string) (TargetVersionConfig, bool) {
	for _, tv := range c.TargetVersions {
		if tv.Version == version {
			return tv, true
		}
	}
	return TargetVersionConfig{}, false
}

// VersionNames lists the configured target versions in table order.
func (c ConversionConfig) VersionNames() []string {
	out := make([]string, 0, len(c.TargetVersions))
	for _, tv := range c.TargetVersions {
		out = append(out, tv.Version)
	}
	return out
}
