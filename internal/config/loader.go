package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from various sources with priority order:
// 1. Environment variables
// 2. Configuration file (config.yaml, or the file named by CONFIG_PATH)
// 3. Default values
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_PATH"))
}

// LoadFrom is Load with an explicit config file. An empty path searches the
// default locations.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/dashbridge/")
		v.AddConfigPath("./configs/")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("DASHBRIDGE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars and defaults
	}

	overrideWithEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Source = v.ConfigFileUsed()

	if err := LoadSecrets(&config); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()

	v.SetDefault("environment", d.Environment)
	v.SetDefault("port", d.Port)
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("cache.mode", d.Cache.Mode)
	v.SetDefault("cache.nodes", d.Cache.Nodes)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.db", d.Cache.DB)
	v.SetDefault("cache.auto_swap", false)

	v.SetDefault("conversion.default_target_version", d.Conversion.DefaultTargetVersion)
	v.SetDefault("conversion.default_index_pattern", d.Conversion.DefaultIndexPattern)
	v.SetDefault("conversion.panel_concurrency", d.Conversion.PanelConcurrency)
	v.SetDefault("conversion.batch_concurrency", d.Conversion.BatchConcurrency)
	v.SetDefault("conversion.max_batch_size", d.Conversion.MaxBatchSize)
	v.SetDefault("conversion.large_dashboard_panels", d.Conversion.LargeDashboardPanels)
	v.SetDefault("conversion.job_ttl", d.Conversion.JobTTL)
	versions := make([]map[string]interface{}, 0, len(d.Conversion.TargetVersions))
	for _, tv := range d.Conversion.TargetVersions {
		versions = append(versions, map[string]interface{}{
			"version":     tv.Version,
			"grid_scale":  tv.GridScale,
			"export_mode": tv.ExportMode,
		})
	}
	v.SetDefault("conversion.target_versions", versions)

	v.SetDefault("uploads.max_bytes", d.Uploads.MaxBytes)
	v.SetDefault("uploads.allowed_extensions", d.Uploads.AllowedExtensions)

	v.SetDefault("cors.allowed_origins", d.CORS.AllowedOrigins)
	v.SetDefault("cors.allowed_methods", d.CORS.AllowedMethods)
	v.SetDefault("cors.allowed_headers", d.CORS.AllowedHeaders)
	v.SetDefault("cors.exposed_headers", d.CORS.ExposedHeaders)
	v.SetDefault("cors.allow_credentials", d.CORS.AllowCredentials)
	v.SetDefault("cors.max_age", d.CORS.MaxAge)

	v.SetDefault("monitoring.enabled", d.Monitoring.Enabled)
	v.SetDefault("monitoring.metrics_path", d.Monitoring.MetricsPath)
	v.SetDefault("monitoring.tracing_enabled", false)
	v.SetDefault("monitoring.otlp_endpoint", "localhost:4317")
	v.SetDefault("monitoring.service_name", d.Monitoring.ServiceName)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_minute", d.RateLimit.RequestsPerMinute)

	v.SetDefault("enrichment.enabled", false)
	v.SetDefault("enrichment.provider", d.Enrichment.Provider)
	v.SetDefault("enrichment.timeout_ms", d.Enrichment.TimeoutMs)
	v.SetDefault("enrichment.max_tokens", d.Enrichment.MaxTokens)
	v.SetDefault("enrichment.cache_size", d.Enrichment.CacheSize)
}

// overrideWithEnvVars handles the unprefixed variables used by container
// deployments.
func overrideWithEnvVars(v *viper.Viper) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("port", p)
		}
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		v.Set("environment", env)
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		v.Set("log_level", logLevel)
	}

	if addr := os.Getenv("VALKEY_ADDR"); addr != "" {
		v.Set("cache.mode", "single")
		v.Set("cache.nodes", []string{strings.TrimSpace(addr)})
	}

	if cacheNodes := os.Getenv("VALKEY_NODES"); cacheNodes != "" {
		nodes := strings.Split(cacheNodes, ",")
		for i, node := range nodes {
			nodes[i] = strings.TrimSpace(node)
		}
		v.Set("cache.mode", "cluster")
		v.Set("cache.nodes", nodes)
	}

	if pw := os.Getenv("VALKEY_PASSWORD"); pw != "" {
		v.Set("cache.password", pw)
	}

	if cacheTTL := os.Getenv("CACHE_TTL"); cacheTTL != "" {
		if ttl, err := strconv.Atoi(cacheTTL); err == nil {
			v.Set("cache.ttl", ttl)
		}
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		v.Set("monitoring.otlp_endpoint", endpoint)
		v.Set("monitoring.tracing_enabled", true)
	}

	// Provider keys only apply to the provider that is selected.
	switch v.GetString("enrichment.provider") {
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" && v.GetString("enrichment.api_key") == "" {
			v.Set("enrichment.api_key", key)
		}
	case "anthropic":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && v.GetString("enrichment.api_key") == "" {
			v.Set("enrichment.api_key", key)
		}
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", config.Port)
	}

	switch config.Cache.Mode {
	case "memory":
	case "single", "cluster":
		if len(config.Cache.Nodes) == 0 {
			return fmt.Errorf("cache mode %q requires at least one Valkey node", config.Cache.Mode)
		}
		for _, node := range config.Cache.Nodes {
			if err := ValidateValkeyNode(node); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown cache mode %q (want memory, single or cluster)", config.Cache.Mode)
	}

	conv := config.Conversion
	if conv.PanelConcurrency < 1 {
		return fmt.Errorf("conversion.panel_concurrency must be at least 1")
	}
	if conv.BatchConcurrency < 1 {
		return fmt.Errorf("conversion.batch_concurrency must be at least 1")
	}
	if conv.MaxBatchSize < 1 {
		return fmt.Errorf("conversion.max_batch_size must be at least 1")
	}
	if len(conv.TargetVersions) == 0 {
		return fmt.Errorf("conversion.target_versions must not be empty")
	}
	seen := make(map[string]bool, len(conv.TargetVersions))
	for _, tv := range conv.TargetVersions {
		if tv.Version == "" {
			return fmt.Errorf("target version entry without a version name")
		}
		if seen[tv.Version] {
			return fmt.Errorf("duplicate target version %q", tv.Version)
		}
		seen[tv.Version] = true
		if tv.GridScale < 1 {
			return fmt.Errorf("target version %q: grid_scale must be a positive integer", tv.Version)
		}
		if tv.ExportMode != "single" && tv.ExportMode != "ndjson" {
			return fmt.Errorf("target version %q: export_mode must be single or ndjson", tv.Version)
		}
		if tv.Version == "serverless" && tv.ExportMode != "ndjson" {
			return fmt.Errorf("target version serverless only supports ndjson export")
		}
	}
	if !seen[conv.DefaultTargetVersion] {
		return fmt.Errorf("default target version %q is not in the version table", conv.DefaultTargetVersion)
	}

	if config.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("uploads.max_bytes must be positive")
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("rate_limit.requests_per_minute must be at least 1")
	}

	if config.Enrichment.Enabled {
		switch config.Enrichment.Provider {
		case "openai", "anthropic":
		default:
			return fmt.Errorf("unknown enrichment provider %q", config.Enrichment.Provider)
		}
		if config.Enrichment.APIKey == "" {
			return fmt.Errorf("enrichment is enabled but no API key is configured")
		}
		if config.Enrichment.BaseURL != "" {
			if err := ValidateEndpoint(config.Enrichment.BaseURL); err != nil {
				return fmt.Errorf("enrichment.base_url: %w", err)
			}
		}
	}

	return nil
}
