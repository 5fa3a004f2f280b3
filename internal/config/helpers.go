package config

import (
	"time"
)

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// CacheTTL is the lifetime of stored artifacts and batch results.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTL > 0 {
		return time.Duration(c.Cache.TTL) * time.Second
	}
	return time.Hour
}

// JobTTL is how long finished jobs stay queryable.
func (c *Config) JobTTL() time.Duration {
	if c.Conversion.JobTTL > 0 {
		return time.Duration(c.Conversion.JobTTL) * time.Second
	}
	return 24 * time.Hour
}

// EnrichmentTimeout bounds one suggestion request.
func (e EnrichmentConfig) EnrichmentTimeout() time.Duration {
	if e.TimeoutMs > 0 {
		return time.Duration(e.TimeoutMs) * time.Millisecond
	}
	return 5 * time.Second
}
