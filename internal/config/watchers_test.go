package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/dashbridge/pkg/logger"
)

func TestConfigWatcher_ReloadNotifies(t *testing.T) {
	path := writeTempConfig(t, "port: 8081\nrate_limit:\n  requests_per_minute: 10\n")
	initial, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, path, initial.Source)

	w := NewConfigWatcher(initial, path, logger.NewNop())
	var got *Config
	w.RegisterWatcher(func(c *Config) { got = c })

	require.NoError(t, os.WriteFile(path, []byte("port: 8082\nrate_limit:\n  requests_per_minute: 20\n"), 0o600))
	require.NoError(t, w.Reload())

	require.NotNil(t, got)
	assert.Equal(t, 8082, got.Port)
	assert.Equal(t, int64(20), got.RateLimit.RequestsPerMinute)
	assert.Same(t, got, w.GetConfig())
}

func TestConfigWatcher_InvalidFileKeepsPrevious(t *testing.T) {
	path := writeTempConfig(t, "port: 8081\n")
	initial, err := LoadFrom(path)
	require.NoError(t, err)

	w := NewConfigWatcher(initial, path, logger.NewNop())
	called := false
	w.RegisterWatcher(func(*Config) { called = true })
	w.RegisterWatcher(func(*Config) { panic("boom") })

	require.NoError(t, os.WriteFile(path, []byte("port: -1\n"), 0o600))
	require.Error(t, w.Reload())
	assert.False(t, called)
	assert.Same(t, initial, w.GetConfig())

	// A panicking callback does not stop the others.
	require.NoError(t, os.WriteFile(path, []byte("port: 8083\n"), 0o600))
	require.NoError(t, w.Reload())
	assert.True(t, called)
	w.Stop()
	w.Stop()
}

func TestLoadSecrets(t *testing.T) {
	dir := t.TempDir()
	pwFile := filepath.Join(dir, "valkey")
	keyFile := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(pwFile, []byte("s3cret\n"), 0o600))
	require.NoError(t, os.WriteFile(keyFile, []byte("sk-file"), 0o600))
	t.Setenv("VALKEY_PASSWORD_FILE", pwFile)
	t.Setenv("DASHBRIDGE_ENRICHMENT_API_KEY_FILE", keyFile)

	c := GetDefaultConfig()
	require.NoError(t, LoadSecrets(c))
	assert.Equal(t, "s3cret", c.Cache.Password)
	assert.Equal(t, "sk-file", c.Enrichment.APIKey)

	c = GetDefaultConfig()
	c.Enrichment.APIKey = "inline"
	require.NoError(t, LoadSecrets(c))
	assert.Equal(t, "inline", c.Enrichment.APIKey)

	t.Setenv("VALKEY_PASSWORD_FILE", filepath.Join(dir, "missing"))
	assert.Error(t, LoadSecrets(GetDefaultConfig()))
}

func TestValidateValkeyNode(t *testing.T) {
	assert.NoError(t, ValidateValkeyNode("cache:6379"))
	assert.Error(t, ValidateValkeyNode(""))
	assert.Error(t, ValidateValkeyNode("cache"))
	assert.Error(t, ValidateValkeyNode(":6379"))
	assert.Error(t, ValidateValkeyNode("cache:99999"))
	assert.Error(t, ValidateEndpoint("ftp://x"))
	assert.NoError(t, ValidateEndpoint("https://api.example.com/v1"))
}

func TestDurations(t *testing.T) {
	c := GetDefaultConfig()
	assert.Equal(t, int64(3600), int64(c.CacheTTL().Seconds()))
	assert.Equal(t, int64(86400), int64(c.JobTTL().Seconds()))
	assert.Equal(t, int64(5000), c.Enrichment.EnrichmentTimeout().Milliseconds())
	assert.True(t, c.IsDevelopment())
	assert.False(t, c.IsProduction())
}
