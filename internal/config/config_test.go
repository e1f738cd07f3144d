package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsMergeWithFile(t *testing.T) {
	path := writeConfig(t, `
cache_root = "/tmp/briefcases"

[hub]
base_url = "https://hub.test/api"
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/briefcases", cfg.CacheRoot)
	assert.Equal(t, "https://hub.test/api", cfg.Hub.BaseURL)
	assert.Equal(t, defaultHubMaxRetries, cfg.Hub.MaxRetries) // unset field keeps default
}

func TestLoad_UnknownTopLevelKeyRejected(t *testing.T) {
	path := writeConfig(t, `bogus_key = "x"`)
	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus_key")
}

func TestLoad_UnknownSectionKeyRejected(t *testing.T) {
	path := writeConfig(t, `
[hub]
bogus = "x"
`)
	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestLoad_ValidationFailureSurfaces(t *testing.T) {
	path := writeConfig(t, `cache_root = "relative/path"`)
	_, err := Load(path, nil)
	require.Error(t, err)
}

func TestLoadOrDefault_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidate_AccumulatesMultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheRoot = ""
	cfg.Hub.MaxRetries = 0
	cfg.Push.MaxAttempts = 0

	err := Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "cache_root")
	assert.Contains(t, msg, "max_retries")
	assert.Contains(t, msg, "max_attempts")
}

func TestValidate_InvalidDurationRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hub.BaseBackoff = "not-a-duration"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_backoff")
}

func TestHubConfig_DurationHelpers(t *testing.T) {
	h := HubConfig{RequestTimeout: "30s", BaseBackoff: "200ms", MaxBackoff: "5s"}
	assert.Equal(t, "30s", h.RequestTimeoutDuration().String())
	assert.Equal(t, "200ms", h.BaseBackoffDuration().String())
	assert.Equal(t, "5s", h.MaxBackoffDuration().String())
}
