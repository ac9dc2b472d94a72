package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "deploy/reports", cfg.ReportDir)
	assert.Equal(t, "automated", cfg.ValidationMode)
	assert.True(t, cfg.RollbackEnabled)
	assert.Equal(t, 300, cfg.TimeoutSeconds)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, 10, cfg.History.Window)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
rollback_enabled: false
max_retries: 2
history:
  window: 25
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.RollbackEnabled)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 25, cfg.History.Window)

	// Untouched fields keep their defaults.
	assert.Equal(t, "deploy/reports", cfg.ReportDir)
	assert.Equal(t, 300, cfg.TimeoutSeconds)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "deploy/history.db", cfg.History.DBPath)
}

func TestLoadConfigExplicitFalseOverridesDefaultTrue(t *testing.T) {
	path := writeConfig(t, `
history:
  enabled: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.History.Enabled)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := writeConfig(t, "log_level: [broken")
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoadConfigFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".maestro"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".maestro", "config.yaml"),
		[]byte("log_level: warn\n"), 0644))

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log_level"},
		{"bad validation mode", func(c *Config) { c.ValidationMode = "yolo" }, "invalid validation_mode"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "max_retries"},
		{"negative timeout", func(c *Config) { c.TimeoutSeconds = -1 }, "timeout_seconds"},
		{"confidence above one", func(c *Config) { c.MinConfidence = 1.5 }, "min_confidence"},
		{"empty report dir", func(c *Config) { c.ReportDir = "" }, "report_dir"},
		{"history db path", func(c *Config) { c.History.DBPath = "" }, "history.db_path"},
		{"history window", func(c *Config) { c.History.Window = 0 }, "history.window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
