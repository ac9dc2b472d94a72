// Package config loads maestro configuration from .maestro/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// HistoryConfig controls the deployment history store.
type HistoryConfig struct {
	// Enabled turns history recording on
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`

	// Window is how many recent deployments feed the historical success factor
	Window int `yaml:"window"`
}

// Config represents maestro configuration options.
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// ReportDir is where deployment reports are written
	ReportDir string `yaml:"report_dir"`

	// ValidationMode is the default readiness validation mode
	ValidationMode string `yaml:"validation_mode"`

	// RollbackEnabled is the default rollback setting
	RollbackEnabled bool `yaml:"rollback_enabled"`

	// MaxRetries is the default per-agent retry budget
	MaxRetries int `yaml:"max_retries"`

	// TimeoutSeconds is the default per-agent execution bound
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MinConfidence aborts a deploy when the pre-flight confidence score
	// falls below it; zero disables the gate
	MinConfidence float64 `yaml:"min_confidence"`

	// History contains history store configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:        "info",
		ReportDir:       "deploy/reports",
		ValidationMode:  "automated",
		RollbackEnabled: true,
		MaxRetries:      0,
		TimeoutSeconds:  300,
		MinConfidence:   0,
		History: HistoryConfig{
			Enabled: true,
			DBPath:  "deploy/history.db",
			Window:  10,
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Pointer fields distinguish "absent" from zero values so file entries
	// merge over defaults instead of clobbering them.
	type yamlHistory struct {
		Enabled *bool  `yaml:"enabled"`
		DBPath  string `yaml:"db_path"`
		Window  *int   `yaml:"window"`
	}
	type yamlConfig struct {
		LogLevel        string       `yaml:"log_level"`
		ReportDir       string       `yaml:"report_dir"`
		ValidationMode  string       `yaml:"validation_mode"`
		RollbackEnabled *bool        `yaml:"rollback_enabled"`
		MaxRetries      *int         `yaml:"max_retries"`
		TimeoutSeconds  *int         `yaml:"timeout_seconds"`
		MinConfidence   *float64     `yaml:"min_confidence"`
		History         *yamlHistory `yaml:"history"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.ReportDir != "" {
		cfg.ReportDir = yamlCfg.ReportDir
	}
	if yamlCfg.ValidationMode != "" {
		cfg.ValidationMode = yamlCfg.ValidationMode
	}
	if yamlCfg.RollbackEnabled != nil {
		cfg.RollbackEnabled = *yamlCfg.RollbackEnabled
	}
	if yamlCfg.MaxRetries != nil {
		cfg.MaxRetries = *yamlCfg.MaxRetries
	}
	if yamlCfg.TimeoutSeconds != nil {
		cfg.TimeoutSeconds = *yamlCfg.TimeoutSeconds
	}
	if yamlCfg.MinConfidence != nil {
		cfg.MinConfidence = *yamlCfg.MinConfidence
	}
	if yamlCfg.History != nil {
		if yamlCfg.History.Enabled != nil {
			cfg.History.Enabled = *yamlCfg.History.Enabled
		}
		if yamlCfg.History.DBPath != "" {
			cfg.History.DBPath = yamlCfg.History.DBPath
		}
		if yamlCfg.History.Window != nil {
			cfg.History.Window = *yamlCfg.History.Window
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .maestro/config.yaml in the
// specified directory. If the directory or file doesn't exist, returns
// default configuration without error.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".maestro", "config.yaml"))
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	validModes := map[string]bool{
		"automated": true,
		"manual":    true,
		"hybrid":    true,
	}
	if !validModes[c.ValidationMode] {
		return fmt.Errorf("invalid validation_mode %q, must be one of: automated, manual, hybrid", c.ValidationMode)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be >= 0, got %d", c.TimeoutSeconds)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0,1], got %g", c.MinConfidence)
	}
	if c.ReportDir == "" {
		return fmt.Errorf("report_dir cannot be empty")
	}

	if c.History.Enabled {
		if c.History.DBPath == "" {
			return fmt.Errorf("history.db_path cannot be empty when history is enabled")
		}
		if c.History.Window <= 0 {
			return fmt.Errorf("history.window must be > 0, got %d", c.History.Window)
		}
	}

	return nil
}
