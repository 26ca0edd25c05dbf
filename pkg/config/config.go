// Package config handles workspace configuration for scenario-runner.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the workspace configuration (config.yaml).
type Config struct {
	// Feature selection
	Features    []string `yaml:"features"`    // Feature file paths or globs
	TagSelector string   `yaml:"tagSelector"` // Suite-wide tag selector expression

	// Execution settings
	Env      string `yaml:"env"`      // Environment name for layered config scripts
	Workers  int    `yaml:"workers"`  // Parallel scenario workers
	DryRun   bool   `yaml:"dryRun"`   // Classify without executing
	PerfMode bool   `yaml:"perfMode"` // Suppress per-scenario log capture

	// Reporting
	Output string `yaml:"output"` // Report output directory
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	configPath = filepath.Join(dir, "config.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return defaults
	return &Config{}, nil
}

// Scripts holds the layered JavaScript config sources evaluated at the
// start of every top-level scenario: base first, then main, then the
// environment-specific layer.
type Scripts struct {
	Base string
	Main string
	Env  string
}

// LoadScripts reads config-base.js, config.js and config-<env>.js from the
// workspace directory. Missing files are simply absent layers.
func LoadScripts(dir, env string) Scripts {
	var s Scripts
	s.Base = readIfExists(filepath.Join(dir, "config-base.js"))
	s.Main = readIfExists(filepath.Join(dir, "config.js"))
	if env != "" {
		s.Env = readIfExists(filepath.Join(dir, "config-"+env+".js"))
	}
	return s
}

func readIfExists(path string) string {
	data, err := os.ReadFile(path) //#nosec G304 -- workspace config script
	if err != nil {
		return ""
	}
	return string(data)
}
