package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `features:
  - features/users.yaml
  - features/orders/
tagSelector: "tags.includes('smoke')"
env: qa
workers: 4
dryRun: true
output: out/reports
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Features) != 2 || cfg.Features[0] != "features/users.yaml" {
		t.Errorf("features = %v", cfg.Features)
	}
	if cfg.TagSelector != "tags.includes('smoke')" || cfg.Env != "qa" {
		t.Errorf("selector/env = %q/%q", cfg.TagSelector, cfg.Env)
	}
	if cfg.Workers != 4 || !cfg.DryRun || cfg.Output != "out/reports" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file must fail")
	}

	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "workers: [not an int\n")
	if _, err := Load(path); err == nil {
		t.Error("malformed yaml must fail")
	}
}

func TestLoadFromDir(t *testing.T) {
	t.Run("config.yaml preferred", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "config.yaml", "env: from-yaml\n")
		writeFile(t, dir, "config.yml", "env: from-yml\n")

		cfg, err := LoadFromDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Env != "from-yaml" {
			t.Errorf("env = %q, config.yaml must win", cfg.Env)
		}
	})

	t.Run("yml fallback", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "config.yml", "env: from-yml\n")

		cfg, err := LoadFromDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Env != "from-yml" {
			t.Errorf("env = %q", cfg.Env)
		}
	})

	t.Run("defaults when absent", func(t *testing.T) {
		cfg, err := LoadFromDir(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Env != "" || cfg.Workers != 0 || len(cfg.Features) != 0 {
			t.Errorf("cfg = %+v, want zero value", cfg)
		}
	})
}

func TestLoadScripts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config-base.js", "function() { return { layer: 'base' } }")
	writeFile(t, dir, "config.js", "function() { return { layer: 'main' } }")
	writeFile(t, dir, "config-qa.js", "function() { return { layer: 'qa' } }")

	s := LoadScripts(dir, "qa")
	if s.Base == "" || s.Main == "" || s.Env == "" {
		t.Errorf("scripts = %+v, all three layers must load", s)
	}

	s = LoadScripts(dir, "prod")
	if s.Env != "" {
		t.Error("missing env layer must be an absent layer")
	}

	s = LoadScripts(dir, "")
	if s.Env != "" {
		t.Error("empty env must skip the env layer")
	}

	s = LoadScripts(t.TempDir(), "qa")
	if s.Base != "" || s.Main != "" || s.Env != "" {
		t.Errorf("scripts = %+v, want all layers absent", s)
	}
}
