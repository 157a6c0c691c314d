package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Engine.BaseURL != "http://127.0.0.1:5000" {
		t.Errorf("Engine.BaseURL = %q", cfg.Engine.BaseURL)
	}
	if cfg.Progress.Interval != 300*time.Millisecond {
		t.Errorf("Progress.Interval = %v, want 300ms", cfg.Progress.Interval)
	}
	if cfg.Progress.Step != 15 || cfg.Progress.Ceiling != 85 {
		t.Errorf("Progress = %+v, want step 15 ceiling 85", cfg.Progress)
	}
	if cfg.Progress.Ceiling >= 100 {
		t.Error("default ceiling must stay below 100")
	}
	if cfg.Export.OutputDir != "exports" {
		t.Errorf("Export.OutputDir = %q, want exports", cfg.Export.OutputDir)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
engine:
  base_url: "https://engine.example.com"
  timeout: 45s
progress:
  interval: 200ms
  step: 10
export:
  output_dir: "/tmp/wastewatch"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Engine.BaseURL != "https://engine.example.com" {
		t.Errorf("Engine.BaseURL = %q", cfg.Engine.BaseURL)
	}
	if cfg.Engine.Timeout != 45*time.Second {
		t.Errorf("Engine.Timeout = %v, want 45s", cfg.Engine.Timeout)
	}
	if cfg.Progress.Interval != 200*time.Millisecond || cfg.Progress.Step != 10 {
		t.Errorf("Progress = %+v", cfg.Progress)
	}

	// Defaults still apply for unspecified fields.
	if cfg.Progress.Ceiling != 85 {
		t.Errorf("Progress.Ceiling = %d, want default 85", cfg.Progress.Ceiling)
	}
	if cfg.Upload.MaxBytes != 512<<20 {
		t.Errorf("Upload.MaxBytes = %d, want default", cfg.Upload.MaxBytes)
	}
}

func TestLoadClampsCeiling(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("progress:\n  ceiling: 100\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Progress.Ceiling != 99 {
		t.Errorf("Progress.Ceiling = %d, want clamped 99", cfg.Progress.Ceiling)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}
