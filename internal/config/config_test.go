package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/manash/imgstudio/pkg/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DefaultModel != models.ModelDallE3 {
		t.Errorf("DefaultModel = %q, want dall-e-3", cfg.DefaultModel)
	}
	if cfg.TimeoutSec != 120 {
		t.Errorf("TimeoutSec = %d, want 120", cfg.TimeoutSec)
	}
	if !cfg.StrictURLCheck {
		t.Error("StrictURLCheck should default to true")
	}
	if cfg.AutoEnhance {
		t.Error("AutoEnhance should default to false")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `default_model: dall-e-2
default_size: 512x512
timeout_sec: 30
auto_enhance: true
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DefaultModel != models.ModelDallE2 {
		t.Errorf("DefaultModel = %q, want dall-e-2", cfg.DefaultModel)
	}
	if cfg.DefaultSize != "512x512" {
		t.Errorf("DefaultSize = %q, want 512x512", cfg.DefaultSize)
	}
	if cfg.TimeoutSec != 30 {
		t.Errorf("TimeoutSec = %d, want 30", cfg.TimeoutSec)
	}
	if !cfg.AutoEnhance {
		t.Error("AutoEnhance = false, want true")
	}
	// Untouched keys keep their defaults.
	if !cfg.StrictURLCheck {
		t.Error("StrictURLCheck = false, want default true")
	}
}

func TestLoadMissingFileIsFine(t *testing.T) {
	if _, err := Load(t.TempDir()); err != nil {
		t.Fatalf("Load() error = %v for empty config dir", err)
	}
}

func TestLoadBrokenFileFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(":\t not yaml {"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("Load() error = nil for broken config file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("IMGSTUDIO_DEFAULT_MODEL", models.ModelDallE2)
	t.Setenv("IMGSTUDIO_TIMEOUT_SEC", "45")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultModel != models.ModelDallE2 {
		t.Errorf("DefaultModel = %q, want env override dall-e-2", cfg.DefaultModel)
	}
	if cfg.TimeoutSec != 45 {
		t.Errorf("TimeoutSec = %d, want env override 45", cfg.TimeoutSec)
	}
}

func TestHistoryPath(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/imgstudio-test"}
	if got := cfg.HistoryPath(); got != filepath.Join("/tmp/imgstudio-test", "history.db") {
		t.Errorf("HistoryPath() = %q", got)
	}
}
