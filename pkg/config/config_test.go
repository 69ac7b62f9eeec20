package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Registry != DefaultRegistry {
		t.Errorf("expected default registry, got %q", cfg.Registry)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	contents := `
registry = "https://registry.example.com"
concurrency = 16
batch_size = 75
cache_ttl = "1h"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Registry != "https://registry.example.com" {
		t.Errorf("unexpected registry: %q", cfg.Registry)
	}
	if cfg.Concurrency != 16 {
		t.Errorf("unexpected concurrency: %d", cfg.Concurrency)
	}
	if cfg.BatchSize != 75 {
		t.Errorf("unexpected batch size: %d", cfg.BatchSize)
	}
	if got := cfg.CacheTTLDuration(24 * time.Hour); got != time.Hour {
		t.Errorf("expected cache ttl 1h, got %v", got)
	}
}

func TestCacheTTLDurationFallback(t *testing.T) {
	cfg := Default()
	if got := cfg.CacheTTLDuration(2 * time.Hour); got != 2*time.Hour {
		t.Errorf("expected fallback duration, got %v", got)
	}
}

func TestLoadRejectsInvalidTOML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("not valid = = toml"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for malformed TOML")
	}
}
