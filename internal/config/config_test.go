package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Schedule.DefaultPriority != "normal" {
		t.Fatalf("default priority = %s", cfg.Schedule.DefaultPriority)
	}
	if !cfg.Schedule.ExpandAdjacentOnMove {
		t.Fatalf("expand_adjacent_on_move should default to true")
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Fatalf("addr = %s", cfg.Server.Addr)
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("schedule:\n  default_priority: high\n")
	if err := os.WriteFile(filepath.Join(dir, "teamline.yml"), payload, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Schedule.DefaultPriority != "high" {
		t.Fatalf("priority = %s", cfg.Schedule.DefaultPriority)
	}
	// Unset fields keep their defaults.
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("base path = %s", cfg.Server.BasePath)
	}
}

func TestFromYAMLRejectsBadPriority(t *testing.T) {
	if _, err := FromYAML([]byte("schedule:\n  default_priority: urgent\n")); err == nil {
		t.Fatalf("expected validation error")
	}
}
