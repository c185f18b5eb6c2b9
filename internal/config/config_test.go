package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 50000 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proconqd.yaml")
	if err := os.WriteFile(path, []byte("port: 6000\nhost: 127.0.0.1\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 6000 || cfg.Host != "127.0.0.1" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proconqd.yaml")
	if err := os.WriteFile(path, []byte("port: 6000\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PROCONQ_PORT", "7000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7000 {
		t.Fatalf("Port = %d, want env override 7000", cfg.Port)
	}
}
