package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agentnode.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenPort != 4001 {
		t.Fatalf("expected default listen_port 4001, got %d", cfg.ListenPort)
	}
	if cfg.MaxPeers != 64 {
		t.Fatalf("expected default max_peers 64, got %d", cfg.MaxPeers)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, "listen_port: 5001\nmax_peers: 10\nstorage_path: /tmp/data\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenPort != 5001 {
		t.Fatalf("expected listen_port 5001, got %d", cfg.ListenPort)
	}
	if cfg.MaxPeers != 10 {
		t.Fatalf("expected max_peers 10, got %d", cfg.MaxPeers)
	}
	if cfg.StoragePath != "/tmp/data" {
		t.Fatalf("expected storage_path override, got %s", cfg.StoragePath)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "listen_port: 5001\n")
	t.Setenv("P2P_LISTEN_PORT", "6001")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenPort != 6001 {
		t.Fatalf("expected env override to win with 6001, got %d", cfg.ListenPort)
	}
}

func TestValidateRejectsOutOfRangeListenPort(t *testing.T) {
	cfg := Defaults()
	cfg.ListenPort = 80
	if err := Validate(&cfg); err == nil {
		t.Fatalf("expected validation error for listen_port below 1024")
	}
}

func TestValidateRejectsOutOfRangeMaxPeers(t *testing.T) {
	cfg := Defaults()
	cfg.MaxPeers = 0
	if err := Validate(&cfg); err == nil {
		t.Fatalf("expected validation error for max_peers 0")
	}
}

func TestValidateRejectsEmptyStoragePath(t *testing.T) {
	cfg := Defaults()
	cfg.StoragePath = ""
	if err := Validate(&cfg); err == nil {
		t.Fatalf("expected validation error for empty storage_path")
	}
}

func TestValidateRejectsBadReadinessPort(t *testing.T) {
	cfg := Defaults()
	cfg.Readiness.PortEnabled = true
	cfg.Readiness.Port = 0
	if err := Validate(&cfg); err == nil {
		t.Fatalf("expected validation error for readiness port 0 when enabled")
	}
}
