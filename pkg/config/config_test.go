package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEffectiveDefaults(t *testing.T) {
	cfg, err := LoadEffective(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadEffective: %v", err)
	}
	if cfg.Allocation.ScanWindow != DefaultScanWindow {
		t.Fatalf("scan window = %d", cfg.Allocation.ScanWindow)
	}
	if cfg.Grace.Window.D() != DefaultGraceWindow {
		t.Fatalf("grace window = %v", cfg.Grace.Window.D())
	}
	if cfg.Grace.SweepInterval.D() != DefaultSweepInterval {
		t.Fatalf("sweep interval = %v", cfg.Grace.SweepInterval.D())
	}
	if cfg.StatusQueue.Capacity != DefaultQueueCapacity || cfg.StatusQueue.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("queue defaults = %+v", cfg.StatusQueue)
	}
	if cfg.Allocation.Weights.Alpha != 0.5 || cfg.Allocation.Weights.Beta != 0.5 {
		t.Fatalf("weight defaults = %+v", cfg.Allocation.Weights)
	}
	if cfg.Rescore.Cron != DefaultRescoreCron {
		t.Fatalf("rescore cron = %q", cfg.Rescore.Cron)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  address: 127.0.0.1
  port: 9090
storage:
  db_path: /tmp/relaydesk-test
allocation:
  scan_window: 25
  weights:
    alpha: 0.7
    beta: 0.3
  tenants:
    "42":
      alpha: 2
      beta: 2
grace:
  window: 2m
  sweep_interval: 10
status_queue:
  capacity: 8
  max_attempts: 5
  base_backoff: 250ms
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadEffective(path)
	if err != nil {
		t.Fatalf("LoadEffective: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
	if cfg.Allocation.ScanWindow != 25 {
		t.Fatalf("scan window = %d", cfg.Allocation.ScanWindow)
	}
	if cfg.Grace.Window.D() != 2*time.Minute {
		t.Fatalf("grace window = %v", cfg.Grace.Window.D())
	}
	// bare numbers parse as seconds
	if cfg.Grace.SweepInterval.D() != 10*time.Second {
		t.Fatalf("sweep interval = %v", cfg.Grace.SweepInterval.D())
	}
	if cfg.StatusQueue.BaseBackoff.D() != 250*time.Millisecond {
		t.Fatalf("base backoff = %v", cfg.StatusQueue.BaseBackoff.D())
	}

	if w := cfg.WeightsFor(42); w.Alpha != 2 || w.Beta != 2 {
		t.Fatalf("tenant override = %+v", w)
	}
	if w := cfg.WeightsFor(7); w.Alpha != 0.7 || w.Beta != 0.3 {
		t.Fatalf("default weights = %+v", w)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RELAYDESK_SERVER_PORT", "7070")
	t.Setenv("RELAYDESK_DB_PATH", "/tmp/env-db")
	t.Setenv("RELAYDESK_PRIORITY_ALPHA", "0.9")
	t.Setenv("RELAYDESK_PRIORITY_BETA", "0.1")
	t.Setenv("RELAYDESK_GRACE_WINDOW", "90s")
	t.Setenv("RELAYDESK_BACKEND_KEYS", "k1, k2")

	cfg, err := LoadEffective("")
	if err != nil {
		t.Fatalf("LoadEffective: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Storage.DBPath != "/tmp/env-db" {
		t.Fatalf("db path = %q", cfg.Storage.DBPath)
	}
	if cfg.Allocation.Weights.Alpha != 0.9 || cfg.Allocation.Weights.Beta != 0.1 {
		t.Fatalf("weights = %+v", cfg.Allocation.Weights)
	}
	if cfg.Grace.Window.D() != 90*time.Second {
		t.Fatalf("grace window = %v", cfg.Grace.Window.D())
	}
	if len(cfg.Security.APIKeys.Backend) != 2 || cfg.Security.APIKeys.Backend[1] != "k2" {
		t.Fatalf("backend keys = %v", cfg.Security.APIKeys.Backend)
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := ResolveConfigPath("./flag.yaml", true); got != "./flag.yaml" {
		t.Fatalf("explicit flag should win, got %q", got)
	}
	t.Setenv("RELAYDESK_CONFIG", "/etc/relaydesk.yaml")
	if got := ResolveConfigPath("./default.yaml", false); got != "/etc/relaydesk.yaml" {
		t.Fatalf("env should win over default, got %q", got)
	}
}
