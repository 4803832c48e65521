package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// No config file anywhere, so only defaults apply.
	cfg, err := loadFromDir(t, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("Expected default NATS URL, got %s", cfg.NATS.URL)
	}
	if cfg.NATS.ReconnectWait != 2*time.Second {
		t.Errorf("Expected reconnect wait 2s, got %v", cfg.NATS.ReconnectWait)
	}
	if cfg.OpenSearch.DataIndex != "sensor-data" {
		t.Errorf("Expected data index sensor-data, got %s", cfg.OpenSearch.DataIndex)
	}
	if !cfg.OpenSearch.TLSSkipVerify {
		t.Error("Expected tls_skip_verify default true")
	}
	if cfg.Engine.QueueSize != 256 {
		t.Errorf("Expected queue size 256, got %d", cfg.Engine.QueueSize)
	}
	if cfg.Engine.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.DefaultLocation != "unknown" {
		t.Errorf("Expected default location unknown, got %s", cfg.Engine.DefaultLocation)
	}
	if !cfg.Neo4j.Enabled || !cfg.Redis.Enabled {
		t.Error("Expected graph and redis sinks enabled by default")
	}
	if cfg.Redis.TTL != 24*time.Hour {
		t.Errorf("Expected redis TTL 24h, got %v", cfg.Redis.TTL)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
}

// loadFromDir runs Load with the working directory moved to an empty
// temp dir so a developer's local config.yaml cannot leak into tests.
func loadFromDir(t *testing.T, configPath string) (*Config, error) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	return Load(configPath)
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
nats:
  url: "nats://broker:4222"
  name: "ingest-test"

postgres:
  url: "postgres://test@db:5432/iot?sslmode=disable"

engine:
  queue_size: 64
  workers: 2
  default_location: "factory_floor"

neo4j:
  enabled: false

logging:
  level: debug
  format: text
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("Expected file NATS URL, got %s", cfg.NATS.URL)
	}
	if cfg.Engine.QueueSize != 64 || cfg.Engine.Workers != 2 {
		t.Errorf("Engine settings not applied: %+v", cfg.Engine)
	}
	if cfg.Engine.DefaultLocation != "factory_floor" {
		t.Errorf("Expected factory_floor, got %s", cfg.Engine.DefaultLocation)
	}
	if cfg.Neo4j.Enabled {
		t.Error("Expected neo4j disabled by file")
	}
	// Unset sections keep their defaults.
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("Expected default redis URL, got %s", cfg.Redis.URL)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging settings not applied: %+v", cfg.Logging)
	}
}

func TestLoadRejectsInvalidEngineSettings(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
engine:
  queue_size: 0
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("expected error for zero queue size")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SENSORGRID_ENGINE_WORKERS", "8")

	cfg, err := loadFromDir(t, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Workers != 8 {
		t.Errorf("Expected env override workers=8, got %d", cfg.Engine.Workers)
	}
}
