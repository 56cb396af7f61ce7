package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected nil error for a missing file, got %v", err)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.OutboxBatchSize != 100 {
		t.Errorf("expected default batch size 100, got %d", cfg.OutboxBatchSize)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
service:
  http_port: 9090
database:
  url: postgres://file/db
  max_conns: 10
kafka:
  brokers:
    - broker-a:9092
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("KAFKA_BROKERS", "broker-b:9092,broker-c:9092")
	t.Setenv("REVIEW_CACHE_TTL_SECONDS", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("expected file port 9090, got %d", cfg.HTTPPort)
	}
	if cfg.DatabaseURL != "postgres://env/db" {
		t.Errorf("expected env to override the file, got %s", cfg.DatabaseURL)
	}
	if cfg.DBMaxConns != 10 {
		t.Errorf("expected max conns 10, got %d", cfg.DBMaxConns)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "broker-b:9092" {
		t.Errorf("expected env brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.ReviewCacheTTL != 5*time.Second {
		t.Errorf("expected 5s cache ttl, got %s", cfg.ReviewCacheTTL)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("service: ["), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected a parse error")
	}
}
