package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHURN_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPAddress != ":8000" || cfg.Model.ArtifactPath != "artifacts/model.json" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Training.TestRatio != 0.2 || cfg.Training.Seed != 42 || cfg.Training.MaxIter != 1000 {
		t.Fatalf("unexpected training defaults %+v", cfg.Training)
	}
	if len(cfg.Model.Schema.CategoricalFields) != 16 {
		t.Fatalf("expected default schema")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "churn.yaml")
	body := []byte(`
server:
  httpAddress: ":9000"
  gracefulTimeout: 3s
model:
  artifactPath: /var/lib/churn/model.json
training:
  seed: 7
logging:
  level: debug
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CHURN_SEED", "99")
	t.Setenv("CHURN_LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPAddress != ":9000" || cfg.Server.GracefulTimeout != 3*time.Second {
		t.Fatalf("file overrides not applied: %+v", cfg.Server)
	}
	if cfg.Server.Address != ":50051" {
		t.Fatalf("unset keys should keep defaults")
	}
	if cfg.Model.ArtifactPath != "/var/lib/churn/model.json" {
		t.Fatalf("artifact path = %s", cfg.Model.ArtifactPath)
	}
	if cfg.Training.Seed != 99 {
		t.Fatalf("env should win over file, seed = %d", cfg.Training.Seed)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadRejectsInvalidSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "churn.yaml")
	body := []byte(`
model:
  schema:
    numericalFields: [tenure]
    categoricalFields: [tenure]
    targetField: Churn
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected overlapping fields to be rejected")
	}
}

func TestLoadRejectsBadRatio(t *testing.T) {
	t.Setenv("CHURN_TEST_RATIO", "1.5")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected ratio validation error")
	}
}
