package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-churn/internal/schema"
)

// Config captures the settings shared by the churn API and the training CLI.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Training TrainingConfig `yaml:"training"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the gRPC, HTTP and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ModelConfig locates the persisted pipeline and the schema it must match.
type ModelConfig struct {
	ArtifactPath string        `yaml:"artifactPath"`
	Schema       schema.Schema `yaml:"schema"`
}

// TrainingConfig controls offline fitting.
type TrainingConfig struct {
	DataPath  string  `yaml:"dataPath"`
	TestRatio float64 `yaml:"testRatio"`
	Seed      int64   `yaml:"seed"`
	C         float64 `yaml:"c"`
	MaxIter   int     `yaml:"maxIter"`
	Tolerance float64 `yaml:"tolerance"`
	RunsDB    string  `yaml:"runsDB"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CHURN_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would fail later in less obvious ways.
func (c *Config) Validate() error {
	if err := c.Model.Schema.Validate(); err != nil {
		return fmt.Errorf("model schema: %w", err)
	}
	if c.Model.ArtifactPath == "" {
		return errors.New("model artifact path is empty")
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return fmt.Errorf("training test ratio %v outside (0, 1)", c.Training.TestRatio)
	}
	if c.Training.C <= 0 {
		return fmt.Errorf("training C must be positive, got %v", c.Training.C)
	}
	if c.Training.MaxIter <= 0 {
		return fmt.Errorf("training maxIter must be positive, got %d", c.Training.MaxIter)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			HTTPAddress:     ":8000",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Model: ModelConfig{
			ArtifactPath: "artifacts/model.json",
			Schema:       schema.Default(),
		},
		Training: TrainingConfig{
			DataPath:  "data/raw/WA_Fn-UseC_-Telco-Customer-Churn.csv",
			TestRatio: 0.2,
			Seed:      42,
			C:         1.0,
			MaxIter:   1000,
			Tolerance: 1e-4,
			RunsDB:    "artifacts/runs.db",
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHURN_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("CHURN_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("CHURN_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("CHURN_GRACEFUL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.GracefulTimeout = d
		}
	}
	if v := os.Getenv("CHURN_ARTIFACT_PATH"); v != "" {
		cfg.Model.ArtifactPath = v
	}
	if v := os.Getenv("CHURN_DATA_PATH"); v != "" {
		cfg.Training.DataPath = v
	}
	if v := os.Getenv("CHURN_TEST_RATIO"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Training.TestRatio = r
		}
	}
	if v := os.Getenv("CHURN_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Training.Seed = seed
		}
	}
	if v := os.Getenv("CHURN_MAX_ITER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Training.MaxIter = n
		}
	}
	if v := os.Getenv("CHURN_RUNS_DB"); v != "" {
		cfg.Training.RunsDB = v
	}
	if v := os.Getenv("CHURN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CHURN_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
