package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration from an optional YAML file with
// environment overrides on top.
type Config struct {
	DBPath              string          `yaml:"db_path"`
	ArtifactsDir        string          `yaml:"artifacts_dir"`
	PageSize            int             `yaml:"page_size" validate:"gte=1,lte=10000"`
	ConfidenceThreshold float64         `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	Artifacts           ArtifactsConfig `yaml:"artifacts"`
	Worker              WorkerConfig    `yaml:"worker"`
}

// ArtifactsConfig controls artifact generation retries.
type ArtifactsConfig struct {
	MaxAttempts       int `yaml:"max_attempts" validate:"gte=1,lte=10"`
	AttemptTimeoutSec int `yaml:"attempt_timeout_sec" validate:"gte=1"`
}

// WorkerConfig controls the job queue and the background worker loop.
type WorkerConfig struct {
	QueueSize       int `yaml:"queue_size" validate:"gte=1,lte=1024"`
	WorkerCount     int `yaml:"worker_count" validate:"gte=1,lte=64"`
	JobTimeoutSec   int `yaml:"job_timeout_sec" validate:"gte=1"`
	ScanIntervalSec int `yaml:"scan_interval_sec" validate:"gte=1"`
	BatchSize       int `yaml:"batch_size" validate:"gte=1,lte=500"`
}

func defaults() Config {
	return Config{
		DBPath:              "runtime/callreports.db",
		ArtifactsDir:        "runtime/artifacts",
		PageSize:            2000,
		ConfidenceThreshold: 0.6,
		Artifacts: ArtifactsConfig{
			MaxAttempts:       3,
			AttemptTimeoutSec: 120,
		},
		Worker: WorkerConfig{
			QueueSize:       100,
			WorkerCount:     4,
			JobTimeoutSec:   600,
			ScanIntervalSec: 300,
			BatchSize:       50,
		},
	}
}

// Load reads the YAML file named by CONFIG_PATH (if set), applies environment
// overrides, and validates the result.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("ARTIFACTS_DIR"); v != "" {
		c.ArtifactsDir = v
	}
	overrideInt("PAGE_SIZE", &c.PageSize)
	overrideFloat("CONFIDENCE_THRESHOLD", &c.ConfidenceThreshold)
	overrideInt("ARTIFACT_MAX_ATTEMPTS", &c.Artifacts.MaxAttempts)
	overrideInt("ARTIFACT_TIMEOUT_SEC", &c.Artifacts.AttemptTimeoutSec)
	overrideInt("QUEUE_SIZE", &c.Worker.QueueSize)
	overrideInt("WORKER_COUNT", &c.Worker.WorkerCount)
	overrideInt("JOB_TIMEOUT_SEC", &c.Worker.JobTimeoutSec)
	overrideInt("SCAN_INTERVAL_SEC", &c.Worker.ScanIntervalSec)
	overrideInt("WORKER_BATCH_SIZE", &c.Worker.BatchSize)
}

func overrideInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func overrideFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}
