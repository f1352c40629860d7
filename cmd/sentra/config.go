package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all sentra engine configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath                  string `json:"db_path"`
	LogLevel                string `json:"log_level"`
	PoolSize                int    `json:"pool_size"`
	MaxSteps                int    `json:"max_steps"`
	StepTimeoutSeconds      int    `json:"step_timeout_seconds"`
	ExecutionTimeoutSeconds int    `json:"execution_timeout_seconds"`
	SchedulerIntervalSecs   int    `json:"scheduler_interval_seconds"`
}

func defaultConfig() Config {
	return Config{
		DBPath:                  "", // empty selects <sentra dir>/sentra.db
		LogLevel:                "info",
		PoolSize:                8,
		MaxSteps:                500,
		StepTimeoutSeconds:      300,
		ExecutionTimeoutSeconds: 3600,
		SchedulerIntervalSecs:   60,
	}
}

func sentraDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sentra"
	}
	return filepath.Join(home, ".sentra")
}

func settingsPath() string {
	return filepath.Join(sentraDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("SENTRA_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SENTRA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SENTRA_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("SENTRA_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSteps = n
		}
	}
	if v := os.Getenv("SENTRA_STEP_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StepTimeoutSeconds = n
		}
	}
	if v := os.Getenv("SENTRA_EXECUTION_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ExecutionTimeoutSeconds = n
		}
	}
	if v := os.Getenv("SENTRA_SCHEDULER_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SchedulerIntervalSecs = n
		}
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(sentraDir(), "sentra.db")
	}

	return cfg
}

func (c Config) stepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutSeconds) * time.Second
}

func (c Config) executionTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeoutSeconds) * time.Second
}

func (c Config) schedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalSecs) * time.Second
}
