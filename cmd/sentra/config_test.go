package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8, cfg.PoolSize)
	assert.Equal(t, 500, cfg.MaxSteps)
	assert.Equal(t, 300, cfg.StepTimeoutSeconds)
	assert.Equal(t, 3600, cfg.ExecutionTimeoutSeconds)
	assert.Equal(t, 60, cfg.SchedulerIntervalSecs)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // keep any real settings.json out of the test
	t.Setenv("SENTRA_DB_PATH", "/tmp/sentra-test.db")
	t.Setenv("SENTRA_LOG_LEVEL", "debug")
	t.Setenv("SENTRA_POOL_SIZE", "3")
	t.Setenv("SENTRA_STEP_TIMEOUT_SECONDS", "45")

	cfg := loadConfig()

	assert.Equal(t, "/tmp/sentra-test.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.PoolSize)
	assert.Equal(t, 45, cfg.StepTimeoutSeconds)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3600, cfg.ExecutionTimeoutSeconds)
}

func TestLoadConfigIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SENTRA_POOL_SIZE", "many")

	cfg := loadConfig()
	assert.Equal(t, 8, cfg.PoolSize)
}

func TestDurationHelpers(t *testing.T) {
	cfg := Config{StepTimeoutSeconds: 30, ExecutionTimeoutSeconds: 120, SchedulerIntervalSecs: 15}

	assert.Equal(t, 30*time.Second, cfg.stepTimeout())
	assert.Equal(t, 2*time.Minute, cfg.executionTimeout())
	assert.Equal(t, 15*time.Second, cfg.schedulerInterval())
}
