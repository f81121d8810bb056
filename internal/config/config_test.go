package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultsIsValid(t *testing.T) {
	cfg := GetDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "workers-coordinator", cfg.App.Name)
	assert.Greater(t, cfg.Coordinator.MaxWorkers, 0)
}

func TestLoadFromEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("COORDINATOR_MAX_WORKERS", "7")
	t.Setenv("APP_LOG_LEVEL_UNUSED", "noop")
	os.Unsetenv("APP_LOG_LEVEL_UNUSED")

	cfg := GetDefaults()
	LoadFromEnvironment(cfg)

	assert.Equal(t, 7, cfg.Coordinator.MaxWorkers)
}

func TestValidateRejectsNegativeMaxWorkers(t *testing.T) {
	cfg := GetDefaults()
	cfg.Coordinator.MaxWorkers = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyRedisStream(t *testing.T) {
	cfg := GetDefaults()
	cfg.Redis.StreamName = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadReturnsValidatedConfig(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
}
