package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratus-analytics/pulse/internal/config"
	"github.com/stratus-analytics/pulse/pkg/types"
)

func TestBreakerConfig_Defaults(t *testing.T) {
	cfg := breakerConfig(nil)
	assert.Equal(t, 2.0, cfg.BackoffFactor)
	assert.Equal(t, time.Hour, cfg.MaxCooldown)
}

func TestBreakerConfig_Overrides(t *testing.T) {
	cfg := breakerConfig(&types.BreakerConfig{BackoffFactor: 3.0, MaxCooldown: "30m"})
	assert.Equal(t, 3.0, cfg.BackoffFactor)
	assert.Equal(t, 30*time.Minute, cfg.MaxCooldown)
}

func TestBreakerConfig_IgnoresInvalid(t *testing.T) {
	cfg := breakerConfig(&types.BreakerConfig{BackoffFactor: 0.5, MaxCooldown: "soon"})
	assert.Equal(t, 2.0, cfg.BackoffFactor)
	assert.Equal(t, time.Hour, cfg.MaxCooldown)
}

func TestRunInit_WritesLoadableConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "demo")
	require.NoError(t, runInit(dir))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.NotEmpty(t, cfg.Categories)
	require.NotEmpty(t, cfg.Pipelines)

	// Refuses to clobber an existing config.
	err = runInit(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = os.Stat(filepath.Join(dir, config.FileName))
	require.NoError(t, err)
}
