package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "./flowline.db", cfg.DBPath)
	assert.Equal(t, "./work", cfg.Workdir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Minute, cfg.StageTimeout)
	assert.Equal(t, "main", cfg.DefaultBranch)
	require.NoError(t, cfg.Validate())
}

func TestLoadHonorsEnvironment(t *testing.T) {
	t.Setenv("FLOWLINE_PORT", "9999")
	t.Setenv("FLOWLINE_LOG_LEVEL", "debug")
	t.Setenv("FLOWLINE_STAGE_TIMEOUT", "90s")
	t.Setenv("FLOWLINE_DEFAULT_BRANCH", "trunk")

	cfg := Load()
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 90*time.Second, cfg.StageTimeout)
	assert.Equal(t, "trunk", cfg.DefaultBranch)
}

func TestMalformedStageTimeoutFailsValidation(t *testing.T) {
	t.Setenv("FLOWLINE_STAGE_TIMEOUT", "whenever")
	cfg := Load()

	// The fallback keeps the process bootable, but the typo is not silent.
	assert.Equal(t, 10*time.Minute, cfg.StageTimeout)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLOWLINE_STAGE_TIMEOUT")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Load()
	cfg.LogLevel = "loud"
	assert.Error(t, cfg.Validate())

	cfg = Load()
	cfg.Port = ""
	assert.Error(t, cfg.Validate())

	cfg = Load()
	cfg.StageTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = Load()
	cfg.DBPath = ""
	assert.Error(t, cfg.Validate())
}
