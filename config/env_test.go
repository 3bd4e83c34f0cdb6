package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("AGENTCENTER_LOG_LEVEL", "debug")
	t.Setenv("AGENTCENTER_STORE", "sqlite")
	t.Setenv("AGENTCENTER_STORE_PATH", "/tmp/sessions.db")

	e, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "debug", e.LogLevel)
	assert.Equal(t, "sqlite", e.Store)
	assert.Equal(t, "/tmp/sessions.db", e.StorePath)
}

func TestLoadEnvDefaults(t *testing.T) {
	e, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "info", e.LogLevel)
	assert.Equal(t, "text", e.LogFormat)
	assert.Equal(t, "memory", e.Store)
}
