package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "TREASURY_ADDRESS", "EQAvDfWFG0oYX3zdfPUvqgbGO6CnDGB8gdyXkNNjhmGfWJ9r")
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultTonAPIURL, cfg.TonAPIURL)
	assert.Equal(t, DefaultWindowLimit, cfg.ChainWindowLimit)
	assert.Equal(t, DefaultConfirmTimeout, cfg.ConfirmTimeout)
	assert.Equal(t, DefaultTonRate, cfg.TonRateUSDT)
}

func TestLoad_MissingTreasury(t *testing.T) {
	setEnv(t, "TREASURY_ADDRESS", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TREASURY_ADDRESS is required")
}

func TestLoad_WindowLimitBounds(t *testing.T) {
	setEnv(t, "TREASURY_ADDRESS", "EQAvDfWFG0oYX3zdfPUvqgbGO6CnDGB8gdyXkNNjhmGfWJ9r")
	setEnv(t, "CHAIN_WINDOW_LIMIT", "500")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CHAIN_WINDOW_LIMIT")
}

func TestLoad_ConfirmTimeout(t *testing.T) {
	setEnv(t, "TREASURY_ADDRESS", "EQAvDfWFG0oYX3zdfPUvqgbGO6CnDGB8gdyXkNNjhmGfWJ9r")
	setEnv(t, "CONFIRM_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ConfirmTimeout)
}

func TestLoad_AllowedOrigins(t *testing.T) {
	setEnv(t, "TREASURY_ADDRESS", "EQAvDfWFG0oYX3zdfPUvqgbGO6CnDGB8gdyXkNNjhmGfWJ9r")
	setEnv(t, "ALLOWED_ORIGINS", "https://terramint.example, http://localhost:5173")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://terramint.example", "http://localhost:5173"}, cfg.AllowedOrigins)
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}
