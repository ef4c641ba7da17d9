package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/stacking-predict/internal/errors"
)

var envKeys = []string{
	"CONFIG_FILE", "PORT", "GIN_MODE", "LOG_LEVEL", "MODEL_PATH", "SCHEMA_PATH",
	"FIGURE_PATHS", "KERNEL_SAMPLES", "KERNEL_SEED", "MAX_DISPLAY",
	"RATE_LIMIT_PER_MIN", "ALLOWED_ORIGINS", "ENABLE_HSTS", "ENABLE_PROFILING",
	"CSP_REPORT_URI", "FIGURE_CACHE_TTL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "models/stacking_regressor.json", cfg.ModelPath)
	assert.Equal(t, 18, cfg.Explain.MaxDisplay)
	assert.Equal(t, 0, cfg.Explain.KernelSamples)
	assert.Equal(t, 60, cfg.Security.MaxRequestsPerMin)
	assert.Empty(t, cfg.FigurePaths)
	assert.False(t, cfg.EnableHSTS)
	assert.Equal(t, 10*time.Minute, cfg.FigureCacheTTL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("MODEL_PATH", "/srv/model.json")
	t.Setenv("FIGURE_PATHS", "a.png, b.png,,")
	t.Setenv("KERNEL_SAMPLES", "512")
	t.Setenv("KERNEL_SEED", "42")
	t.Setenv("MAX_DISPLAY", "10")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("ALLOWED_ORIGINS", "https://clinic.example")
	t.Setenv("ENABLE_HSTS", "true")
	t.Setenv("FIGURE_CACHE_TTL", "90s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/srv/model.json", cfg.ModelPath)
	assert.Equal(t, []string{"a.png", "b.png"}, cfg.FigurePaths)
	assert.Equal(t, 512, cfg.Explain.KernelSamples)
	assert.Equal(t, int64(42), cfg.Explain.Seed)
	assert.Equal(t, 10, cfg.Explain.MaxDisplay)
	assert.Equal(t, 90*time.Second, cfg.FigureCacheTTL)
	assert.Equal(t, 30, cfg.Security.MaxRequestsPerMin)
	assert.Equal(t, []string{"https://clinic.example"}, cfg.Security.AllowedOrigins)
	assert.True(t, cfg.EnableHSTS)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7070"
figure_paths:
  - figures/overall.png
explain:
  kernel_samples: 256
  seed: 3
  max_display: 12
security:
  max_requests_per_min: 20
  limiter_idle_ttl: 5m
shutdown_timeout: 10s
`), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_DISPLAY", "6")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, []string{"figures/overall.png"}, cfg.FigurePaths)
	assert.Equal(t, 256, cfg.Explain.KernelSamples)
	assert.Equal(t, int64(3), cfg.Explain.Seed)
	assert.Equal(t, 6, cfg.Explain.MaxDisplay, "environment wins over file")
	assert.Equal(t, 20, cfg.Security.MaxRequestsPerMin)
	assert.Equal(t, 5*time.Minute, cfg.Security.LimiterIdleTTL)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	// Untouched fields keep their defaults
	assert.Equal(t, "models/stacking_regressor.json", cfg.ModelPath)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing file", env: map[string]string{"CONFIG_FILE": "/nonexistent/config.yaml"}},
		{name: "bad port", env: map[string]string{"PORT": "http"}},
		{name: "port out of range", env: map[string]string{"PORT": "70000"}},
		{name: "bad samples", env: map[string]string{"KERNEL_SAMPLES": "many"}},
		{name: "negative samples", env: map[string]string{"KERNEL_SAMPLES": "-1"}},
		{name: "too few samples", env: map[string]string{"KERNEL_SAMPLES": "10"}},
		{name: "bad seed", env: map[string]string{"KERNEL_SEED": "1.5"}},
		{name: "zero max display", env: map[string]string{"MAX_DISPLAY": "0"}},
		{name: "zero rate limit", env: map[string]string{"RATE_LIMIT_PER_MIN": "0"}},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "verbose"}},
		{name: "bad gin mode", env: map[string]string{"GIN_MODE": "prod"}},
		{name: "bad bool", env: map[string]string{"ENABLE_HSTS": "maybe"}},
		{name: "negative cache", env: map[string]string{"FIGURE_CACHE_TTL": "-4"}},
		{name: "bad origin", env: map[string]string{"ALLOWED_ORIGINS": "clinic.example"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperrors.CategoryConfiguration, appErr.Category)
		})
	}
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("explain: [1, 2"), 0o644))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ExampleFileMatchesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join("..", "..", "configs", "config.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
