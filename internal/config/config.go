package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/ZanzyTHEbar/stacking-predict/internal/errors"
	"github.com/ZanzyTHEbar/stacking-predict/internal/security"
)

// ExplainConfig tunes the explanation engine and chart
type ExplainConfig struct {
	// KernelSamples caps Kernel SHAP coalitions; 0 picks 2M+2048
	KernelSamples int   `yaml:"kernel_samples"`
	Seed          int64 `yaml:"seed"`
	MaxDisplay    int   `yaml:"max_display"`
}

// Config is the server configuration
type Config struct {
	Port            string                  `yaml:"port"`
	GinMode         string                  `yaml:"gin_mode"`
	LogLevel        string                  `yaml:"log_level"`
	ModelPath       string                  `yaml:"model_path"`
	SchemaPath      string                  `yaml:"schema_path"`
	FigurePaths     []string                `yaml:"figure_paths"`
	FigureCacheTTL  time.Duration           `yaml:"figure_cache_ttl"` // 0 reads figures from disk every time
	Explain         ExplainConfig           `yaml:"explain"`
	Security        security.SecurityConfig `yaml:"security"`
	EnableHSTS      bool                    `yaml:"enable_hsts"`
	CSPReportURI    string                  `yaml:"csp_report_uri"`
	EnableProfiling bool                    `yaml:"enable_profiling"`
	ShutdownTimeout time.Duration           `yaml:"shutdown_timeout"`
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() *Config {
	return &Config{
		Port:      "8080",
		GinMode:   "release",
		LogLevel:  "info",
		ModelPath: "models/stacking_regressor.json",
		Explain: ExplainConfig{
			Seed:       0,
			MaxDisplay: 18,
		},
		FigureCacheTTL:  10 * time.Minute,
		Security:        security.DefaultSecurityConfig(),
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load reads CONFIG_FILE when set, then applies environment overrides and
// validates the result.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.NewConfigurationError("failed to read config file "+path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.NewConfigurationError("failed to parse config file "+path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	c.Port = getEnvOrDefault("PORT", c.Port)
	c.GinMode = getEnvOrDefault("GIN_MODE", c.GinMode)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.ModelPath = getEnvOrDefault("MODEL_PATH", c.ModelPath)
	c.SchemaPath = getEnvOrDefault("SCHEMA_PATH", c.SchemaPath)
	c.CSPReportURI = getEnvOrDefault("CSP_REPORT_URI", c.CSPReportURI)

	if v := os.Getenv("FIGURE_PATHS"); v != "" {
		c.FigurePaths = splitList(v)
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Security.AllowedOrigins = splitList(v)
	}

	var err error
	if c.Explain.KernelSamples, err = getEnvInt("KERNEL_SAMPLES", c.Explain.KernelSamples); err != nil {
		return err
	}
	if c.Explain.MaxDisplay, err = getEnvInt("MAX_DISPLAY", c.Explain.MaxDisplay); err != nil {
		return err
	}
	if c.FigureCacheTTL, err = getEnvDuration("FIGURE_CACHE_TTL", c.FigureCacheTTL); err != nil {
		return err
	}
	if c.Security.MaxRequestsPerMin, err = getEnvInt("RATE_LIMIT_PER_MIN", c.Security.MaxRequestsPerMin); err != nil {
		return err
	}
	if v := os.Getenv("KERNEL_SEED"); v != "" {
		seed, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			return apperrors.NewConfigurationError("KERNEL_SEED must be an integer", perr)
		}
		c.Explain.Seed = seed
	}
	if c.EnableHSTS, err = getEnvBool("ENABLE_HSTS", c.EnableHSTS); err != nil {
		return err
	}
	if c.EnableProfiling, err = getEnvBool("ENABLE_PROFILING", c.EnableProfiling); err != nil {
		return err
	}
	return nil
}

var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validGinModes  = []string{"debug", "release", "test"}
)

// minKernelSamples is two coalitions per field of the 18-field form. The
// explainer raises small budgets further on its own.
const minKernelSamples = 36

// Validate checks the configuration
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return apperrors.NewConfigurationError(fmt.Sprintf("invalid port %q", c.Port), err)
	}
	if c.ModelPath == "" {
		return apperrors.NewConfigurationError("model path is required", nil)
	}
	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		return apperrors.NewConfigurationError(fmt.Sprintf("invalid log level %q (valid: %v)", c.LogLevel, validLogLevels), nil)
	}
	if !slices.Contains(validGinModes, c.GinMode) {
		return apperrors.NewConfigurationError(fmt.Sprintf("invalid gin mode %q (valid: %v)", c.GinMode, validGinModes), nil)
	}
	if c.Explain.KernelSamples < 0 {
		return apperrors.NewConfigurationError("kernel samples must not be negative", nil)
	}
	if c.Explain.KernelSamples > 0 && c.Explain.KernelSamples < minKernelSamples {
		return apperrors.NewConfigurationError(
			fmt.Sprintf("kernel samples must be 0 (automatic) or at least %d", minKernelSamples), nil)
	}
	if c.Explain.MaxDisplay < 1 {
		return apperrors.NewConfigurationError("max display must be at least 1", nil)
	}
	if c.FigureCacheTTL < 0 {
		return apperrors.NewConfigurationError("figure cache ttl must not be negative", nil)
	}
	if c.ShutdownTimeout <= 0 {
		return apperrors.NewConfigurationError("shutdown timeout must be positive", nil)
	}
	if len(c.Security.AllowedOrigins) == 0 {
		return apperrors.NewConfigurationError("at least one allowed origin is required", nil)
	}
	for _, origin := range c.Security.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return apperrors.NewConfigurationError(fmt.Sprintf("invalid origin %q", origin), nil)
		}
	}
	if c.Security.MaxRequestsPerMin < 1 {
		return apperrors.NewConfigurationError("rate limit must be at least 1 request per minute", nil)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, apperrors.NewConfigurationError(key+" must be an integer", err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, apperrors.NewConfigurationError(key+" must be a duration such as 10m", err)
	}
	return d, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, apperrors.NewConfigurationError(key+" must be true or false", err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
