// Package config handles configuration loading and validation for masterbase.
// Settings come from a TOML file with environment-variable overrides;
// environment variables win.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/MegaAntiCheat/masterbase/internal/detect"
)

// Config holds the complete service configuration.
type Config struct {
	// Model configuration for the reference transition matrix.
	Model ModelConfig `toml:"model"`

	// Detection thresholds. Calibration values tied to the reference
	// model; retune these when the model is retrained.
	Detection DetectionConfig `toml:"detection"`

	// Scanner configuration for chunked stream scanning.
	Scanner ScannerConfig `toml:"scanner"`

	// Metrics endpoint configuration.
	Metrics MetricsConfig `toml:"metrics"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging"`
}

// ModelConfig holds reference model settings.
type ModelConfig struct {
	// Path is the reference model file (.npy or raw float64 dump).
	Path string `toml:"path"`
}

// DetectionConfig holds the flagging thresholds.
type DetectionConfig struct {
	// LikelihoodFloor flags a stream whose running likelihood falls to or
	// below this value.
	LikelihoodFloor float64 `toml:"likelihood_floor"`

	// MaxZeroRun flags a stream containing a zero-byte run at least this
	// long within one chunk.
	MaxZeroRun int `toml:"max_zero_run"`
}

// Thresholds converts the detection settings to engine thresholds.
func (c DetectionConfig) Thresholds() detect.Thresholds {
	return detect.Thresholds{
		LikelihoodFloor: c.LikelihoodFloor,
		MaxZeroRun:      c.MaxZeroRun,
	}
}

// ScannerConfig holds stream scanning settings.
type ScannerConfig struct {
	// ChunkSize is the read size per update, in bytes.
	ChunkSize int `toml:"chunk_size"`
}

// MetricsConfig holds metrics endpoint settings.
type MetricsConfig struct {
	// Enabled turns the Prometheus endpoint on.
	Enabled bool `toml:"enabled"`

	// ListenAddr is the host:port the endpoint binds to.
	ListenAddr string `toml:"listen_addr"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `toml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	th := detect.DefaultThresholds()
	return &Config{
		Model: ModelConfig{
			Path: "S_hat.npy",
		},
		Detection: DetectionConfig{
			LikelihoodFloor: th.LikelihoodFloor,
			MaxZeroRun:      th.MaxZeroRun,
		},
		Scanner: ScannerConfig{
			ChunkSize: 64 * 1024,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9099",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path, falling back to defaults for absent
// fields, then applies environment overrides. An empty path skips the file
// and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: decoding %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Model.Path == "" {
		return fmt.Errorf("config: model.path must be set")
	}
	if c.Detection.LikelihoodFloor < 0 {
		return fmt.Errorf("config: detection.likelihood_floor must be nonnegative, got %v", c.Detection.LikelihoodFloor)
	}
	if c.Detection.MaxZeroRun <= 0 {
		return fmt.Errorf("config: detection.max_zero_run must be positive, got %d", c.Detection.MaxZeroRun)
	}
	if c.Scanner.ChunkSize <= 1 {
		return fmt.Errorf("config: scanner.chunk_size must be greater than 1, got %d", c.Scanner.ChunkSize)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("config: metrics.listen_addr must be set when metrics are enabled")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// applyEnv overrides settings from MB_* environment variables. A numeric
// override that does not parse is an error: a typo'd threshold must not run
// with the file value unnoticed.
func (c *Config) applyEnv() error {
	c.Model.Path = getEnvOrDefault("MB_MODEL_PATH", c.Model.Path)
	c.Metrics.ListenAddr = getEnvOrDefault("MB_METRICS_ADDR", c.Metrics.ListenAddr)
	c.Logging.Level = getEnvOrDefault("MB_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOrDefault("MB_LOG_FORMAT", c.Logging.Format)

	if v := os.Getenv("MB_LIKELIHOOD_FLOOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: MB_LIKELIHOOD_FLOOR=%q: %w", v, err)
		}
		c.Detection.LikelihoodFloor = f
	}
	if v := os.Getenv("MB_MAX_ZERO_RUN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: MB_MAX_ZERO_RUN=%q: %w", v, err)
		}
		c.Detection.MaxZeroRun = n
	}
	if v := os.Getenv("MB_CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: MB_CHUNK_SIZE=%q: %w", v, err)
		}
		c.Scanner.ChunkSize = n
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or the default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
