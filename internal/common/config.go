package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration. Values are layered:
// defaults -> TOML files (later files override earlier) -> environment
// (LEADFLOW_*) -> command-line flags.
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Functions   FunctionsConfig `toml:"functions"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Sweeper     SweeperConfig   `toml:"sweeper"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// FunctionsConfig configures the remote stage-execution functions. The
// functions are opaque: leadflow only sends an invocation acknowledgment
// request and receives job status reports on the callback URL.
type FunctionsConfig struct {
	BaseURL         string `toml:"base_url"`          // e.g. "https://functions.example.com"
	CallbackBaseURL string `toml:"callback_base_url"` // externally reachable base URL of this service
	Timeout         string `toml:"timeout"`           // invocation request timeout, e.g. "30s"
	RateLimit       int    `toml:"rate_limit"`        // invocations per second
}

// PipelineConfig configures the pipeline watcher.
type PipelineConfig struct {
	PollInterval string `toml:"poll_interval"` // e.g. "3s" - view refresh while non-terminal jobs exist
}

// SweeperConfig configures the stale-job sweeper.
type SweeperConfig struct {
	Enabled    bool   `toml:"enabled"`
	Schedule   string `toml:"schedule"`    // cron format, e.g. "*/5 * * * *"
	StaleAfter string `toml:"stale_after"` // e.g. "15m" - processing jobs without a status report
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/leadflow",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Functions: FunctionsConfig{
			BaseURL:         "http://localhost:9090",
			CallbackBaseURL: "http://localhost:8085",
			Timeout:         "30s",
			RateLimit:       5,
		},
		Pipeline: PipelineConfig{
			PollInterval: "3s",
		},
		Sweeper: SweeperConfig{
			Enabled:    true,
			Schedule:   "*/5 * * * *",
			StaleAfter: "15m",
		},
	}
}

// LoadFromFiles loads configuration from the given TOML files in order,
// later files overriding earlier ones, then applies environment overrides.
// A .env file in the working directory is loaded first when present.
func LoadFromFiles(paths ...string) (*Config, error) {
	// .env values feed the environment override pass below
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies LEADFLOW_* environment variables on top of the
// file-loaded configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEADFLOW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LEADFLOW_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LEADFLOW_STORAGE_PATH"); v != "" {
		cfg.Storage.Badger.Path = v
	}
	if v := os.Getenv("LEADFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LEADFLOW_FUNCTIONS_BASE_URL"); v != "" {
		cfg.Functions.BaseURL = v
	}
	if v := os.Getenv("LEADFLOW_FUNCTIONS_CALLBACK_BASE_URL"); v != "" {
		cfg.Functions.CallbackBaseURL = v
	}
	if v := os.Getenv("LEADFLOW_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
}

// ApplyFlagOverrides applies command-line flag values (highest priority).
// Zero values leave the config unchanged.
func ApplyFlagOverrides(cfg *Config, port int, host string) {
	if port != 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Storage.Badger.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	if c.Functions.BaseURL == "" {
		return fmt.Errorf("functions base_url is required")
	}
	if _, err := time.ParseDuration(c.Functions.Timeout); err != nil {
		return fmt.Errorf("invalid functions timeout %q: %w", c.Functions.Timeout, err)
	}
	if _, err := time.ParseDuration(c.Pipeline.PollInterval); err != nil {
		return fmt.Errorf("invalid pipeline poll_interval %q: %w", c.Pipeline.PollInterval, err)
	}
	if _, err := time.ParseDuration(c.Sweeper.StaleAfter); err != nil {
		return fmt.Errorf("invalid sweeper stale_after %q: %w", c.Sweeper.StaleAfter, err)
	}
	return nil
}

// FunctionTimeout returns the parsed invocation timeout.
func (c *Config) FunctionTimeout() time.Duration {
	return parseDurationOr(c.Functions.Timeout, 30*time.Second)
}

// PollInterval returns the parsed watcher poll interval.
func (c *Config) PollInterval() time.Duration {
	return parseDurationOr(c.Pipeline.PollInterval, 3*time.Second)
}

// StaleAfter returns the parsed stale-job threshold.
func (c *Config) StaleAfter() time.Duration {
	return parseDurationOr(c.Sweeper.StaleAfter, 15*time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
