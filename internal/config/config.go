package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Source  SourceConfig  `yaml:"source" envPrefix:"SOURCE_"`
	Loader  LoaderConfig  `yaml:"loader" envPrefix:"LOADER_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Worker  WorkerConfig  `yaml:"worker" envPrefix:"WORKER_"`
	Synth   SynthConfig   `yaml:"synth" envPrefix:"SYNTH_"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxSubscribers  int           `yaml:"max_subscribers" env:"MAX_SUBSCRIBERS"`
	// HeartbeatInterval is how often idle event streams receive a keep-alive comment
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
	// MaxIdle evicts event subscribers that have not accepted a write for this long
	MaxIdle         time.Duration `yaml:"max_idle" env:"MAX_IDLE"`
	CleanupSchedule string        `yaml:"cleanup_schedule" env:"CLEANUP_SCHEDULE"` // cron spec
}

// SourceConfig contains settings for the external user-listing API
type SourceConfig struct {
	BaseURL             string        `yaml:"base_url" env:"BASE_URL"`
	PageSize            int           `yaml:"page_size" env:"PAGE_SIZE"`
	Timeout             time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries          int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay          time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	MaxIdleConns        int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host" env:"MAX_IDLE_CONNS_PER_HOST"`
	TLSInsecureSkip     bool          `yaml:"tls_insecure_skip" env:"TLS_INSECURE_SKIP"`
}

// LoaderConfig contains employee loader settings
type LoaderConfig struct {
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	LoadOnStart bool          `yaml:"load_on_start" env:"LOAD_ON_START"`
}

// StorageConfig contains settings for the local key-value cache
type StorageConfig struct {
	Path             string `yaml:"path" env:"PATH"`
	Key              string `yaml:"key" env:"KEY"`
	PersistEmployees bool   `yaml:"persist_employees" env:"PERSIST_EMPLOYEES"`
	// CheckpointSchedule is a cron spec for periodic synchronous flushes; empty disables
	CheckpointSchedule string `yaml:"checkpoint_schedule" env:"CHECKPOINT_SCHEDULE"`
}

// WorkerConfig contains persistence worker settings
type WorkerConfig struct {
	QueueSize      int           `yaml:"queue_size" env:"QUEUE_SIZE"`
	ProcessTimeout time.Duration `yaml:"process_timeout" env:"PROCESS_TIMEOUT"`
}

// SynthConfig contains settings for the synthetic field generator
type SynthConfig struct {
	Seed int64 `yaml:"seed" env:"SEED"` // 0 means a random seed per process
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`             // debug, info, warn, error
	Format     string `yaml:"format" env:"FORMAT"`           // json, console
	OutputPath string `yaml:"output_path" env:"OUTPUT_PATH"` // stdout, stderr, or file path
}

// EnvPrefix is prepended to every environment override
const EnvPrefix = "HRDASH_"

// Load builds the configuration from defaults, the optional YAML file at
// configPath, and HRDASH_* environment variables, in that order.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Source.BaseURL == "" {
		return fmt.Errorf("source base URL is required")
	}

	if c.Source.PageSize <= 0 {
		return fmt.Errorf("source page size must be positive")
	}

	if c.Source.MaxRetries < 0 {
		return fmt.Errorf("source max retries must not be negative")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if c.Storage.Key == "" {
		return fmt.Errorf("storage key is required")
	}

	if c.Server.HeartbeatInterval <= 0 {
		return fmt.Errorf("server heartbeat interval must be positive")
	}

	if c.Worker.QueueSize <= 0 {
		return fmt.Errorf("worker queue size must be positive")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	return nil
}

// Addr returns the host:port the HTTP server listens on
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      0, // event streams are long-lived
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			MaxSubscribers:    100,
			HeartbeatInterval: 15 * time.Second,
			MaxIdle:           5 * time.Minute,
			CleanupSchedule:   "@every 1m",
		},
		Source: SourceConfig{
			BaseURL:             "https://dummyjson.com",
			PageSize:            20,
			Timeout:             30 * time.Second,
			MaxRetries:          0,
			RetryDelay:          1 * time.Second,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			TLSInsecureSkip:     false,
		},
		Loader: LoaderConfig{
			Timeout:     30 * time.Second,
			LoadOnStart: true,
		},
		Storage: StorageConfig{
			Path:               "data/hr-dashboard.db",
			Key:                "hr-dashboard-storage",
			PersistEmployees:   true,
			CheckpointSchedule: "@every 5m",
		},
		Worker: WorkerConfig{
			QueueSize:      16,
			ProcessTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
