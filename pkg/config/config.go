// Package config loads and validates the NLPipe configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/nlpipe/nlpipe/pkg/processor"
)

// Config represents the NLPipe configuration.
//
// The same file configures the server, the standalone worker and the
// client; each binary reads the sections it needs.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (NLPIPE_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Server configures the REST API server
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Store configures the filesystem task store
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Worker configures the processing worker pool
	Worker WorkerConfig `mapstructure:"worker" yaml:"worker"`

	// Client configures the command-line client
	Client ClientConfig `mapstructure:"client" yaml:"client"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Processors declares command and HTTP processors to register at
	// startup, in addition to the built-in ones.
	Processors ProcessorsConfig `mapstructure:"processors" yaml:"processors,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path. Defaults to stderr so
	// the client can pipe fetched results from stdout.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// ServerConfig configures the REST API server.
type ServerConfig struct {
	// Host is the address to bind. Default: localhost. Use 0.0.0.0 to
	// accept connections from other machines.
	// Override: NLPIPE_HOST
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP port. Default: 5001
	// Override: NLPIPE_PORT
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// DisableAuthentication turns off token checks on the API.
	// Default: false
	DisableAuthentication bool `mapstructure:"disable_authentication" yaml:"disable_authentication"`

	// Secret is the token signing secret. When empty, a secret is derived
	// from the machine identity so tokens survive restarts.
	Secret string `mapstructure:"secret" yaml:"secret,omitempty"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 30s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout. Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// StoreConfig configures the filesystem task store.
type StoreConfig struct {
	// Dir is the root directory of the task store.
	// Override: NLPIPE_DIR
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// WorkerConfig configures the processing worker pool.
type WorkerConfig struct {
	// Modules are the processor names to work on.
	Modules []string `mapstructure:"modules" yaml:"modules,omitempty"`

	// Processes is the number of concurrent workers per module.
	// Default: 1
	Processes int `mapstructure:"processes" validate:"omitempty,min=1" yaml:"processes"`

	// PollInterval is how often an idle worker re-checks its queue.
	// Default: 1s
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// QuitOnEmpty stops a worker when its queue is empty instead of
	// polling. Default: false
	QuitOnEmpty bool `mapstructure:"quit_on_empty" yaml:"quit_on_empty"`

	// Watch wakes idle workers as soon as a task file lands in the queue,
	// instead of waiting for the next poll tick. Only effective when the
	// worker runs against a local store. Default: true
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

// ClientConfig configures the command-line client.
type ClientConfig struct {
	// Server is the NLPipe server URL, or a local store directory.
	// Default: "http://localhost:5001"
	Server string `mapstructure:"server" yaml:"server"`

	// Token authenticates API requests.
	// Override: NLPIPE_TOKEN
	Token string `mapstructure:"token" yaml:"token,omitempty"`

	// Timeout bounds a single API request. Default: 60s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed at
	// /metrics. Default: true
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ProcessorsConfig declares processors to register at startup.
type ProcessorsConfig struct {
	// Commands are external-command processors.
	Commands []processor.CommandConfig `mapstructure:"commands" validate:"omitempty,dive" yaml:"commands,omitempty"`

	// HTTP are processors that relay documents to an upstream HTTP service.
	HTTP []processor.HTTPConfig `mapstructure:"http" validate:"omitempty,dive" yaml:"http,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (NLPIPE_*)
//  2. Configuration file
//  3. Default values
//
// A missing config file is not an error: the environment variables and
// defaults are enough to run every binary.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Restricted permissions: the file may contain the signing secret.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the NLPIPE_ prefix and underscores.
	// Example: NLPIPE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("NLPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults that are true: ApplyDefaults cannot distinguish an explicit
	// false from an unset bool, so these go through viper.
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("worker.watch", true)

	// Short environment names predate the sectioned config and are still
	// what deployments set; bind them alongside the canonical ones.
	_ = v.BindEnv("store.dir", "NLPIPE_STORE_DIR", "NLPIPE_DIR")
	_ = v.BindEnv("server.host", "NLPIPE_SERVER_HOST", "NLPIPE_HOST")
	_ = v.BindEnv("server.port", "NLPIPE_SERVER_PORT", "NLPIPE_PORT")
	_ = v.BindEnv("client.token", "NLPIPE_CLIENT_TOKEN", "NLPIPE_TOKEN")
	_ = v.BindEnv("client.server", "NLPIPE_CLIENT_SERVER", "NLPIPE_SERVER")
	_ = v.BindEnv("logging.level", "NLPIPE_LOGGING_LEVEL")
	_ = v.BindEnv("worker.modules", "NLPIPE_WORKER_MODULES")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nlpipe")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "nlpipe")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
