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

	"github.com/marmos91/tierkeeper/internal/bytesize"
	"github.com/marmos91/tierkeeper/internal/telemetry"
	"github.com/marmos91/tierkeeper/pkg/history"
	"github.com/marmos91/tierkeeper/pkg/location/badger"
	"github.com/marmos91/tierkeeper/pkg/location/postgres"
	"github.com/marmos91/tierkeeper/pkg/tier/local"
	"github.com/marmos91/tierkeeper/pkg/tier/s3"
)

// Config represents the tierkeeper configuration.
//
// It covers:
//   - Logging, telemetry and metrics
//   - The location store holding one record per object
//   - The local and remote storage tiers
//   - The manipulators and their schedule
//   - The run history database
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (TIERKEEPER_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling
	Telemetry telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics configures Prometheus metrics and the daemon HTTP endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// LocationStore selects the database holding object location records
	LocationStore LocationStoreConfig `mapstructure:"location_store" yaml:"location_store"`

	// History configures the run history database
	History history.Config `mapstructure:"history" yaml:"history"`

	// Storage configures the local and remote tiers
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Manipulators configures the deleter, puller and recoverer
	Manipulators ManipulatorsConfig `mapstructure:"manipulators" yaml:"manipulators"`
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
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected and /metrics answers 404;
// `tierkeeper serve` still listens on Port for /healthz and /status.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port of the daemon endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// LocationStoreConfig selects the location store backend. Only the section
// matching Type is read.
type LocationStoreConfig struct {
	// Type is memory, badger or postgres
	Type string `mapstructure:"type" validate:"required,oneof=memory badger postgres" yaml:"type"`

	Badger   badger.Config   `mapstructure:"badger" validate:"-" yaml:"badger,omitempty"`
	Postgres postgres.Config `mapstructure:"postgres" validate:"-" yaml:"postgres,omitempty"`
}

// StorageConfig configures the two tiers.
type StorageConfig struct {
	// Local is the directory holding locally cached objects
	Local local.Config `mapstructure:"local" yaml:"local"`

	// Remote is the object storage tier
	Remote RemoteConfig `mapstructure:"remote" yaml:"remote"`

	// VerifyDigest is the hash that produced content hashes. Pulled objects
	// are checked against it before they become visible locally.
	// Valid values: none, sha1, sha256, blake3
	VerifyDigest string `mapstructure:"verify_digest" validate:"omitempty,oneof=none sha1 sha256 blake3" yaml:"verify_digest"`
}

// RemoteConfig selects the remote tier backend.
type RemoteConfig struct {
	// Type is s3, or local for a mounted directory standing in for object
	// storage (development setups)
	Type string `mapstructure:"type" validate:"required,oneof=s3 local" yaml:"type"`

	S3    s3.Config    `mapstructure:"s3" validate:"-" yaml:"s3,omitempty"`
	Local local.Config `mapstructure:"local" validate:"-" yaml:"local,omitempty"`
}

// ManipulatorsConfig configures the three manipulators.
type ManipulatorsConfig struct {
	// MaxRunDuration is the wall-clock budget of one run, candidate query
	// included. Default: 5m
	MaxRunDuration time.Duration `mapstructure:"max_run_duration" validate:"gt=0" yaml:"max_run_duration"`

	Deleter   DeleterConfig   `mapstructure:"deleter" yaml:"deleter"`
	Puller    PullerConfig    `mapstructure:"puller" yaml:"puller"`
	Recoverer RecovererConfig `mapstructure:"recoverer" yaml:"recoverer"`
}

// DeleterConfig configures the deleter.
type DeleterConfig struct {
	// Enabled schedules the deleter in `tierkeeper serve`
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval between two scheduled runs. Default: 1h
	Interval time.Duration `mapstructure:"interval" validate:"gt=0" yaml:"interval"`

	// ConsistencyDelay is how long an object must have been duplicated
	// before its local copy may be deleted. Default: 24h
	ConsistencyDelay time.Duration `mapstructure:"consistency_delay" validate:"gte=0" yaml:"consistency_delay"`

	// DeleteLocal gates local deletion. While false the deleter selects
	// nothing. Default: false
	DeleteLocal bool `mapstructure:"delete_local" yaml:"delete_local"`
}

// PullerConfig configures the puller.
type PullerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval between two scheduled runs. Default: 1h
	Interval time.Duration `mapstructure:"interval" validate:"gt=0" yaml:"interval"`

	// SizeThreshold selects remote objects whose largest catalogued file is
	// at most this size. Supports "1MiB", "512KB" or plain bytes.
	// Default: 1MiB
	SizeThreshold bytesize.ByteSize `mapstructure:"size_threshold" yaml:"size_threshold"`
}

// RecovererConfig configures the recoverer.
type RecovererConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval between two scheduled runs. Default: 1h
	Interval time.Duration `mapstructure:"interval" validate:"gt=0" yaml:"interval"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (TIERKEEPER_*)
//  2. Configuration file
//  3. Default values
//
// When no configuration file exists the default configuration is returned.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
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

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  tierkeeper init\n\n"+
				"Or specify a custom config file:\n"+
				"  tierkeeper <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  tierkeeper init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may hold database passwords and S3 secrets.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: TIERKEEPER_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("TIERKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true cannot be told apart from an explicit
	// false after unmarshalling, so they are registered with viper instead
	// of ApplyDefaults.
	v.SetDefault("history.enabled", true)
	v.SetDefault("manipulators.deleter.enabled", true)
	v.SetDefault("manipulators.puller.enabled", true)
	v.SetDefault("manipulators.recoverer.enabled", true)
	v.SetDefault("telemetry.insecure", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/tierkeeper/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
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
		// An explicit config file that does not exist surfaces as a PathError.
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
		byteSizeDecodeHook(),
		durationDecodeHook(),
		fileModeDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize, so
// sizes can be written as "1MiB", "500KB" or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s", "5m" or "24h" to
// time.Duration.
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
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// fileModeDecodeHook accepts octal strings such as "0750" for os.FileMode.
func fileModeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(os.FileMode(0)) {
			return data, nil
		}

		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		var mode uint32
		if _, err := fmt.Sscanf(s, "%o", &mode); err != nil {
			return nil, fmt.Errorf("invalid file mode %q: %w", s, err)
		}
		return os.FileMode(mode), nil
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tierkeeper")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "tierkeeper")
}

// getDataDir returns the directory holding default on-disk state (the
// Badger location store and the local object tree).
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "tierkeeper")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "share", "tierkeeper")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
