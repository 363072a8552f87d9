package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/tierkeeper/internal/bytesize"
	"github.com/marmos91/tierkeeper/internal/telemetry"
	"github.com/marmos91/tierkeeper/pkg/history"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
// Booleans that default to true are handled by the loader, see setupViper.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyLocationStoreDefaults(&cfg.LocationStore)
	cfg.History.ApplyDefaults()
	applyStorageDefaults(&cfg.Storage)
	applyManipulatorsDefaults(&cfg.Manipulators)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *telemetry.Config) {
	defaults := telemetry.DefaultConfig()

	if cfg.ServiceName == "" {
		cfg.ServiceName = defaults.ServiceName
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaults.Endpoint
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaults.SampleRate
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = defaults.Profiling.Endpoint
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = defaults.Profiling.ProfileTypes
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyLocationStoreDefaults(cfg *LocationStoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}

	switch cfg.Type {
	case "badger":
		if cfg.Badger.Path == "" && !cfg.Badger.InMemory {
			cfg.Badger.Path = filepath.Join(getDataDir(), "locations")
		}
	case "postgres":
		cfg.Postgres.ApplyDefaults()
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Local.Path == "" {
		cfg.Local.Path = filepath.Join(getDataDir(), "filedir")
	}
	if cfg.Remote.Type == "" {
		cfg.Remote.Type = "s3"
	}
	if cfg.VerifyDigest == "" {
		cfg.VerifyDigest = "sha1"
	}
}

func applyManipulatorsDefaults(cfg *ManipulatorsConfig) {
	if cfg.MaxRunDuration == 0 {
		cfg.MaxRunDuration = manipulator.DefaultMaxRunDuration
	}

	if cfg.Deleter.Interval == 0 {
		cfg.Deleter.Interval = time.Hour
	}
	if cfg.Deleter.ConsistencyDelay == 0 {
		cfg.Deleter.ConsistencyDelay = 24 * time.Hour
	}

	if cfg.Puller.Interval == 0 {
		cfg.Puller.Interval = time.Hour
	}
	if cfg.Puller.SizeThreshold == 0 {
		cfg.Puller.SizeThreshold = bytesize.MiB
	}

	if cfg.Recoverer.Interval == 0 {
		cfg.Recoverer.Interval = time.Hour
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// The remote tier defaults to a directory next to the local one so the
// defaults form a runnable single-machine setup; production configurations
// point storage.remote at S3.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Telemetry: telemetry.DefaultConfig(),
		History:   history.Config{Enabled: true},
		Storage: StorageConfig{
			Remote: RemoteConfig{Type: "local"},
		},
		Manipulators: ManipulatorsConfig{
			Deleter:   DeleterConfig{Enabled: true},
			Puller:    PullerConfig{Enabled: true},
			Recoverer: RecovererConfig{Enabled: true},
		},
	}
	cfg.Storage.Remote.Local.Path = filepath.Join(getDataDir(), "remote")

	ApplyDefaults(cfg)
	return cfg
}
