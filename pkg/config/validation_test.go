package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidMetricsPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Port = 70000 // Out of range

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_NegativePort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Port = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for negative port")
	}
}

func TestValidate_MissingLocalPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Local.Path = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing local path")
	}
	errStr := strings.ToLower(err.Error())
	if !strings.Contains(errStr, "local") || !strings.Contains(errStr, "path") {
		t.Errorf("Expected error about local path, got: %v", err)
	}
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for telemetry enabled without endpoint")
	}
	if !strings.Contains(err.Error(), "telemetry") && !strings.Contains(err.Error(), "endpoint") {
		t.Errorf("Expected error about telemetry endpoint, got: %v", err)
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.SampleRate = 1.5 // Out of range (should be 0.0-1.0)

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	testCases := []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"}

	for _, level := range testCases {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		err := Validate(cfg)
		if err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}

		// Validation should NOT normalize - level should remain as-is
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	// Normalization happens in ApplyDefaults
	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}

func TestValidate_LocationStoreType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.LocationStore.Type = "redis"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown location store type")
	}
	if !strings.Contains(err.Error(), "LocationStore.Type") {
		t.Errorf("Expected error naming LocationStore.Type, got: %v", err)
	}
}

func TestValidate_PostgresLocationStoreRequiresHost(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.LocationStore.Type = "postgres"
	cfg.LocationStore.Postgres.Database = "tierkeeper"
	cfg.LocationStore.Postgres.User = "tierkeeper"
	cfg.LocationStore.Postgres.ApplyDefaults()

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for postgres without host")
	}
	if !strings.Contains(err.Error(), "location_store") {
		t.Errorf("Expected error scoped to location_store, got: %v", err)
	}

	cfg.LocationStore.Postgres.Host = "localhost"
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected complete postgres config to pass, got: %v", err)
	}
}

func TestValidate_UnknownDigest(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.VerifyDigest = "md5"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown digest")
	}
}

func TestValidate_RemoteSameAsLocal(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Remote.Local.Path = cfg.Storage.Local.Path + "/"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error when both tiers share a directory")
	}
	if !strings.Contains(err.Error(), "must differ") {
		t.Errorf("Expected 'must differ' error, got: %v", err)
	}
}

func TestValidate_NonPositiveInterval(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Manipulators.Recoverer.Interval = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for zero interval")
	}
	if !strings.Contains(err.Error(), "Recoverer.Interval") {
		t.Errorf("Expected error naming Recoverer.Interval, got: %v", err)
	}
}

func TestValidate_DisabledHistoryIsNotChecked(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.History.Enabled = false
	cfg.History.SQLite.Path = ""

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected disabled history to be ignored, got: %v", err)
	}
}
