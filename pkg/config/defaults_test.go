package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/tierkeeper/internal/bytesize"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_Manipulators(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	m := cfg.Manipulators
	if m.MaxRunDuration != 5*time.Minute {
		t.Errorf("Expected default max run duration 5m, got %v", m.MaxRunDuration)
	}
	if m.Deleter.ConsistencyDelay != 24*time.Hour {
		t.Errorf("Expected default consistency delay 24h, got %v", m.Deleter.ConsistencyDelay)
	}
	if m.Puller.SizeThreshold != bytesize.MiB {
		t.Errorf("Expected default size threshold 1MiB, got %v", m.Puller.SizeThreshold)
	}
	for name, interval := range map[string]time.Duration{
		"deleter":   m.Deleter.Interval,
		"puller":    m.Puller.Interval,
		"recoverer": m.Recoverer.Interval,
	} {
		if interval != time.Hour {
			t.Errorf("Expected default %s interval 1h, got %v", name, interval)
		}
	}
}

func TestApplyDefaults_LocationStore(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.LocationStore.Type != "badger" {
		t.Errorf("Expected default location store 'badger', got %q", cfg.LocationStore.Type)
	}
	if filepath.Base(cfg.LocationStore.Badger.Path) != "locations" {
		t.Errorf("Expected badger path ending in 'locations', got %q", cfg.LocationStore.Badger.Path)
	}
	if filepath.Base(filepath.Dir(cfg.LocationStore.Badger.Path)) != "tierkeeper" {
		t.Errorf("Expected badger path under the tierkeeper data dir, got %q", cfg.LocationStore.Badger.Path)
	}
}

func TestApplyDefaults_PostgresLocationStore(t *testing.T) {
	cfg := &Config{LocationStore: LocationStoreConfig{Type: "postgres"}}
	ApplyDefaults(cfg)

	pg := cfg.LocationStore.Postgres
	if pg.Port != 5432 {
		t.Errorf("Expected default postgres port 5432, got %d", pg.Port)
	}
	if pg.QueryTimeout != 30*time.Second {
		t.Errorf("Expected default query timeout 30s, got %v", pg.QueryTimeout)
	}
	if cfg.LocationStore.Badger.Path != "" {
		t.Errorf("Expected badger section untouched, got %q", cfg.LocationStore.Badger.Path)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/tierkeeper.log",
		},
		ShutdownTimeout: 60 * time.Second,
		Storage: StorageConfig{
			VerifyDigest: "blake3",
		},
		Manipulators: ManipulatorsConfig{
			MaxRunDuration: time.Minute,
			Puller:         PullerConfig{SizeThreshold: 512 * bytesize.KiB},
		},
	}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected explicit format 'json' to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "/var/log/tierkeeper.log" {
		t.Errorf("Expected explicit output to be preserved, got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 60*time.Second {
		t.Errorf("Expected explicit timeout 60s to be preserved, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Storage.VerifyDigest != "blake3" {
		t.Errorf("Expected explicit digest to be preserved, got %q", cfg.Storage.VerifyDigest)
	}
	if cfg.Manipulators.MaxRunDuration != time.Minute {
		t.Errorf("Expected explicit max run duration to be preserved, got %v", cfg.Manipulators.MaxRunDuration)
	}
	if cfg.Manipulators.Puller.SizeThreshold != 512*bytesize.KiB {
		t.Errorf("Expected explicit size threshold to be preserved, got %v", cfg.Manipulators.Puller.SizeThreshold)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level == "" {
		t.Error("Default config missing logging level")
	}
	if cfg.Storage.Local.Path == "" {
		t.Error("Default config missing local path")
	}
	if cfg.Storage.Remote.Local.Path == "" {
		t.Error("Default config missing remote path")
	}
	if cfg.History.SQLite.Path == "" {
		t.Error("Default config missing history path")
	}
}

func TestEnabledSchedules(t *testing.T) {
	cfg := GetDefaultConfig().Manipulators
	cfg.Puller.Enabled = false
	cfg.Deleter.Interval = 10 * time.Minute

	schedules := cfg.EnabledSchedules()
	if len(schedules) != 2 {
		t.Fatalf("Expected 2 schedules, got %d", len(schedules))
	}
	if schedules[0].Action != "recover" || schedules[1].Action != "delete" {
		t.Errorf("Unexpected schedule order: %+v", schedules)
	}
	if schedules[1].Interval != 10*time.Minute {
		t.Errorf("Expected deleter interval 10m, got %v", schedules[1].Interval)
	}
}

func TestEnabledSchedulesFollowActions(t *testing.T) {
	cfg := GetDefaultConfig().Manipulators
	cfg.Recoverer.Enabled = true
	cfg.Deleter.Enabled = true
	cfg.Puller.Enabled = true

	schedules := cfg.EnabledSchedules()
	actions := manipulator.Actions()
	if len(schedules) != len(actions) {
		t.Fatalf("Expected %d schedules, got %d", len(actions), len(schedules))
	}
	for i, action := range actions {
		if schedules[i].Action != action {
			t.Errorf("Schedule %d: expected %s, got %s", i, action, schedules[i].Action)
		}
	}
}
