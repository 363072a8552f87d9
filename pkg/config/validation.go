package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/tierkeeper/pkg/tier"
)

var validate = validator.New()

// Validate checks a configuration after defaults were applied.
//
// Field rules come from the `validate` struct tags; rules that depend on
// another field (the selected store type, enabled features) are checked
// afterwards. Validate never modifies cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	if err := validateTelemetry(cfg); err != nil {
		return err
	}
	if err := validateLocationStore(&cfg.LocationStore); err != nil {
		return fmt.Errorf("location_store: %w", err)
	}
	if cfg.History.Enabled {
		if err := cfg.History.Validate(); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}
	if err := validateStorage(&cfg.Storage); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	return nil
}

// formatValidationErrors renders every failed rule on its own line as
// "<namespace>: failed '<tag>' validation".
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s=%s' validation (value: %v)", field, e.Tag(), e.Param(), e.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s' validation", field, e.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "\n"))
}

func validateTelemetry(cfg *Config) error {
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return errors.New("telemetry.profiling.endpoint is required when profiling is enabled")
	}
	return nil
}

func validateLocationStore(cfg *LocationStoreConfig) error {
	switch cfg.Type {
	case "memory":
		return nil
	case "badger":
		if cfg.Badger.Path == "" && !cfg.Badger.InMemory {
			return errors.New("badger.path is required")
		}
		return nil
	case "postgres":
		if err := cfg.Postgres.Validate(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown type %q", cfg.Type)
	}
}

func validateStorage(cfg *StorageConfig) error {
	if _, err := tier.ParseDigestAlgorithm(cfg.VerifyDigest); err != nil {
		return err
	}

	switch cfg.Remote.Type {
	case "s3":
		if cfg.Remote.S3.Bucket == "" {
			return errors.New("remote.s3.bucket is required")
		}
	case "local":
		if cfg.Remote.Local.Path == "" {
			return errors.New("remote.local.path is required")
		}
		if filepath.Clean(cfg.Remote.Local.Path) == filepath.Clean(cfg.Local.Path) {
			return errors.New("remote.local.path must differ from local.path")
		}
	default:
		return fmt.Errorf("unknown remote type %q", cfg.Remote.Type)
	}
	return nil
}
