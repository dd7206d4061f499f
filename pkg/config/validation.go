package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for invalid or inconsistent values.
//
// Struct-level constraints are expressed as `validate` tags on the config
// types; cross-field rules that tags cannot express live here.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry is enabled but no endpoint is configured")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("profiling is enabled but no endpoint is configured")
	}

	seen := make(map[string]string, len(cfg.Processors.Commands)+len(cfg.Processors.HTTP))
	for _, pc := range cfg.Processors.Commands {
		if prev, ok := seen[pc.Name]; ok {
			return fmt.Errorf("processor %q declared twice (%s and command)", pc.Name, prev)
		}
		seen[pc.Name] = "command"
	}
	for _, pc := range cfg.Processors.HTTP {
		if prev, ok := seen[pc.Name]; ok {
			return fmt.Errorf("processor %q declared twice (%s and http)", pc.Name, prev)
		}
		seen[pc.Name] = "http"
	}

	return nil
}
