package config

import (
	"strings"
	"testing"

	"github.com/nlpipe/nlpipe/pkg/processor"
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

func TestValidate_InvalidPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = 70000 // Out of range

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
	cfg.Server.Port = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for negative port")
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
	if !strings.Contains(err.Error(), "telemetry") {
		t.Errorf("Expected error about telemetry endpoint, got: %v", err)
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.SampleRate = 1.5 // Out of range (should be 0.0-1.0)

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_ProcessorMissingName(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Processors.Commands = []processor.CommandConfig{
		{Command: []string{"/usr/bin/tokenize"}},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for processor without name")
	}
}

func TestValidate_ProcessorBadURL(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Processors.HTTP = []processor.HTTPConfig{
		{Name: "corenlp", URL: "not a url"},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for processor with bad URL")
	}
}

func TestValidate_DuplicateProcessorNames(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Processors.Commands = []processor.CommandConfig{
		{Name: "corenlp", Command: []string{"/usr/bin/corenlp"}},
	}
	cfg.Processors.HTTP = []processor.HTTPConfig{
		{Name: "corenlp", URL: "http://localhost:9000/"},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for duplicate processor names")
	}
	if !strings.Contains(err.Error(), "corenlp") {
		t.Errorf("Expected error naming the duplicate, got: %v", err)
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	// Validation accepts both uppercase and lowercase log levels.
	testCases := []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"}

	for _, level := range testCases {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		err := Validate(cfg)
		if err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}
	}

	// Normalization happens in ApplyDefaults, not Validate.
	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}
