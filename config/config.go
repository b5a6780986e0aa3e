// Package config loads the runtime tuning knobs a Machine is built
// with, the way the teacher's YAML-driven example configs are parsed,
// but scoped to the few ambient settings this runtime exposes:
// MAX_STOP_WAIT, the event queue's initial capacity hint, timer
// resolution, and log level.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML (un)marshalling from strings
// like "100ms", since yaml.v3 has no native duration support.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// RuntimeConfig holds the ambient knobs of SPEC_FULL §4.12.
// Machine.WithConfig applies every field except TimerResolution, which
// it does not use.
type RuntimeConfig struct {
	MaxStopWait        Duration `yaml:"maxStopWait"`
	EventQueueCapacity int      `yaml:"eventQueueCapacity"`
	TimerResolution    Duration `yaml:"timerResolution"`
	LogLevel           string   `yaml:"logLevel"`
}

// Default returns the runtime's built-in defaults, used whenever Load
// is not called or a field is left zero in the loaded document.
func Default() *RuntimeConfig {
	return &RuntimeConfig{
		MaxStopWait:        Duration{100 * time.Millisecond},
		EventQueueCapacity: 256,
		TimerResolution:    Duration{time.Millisecond},
		LogLevel:           "info",
	}
}

// Load parses a RuntimeConfig from a YAML file at path, filling in
// defaults for any field the document leaves unset.
func Load(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.EventQueueCapacity <= 0 {
		cfg.EventQueueCapacity = Default().EventQueueCapacity
	}
	if cfg.MaxStopWait.Duration <= 0 {
		cfg.MaxStopWait = Default().MaxStopWait
	}
	if cfg.TimerResolution.Duration <= 0 {
		cfg.TimerResolution = Default().TimerResolution
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = Default().LogLevel
	}
	return cfg, nil
}
