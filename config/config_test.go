package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	require.Equal(t, 100*time.Millisecond, cfg.MaxStopWait.Duration)
	require.Equal(t, 256, cfg.EventQueueCapacity)
	require.Equal(t, time.Millisecond, cfg.TimerResolution.Duration)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFullDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
maxStopWait: 250ms
eventQueueCapacity: 512
timerResolution: 5ms
logLevel: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.MaxStopWait.Duration)
	require.Equal(t, 512, cfg.EventQueueCapacity)
	require.Equal(t, 5*time.Millisecond, cfg.TimerResolution.Duration)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadPartialDocumentFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
logLevel: warn
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, Default().EventQueueCapacity, cfg.EventQueueCapacity)
	require.Equal(t, Default().MaxStopWait, cfg.MaxStopWait)
	require.Equal(t, Default().TimerResolution, cfg.TimerResolution)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidDurationReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `maxStopWait: "not-a-duration"`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestDurationMarshalYAMLRoundTrip(t *testing.T) {
	d := Duration{250 * time.Millisecond}
	out, err := d.MarshalYAML()
	require.NoError(t, err)
	require.Equal(t, "250ms", out)

	var back Duration
	require.NoError(t, yaml.Unmarshal([]byte(out.(string)), &back))
	require.Equal(t, d, back)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
