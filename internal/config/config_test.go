package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, cfg.Cooldown())
	assert.Equal(t, 2*time.Second, cfg.DisplayDuration())
	assert.Equal(t, time.Second, cfg.Grace())
	assert.Equal(t, time.Second/60, cfg.RefreshInterval())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfigFile("does-not-exist.json")
	require.NoError(t, err)
	assert.Equal(t, DefaultDetectorHost, cfg.Detector.Host)
}

func TestSaveAndLoadJSON(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.json")

	cfg := NewDefaultConfig()
	cfg.SetFPS(12)
	cfg.SetMinScore(0.7)
	cfg.Alert.CooldownMs = 5000
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint(12), loaded.GetFPS())
	assert.Equal(t, 0.7, loaded.GetMinScore())
	assert.Equal(t, 5*time.Second, loaded.Cooldown())
}

func TestSaveAndLoadYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")

	cfg := NewDefaultConfig()
	cfg.ActiveSource = SourceLocal
	cfg.Local.Path = "/tmp/clip.mp4"
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, loaded.ActiveSource)
	assert.Equal(t, "/tmp/clip.mp4", loaded.Local.Path)
}

func TestEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OBJWATCH_DETECTOR_HOST", "detector:9000")
	t.Setenv("OBJWATCH_GRACE_MS", "1500")
	t.Setenv("OBJWATCH_COOLDOWN_MS", "not-a-number")

	cfg, err := LoadConfigFile("missing.json")
	require.NoError(t, err)
	assert.Equal(t, "detector:9000", cfg.Detector.Host)
	assert.Equal(t, 1500*time.Millisecond, cfg.Grace())
	assert.Equal(t, 10*time.Second, cfg.Cooldown())
}

func TestDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OBJWATCH_ALARM_PATH=/sounds/beep.wav\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("OBJWATCH_ALARM_PATH") })

	cfg, err := LoadConfigFile("missing.json")
	require.NoError(t, err)
	assert.Equal(t, "/sounds/beep.wav", cfg.Alert.AlarmPath)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"source", func(c *Config) { c.ActiveSource = "YouTube" }},
		{"engine", func(c *Config) { c.Detector.Engine = "magic" }},
		{"score", func(c *Config) { c.Detector.MinScore = 1.5 }},
		{"cooldown", func(c *Config) { c.Alert.CooldownMs = -1 }},
		{"refresh", func(c *Config) { c.Loop.RefreshHz = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadConfigFile(path)
	assert.Error(t, err)
}
