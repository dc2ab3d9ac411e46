package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type SourceType string

type EngineType string

const (
	SourceLocal  SourceType = "Local"
	SourceWebcam SourceType = "Web-Camera"

	EngineRemote EngineType = "remote"
	EngineDNN    EngineType = "dnn"

	DefaultConfigPath   string = "config.json"
	DefaultDetectorHost string = "localhost:8080"
	DefaultHTTPAddr     string = "127.0.0.1:8090"

	envPrefix = "OBJWATCH_"
)

var SourcesList = [...]string{
	string(SourceLocal),
	string(SourceWebcam),
}

type LocalConfig struct {
	Path string `json:"path" yaml:"path"`
}

type WebcamConfig struct {
	DeviceID string `json:"device_id" yaml:"device_id"`
}

type DetectorConfig struct {
	Engine     EngineType `json:"engine" yaml:"engine"`
	Host       string     `json:"host" yaml:"host"`
	MaxSide    int        `json:"max_side" yaml:"max_side"`
	MinScore   float64    `json:"min_score" yaml:"min_score"`
	ModelPath  string     `json:"model_path" yaml:"model_path"`
	ConfigPath string     `json:"config_path" yaml:"config_path"`
}

type AlertConfig struct {
	CooldownMs int    `json:"cooldown_ms" yaml:"cooldown_ms"`
	DisplayMs  int    `json:"display_ms" yaml:"display_ms"`
	AlarmPath  string `json:"alarm_path" yaml:"alarm_path"`
}

type LoopConfig struct {
	RefreshHz int `json:"refresh_hz" yaml:"refresh_hz"`
	GraceMs   int `json:"grace_ms" yaml:"grace_ms"`
}

type OverlayConfig struct {
	PersonColor string  `json:"person_color" yaml:"person_color"`
	OtherColor  string  `json:"other_color" yaml:"other_color"`
	FontSize    float64 `json:"font_size" yaml:"font_size"`
}

type Config struct {
	mu sync.RWMutex

	ActiveSource SourceType `json:"active_source" yaml:"active_source"`
	TargetFPS    uint       `json:"target_fps" yaml:"target_fps"`
	ScaledWidth  int        `json:"scaled_width" yaml:"scaled_width"`
	ScaledHeight int        `json:"scaled_height" yaml:"scaled_height"`

	Local  LocalConfig  `json:"local" yaml:"local"`
	Webcam WebcamConfig `json:"webcam" yaml:"webcam"`

	Detector DetectorConfig `json:"detector" yaml:"detector"`
	Alert    AlertConfig    `json:"alert" yaml:"alert"`
	Loop     LoopConfig     `json:"loop" yaml:"loop"`
	Overlay  OverlayConfig  `json:"overlay" yaml:"overlay"`

	HTTPAddr string `json:"http_addr" yaml:"http_addr"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

func (c *Config) GetFPS() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TargetFPS
}

func (c *Config) SetFPS(fps uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TargetFPS = fps
}

func (c *Config) GetWidth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledWidth
}

func (c *Config) SetWidth(width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledWidth = width
}

func (c *Config) GetHeight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledHeight
}

func (c *Config) SetHeight(height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledHeight = height
}

func (c *Config) GetMinScore() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Detector.MinScore
}

func (c *Config) SetMinScore(score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Detector.MinScore = score
}

func (c *Config) Cooldown() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Alert.CooldownMs) * time.Millisecond
}

func (c *Config) DisplayDuration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Alert.DisplayMs) * time.Millisecond
}

func (c *Config) Grace() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Loop.GraceMs) * time.Millisecond
}

func (c *Config) RefreshInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Loop.RefreshHz <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.Loop.RefreshHz)
}

// Save writes the config as YAML when path ends in .yaml/.yml, JSON otherwise.
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create config file")
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return errors.Wrap(enc.Encode(c), "encode yaml config")
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(c), "encode json config")
}

func (c *Config) SaveByDefault() error {
	return c.Save(DefaultConfigPath)
}

func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.ActiveSource != SourceLocal && c.ActiveSource != SourceWebcam:
		return errors.Errorf("unknown source %q", c.ActiveSource)
	case c.Detector.Engine != EngineRemote && c.Detector.Engine != EngineDNN:
		return errors.Errorf("unknown detector engine %q", c.Detector.Engine)
	case c.Detector.MinScore < 0 || c.Detector.MinScore > 1:
		return errors.Errorf("min_score %v outside [0,1]", c.Detector.MinScore)
	case c.Alert.CooldownMs < 0 || c.Alert.DisplayMs < 0 || c.Loop.GraceMs < 0:
		return errors.New("durations must not be negative")
	case c.Loop.RefreshHz <= 0:
		return errors.Errorf("refresh_hz must be positive, got %d", c.Loop.RefreshHz)
	}
	return nil
}

// LoadConfigFile reads path over the defaults and then applies environment
// overrides. A missing file is not an error.
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}

		if isYAML(path) {
			err = yaml.Unmarshal(data, cfg)
		} else {
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
	}

	// .env is optional
	_ = godotenv.Load()
	cfg.applyEnv()

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.Detector.Host = getEnv("DETECTOR_HOST", c.Detector.Host)
	c.Alert.AlarmPath = getEnv("ALARM_PATH", c.Alert.AlarmPath)
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Alert.CooldownMs = getEnvAsInt("COOLDOWN_MS", c.Alert.CooldownMs)
	c.Loop.GraceMs = getEnvAsInt("GRACE_MS", c.Loop.GraceMs)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func NewDefaultConfig() *Config {
	return &Config{
		ActiveSource: SourceWebcam,
		Local:        LocalConfig{Path: ""},
		Webcam:       WebcamConfig{DeviceID: "/dev/video0"},
		TargetFPS:    30,
		ScaledWidth:  1280,
		ScaledHeight: 720,
		Detector: DetectorConfig{
			Engine:   EngineRemote,
			Host:     DefaultDetectorHost,
			MaxSide:  640,
			MinScore: 0.5,
		},
		Alert: AlertConfig{
			CooldownMs: 10000,
			DisplayMs:  2000,
			AlarmPath:  "detection-alarm.mp3",
		},
		Loop: LoopConfig{
			RefreshHz: 60,
			GraceMs:   1000,
		},
		Overlay: OverlayConfig{
			PersonColor: "#FF0000",
			OtherColor:  "#00FFFF",
			FontSize:    16,
		},
		HTTPAddr: DefaultHTTPAddr,
		LogLevel: "info",
	}
}
