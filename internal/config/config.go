package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const (
	UIWindow = "window"
	UITray   = "tray"
)

// MaxWindowSeconds bounds the capture time of one sample window: 500 cycles
// of a 1 Hz target.
const MaxWindowSeconds = 500

type Config struct {
	UI       string      `json:"ui"` // "window" or "tray"
	LogLevel string      `json:"log_level"`
	Audio    AudioConfig `json:"audio"`
	Scope    ScopeConfig `json:"scope"`
}

type AudioConfig struct {
	DeviceID        string `json:"device_id"`
	FramesPerBuffer int    `json:"frames_per_buffer"` // 0 = device native
}

type ScopeConfig struct {
	FrequencyHz   float64 `json:"frequency_hz"`
	Cycles        int     `json:"cycles"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	StopTimeoutMS int     `json:"stop_timeout_ms"` // 0 = wait forever
}

// StopTimeout is the bound on waiting for the sampling loop to exit.
func (s ScopeConfig) StopTimeout() time.Duration {
	return time.Duration(s.StopTimeoutMS) * time.Millisecond
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		UI:       UIWindow,
		LogLevel: "info",
		Audio: AudioConfig{
			DeviceID: "",
		},
		Scope: ScopeConfig{
			FrequencyHz:   440,
			Cycles:        10,
			Width:         700,
			Height:        256,
			StopTimeoutMS: 2000,
		},
	}
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile overlays the file at path onto the defaults. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	switch c.UI {
	case UIWindow, UITray:
	default:
		return fmt.Errorf("unknown ui %q", c.UI)
	}
	if c.Scope.FrequencyHz <= 0 || math.IsNaN(c.Scope.FrequencyHz) || math.IsInf(c.Scope.FrequencyHz, 0) {
		return fmt.Errorf("frequency must be positive, got %v", c.Scope.FrequencyHz)
	}
	if c.Scope.Cycles < 1 {
		return fmt.Errorf("cycles must be at least 1, got %d", c.Scope.Cycles)
	}
	if secs := float64(c.Scope.Cycles) / c.Scope.FrequencyHz; secs > MaxWindowSeconds {
		return fmt.Errorf("%d cycles of %v Hz take %.0fs to capture, limit is %ds",
			c.Scope.Cycles, c.Scope.FrequencyHz, secs, MaxWindowSeconds)
	}
	if c.Scope.Width < 1 || c.Scope.Height < 1 {
		return fmt.Errorf("canvas must be at least 1x1, got %dx%d", c.Scope.Width, c.Scope.Height)
	}
	if c.Scope.StopTimeoutMS < 0 {
		return fmt.Errorf("stop timeout cannot be negative")
	}
	if c.Audio.FramesPerBuffer < 0 {
		return fmt.Errorf("frames per buffer cannot be negative")
	}
	return nil
}

// Path returns the platform-specific config file path
func Path() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "scope-tuner", "config.json")
}
