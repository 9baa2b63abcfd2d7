package controller

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the host application configuration, loaded from
// ~/.taprig/config.yaml with environment overrides for the port settings.
type Config struct {
	SerialPort  string `yaml:"serial_port"`
	BaudRate    int    `yaml:"baud_rate"`
	OutDir      string `yaml:"out_dir"`
	ChartAddr   string `yaml:"chart_addr"`
	SessionName string `yaml:"session_name"`

	Calibration CalibrationConfig `yaml:"calibration"`
}

// CalibrationConfig tunes the drift-calibration store. MaxCorrection is the
// DriftUnbounded threshold: a stored factor outside [1/max, max] is
// distrusted and not applied.
type CalibrationConfig struct {
	Path           string  `yaml:"path"`
	MaxCorrection  float64 `yaml:"max_correction"`
	MinRunSeconds  float64 `yaml:"min_run_seconds"`
	SmoothingAlpha float64 `yaml:"smoothing_alpha"`
}

func defaultConfig() Config {
	return Config{
		BaudRate: 115200,
		OutDir:   filepath.Join(homeDir(), "taprig-runs"),
		Calibration: CalibrationConfig{
			Path:           filepath.Join(homeDir(), ".taprig", "calibration.json"),
			MaxCorrection:  1.10,
			MinRunSeconds:  30,
			SmoothingAlpha: 0.5,
		},
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// DefaultConfigPath is where LoadConfig looks when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(homeDir(), ".taprig", "config.yaml")
}

// LoadConfig reads the YAML config, filling defaults for absent fields. A
// missing file is not an error; defaults are returned.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("error reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config back, creating the directory if needed.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// FromEnv applies TAPRIG_PORT and TAPRIG_BAUD overrides.
func (c Config) FromEnv() Config {
	if port := os.Getenv("TAPRIG_PORT"); port != "" {
		c.SerialPort = port
	}
	if baud := os.Getenv("TAPRIG_BAUD"); baud != "" {
		if n, err := strconv.Atoi(baud); err == nil && n > 0 {
			c.BaudRate = n
		}
	}
	return c
}
