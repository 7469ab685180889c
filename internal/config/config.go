// Package config owns loading and validation of the simulator TOML
// configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type SimConfig struct {
	Frame      FrameConfig      `toml:"frame"`
	Ring       RingConfig       `toml:"ring"`
	Fragment   FragmentConfig   `toml:"fragment"`
	Impairment ImpairmentConfig `toml:"impairment"`
	Command    CommandConfig    `toml:"command"`
}

type FrameConfig struct {
	Rows           int   `toml:"rows"`
	Cols           int   `toml:"cols"`
	Count          int   `toml:"count"`
	VirtualChannel uint8 `toml:"virtual_channel"`
}

type RingConfig struct {
	Depth int `toml:"depth"`
}

type FragmentConfig struct {
	MaxPayload int   `toml:"max_payload"`
	TimeoutMS  int64 `toml:"timeout_ms"`
}

type ImpairmentConfig struct {
	LossRate       float64 `toml:"loss_rate"`
	ReorderRate    float64 `toml:"reorder_rate"`
	CorruptionRate float64 `toml:"corruption_rate"`
	MinDelayMS     int64   `toml:"min_delay_ms"`
	MaxDelayMS     int64   `toml:"max_delay_ms"`
	Seed           int64   `toml:"seed"`
}

type CommandConfig struct {
	Secret   string `toml:"secret"`
	MaxPeers int    `toml:"max_peers"`
}

// Timeout returns the fragment reassembly timeout as a duration.
func (c FragmentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c ImpairmentConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelayMS) * time.Millisecond
}

func (c ImpairmentConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

// LoadSimConfig reads, defaults, and validates a simulator config.
func LoadSimConfig(path string) (SimConfig, error) {
	var cfg SimConfig
	if err := loadToml(path, &cfg); err != nil {
		return SimConfig{}, err
	}
	cfg = withDefaults(cfg)
	if err := ValidateSimConfig(cfg); err != nil {
		return SimConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func withDefaults(cfg SimConfig) SimConfig {
	if cfg.Frame.Rows == 0 {
		cfg.Frame.Rows = 1024
	}
	if cfg.Frame.Cols == 0 {
		cfg.Frame.Cols = 1024
	}
	if cfg.Frame.Count == 0 {
		cfg.Frame.Count = 100
	}
	if cfg.Ring.Depth == 0 {
		cfg.Ring.Depth = 4
	}
	if cfg.Fragment.MaxPayload == 0 {
		cfg.Fragment.MaxPayload = 1400
	}
	if cfg.Fragment.TimeoutMS == 0 {
		cfg.Fragment.TimeoutMS = 2000
	}
	if cfg.Command.MaxPeers == 0 {
		cfg.Command.MaxPeers = 32
	}
	return cfg
}

func ValidateSimConfig(cfg SimConfig) error {
	if cfg.Frame.Rows <= 0 || cfg.Frame.Cols <= 0 {
		return fmt.Errorf("frame geometry must be positive: %dx%d", cfg.Frame.Rows, cfg.Frame.Cols)
	}
	if cfg.Frame.Rows > 65535 || cfg.Frame.Cols > 65535 {
		return fmt.Errorf("frame geometry exceeds 16-bit limit: %dx%d", cfg.Frame.Rows, cfg.Frame.Cols)
	}
	if cfg.Frame.VirtualChannel > 3 {
		return fmt.Errorf("virtual_channel must be 0-3, got %d", cfg.Frame.VirtualChannel)
	}
	if cfg.Frame.Count < 0 {
		return fmt.Errorf("frame count must not be negative")
	}
	if cfg.Ring.Depth <= 0 {
		return fmt.Errorf("ring depth must be positive")
	}
	if cfg.Fragment.MaxPayload <= 0 {
		return fmt.Errorf("fragment max_payload must be positive")
	}
	if cfg.Fragment.TimeoutMS <= 0 {
		return fmt.Errorf("fragment timeout_ms must be positive")
	}
	for name, rate := range map[string]float64{
		"loss_rate":       cfg.Impairment.LossRate,
		"reorder_rate":    cfg.Impairment.ReorderRate,
		"corruption_rate": cfg.Impairment.CorruptionRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %g", name, rate)
		}
	}
	if cfg.Impairment.MinDelayMS < 0 {
		return fmt.Errorf("min_delay_ms must not be negative")
	}
	if cfg.Impairment.MaxDelayMS < cfg.Impairment.MinDelayMS {
		return fmt.Errorf("max_delay_ms must not be below min_delay_ms")
	}
	if strings.TrimSpace(cfg.Command.Secret) == "" {
		return fmt.Errorf("command secret is required")
	}
	if cfg.Command.MaxPeers <= 0 {
		return fmt.Errorf("command max_peers must be positive")
	}
	return nil
}
