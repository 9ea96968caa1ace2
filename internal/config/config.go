package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Params  ParamsConfig  `yaml:"params"`
	Mission MissionConfig `yaml:"mission"`
	Baro    BaroConfig    `yaml:"baro"`
	Sim     SimConfig     `yaml:"sim"`
}

type ParamsConfig struct {
	// Path of the persisted parameter file. Empty keeps parameters in
	// memory for the run.
	Path string `yaml:"path"`
	// Overrides applied after load, keyed by parameter name.
	Overrides map[string]float64 `yaml:"overrides"`
}

type MissionConfig struct {
	Legs        []LegConfig   `yaml:"legs"`
	LoiterAtEnd time.Duration `yaml:"loiter_at_end"`
}

type LegConfig struct {
	NorthCM float64 `yaml:"north_cm"`
	EastCM  float64 `yaml:"east_cm"`
	UpCM    float64 `yaml:"up_cm"`
	Spline  bool    `yaml:"spline"`
}

type BaroConfig struct {
	Enable bool `yaml:"enable"`
	// Synthetic pressure drift fed to the sensor model.
	DriftRampPaPerS float64       `yaml:"drift_ramp_pa_per_s"`
	DriftRampFor    time.Duration `yaml:"drift_ramp_for"`
}

type SimConfig struct {
	TickMS     int           `yaml:"tick_ms"`
	LegTimeout time.Duration `yaml:"leg_timeout"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if len(cfg.Mission.Legs) == 0 {
		return Config{}, fmt.Errorf("mission.legs is required")
	}

	if cfg.Sim.TickMS <= 0 {
		cfg.Sim.TickMS = 10
	}
	if cfg.Sim.LegTimeout <= 0 {
		cfg.Sim.LegTimeout = 2 * time.Minute
	}

	if cfg.Baro.Enable {
		if cfg.Baro.DriftRampFor < 0 {
			return Config{}, fmt.Errorf("baro.drift_ramp_for must be >= 0")
		}
	}

	return cfg, nil
}
