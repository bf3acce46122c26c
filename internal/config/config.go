// Package config loads engine settings from citysim.cfg.json and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "citysim.cfg.json"

// SimulationConfig holds the tick and population settings.
type SimulationConfig struct {
	TimeStep            float64 `json:"timeStep" mapstructure:"timeStep"`           // seconds per tick
	PhaseTicks          int     `json:"phaseTicks" mapstructure:"phaseTicks"`       // signal phase length
	SpawnInterval       int     `json:"spawnInterval" mapstructure:"spawnInterval"` // ticks between spawn attempts
	SpawnPeriod         float64 `json:"spawnPeriod" mapstructure:"spawnPeriod"`     // seconds between spawn attempts; overrides spawnInterval when set
	BuildingsPerVehicle int     `json:"buildingsPerVehicle" mapstructure:"buildingsPerVehicle"`
	MaxSpeedVariation   float64 `json:"maxSpeedVariation" mapstructure:"maxSpeedVariation"`
	MinGap              float64 `json:"minGap" mapstructure:"minGap"`
	MinSpeed            float64 `json:"minSpeed" mapstructure:"minSpeed"`
	Acceleration        float64 `json:"acceleration" mapstructure:"acceleration"`
	Seed                uint64  `json:"seed" mapstructure:"seed"`
}

// RoadConfig holds road geometry defaults.
type RoadConfig struct {
	SpeedLimit  float64 `json:"speedLimit" mapstructure:"speedLimit"`
	Spacing     float64 `json:"spacing" mapstructure:"spacing"`
	SnapRadius  float64 `json:"snapRadius" mapstructure:"snapRadius"`
	LanePenalty float64 `json:"lanePenalty" mapstructure:"lanePenalty"`
}

// RecorderConfig holds snapshot recording settings.
type RecorderConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// Config is the full typed configuration.
type Config struct {
	LogLevel  string           `json:"logLevel" mapstructure:"logLevel"`
	LogFormat string           `json:"logFormat" mapstructure:"logFormat"`
	Metrics   bool             `json:"metrics" mapstructure:"metrics"`
	Sim       SimulationConfig `json:"sim" mapstructure:"sim"`
	Road      RoadConfig       `json:"road" mapstructure:"road"`
	Recorder  RecorderConfig   `json:"recorder" mapstructure:"recorder"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logFormat", "console")
	viper.SetDefault("metrics", false)

	viper.SetDefault("sim.timeStep", 0.1)
	viper.SetDefault("sim.phaseTicks", 30)
	viper.SetDefault("sim.spawnInterval", 5)
	viper.SetDefault("sim.spawnPeriod", 0.0)
	viper.SetDefault("sim.buildingsPerVehicle", 5)
	viper.SetDefault("sim.maxSpeedVariation", 1.5)
	viper.SetDefault("sim.minGap", 6.0)
	viper.SetDefault("sim.minSpeed", 2.0)
	viper.SetDefault("sim.acceleration", 3.0)
	viper.SetDefault("sim.seed", 1)

	viper.SetDefault("road.speedLimit", 13.9)
	viper.SetDefault("road.spacing", 7.5)
	viper.SetDefault("road.snapRadius", 2.0)
	viper.SetDefault("road.lanePenalty", 0.0)

	viper.SetDefault("recorder.enabled", false)
	viper.SetDefault("recorder.path", "./citysim.db")
}

// Load reads configDir/citysim.cfg.json over the defaults. A missing file is
// not an error. Environment variables prefixed CITYSIM_ override both, with
// nested keys joined by underscores (CITYSIM_SIM_SEED).
func Load(configDir string) (Config, error) {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	viper.SetEnvPrefix("CITYSIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}
