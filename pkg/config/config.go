package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/c9s/hawkes/pkg/hawkes"
	"github.com/c9s/hawkes/pkg/solver"
)

type DataConfig struct {
	Path string `json:"path" yaml:"path"`

	// EndTimes overrides the end times stored in the data file
	EndTimes []float64 `json:"endTimes,omitempty" yaml:"endTimes,omitempty"`
}

type FitConfig struct {
	solver.Options `yaml:",inline"`

	// InitialWeight is the starting value of every kernel weight when Coeffs is empty
	InitialWeight float64 `json:"initialWeight" yaml:"initialWeight"`

	// Coeffs is an explicit starting point, baselines followed by the row-major weights
	Coeffs []float64 `json:"coeffs,omitempty" yaml:"coeffs,omitempty"`
}

type SimulationConfig struct {
	Baselines    []float64   `json:"baselines" yaml:"baselines"`
	Adjacency    [][]float64 `json:"adjacency" yaml:"adjacency"`
	EndTime      float64     `json:"endTime" yaml:"endTime"`
	Realizations int         `json:"realizations" yaml:"realizations"`
	Seed         uint64      `json:"seed" yaml:"seed"`
}

type Config struct {
	Model      hawkes.ModelConfig `json:"model" yaml:"model"`
	Data       *DataConfig        `json:"data,omitempty" yaml:"data,omitempty"`
	Fit        *FitConfig         `json:"fit,omitempty" yaml:"fit,omitempty"`
	Simulation *SimulationConfig  `json:"simulation,omitempty" yaml:"simulation,omitempty"`
}

var defaultFitConfig = FitConfig{
	Options:       solver.DefaultOptions,
	InitialWeight: 0.1,
}

func LoadConfig(yamlConfigFileName string) (*Config, error) {
	configYaml, err := os.ReadFile(yamlConfigFileName)
	if err != nil {
		return nil, err
	}

	return Parse(configYaml)
}

func Parse(configYaml []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(configYaml, &config); err != nil {
		return nil, err
	}

	if config.Model.Decay <= 0 {
		return nil, fmt.Errorf("model.decay must be positive, got %v", config.Model.Decay)
	}

	if config.Model.NumThreads == 0 {
		config.Model.NumThreads = 1
	} else if config.Model.NumThreads < 0 {
		return nil, fmt.Errorf("model.numThreads must be positive, got %d", config.Model.NumThreads)
	}

	if config.Fit == nil {
		fit := defaultFitConfig
		config.Fit = &fit
	} else {
		if config.Fit.MaxIterations == 0 {
			config.Fit.MaxIterations = defaultFitConfig.MaxIterations
		}

		if config.Fit.GradientThreshold == 0 {
			config.Fit.GradientThreshold = defaultFitConfig.GradientThreshold
		}

		if config.Fit.Tolerance == 0 {
			config.Fit.Tolerance = defaultFitConfig.Tolerance
		}

		if config.Fit.Store == 0 {
			config.Fit.Store = defaultFitConfig.Store
		}

		if config.Fit.InitialWeight == 0 && len(config.Fit.Coeffs) == 0 {
			config.Fit.InitialWeight = defaultFitConfig.InitialWeight
		}
	}

	if sim := config.Simulation; sim != nil {
		if len(sim.Baselines) == 0 {
			return nil, fmt.Errorf("simulation.baselines can not be empty")
		}

		if sim.Adjacency == nil {
			sim.Adjacency = make([][]float64, len(sim.Baselines))
			for i := range sim.Adjacency {
				sim.Adjacency[i] = make([]float64, len(sim.Baselines))
			}
		}

		if sim.Realizations == 0 {
			sim.Realizations = 1
		}

		if sim.EndTime <= 0 {
			return nil, fmt.Errorf("simulation.endTime must be positive, got %v", sim.EndTime)
		}
	}

	return &config, nil
}
