// Package config loads training configuration from YAML.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML training configuration.
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Training   TrainingConfig   `yaml:"training"`
	Data       DataConfig       `yaml:"data"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

type ModelConfig struct {
	Kind         string `yaml:"kind"`          // hmm, dependency, coref or ranking
	DefaultState string `yaml:"default_state"` // HMM fallback label for unseen tokens
}

type TrainingConfig struct {
	Epochs                 int     `yaml:"epochs"`
	LearningRate           float64 `yaml:"learning_rate"`
	Schedule               string  `yaml:"schedule"`
	Variant                string  `yaml:"variant"`
	LossWeight             float64 `yaml:"loss_weight"`
	LossWeightIncrement    float64 `yaml:"loss_weight_increment"`
	SplitLossWeights       bool    `yaml:"split_loss_weights"`
	AnnotatedLossWeight    float64 `yaml:"annotated_loss_weight"`
	NonAnnotatedLossWeight float64 `yaml:"non_annotated_loss_weight"`
	Partial                bool    `yaml:"partial"`
	Shuffle                bool    `yaml:"shuffle"`
	Seed                   uint64  `yaml:"seed"`
	Average                bool    `yaml:"average"`
	WeightA                float64 `yaml:"weight_a"`
	WeightStep             float64 `yaml:"weight_step"`
}

type DataConfig struct {
	Train string `yaml:"train"`  // JSON lines training file
	PoolB string `yaml:"pool_b"` // optional second pool for two-pool training
}

type CheckpointConfig struct {
	Path  string `yaml:"path"`  // SQLite file, empty disables checkpoints
	Every int    `yaml:"every"` // epochs between snapshots
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{Kind: "hmm"},
		Training: TrainingConfig{
			Epochs:              10,
			LearningRate:        1,
			Schedule:            "constant",
			Variant:             "plain",
			LossWeight:          1,
			AnnotatedLossWeight: 1,
			Shuffle:             true,
			Seed:                1,
			Average:             true,
			WeightA:             0.5,
		},
		Checkpoint: CheckpointConfig{Every: 1},
	}
}

// Load reads configPath over the defaults. An empty path searches
// configs/structperc.yaml and structperc.yaml and falls back to the
// defaults when neither exists.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		for _, p := range []string{"configs/structperc.yaml", "structperc.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, err
				}
				applyDefaults(cfg)
				return cfg, nil
			}
		}
		applyDefaults(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Model.Kind == "" {
		cfg.Model.Kind = "hmm"
	}
	if cfg.Training.Epochs <= 0 {
		cfg.Training.Epochs = 10
	}
	if cfg.Training.LearningRate <= 0 {
		cfg.Training.LearningRate = 1
	}
	if cfg.Training.Schedule == "" {
		cfg.Training.Schedule = "constant"
	}
	if cfg.Training.Variant == "" {
		cfg.Training.Variant = "plain"
	}
	if cfg.Training.WeightA < 0 || cfg.Training.WeightA > 1 {
		cfg.Training.WeightA = 0.5
	}
	if cfg.Checkpoint.Every <= 0 {
		cfg.Checkpoint.Every = 1
	}
}
