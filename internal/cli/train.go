package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/happyhackingspace/structperc"
	"github.com/happyhackingspace/structperc/internal/config"
	"github.com/happyhackingspace/structperc/perceptron"
	"github.com/spf13/cobra"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	var (
		configPath string
		dataPath   string
		poolB      string
		kind       string
		variant    string
		epochs     int
		checkpoint string
	)

	cmd := &cobra.Command{
		Use:   "train <modelfile>",
		Short: "Train a model on JSON lines examples",
		Args:  cobra.ExactArgs(1),
		Example: `  structperc train tagger.model --data train.jsonl
  structperc train parser.model --kind dependency --data trees.jsonl --epochs 20
  structperc train tagger.model --config configs/structperc.yaml --checkpoint ckpt.db -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelPath := args[0]
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			flags := cmd.Flags()
			if flags.Changed("data") {
				cfg.Data.Train = dataPath
			}
			if flags.Changed("pool-b") {
				cfg.Data.PoolB = poolB
			}
			if flags.Changed("kind") {
				cfg.Model.Kind = kind
			}
			if flags.Changed("variant") {
				cfg.Training.Variant = variant
			}
			if flags.Changed("epochs") {
				cfg.Training.Epochs = epochs
			}
			if flags.Changed("checkpoint") {
				cfg.Checkpoint.Path = checkpoint
			}
			if cfg.Data.Train == "" {
				return fmt.Errorf("no training data; use --data or data.train in the config")
			}

			tc, err := trainConfig(cfg)
			if err != nil {
				return err
			}
			var bar *pb.ProgressBar
			if !c.silent {
				bar = pb.StartNew(tc.Perceptron.Epochs)
				tc.Perceptron.OnEpoch = func(s perceptron.EpochStats) bool {
					bar.Add(1)
					slog.Debug("Epoch done", "epoch", s.Epoch, "mistakes", s.Mistakes, "loss", s.Loss)
					return true
				}
			}

			slog.Info("Training model", "kind", tc.Kind, "data", cfg.Data.Train, "output", modelPath)
			start := time.Now()
			m, err := structperc.Train(cfg.Data.Train, tc)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}
			slog.Debug("Training completed", "duration", time.Since(start))
			if err := m.Save(modelPath); err != nil {
				return err
			}
			slog.Info("Model saved", "path", modelPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (default: configs/structperc.yaml or structperc.yaml)")
	cmd.Flags().StringVar(&dataPath, "data", "", "JSON lines training file")
	cmd.Flags().StringVar(&poolB, "pool-b", "", "Second JSON lines pool for two-pool training")
	cmd.Flags().StringVar(&kind, "kind", "hmm", "Model kind: hmm, dependency, coref or ranking")
	cmd.Flags().StringVar(&variant, "variant", "plain", "Update rule: plain, loss-augmented, toward-better, away-from-worse or dual")
	cmd.Flags().IntVar(&epochs, "epochs", 10, "Number of epochs")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "SQLite file receiving per-epoch snapshots")
	return cmd
}

// trainConfig converts the YAML configuration into training options.
func trainConfig(cfg *config.Config) (*structperc.TrainConfig, error) {
	kind, err := structperc.ParseKind(cfg.Model.Kind)
	if err != nil {
		return nil, err
	}
	variant, err := perceptron.ParseVariant(cfg.Training.Variant)
	if err != nil {
		return nil, err
	}
	schedule, err := perceptron.ParseSchedule(cfg.Training.Schedule)
	if err != nil {
		return nil, err
	}

	tc := structperc.DefaultTrainConfig(kind)
	tc.DefaultState = cfg.Model.DefaultState
	tc.PoolB = cfg.Data.PoolB
	tc.CheckpointPath = cfg.Checkpoint.Path
	tc.CheckpointEvery = cfg.Checkpoint.Every

	t := cfg.Training
	p := &tc.Perceptron
	p.Epochs = t.Epochs
	p.LearningRate = t.LearningRate
	p.Schedule = schedule
	p.Variant = variant
	p.LossWeight = t.LossWeight
	p.LossWeightIncrement = t.LossWeightIncrement
	p.SplitLossWeights = t.SplitLossWeights
	p.AnnotatedLossWeight = t.AnnotatedLossWeight
	p.NonAnnotatedLossWeight = t.NonAnnotatedLossWeight
	p.Partial = t.Partial
	p.Shuffle = t.Shuffle
	p.Seed = t.Seed
	p.Average = t.Average
	p.WeightA = t.WeightA
	p.WeightStep = t.WeightStep
	return tc, nil
}
