package perceptron

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
)

// Variant selects which structures an update moves toward and away from.
type Variant int

const (
	// Plain updates toward the reference and away from the prediction.
	Plain Variant = iota
	// LossAugmented updates away from the loss-augmented prediction.
	LossAugmented
	// TowardBetter updates toward the prediction augmented with -λ.
	TowardBetter
	// AwayFromWorse updates toward the prediction and away from the
	// loss-augmented prediction.
	AwayFromWorse
	// Dual is Plain with per-example mistake counts.
	Dual
)

var variantNames = []string{"plain", "loss-augmented", "toward-better", "away-from-worse", "dual"}

func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return fmt.Sprintf("Variant(%d)", int(v))
	}
	return variantNames[v]
}

// ParseVariant parses a variant name as printed by String.
func ParseVariant(s string) (Variant, error) {
	for i, name := range variantNames {
		if name == s {
			return Variant(i), nil
		}
	}
	return 0, fmt.Errorf("perceptron: unknown variant %q", s)
}

// Schedule maps the global iteration to a learning rate.
type Schedule int

const (
	// Constant keeps the base rate.
	Constant Schedule = iota
	// Inverse divides the rate by t+1.
	Inverse
	// InverseSqrt divides the rate by sqrt(t+1).
	InverseSqrt
	// Scaled divides the rate by (t+1)(rate+1).
	Scaled
)

var scheduleNames = []string{"constant", "inverse", "inverse-sqrt", "scaled"}

func (s Schedule) String() string {
	if s < 0 || int(s) >= len(scheduleNames) {
		return fmt.Sprintf("Schedule(%d)", int(s))
	}
	return scheduleNames[s]
}

// ParseSchedule parses a schedule name as printed by String.
func ParseSchedule(s string) (Schedule, error) {
	for i, name := range scheduleNames {
		if name == s {
			return Schedule(i), nil
		}
	}
	return 0, fmt.Errorf("perceptron: unknown schedule %q", s)
}

// Rate returns the learning rate at iteration t.
func (s Schedule) Rate(base float64, t int) float64 {
	n := float64(t + 1)
	switch s {
	case Inverse:
		return base / n
	case InverseSqrt:
		return base / math.Sqrt(n)
	case Scaled:
		return base / (n * (base + 1))
	default:
		return base
	}
}

// EpochStats summarizes one epoch.
type EpochStats struct {
	Epoch      int
	Examples   int
	Mistakes   int
	Loss       float64
	LossWeight float64
	// Iteration is the global iteration counter after the epoch.
	Iteration int
}

// Config holds perceptron training parameters.
type Config struct {
	Epochs       int
	LearningRate float64
	Schedule     Schedule
	Variant      Variant

	// LossWeight is λ for the loss-augmented variants; every λ grows by
	// LossWeightIncrement after each epoch.
	LossWeight          float64
	LossWeightIncrement float64
	// SplitLossWeights uses AnnotatedLossWeight on annotated parts of a
	// partial reference and NonAnnotatedLossWeight elsewhere. It needs
	// Partial.
	SplitLossWeights       bool
	AnnotatedLossWeight    float64
	NonAnnotatedLossWeight float64

	// Partial completes each reference with partial inference before it is
	// used.
	Partial bool
	Shuffle bool
	Seed    uint64
	Average bool

	// WeightA is the probability of drawing from the first pool in
	// TrainTwoPools; it decreases by WeightStep after each epoch.
	WeightA    float64
	WeightStep float64

	// Rand defaults to a PCG seeded with Seed.
	Rand *rand.Rand
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// OnEpoch is called after every epoch; returning false stops training.
	OnEpoch func(EpochStats) bool
}

// DefaultConfig returns the default training configuration.
func DefaultConfig() Config {
	return Config{
		Epochs:              10,
		LearningRate:        1,
		Schedule:            Constant,
		Variant:             Plain,
		LossWeight:          1,
		AnnotatedLossWeight: 1,
		Shuffle:             true,
		Seed:                1,
		Average:             true,
		WeightA:             0.5,
	}
}
