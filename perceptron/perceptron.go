// Package perceptron trains linear structured models with the averaged
// perceptron and its loss-augmented variants.
//
// The trainer is generic over the model, input and output types, so one
// loop drives sequence taggers, graph models and rankers alike.
package perceptron

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrAlreadyAveraged is returned when training continues after the
	// weights were averaged.
	ErrAlreadyAveraged = errors.New("perceptron: model already averaged")
	// ErrUnsupported is returned for option combinations the trainer does
	// not implement.
	ErrUnsupported = errors.New("perceptron: not supported")
	// ErrMismatch is returned when inputs and references differ in number.
	ErrMismatch = errors.New("perceptron: inputs and references differ in length")
)

// Model is a linear model trainable with the perceptron.
type Model[I, O any] interface {
	// Update applies rate times the feature difference between correct and
	// predicted as pending updates and returns the loss of predicted.
	Update(in I, correct, predicted O, rate float64) (float64, error)
	SumUpdates(iteration int) error
	Average(totalIterations int) error
}

// Inference decodes outputs of M.
type Inference[M, I, O any] interface {
	Infer(m M, in I) O
	PartialInfer(m M, in I, partial O) O
	LossAugmentedInfer(m M, in I, ref O, lossWeight float64) O
	LossAugmentedInferWithSplitWeights(m M, in I, partial, ref O, annotatedWeight, nonAnnotatedWeight float64) O
}

// State is the trainer lifecycle.
type State int

const (
	NotStarted State = iota
	Training
	Averaged
)

// Pool is a set of examples for TrainTwoPools.
type Pool[I, O any] struct {
	Inputs     []I
	References []O
}

// Trainer runs perceptron epochs over a model. It is not safe for
// concurrent use.
type Trainer[M Model[I, O], I, O any] struct {
	model  M
	inf    Inference[M, I, O]
	cfg    Config
	rng    *rand.Rand
	logger *slog.Logger

	state        State
	iteration    int
	epoch        int
	lossWeight   float64
	annotated    float64
	nonAnnotated float64
	alpha        []float64
}

// New creates a trainer for model decoded by inf.
func New[M Model[I, O], I, O any](model M, inf Inference[M, I, O], cfg Config) *Trainer[M, I, O] {
	t := &Trainer[M, I, O]{
		model:        model,
		inf:          inf,
		cfg:          cfg,
		rng:          cfg.Rand,
		logger:       cfg.Logger,
		lossWeight:   cfg.LossWeight,
		annotated:    cfg.AnnotatedLossWeight,
		nonAnnotated: cfg.NonAnnotatedLossWeight,
	}
	if t.rng == nil {
		t.rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Model returns the trained model.
func (t *Trainer[M, I, O]) Model() M { return t.model }

// State returns the lifecycle state.
func (t *Trainer[M, I, O]) State() State { return t.state }

// Iteration returns the number of examples processed so far.
func (t *Trainer[M, I, O]) Iteration() int { return t.iteration }

// LossWeight returns the current λ.
func (t *Trainer[M, I, O]) LossWeight() float64 { return t.lossWeight }

// DualCounts returns, for the Dual variant, the summed learning rate of the
// mistakes made on every example.
func (t *Trainer[M, I, O]) DualCounts() []float64 { return t.alpha }

// Train runs cfg.Epochs epochs over inputs and refs, then averages the
// weights when cfg.Average is set.
func (t *Trainer[M, I, O]) Train(inputs []I, refs []O) error {
	if err := t.begin(); err != nil {
		return err
	}
	if len(inputs) != len(refs) {
		return fmt.Errorf("%w: %d inputs, %d references", ErrMismatch, len(inputs), len(refs))
	}
	if t.cfg.Variant == Dual && len(t.alpha) != len(inputs) {
		t.alpha = make([]float64, len(inputs))
	}

	order := make([]int, len(inputs))
	for i := range order {
		order[i] = i
	}
	for range t.cfg.Epochs {
		if t.cfg.Shuffle {
			t.shuffle(order)
		}
		stats := EpochStats{Epoch: t.epoch, LossWeight: t.lossWeight}
		for _, idx := range order {
			loss, err := t.step(inputs[idx], refs[idx])
			if err != nil {
				return fmt.Errorf("perceptron: epoch %d example %d: %w", t.epoch, idx, err)
			}
			if loss > 0 {
				stats.Mistakes++
				if t.cfg.Variant == Dual {
					t.alpha[idx] += t.rate()
				}
			}
			stats.Loss += loss
			stats.Examples++
			if err := t.advance(); err != nil {
				return err
			}
		}
		if !t.endEpoch(stats) {
			break
		}
	}
	return t.finish()
}

// TrainTwoPools trains on examples drawn from two pools. Every epoch draws
// len(a)+len(b) examples, each from a with probability WeightA, which then
// decreases by WeightStep.
func (t *Trainer[M, I, O]) TrainTwoPools(a, b Pool[I, O]) error {
	if t.cfg.Variant == Dual {
		return fmt.Errorf("%w: dual training over two pools", ErrUnsupported)
	}
	if err := t.begin(); err != nil {
		return err
	}
	for _, p := range []Pool[I, O]{a, b} {
		if len(p.Inputs) != len(p.References) {
			return fmt.Errorf("%w: %d inputs, %d references", ErrMismatch, len(p.Inputs), len(p.References))
		}
	}
	if len(a.Inputs) == 0 || len(b.Inputs) == 0 {
		return fmt.Errorf("perceptron: both pools need examples (%d, %d)", len(a.Inputs), len(b.Inputs))
	}

	weightA := t.cfg.WeightA
	draws := len(a.Inputs) + len(b.Inputs)
	for range t.cfg.Epochs {
		coin := distuv.Bernoulli{P: clamp01(weightA), Src: t.rng}
		stats := EpochStats{Epoch: t.epoch, LossWeight: t.lossWeight}
		for range draws {
			pool := b
			if coin.Rand() == 1 {
				pool = a
			}
			idx := t.rng.IntN(len(pool.Inputs))
			loss, err := t.step(pool.Inputs[idx], pool.References[idx])
			if err != nil {
				return fmt.Errorf("perceptron: epoch %d: %w", t.epoch, err)
			}
			if loss > 0 {
				stats.Mistakes++
			}
			stats.Loss += loss
			stats.Examples++
			if err := t.advance(); err != nil {
				return err
			}
		}
		weightA = clamp01(weightA - t.cfg.WeightStep)
		if !t.endEpoch(stats) {
			break
		}
	}
	return t.finish()
}

func (t *Trainer[M, I, O]) begin() error {
	if t.state == Averaged {
		return ErrAlreadyAveraged
	}
	if t.cfg.SplitLossWeights && !t.cfg.Partial {
		return fmt.Errorf("%w: split loss weights without partial references", ErrUnsupported)
	}
	t.state = Training
	return nil
}

func (t *Trainer[M, I, O]) rate() float64 {
	return t.cfg.Schedule.Rate(t.cfg.LearningRate, t.iteration)
}

// step decodes one example and applies the update of the configured
// variant. Updates stay pending until advance.
func (t *Trainer[M, I, O]) step(in I, ref O) (float64, error) {
	full := ref
	if t.cfg.Partial {
		full = t.inf.PartialInfer(t.model, in, ref)
	}
	var toward, away O
	switch t.cfg.Variant {
	case Plain, Dual:
		toward, away = full, t.inf.Infer(t.model, in)
	case LossAugmented:
		toward, away = full, t.augmented(in, ref, full)
	case TowardBetter:
		toward = t.inf.LossAugmentedInfer(t.model, in, full, -t.lossWeight)
		away = t.inf.Infer(t.model, in)
	case AwayFromWorse:
		toward, away = t.inf.Infer(t.model, in), t.augmented(in, ref, full)
	default:
		return 0, fmt.Errorf("%w: variant %v", ErrUnsupported, t.cfg.Variant)
	}
	return t.model.Update(in, toward, away, t.rate())
}

func (t *Trainer[M, I, O]) augmented(in I, partial, full O) O {
	if t.cfg.SplitLossWeights {
		return t.inf.LossAugmentedInferWithSplitWeights(t.model, in, partial, full, t.annotated, t.nonAnnotated)
	}
	return t.inf.LossAugmentedInfer(t.model, in, full, t.lossWeight)
}

func (t *Trainer[M, I, O]) advance() error {
	if err := t.model.SumUpdates(t.iteration); err != nil {
		return fmt.Errorf("perceptron: iteration %d: %w", t.iteration, err)
	}
	t.iteration++
	return nil
}

func (t *Trainer[M, I, O]) endEpoch(stats EpochStats) bool {
	stats.Iteration = t.iteration
	t.logger.Debug("Perceptron epoch",
		"epoch", stats.Epoch,
		"examples", stats.Examples,
		"mistakes", stats.Mistakes,
		"loss", stats.Loss,
		"loss_weight", stats.LossWeight)
	t.epoch++
	t.lossWeight += t.cfg.LossWeightIncrement
	t.annotated += t.cfg.LossWeightIncrement
	t.nonAnnotated += t.cfg.LossWeightIncrement
	if t.cfg.OnEpoch != nil && !t.cfg.OnEpoch(stats) {
		t.logger.Info("Training stopped early", "epoch", stats.Epoch)
		return false
	}
	return true
}

func (t *Trainer[M, I, O]) finish() error {
	if !t.cfg.Average || t.iteration == 0 {
		return nil
	}
	if err := t.model.Average(t.iteration); err != nil {
		return fmt.Errorf("perceptron: average: %w", err)
	}
	t.state = Averaged
	return nil
}

// shuffle permutes order in place with Fisher-Yates.
func (t *Trainer[M, I, O]) shuffle(order []int) {
	for i := len(order) - 1; i > 0; i-- {
		j := t.rng.IntN(i + 1)
		order[i], order[j] = order[j], order[i]
	}
}

func clamp01(p float64) float64 {
	return min(max(p, 0), 1)
}
