// Package hmm implements a discriminative hidden Markov model for sequence
// labeling, decoded with Viterbi and trained with the perceptron.
package hmm

import (
	"errors"
	"fmt"
	"math"

	"github.com/happyhackingspace/structperc/encoding"
	"github.com/happyhackingspace/structperc/param"
)

// Unlabeled marks a token without a label in a partial reference.
const Unlabeled = -1

// ErrShape is returned when a reference and a prediction do not match the
// input they were built for.
var ErrShape = errors.New("hmm: shape mismatch")

// Sequence is a feature-encoded token sequence. Features[t] lists the
// feature codes of token t.
type Sequence struct {
	Features [][]int
}

// Len returns the number of tokens.
func (s *Sequence) Len() int {
	return len(s.Features)
}

// NewOutput returns an unlabeled tagging shaped for s.
func (s *Sequence) NewOutput() *Tagging {
	labels := make([]int, len(s.Features))
	for i := range labels {
		labels[i] = Unlabeled
	}
	return &Tagging{Labels: labels}
}

// Tagging assigns a state to every token.
type Tagging struct {
	Labels []int
}

// Clone returns a copy of t.
func (t *Tagging) Clone() *Tagging {
	labels := make([]int, len(t.Labels))
	copy(labels, t.Labels)
	return &Tagging{Labels: labels}
}

// Model holds the HMM parameters.
type Model struct {
	NumStates   int
	NumFeatures int
	// States and Features name the codes when the model is persisted.
	// Either may be nil.
	States   *encoding.Alphabet
	Features *encoding.Alphabet

	params *param.Store
	// Weight layout: [emissions... | initial... | transitions...]
	// Emission index: featureID * numStates + state
	// Initial index: initOffset + state
	// Transition index: transOffset + from * numStates + to
}

// NewModel creates a zero model for the given vocabulary sizes.
func NewModel(numStates, numFeatures int) *Model {
	m := &Model{NumStates: numStates, NumFeatures: numFeatures}
	m.params = param.NewDense(m.NumWeights())
	return m
}

// InitOffset returns the offset where initial-state weights start.
func (m *Model) InitOffset() int {
	return m.NumFeatures * m.NumStates
}

// TransOffset returns the offset where transition weights start.
func (m *Model) TransOffset() int {
	return m.InitOffset() + m.NumStates
}

// NumWeights returns the total number of weights.
func (m *Model) NumWeights() int {
	return m.TransOffset() + m.NumStates*m.NumStates
}

// EmissionIndex returns the weight index for a feature emitted in state.
func (m *Model) EmissionIndex(featureID, state int) int {
	return featureID*m.NumStates + state
}

// InitialIndex returns the weight index for starting in state.
func (m *Model) InitialIndex(state int) int {
	return m.InitOffset() + state
}

// TransitionIndex returns the weight index for a transition.
func (m *Model) TransitionIndex(from, to int) int {
	return m.TransOffset() + from*m.NumStates + to
}

// Params exposes the underlying parameter store.
func (m *Model) Params() *param.Store {
	return m.params
}

func (m *Model) knownFeature(f int) bool {
	return f >= 0 && f < m.NumFeatures
}

// Emission returns the emission score of token t in state. A token without
// any known feature scores -Inf in every state.
func (m *Model) Emission(in *Sequence, t, state int) float64 {
	score, known := 0.0, false
	for _, f := range in.Features[t] {
		if !m.knownFeature(f) {
			continue
		}
		known = true
		score += m.params.Weight(m.EmissionIndex(f, state))
	}
	if !known {
		return math.Inf(-1)
	}
	return score
}

// Initial returns the score of starting in state.
func (m *Model) Initial(state int) float64 {
	return m.params.Weight(m.InitialIndex(state))
}

// Transition returns the score of moving from one state to another.
func (m *Model) Transition(from, to int) float64 {
	return m.params.Weight(m.TransitionIndex(from, to))
}

// Score returns the total score of labeling in with labels.
func (m *Model) Score(in *Sequence, labels []int) float64 {
	total := 0.0
	for t, s := range labels {
		total += m.Emission(in, t, s)
		if t == 0 {
			total += m.Initial(s)
		} else {
			total += m.Transition(labels[t-1], s)
		}
	}
	return total
}

func (m *Model) validState(s int) bool {
	return s >= 0 && s < m.NumStates
}

// Update moves the weights toward the features of correct and away from the
// features of predicted, scaled by rate. It returns the Hamming loss of
// predicted. Tokens left unlabeled in correct are ignored.
//
// Updates are pending until SumUpdates, so scores do not change during an
// example.
func (m *Model) Update(in *Sequence, correct, predicted *Tagging, rate float64) (float64, error) {
	T := in.Len()
	if len(correct.Labels) != T || len(predicted.Labels) != T {
		return 0, fmt.Errorf("%w: input %d tokens, correct %d, predicted %d",
			ErrShape, T, len(correct.Labels), len(predicted.Labels))
	}
	loss := 0.0
	for t := range T {
		c, p := correct.Labels[t], predicted.Labels[t]
		if !m.validState(c) {
			continue
		}
		if !m.validState(p) {
			return loss, fmt.Errorf("%w: predicted state %d at token %d", ErrShape, p, t)
		}
		if c != p {
			loss++
			for _, f := range in.Features[t] {
				if !m.knownFeature(f) {
					continue
				}
				if err := m.add(m.EmissionIndex(f, c), rate); err != nil {
					return loss, err
				}
				if err := m.add(m.EmissionIndex(f, p), -rate); err != nil {
					return loss, err
				}
			}
		}
		if t == 0 {
			if c != p {
				if err := m.add(m.InitialIndex(c), rate); err != nil {
					return loss, err
				}
				if err := m.add(m.InitialIndex(p), -rate); err != nil {
					return loss, err
				}
			}
			continue
		}
		cp, pp := correct.Labels[t-1], predicted.Labels[t-1]
		if !m.validState(cp) || (cp == pp && c == p) {
			continue
		}
		if err := m.add(m.TransitionIndex(cp, c), rate); err != nil {
			return loss, err
		}
		if err := m.add(m.TransitionIndex(pp, p), -rate); err != nil {
			return loss, err
		}
	}
	return loss, nil
}

func (m *Model) add(idx int, delta float64) error {
	if err := m.params.Update(idx, delta); err != nil {
		return fmt.Errorf("hmm: %w", err)
	}
	return nil
}

// SumUpdates folds the updates made during iteration.
func (m *Model) SumUpdates(iteration int) error {
	return m.params.SumUpdates(iteration)
}

// Average replaces every weight with its average over totalIterations.
func (m *Model) Average(totalIterations int) error {
	return m.params.Average(totalIterations)
}

// Clone deep-copies the parameters. Alphabets are shared.
func (m *Model) Clone() *Model {
	c := *m
	c.params = m.params.Clone()
	return &c
}
