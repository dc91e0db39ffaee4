package hmm

import (
	"log/slog"
	"math"
)

// Viterbi decodes the best state sequence under a Model. Its tables grow to
// the longest sequence seen and are reused between calls, so a Viterbi value
// must not be shared between goroutines.
type Viterbi struct {
	// DefaultState scores 0 at tokens where every state scores -Inf.
	DefaultState int
	// Unlabeled is the label code that marks missing labels in partial
	// references.
	Unlabeled int
	Logger    *slog.Logger

	em    [][]float64
	delta [][]float64
	psi   [][]int
	init  []float64
	trans [][]float64
	fixed []int
}

// NewViterbi returns a decoder with default state 0 and the Unlabeled sentinel.
func NewViterbi(logger *slog.Logger) *Viterbi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Viterbi{Unlabeled: Unlabeled, Logger: logger}
}

// Infer returns the highest scoring tagging of in.
func (v *Viterbi) Infer(m *Model, in *Sequence) *Tagging {
	v.prepare(m, in)
	out := in.NewOutput()
	v.decode(m.NumStates, in.Len(), nil, out.Labels)
	return out
}

// PartialInfer completes partial: labeled tokens keep their label and the
// rest are filled optimally.
func (v *Viterbi) PartialInfer(m *Model, in *Sequence, partial *Tagging) *Tagging {
	v.prepare(m, in)
	fixed := v.constraints(m, partial)
	out := in.NewOutput()
	v.decode(m.NumStates, in.Len(), fixed, out.Labels)
	return out
}

// LossAugmentedInfer decodes with every state other than the reference label
// of a token rewarded by lossWeight. A negative weight favours the reference.
func (v *Viterbi) LossAugmentedInfer(m *Model, in *Sequence, ref *Tagging, lossWeight float64) *Tagging {
	v.prepare(m, in)
	for t, r := range ref.Labels {
		v.augment(m.NumStates, t, r, lossWeight)
	}
	out := in.NewOutput()
	v.decode(m.NumStates, in.Len(), nil, out.Labels)
	return out
}

// LossAugmentedInferWithSplitWeights is LossAugmentedInfer where tokens
// labeled in partial use annotatedWeight and the others use
// nonAnnotatedWeight. ref is the completed reference.
func (v *Viterbi) LossAugmentedInferWithSplitWeights(m *Model, in *Sequence, partial, ref *Tagging, annotatedWeight, nonAnnotatedWeight float64) *Tagging {
	v.prepare(m, in)
	for t, r := range ref.Labels {
		w := nonAnnotatedWeight
		if partial.Labels[t] != v.Unlabeled {
			w = annotatedWeight
		}
		v.augment(m.NumStates, t, r, w)
	}
	out := in.NewOutput()
	v.decode(m.NumStates, in.Len(), nil, out.Labels)
	return out
}

func (v *Viterbi) augment(S, t, ref int, w float64) {
	if ref < 0 || ref >= S || ref == v.Unlabeled {
		return
	}
	for s := range S {
		if s != ref {
			v.em[t][s] += w
		}
	}
}

// constraints converts partial labels to fixed states, -1 meaning free.
func (v *Viterbi) constraints(m *Model, partial *Tagging) []int {
	T := len(partial.Labels)
	if cap(v.fixed) < T {
		v.fixed = make([]int, T)
	}
	fixed := v.fixed[:T]
	labeled := 0
	for t, l := range partial.Labels {
		switch {
		case l == v.Unlabeled:
			fixed[t] = -1
		case l < 0 || l >= m.NumStates:
			v.logger().Warn("Ignoring invalid label in partial reference", "token", t, "label", l)
			fixed[t] = -1
		default:
			fixed[t] = l
			labeled++
		}
	}
	if labeled == 0 && T > 0 {
		v.logger().Warn("Partial reference has no labeled token", "tokens", T)
	}
	return fixed
}

// prepare fills the emission, initial and transition tables for in.
func (v *Viterbi) prepare(m *Model, in *Sequence) {
	T, S := in.Len(), m.NumStates
	v.grow(T, S)
	for s := range S {
		v.init[s] = m.Initial(s)
		for s2 := range S {
			v.trans[s][s2] = m.Transition(s, s2)
		}
	}
	for t := range T {
		row := v.em[t][:S]
		allInf := true
		for s := range S {
			row[s] = m.Emission(in, t, s)
			if !math.IsInf(row[s], -1) {
				allInf = false
			}
		}
		if allInf && v.DefaultState >= 0 && v.DefaultState < S {
			row[v.DefaultState] = 0
		}
	}
}

func (v *Viterbi) grow(T, S int) {
	if len(v.init) != S {
		v.init = make([]float64, S)
		v.trans = make([][]float64, S)
		for s := range S {
			v.trans[s] = make([]float64, S)
		}
		v.em, v.delta, v.psi = nil, nil, nil
	}
	for len(v.em) < T {
		v.em = append(v.em, make([]float64, S))
		v.delta = append(v.delta, make([]float64, S))
		v.psi = append(v.psi, make([]int, S))
	}
}

// decode runs the dynamic program over the prepared tables and writes the
// best path into labels. fixed may be nil.
func (v *Viterbi) decode(S, T int, fixed []int, labels []int) float64 {
	if T == 0 || S == 0 {
		return math.Inf(-1)
	}
	negInf := math.Inf(-1)
	fixedAt := func(t int) int {
		if fixed == nil {
			return -1
		}
		return fixed[t]
	}

	// t = 0
	f0 := fixedAt(0)
	for s := range S {
		v.psi[0][s] = 0
		if f0 >= 0 && s != f0 {
			v.delta[0][s] = negInf
			continue
		}
		v.delta[0][s] = v.emission(0, s, f0) + v.init[s]
	}

	// t = 1..T-1
	for t := 1; t < T; t++ {
		ft, fp := fixedAt(t), fixedAt(t-1)
		for s := range S {
			if ft >= 0 && s != ft {
				v.delta[t][s] = negInf
				v.psi[t][s] = 0
				continue
			}
			var bestScore float64
			bestPrev := -1
			if fp >= 0 {
				bestPrev = fp
				bestScore = v.delta[t-1][fp] + v.trans[fp][s]
			} else {
				for sp := range S {
					score := v.delta[t-1][sp] + v.trans[sp][s]
					if bestPrev < 0 || score > bestScore {
						bestScore = score
						bestPrev = sp
					}
				}
			}
			v.delta[t][s] = bestScore + v.emission(t, s, ft)
			v.psi[t][s] = bestPrev
		}
	}

	// Find best final label
	best := fixedAt(T - 1)
	var bestScore float64
	if best >= 0 {
		bestScore = v.delta[T-1][best]
	} else {
		for s := range S {
			if best < 0 || v.delta[T-1][s] > bestScore {
				bestScore = v.delta[T-1][s]
				best = s
			}
		}
	}

	// Backtrack
	labels[T-1] = best
	for t := T - 2; t >= 0; t-- {
		labels[t] = v.psi[t+1][labels[t+1]]
	}
	return bestScore
}

// emission returns the prepared emission score; a fixed state with an
// unseen emission scores 0 so the constraint cannot collapse the path.
func (v *Viterbi) emission(t, s, fixed int) float64 {
	e := v.em[t][s]
	if fixed >= 0 && math.IsInf(e, -1) {
		return 0
	}
	return e
}

func (v *Viterbi) logger() *slog.Logger {
	if v.Logger == nil {
		return slog.Default()
	}
	return v.Logger
}
