// Package ranking implements a linear item ranker: the output of a query is
// the single best scoring candidate.
package ranking

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/happyhackingspace/structperc/encoding"
	"github.com/happyhackingspace/structperc/param"
)

// Unlabeled marks a query without a reference item.
const Unlabeled = -1

// ErrShape is returned when a choice names an item the query does not have.
var ErrShape = errors.New("ranking: shape mismatch")

// Query lists the feature codes of every candidate item.
type Query struct {
	Items [][]int
}

// Len returns the number of candidates.
func (q *Query) Len() int {
	return len(q.Items)
}

// NewOutput returns an unlabeled choice.
func (q *Query) NewOutput() *Choice {
	return &Choice{Item: Unlabeled}
}

// Choice is the selected candidate.
type Choice struct {
	Item int
}

// Model scores an item as the sum of its feature weights. Weights are
// allocated on first update, so the feature space need not be known up
// front.
type Model struct {
	Features *encoding.Alphabet

	params *param.Store
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{params: param.NewSparse()}
}

// Params exposes the underlying parameter store.
func (m *Model) Params() *param.Store {
	return m.params
}

// Score returns the score of item i of q.
func (m *Model) Score(q *Query, i int) float64 {
	score := 0.0
	for _, f := range q.Items[i] {
		score += m.params.Weight(f)
	}
	return score
}

func (m *Model) add(q *Query, i int, delta float64) error {
	for _, f := range q.Items[i] {
		if err := m.params.Update(f, delta); err != nil {
			return fmt.Errorf("ranking: %w", err)
		}
	}
	return nil
}

// Update moves the weights toward the features of the correct item and away
// from the predicted one. The loss is 1 when they differ.
func (m *Model) Update(q *Query, correct, predicted *Choice, rate float64) (float64, error) {
	c, p := correct.Item, predicted.Item
	if c == Unlabeled {
		return 0, nil
	}
	if c < 0 || c >= q.Len() || p < 0 || p >= q.Len() {
		return 0, fmt.Errorf("%w: items %d and %d of %d", ErrShape, c, p, q.Len())
	}
	if c == p {
		return 0, nil
	}
	if err := m.add(q, c, rate); err != nil {
		return 1, err
	}
	return 1, m.add(q, p, -rate)
}

// SumUpdates folds the updates made during iteration.
func (m *Model) SumUpdates(iteration int) error {
	return m.params.SumUpdates(iteration)
}

// Average replaces every weight with its average over totalIterations.
func (m *Model) Average(totalIterations int) error {
	return m.params.Average(totalIterations)
}

// Clone deep-copies the parameters. The alphabet is shared.
func (m *Model) Clone() *Model {
	c := *m
	c.params = m.params.Clone()
	return &c
}

// Write writes one "feature<TAB>weight" line per non-zero weight.
func (m *Model) Write(w io.Writer) error {
	return m.params.WriteText(w, func(code int) string {
		if m.Features == nil {
			return ""
		}
		return m.Features.String(code)
	})
}

// SaveModel writes the model to path.
func SaveModel(m *Model, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadModel reads a model written by SaveModel.
func LoadModel(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadModel(f)
}

// ReadModel parses the text format into a model with a fresh alphabet.
func ReadModel(r io.Reader) (*Model, error) {
	lines, err := param.ReadText(r)
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}
	m := NewModel()
	m.Features = encoding.NewAlphabet()
	for _, l := range lines {
		if err := m.params.Set(m.Features.Add(l.Name), l.Weight); err != nil {
			return nil, fmt.Errorf("ranking: %w", err)
		}
	}
	return m, nil
}

// Ranker decodes queries.
type Ranker struct {
	Logger *slog.Logger
}

// NewRanker creates a ranker.
func NewRanker(logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{Logger: logger}
}

func (r *Ranker) argmax(m *Model, q *Query, bonus func(i int) float64) *Choice {
	out := q.NewOutput()
	var best float64
	for i := range q.Items {
		s := m.Score(q, i)
		if bonus != nil {
			s += bonus(i)
		}
		if out.Item == Unlabeled || s > best {
			best, out.Item = s, i
		}
	}
	return out
}

// Infer returns the best item; ties go to the lowest index.
func (r *Ranker) Infer(m *Model, q *Query) *Choice {
	return r.argmax(m, q, nil)
}

// PartialInfer returns partial when it names an item and decodes otherwise.
func (r *Ranker) PartialInfer(m *Model, q *Query, partial *Choice) *Choice {
	if partial.Item >= 0 && partial.Item < q.Len() {
		return &Choice{Item: partial.Item}
	}
	if partial.Item != Unlabeled {
		r.Logger.Warn("Ignoring invalid reference item", "item", partial.Item, "items", q.Len())
	}
	return r.Infer(m, q)
}

// LossAugmentedInfer rewards every item other than the reference by
// lossWeight.
func (r *Ranker) LossAugmentedInfer(m *Model, q *Query, ref *Choice, lossWeight float64) *Choice {
	return r.argmax(m, q, func(i int) float64 {
		if ref.Item == Unlabeled || i == ref.Item {
			return 0
		}
		return lossWeight
	})
}

// LossAugmentedInferWithSplitWeights uses annotatedWeight when partial names
// an item and nonAnnotatedWeight otherwise.
func (r *Ranker) LossAugmentedInferWithSplitWeights(m *Model, q *Query, partial, ref *Choice, annotatedWeight, nonAnnotatedWeight float64) *Choice {
	w := nonAnnotatedWeight
	if partial.Item != Unlabeled {
		w = annotatedWeight
	}
	return r.LossAugmentedInfer(m, q, ref, w)
}
