// Package graph implements edge-factored models over directed graphs and
// their inference: dependency trees decoded as maximum branchings, and
// coreference clusters read off a branching rooted in an artificial node.
package graph

import (
	"errors"
	"fmt"
	"math"

	"github.com/happyhackingspace/structperc/disjoint"
	"github.com/happyhackingspace/structperc/encoding"
	"github.com/happyhackingspace/structperc/param"
)

const (
	// Root is the head of a node that has no parent.
	Root = -1
	// Unlabeled marks a node whose head is unknown in a partial reference.
	Unlabeled = -2
)

// ErrShape is returned when a reference or prediction does not match its
// input.
var ErrShape = errors.New("graph: shape mismatch")

// Input is a feature-encoded graph. Features[h][d] lists the feature codes
// of the edge h -> d; a nil list means the edge does not exist.
type Input struct {
	Features [][][]int
}

// Len returns the number of nodes.
func (in *Input) Len() int {
	return len(in.Features)
}

// NewOutput returns a tree with every head unknown.
func (in *Input) NewOutput() *Tree {
	heads := make([]int, len(in.Features))
	for i := range heads {
		heads[i] = Unlabeled
	}
	return &Tree{Heads: heads}
}

// Tree assigns a head to every node.
//
// Coreference references may instead carry gold Cluster ids, negative for
// unknown; coreference predictions fill Cluster and Clusters from the heads.
type Tree struct {
	Heads    []int
	Cluster  []int
	Clusters *disjoint.Sets
}

// Clone returns a deep copy of t.
func (t *Tree) Clone() *Tree {
	c := &Tree{Heads: append([]int(nil), t.Heads...)}
	if t.Cluster != nil {
		c.Cluster = append([]int(nil), t.Cluster...)
	}
	if t.Clusters != nil {
		c.Clusters = t.Clusters.Clone()
	}
	return c
}

// Model scores an edge as the sum of the weights of its features.
type Model struct {
	NumFeatures int
	// Features names the codes when the model is persisted. May be nil.
	Features *encoding.Alphabet

	params *param.Store
}

// NewModel creates a zero model over numFeatures edge features.
func NewModel(numFeatures int) *Model {
	return &Model{NumFeatures: numFeatures, params: param.NewDense(numFeatures)}
}

// Params exposes the underlying parameter store.
func (m *Model) Params() *param.Store {
	return m.params
}

// Score returns the score of h -> d, or NaN when the edge does not exist.
// Unknown feature codes contribute nothing.
func (m *Model) Score(in *Input, h, d int) float64 {
	if h == d || h < 0 || in.Features[h] == nil || in.Features[h][d] == nil {
		return math.NaN()
	}
	score := 0.0
	for _, f := range in.Features[h][d] {
		score += m.params.Weight(f)
	}
	return score
}

func (m *Model) addEdge(in *Input, h, d int, delta float64) error {
	if h < 0 {
		return nil
	}
	if h >= in.Len() || in.Features[h] == nil || in.Features[h][d] == nil {
		return fmt.Errorf("%w: edge %d->%d does not exist", ErrShape, h, d)
	}
	for _, f := range in.Features[h][d] {
		if f < 0 || f >= m.NumFeatures {
			continue
		}
		if err := m.params.Update(f, delta); err != nil {
			return fmt.Errorf("graph: %w", err)
		}
	}
	return nil
}

// Update moves the weights toward the edges of correct and away from the
// edges of predicted wherever their heads differ, scaled by rate. It
// returns the number of differing heads. Nodes with an unknown head in
// correct are ignored.
func (m *Model) Update(in *Input, correct, predicted *Tree, rate float64) (float64, error) {
	n := in.Len()
	if len(correct.Heads) != n || len(predicted.Heads) != n {
		return 0, fmt.Errorf("%w: input %d nodes, correct %d, predicted %d",
			ErrShape, n, len(correct.Heads), len(predicted.Heads))
	}
	loss := 0.0
	for d := range n {
		c, p := correct.Heads[d], predicted.Heads[d]
		if c == Unlabeled || c == p {
			continue
		}
		if p == Unlabeled {
			return loss, fmt.Errorf("%w: node %d has no predicted head", ErrShape, d)
		}
		loss++
		if err := m.addEdge(in, c, d, rate); err != nil {
			return loss, err
		}
		if err := m.addEdge(in, p, d, -rate); err != nil {
			return loss, err
		}
	}
	return loss, nil
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
