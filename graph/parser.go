package graph

import (
	"log/slog"
	"math"

	"github.com/happyhackingspace/structperc/branching"
)

// Parser decodes dependency trees. Node 0 is the artificial root: it never
// receives an edge, so every tree hangs from it. A Parser reuses its
// workspace and must not be shared between goroutines.
type Parser struct {
	Logger *slog.Logger

	ws          *branching.Workspace
	solver      *branching.Solver
	constrained *branching.Solver
}

// NewParser creates a dependency parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		Logger:      logger,
		ws:          branching.NewWorkspace(0),
		solver:      branching.NewSolver(logger),
		constrained: &branching.Solver{Logger: logger},
	}
}

// fill loads the edge scores of in into the workspace.
func fill(ws *branching.Workspace, m *Model, in *Input) {
	n := in.Len()
	ws.Reset(n)
	for h := range n {
		for d := 1; d < n; d++ {
			if s := m.Score(in, h, d); !math.IsNaN(s) {
				ws.Set(h, d, s)
			}
		}
	}
}

// augment adds w to every present edge entering d other than h.
func augment(ws *branching.Workspace, h, d int, w float64) {
	for u := range ws.Size() {
		if u != h && ws.HasEdge(u, d) {
			ws.Set(u, d, ws.Weight(u, d)+w)
		}
	}
}

func (p *Parser) solve(solver *branching.Solver, n int) *Tree {
	out := &Tree{Heads: make([]int, n)}
	solver.Solve(p.ws, out.Heads)
	return out
}

// Infer returns the maximum spanning tree of in.
func (p *Parser) Infer(m *Model, in *Input) *Tree {
	fill(p.ws, m, in)
	return p.solve(p.solver, in.Len())
}

// PartialInfer completes partial: every node with a known head keeps it and
// the rest of the tree is decoded under that constraint. Heads that name a
// missing edge are dropped with a warning.
func (p *Parser) PartialInfer(m *Model, in *Input, partial *Tree) *Tree {
	fill(p.ws, m, in)
	labeled := 0
	for d, h := range partial.Heads {
		if h == Unlabeled || d == 0 {
			continue
		}
		if !p.ws.FixHead(h, d) {
			p.Logger.Warn("Dropping infeasible head in partial reference", "node", d, "head", h)
			continue
		}
		labeled++
	}
	if labeled == 0 && in.Len() > 1 {
		p.Logger.Warn("Partial reference has no usable head", "nodes", in.Len())
	}
	return p.solve(p.constrained, in.Len())
}

// LossAugmentedInfer decodes with every edge that disagrees with the
// reference head rewarded by lossWeight.
func (p *Parser) LossAugmentedInfer(m *Model, in *Input, ref *Tree, lossWeight float64) *Tree {
	fill(p.ws, m, in)
	for d, h := range ref.Heads {
		if h != Unlabeled {
			augment(p.ws, h, d, lossWeight)
		}
	}
	return p.solve(p.solver, in.Len())
}

// LossAugmentedInferWithSplitWeights is LossAugmentedInfer where nodes with
// a head in partial use annotatedWeight and the others nonAnnotatedWeight.
func (p *Parser) LossAugmentedInferWithSplitWeights(m *Model, in *Input, partial, ref *Tree, annotatedWeight, nonAnnotatedWeight float64) *Tree {
	fill(p.ws, m, in)
	for d, h := range ref.Heads {
		if h == Unlabeled {
			continue
		}
		w := nonAnnotatedWeight
		if partial.Heads[d] != Unlabeled {
			w = annotatedWeight
		}
		augment(p.ws, h, d, w)
	}
	return p.solve(p.solver, in.Len())
}
