package graph

import (
	"log/slog"
	"math"

	"github.com/happyhackingspace/structperc/branching"
	"github.com/happyhackingspace/structperc/disjoint"
)

// Coref resolves coreference as a latent tree. Node 0 is an artificial root
// and nodes 1..n-1 are mentions in document order; a mention attached to the
// root starts a new cluster and any other edge links two mentions of the
// same cluster.
type Coref struct {
	Logger *slog.Logger

	ws          *branching.Workspace
	solver      *branching.Solver
	constrained *branching.Solver
	sets        *disjoint.Sets
}

// NewCoref creates a coreference decoder.
func NewCoref(logger *slog.Logger) *Coref {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coref{
		Logger:      logger,
		ws:          branching.NewWorkspace(0),
		solver:      branching.NewSolver(logger),
		constrained: &branching.Solver{Logger: logger},
		sets:        disjoint.New(0),
	}
}

// Clusterize fills t.Clusters and t.Cluster from t.Heads.
func Clusterize(t *Tree) {
	n := len(t.Heads)
	sets := disjoint.New(n)
	for d, h := range t.Heads {
		if h > 0 {
			sets.Union(h, d)
		}
	}
	t.Clusters = sets
	t.Cluster = sets.Clusters()
}

func (c *Coref) solve(solver *branching.Solver, n int) *Tree {
	out := &Tree{Heads: make([]int, n)}
	solver.Solve(c.ws, out.Heads)
	Clusterize(out)
	return out
}

// Infer returns the best latent tree of in and its clusters.
func (c *Coref) Infer(m *Model, in *Input) *Tree {
	fill(c.ws, m, in)
	return c.solve(c.solver, in.Len())
}

// PartialInfer returns the best tree consistent with the gold clusters of
// partial: the first mention of a cluster attaches to the root and every
// other mention to a mention of its own cluster. Mentions with a negative cluster id are unconstrained. When
// partial carries no clusters its known heads are fixed instead.
func (c *Coref) PartialInfer(m *Model, in *Input, partial *Tree) *Tree {
	fill(c.ws, m, in)
	if partial.Cluster == nil {
		for d, h := range partial.Heads {
			if h != Unlabeled && d > 0 && !c.ws.FixHead(h, d) {
				c.Logger.Warn("Dropping infeasible head in partial reference", "mention", d, "head", h)
			}
		}
		return c.solve(c.constrained, in.Len())
	}
	if len(partial.Cluster) != in.Len() {
		c.Logger.Warn("Ignoring partial clusters of the wrong length",
			"mentions", in.Len(), "clusters", len(partial.Cluster))
		return c.solve(c.solver, in.Len())
	}
	known := 0
	for d := 1; d < len(partial.Cluster); d++ {
		if partial.Cluster[d] >= 0 {
			known++
		}
	}
	if known == 0 && in.Len() > 1 {
		c.Logger.Warn("Partial reference has no clustered mention", "mentions", in.Len()-1)
	}
	c.ws.RestrictToClusters(partial.Cluster, 0)
	c.restrictRootEdges(partial.Cluster)
	return c.solve(c.constrained, in.Len())
}

// restrictRootEdges removes the root edge into every clustered mention
// that is not the first of its cluster, so each gold cluster hangs off the
// root exactly once. A mention with no edge from another mention of its
// cluster keeps its root edge.
func (c *Coref) restrictRootEdges(cluster []int) {
	first := firstMentions(cluster)
	for d := 1; d < len(cluster); d++ {
		if cluster[d] < 0 || first[d] || !c.ws.HasEdge(0, d) {
			continue
		}
		linked := false
		for h := 1; h < len(cluster); h++ {
			if h != d && cluster[h] == cluster[d] && c.ws.HasEdge(h, d) {
				linked = true
				break
			}
		}
		if linked {
			c.ws.Set(0, d, math.NaN())
		} else {
			c.Logger.Warn("Mention has no antecedent in its gold cluster", "mention", d, "cluster", cluster[d])
		}
	}
}

// goldClusters returns cluster ids for ref, derived from its heads when it
// has none.
func (c *Coref) goldClusters(ref *Tree) []int {
	if ref.Cluster != nil {
		return ref.Cluster
	}
	n := len(ref.Heads)
	c.sets.Reset(n)
	for d, h := range ref.Heads {
		if h > 0 {
			c.sets.Union(h, d)
		}
	}
	cluster := c.sets.Clusters()
	for d, h := range ref.Heads {
		if h == Unlabeled && c.sets.Find(d) == d {
			cluster[d] = -1
		}
	}
	return cluster
}

// augmentCoref rewards the edges entering d that the gold clusters rule
// out: links to mentions of another cluster, and a root link when d is not
// the first mention of its cluster.
func augmentCoref(ws *branching.Workspace, cluster []int, first bool, d int, w float64) {
	if cluster[d] < 0 {
		return
	}
	for h := range ws.Size() {
		if !ws.HasEdge(h, d) {
			continue
		}
		wrong := false
		if h == 0 {
			wrong = !first
		} else {
			wrong = cluster[h] >= 0 && cluster[h] != cluster[d]
		}
		if wrong {
			ws.Set(h, d, ws.Weight(h, d)+w)
		}
	}
}

// firstMentions reports for every mention whether it is the earliest of its
// gold cluster.
func firstMentions(cluster []int) []bool {
	first := make([]bool, len(cluster))
	seen := make(map[int]bool)
	for d := 1; d < len(cluster); d++ {
		id := cluster[d]
		if id < 0 || seen[id] {
			continue
		}
		seen[id] = true
		first[d] = true
	}
	return first
}

// LossAugmentedInfer decodes with every edge inconsistent with the gold
// clusters of ref rewarded by lossWeight.
func (c *Coref) LossAugmentedInfer(m *Model, in *Input, ref *Tree, lossWeight float64) *Tree {
	fill(c.ws, m, in)
	cluster := c.goldClusters(ref)
	first := firstMentions(cluster)
	for d := 1; d < len(cluster); d++ {
		augmentCoref(c.ws, cluster, first[d], d, lossWeight)
	}
	return c.solve(c.solver, in.Len())
}

// LossAugmentedInferWithSplitWeights is LossAugmentedInfer where mentions
// clustered in partial use annotatedWeight and the others
// nonAnnotatedWeight.
func (c *Coref) LossAugmentedInferWithSplitWeights(m *Model, in *Input, partial, ref *Tree, annotatedWeight, nonAnnotatedWeight float64) *Tree {
	fill(c.ws, m, in)
	cluster := c.goldClusters(ref)
	annotated := c.goldClusters(partial)
	first := firstMentions(cluster)
	for d := 1; d < len(cluster); d++ {
		w := nonAnnotatedWeight
		if annotated[d] >= 0 {
			w = annotatedWeight
		}
		augmentCoref(c.ws, cluster, first[d], d, w)
	}
	return c.solve(c.solver, in.Len())
}
