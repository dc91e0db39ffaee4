package branching

import (
	"math"

	"github.com/happyhackingspace/structperc/disjoint"
)

// Workspace holds a dense weighted graph and the solver's scratch arrays.
// It grows to the largest graph it has seen and is reused across calls, so
// one Workspace must not be shared between goroutines.
type Workspace struct {
	n int
	w [][]float64

	scc, wcc *disjoint.Sets

	// Candidate tables, one per leaf node; a contracted component reuses
	// the table of one of its members.
	tables [][]float64
	dsts   [][]int

	tableOf    []int
	compOf     []int
	parentComp []int
	enterSrc   []int
	enterDst   []int
	enterW     []float64
	minNode    []int
	childOff   []int
	childEnd   []int
	children   []int
	cycle      []int
	roots      []int
	stack      []int
}

// NewWorkspace creates a workspace for graphs of up to n nodes.
func NewWorkspace(n int) *Workspace {
	ws := &Workspace{
		scc: disjoint.New(0),
		wcc: disjoint.New(0),
	}
	ws.Reset(n)
	return ws
}

// Reset prepares an n-node graph with no edges.
func (ws *Workspace) Reset(n int) {
	if n > len(ws.w) {
		ws.grow(n)
	}
	ws.n = n
	nan := math.NaN()
	for u := range n {
		row := ws.w[u][:n]
		for v := range row {
			row[v] = nan
		}
	}
}

func (ws *Workspace) grow(n int) {
	ws.w = make([][]float64, n)
	ws.tables = make([][]float64, n)
	ws.dsts = make([][]int, n)
	for i := range n {
		ws.w[i] = make([]float64, n)
		ws.tables[i] = make([]float64, n)
		ws.dsts[i] = make([]int, n)
	}
	m := 2 * n
	ws.tableOf = make([]int, m)
	ws.compOf = make([]int, n)
	ws.parentComp = make([]int, m)
	ws.enterSrc = make([]int, m)
	ws.enterDst = make([]int, m)
	ws.enterW = make([]float64, m)
	ws.minNode = make([]int, m)
	ws.childOff = make([]int, m)
	ws.childEnd = make([]int, m)
	ws.children = make([]int, 0, m)
	ws.cycle = make([]int, 0, n)
	ws.roots = make([]int, 0, m)
	ws.stack = make([]int, 0, 2*m)
}

// Size returns the number of nodes of the current graph.
func (ws *Workspace) Size() int {
	return ws.n
}

// Set sets the weight of the edge from -> to. NaN removes the edge.
func (ws *Workspace) Set(from, to int, weight float64) {
	ws.w[from][to] = weight
}

// Weight returns the weight of from -> to, NaN if there is no edge.
func (ws *Workspace) Weight(from, to int) float64 {
	return ws.w[from][to]
}

// HasEdge reports whether from -> to is present.
func (ws *Workspace) HasEdge(from, to int) bool {
	return !math.IsNaN(ws.w[from][to])
}

// FixHead removes every edge entering to except head -> to. It reports
// false and leaves the graph unchanged when head -> to is absent.
func (ws *Workspace) FixHead(head, to int) bool {
	if head < 0 || head >= ws.n || !ws.HasEdge(head, to) {
		return false
	}
	nan := math.NaN()
	for u := range ws.n {
		if u != head {
			ws.w[u][to] = nan
		}
	}
	return true
}

// RestrictToClusters removes every edge between nodes of different
// clusters. Edges leaving root are kept, and nodes with a negative cluster
// id are unconstrained.
func (ws *Workspace) RestrictToClusters(cluster []int, root int) {
	nan := math.NaN()
	for u := range ws.n {
		if u == root || cluster[u] < 0 {
			continue
		}
		for v := range ws.n {
			if cluster[v] >= 0 && cluster[v] != cluster[u] {
				ws.w[u][v] = nan
			}
		}
	}
}
