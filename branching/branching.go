// Package branching finds maximum-weight spanning arborescences in dense
// directed graphs.
//
// The solver is Tarjan's contraction form of Chu-Liu/Edmonds. Instead of a
// heap per strongly connected component it keeps a direct-access table of
// the best candidate edge from every source node, which suits the complete
// graphs produced by edge-factored models.
package branching

import (
	"log/slog"
	"math"
)

// NoParent marks a root in a parent array.
const NoParent = -1

// Solver computes maximum branchings.
type Solver struct {
	// SingleRoot makes Solve warn when the result has more than one root.
	SingleRoot bool
	Logger     *slog.Logger
}

// NewSolver returns a solver that expects a single root.
func NewSolver(logger *slog.Logger) *Solver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Solver{SingleRoot: true, Logger: logger}
}

// Solve fills parent[child] with the head of every node of the workspace
// graph (NoParent for roots) and returns the total weight of the chosen
// edges. parent must have at least ws.Size() entries.
//
// Nodes without incoming edges become roots. Ties are broken in favour of
// the first maximal edge seen, scanning sources in increasing order.
func (s *Solver) Solve(ws *Workspace, parent []int) float64 {
	n := ws.n
	if n == 0 {
		return 0
	}
	nan := math.NaN()

	ws.scc.Reset(n)
	ws.wcc.Reset(n)
	for v := range n {
		tbl, dst := ws.tables[v][:n], ws.dsts[v][:n]
		for u := range n {
			w := ws.w[u][v]
			if u == v || math.IsNaN(w) {
				tbl[u] = nan
				continue
			}
			tbl[u] = w
			dst[u] = v
		}
		ws.tableOf[v] = v
		ws.compOf[v] = v
		ws.parentComp[v] = -1
		ws.enterSrc[v] = -1
		ws.minNode[v] = v
	}
	ws.children = ws.children[:0]
	ws.roots = ws.roots[:0]
	for v := n - 1; v >= 0; v-- {
		ws.roots = append(ws.roots, v)
	}
	next := n

	comp := func(x int) int { return ws.compOf[ws.scc.Find(x)] }

	for len(ws.roots) > 0 {
		k := ws.roots[len(ws.roots)-1]
		ws.roots = ws.roots[:len(ws.roots)-1]

		tbl, dst := ws.tables[ws.tableOf[k]], ws.dsts[ws.tableOf[k]]
		best, bestW := -1, 0.0
		for u := range n {
			w := tbl[u]
			if math.IsNaN(w) {
				continue
			}
			if comp(u) == k {
				tbl[u] = nan
				continue
			}
			if best < 0 || w > bestW {
				best, bestW = u, w
			}
		}
		if best < 0 {
			// k stays a root of the final branching.
			continue
		}
		tbl[best] = nan
		to := dst[best]
		ws.enterSrc[k], ws.enterDst[k], ws.enterW[k] = best, to, bestW

		if !ws.wcc.Same(best, to) {
			ws.wcc.Union(best, to)
			continue
		}

		// The edge closes a cycle through k; collect its components.
		ws.cycle = append(ws.cycle[:0], k)
		minW, minC := bestW, k
		for c := comp(best); c != k; c = comp(ws.enterSrc[c]) {
			ws.cycle = append(ws.cycle, c)
			if ws.enterW[c] < minW {
				minW, minC = ws.enterW[c], c
			}
		}

		nc := next
		next++
		target, targetDst := ws.tables[ws.tableOf[k]], ws.dsts[ws.tableOf[k]]
		shift := minW - ws.enterW[k]
		for u := range n {
			if !math.IsNaN(target[u]) {
				target[u] += shift
			}
		}
		for _, c := range ws.cycle[1:] {
			tc, dc := ws.tables[ws.tableOf[c]], ws.dsts[ws.tableOf[c]]
			shift := minW - ws.enterW[c]
			for u := range n {
				w := tc[u]
				if math.IsNaN(w) {
					continue
				}
				w += shift
				if math.IsNaN(target[u]) || w > target[u] {
					target[u] = w
					targetDst[u] = dc[u]
				}
			}
		}

		ws.childOff[nc] = len(ws.children)
		for _, c := range ws.cycle {
			ws.children = append(ws.children, c)
			ws.parentComp[c] = nc
			ws.scc.Union(ws.minNode[c], ws.minNode[k])
		}
		ws.childEnd[nc] = len(ws.children)
		ws.compOf[ws.scc.Find(ws.minNode[k])] = nc
		ws.tableOf[nc] = ws.tableOf[k]
		ws.parentComp[nc] = -1
		ws.enterSrc[nc] = -1
		ws.minNode[nc] = ws.minNode[minC]
		ws.roots = append(ws.roots, nc)
	}

	for v := range n {
		parent[v] = NoParent
	}
	roots := 0
	ws.stack = ws.stack[:0]
	for c := range next {
		if ws.parentComp[c] >= 0 {
			continue
		}
		if ws.enterSrc[c] >= 0 {
			v := ws.enterDst[c]
			parent[v] = ws.enterSrc[c]
			ws.stack = append(ws.stack, c, v)
		} else {
			roots++
			ws.stack = append(ws.stack, c, ws.minNode[c])
		}
	}
	s.expand(ws, parent)

	if s.SingleRoot && roots != 1 {
		s.logger().Warn("Branching has no unique root", "roots", roots, "nodes", n)
	}

	total := 0.0
	for v := range n {
		if parent[v] != NoParent {
			total += ws.w[parent[v]][v]
		}
	}
	return total
}

// expand walks the contraction hierarchy top-down. Every contracted
// component is entered at one node; the cycle edge into the child holding
// that node is dropped and every other cycle edge is kept.
func (s *Solver) expand(ws *Workspace, parent []int) {
	n := ws.n
	for len(ws.stack) > 0 {
		c, v := ws.stack[len(ws.stack)-2], ws.stack[len(ws.stack)-1]
		ws.stack = ws.stack[:len(ws.stack)-2]
		if c < n {
			continue
		}
		entered := v
		for ws.parentComp[entered] != c {
			entered = ws.parentComp[entered]
		}
		for _, child := range ws.children[ws.childOff[c]:ws.childEnd[c]] {
			if child == entered {
				ws.stack = append(ws.stack, child, v)
				continue
			}
			to := ws.enterDst[child]
			parent[to] = ws.enterSrc[child]
			ws.stack = append(ws.stack, child, to)
		}
	}
}

func (s *Solver) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Roots returns the nodes without a parent.
func Roots(parent []int) []int {
	var roots []int
	for v, p := range parent {
		if p == NoParent {
			roots = append(roots, v)
		}
	}
	return roots
}

// IsTree reports whether parent describes a forest with exactly one root and
// no cycles.
func IsTree(parent []int) bool {
	if len(Roots(parent)) != 1 {
		return false
	}
	return Acyclic(parent)
}

// Acyclic reports whether following parents from any node ends at a root.
func Acyclic(parent []int) bool {
	n := len(parent)
	state := make([]byte, n) // 0 unvisited, 1 on path, 2 done
	for v := range n {
		x := v
		for x != NoParent && state[x] == 0 {
			state[x] = 1
			x = parent[x]
		}
		if x != NoParent && state[x] == 1 {
			return false
		}
		for y := v; y != NoParent && state[y] == 1; y = parent[y] {
			state[y] = 2
		}
	}
	return true
}
