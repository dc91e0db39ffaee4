package branching

import (
	"math"
	"math/rand/v2"
	"testing"
)

// bruteForce returns the best total weight over all spanning arborescences
// of ws, or -Inf if none exists.
func bruteForce(ws *Workspace) float64 {
	n := ws.Size()
	parent := make([]int, n)
	best := math.Inf(-1)
	var rec func(v, roots int)
	rec = func(v, roots int) {
		if v == n {
			if roots != 1 || !Acyclic(parent) {
				return
			}
			total := 0.0
			for c, p := range parent {
				if p != NoParent {
					total += ws.Weight(p, c)
				}
			}
			if total > best {
				best = total
			}
			return
		}
		if roots == 0 {
			parent[v] = NoParent
			rec(v+1, 1)
		}
		for u := range n {
			if u == v || !ws.HasEdge(u, v) {
				continue
			}
			parent[v] = u
			rec(v+1, roots)
		}
	}
	rec(0, 0)
	return best
}

func randomComplete(r *rand.Rand, n int) *Workspace {
	ws := NewWorkspace(n)
	for u := range n {
		for v := range n {
			if u != v {
				// distinct weights with overwhelming probability
				ws.Set(u, v, r.Float64()*10-5)
			}
		}
	}
	return ws
}

func TestSolveMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	solver := NewSolver(nil)
	for trial := range 60 {
		n := 2 + r.IntN(6)
		ws := randomComplete(r, n)
		parent := make([]int, n)
		got := solver.Solve(ws, parent)
		want := bruteForce(ws)
		if !IsTree(parent) {
			t.Fatalf("trial %d: result %v is not a tree", trial, parent)
		}
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("trial %d (n=%d): weight %v, want %v (parents %v)", trial, n, got, want, parent)
		}
	}
}

func TestSolveWithArtificialRoot(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 8))
	solver := NewSolver(nil)
	for trial := range 40 {
		n := 2 + r.IntN(6)
		ws := randomComplete(r, n)
		for u := range n {
			ws.Set(u, 0, math.NaN())
		}
		parent := make([]int, n)
		got := solver.Solve(ws, parent)
		if parent[0] != NoParent {
			t.Fatalf("trial %d: node 0 has parent %d", trial, parent[0])
		}
		if !IsTree(parent) {
			t.Fatalf("trial %d: result %v is not a tree", trial, parent)
		}
		if want := bruteForce(ws); math.Abs(got-want) > 1e-9 {
			t.Errorf("trial %d: weight %v, want %v", trial, got, want)
		}
	}
}

func TestSolveSparseGraphs(t *testing.T) {
	r := rand.New(rand.NewPCG(13, 21))
	solver := NewSolver(nil)
	for trial := range 60 {
		n := 3 + r.IntN(4)
		ws := NewWorkspace(n)
		for v := 1; v < n; v++ {
			ws.Set(0, v, r.Float64()-3)
		}
		for u := 1; u < n; u++ {
			for v := 1; v < n; v++ {
				if u != v && r.IntN(2) == 0 {
					ws.Set(u, v, r.Float64()*4)
				}
			}
		}
		parent := make([]int, n)
		got := solver.Solve(ws, parent)
		if !IsTree(parent) {
			t.Fatalf("trial %d: result %v is not a tree", trial, parent)
		}
		for c, p := range parent {
			if p != NoParent && !ws.HasEdge(p, c) {
				t.Fatalf("trial %d: chose absent edge %d->%d", trial, p, c)
			}
		}
		if want := bruteForce(ws); math.Abs(got-want) > 1e-9 {
			t.Errorf("trial %d: weight %v, want %v", trial, got, want)
		}
	}
}

func TestSolveCycle(t *testing.T) {
	// 0 is the root; 1 and 2 prefer each other.
	ws := NewWorkspace(3)
	ws.Set(0, 1, 1)
	ws.Set(0, 2, 2)
	ws.Set(1, 2, 10)
	ws.Set(2, 1, 10)
	parent := make([]int, 3)
	got := NewSolver(nil).Solve(ws, parent)

	// 0->2->1 = 12 beats 0->1->2 = 11
	if parent[0] != NoParent || parent[2] != 0 || parent[1] != 2 {
		t.Errorf("parents = %v, want [-1 0 2]", parent)
	}
	if got != 12 {
		t.Errorf("weight = %v, want 12", got)
	}
}

func TestSolveTieBreaksOnFirstSource(t *testing.T) {
	ws := NewWorkspace(3)
	ws.Set(0, 2, 1)
	ws.Set(1, 2, 1)
	ws.Set(0, 1, 1)
	parent := make([]int, 3)
	NewSolver(nil).Solve(ws, parent)
	if parent[2] != 0 {
		t.Errorf("parent of 2 = %d, want 0 (first maximal source)", parent[2])
	}
}

func TestDisconnectedGraphHasSeveralRoots(t *testing.T) {
	ws := NewWorkspace(4)
	ws.Set(0, 1, 1)
	ws.Set(2, 3, 1)
	parent := make([]int, 4)
	solver := &Solver{}
	solver.Solve(ws, parent)
	if roots := Roots(parent); len(roots) != 2 {
		t.Errorf("roots = %v, want two", roots)
	}
	if !Acyclic(parent) {
		t.Error("forest should be acyclic")
	}
}

func TestFixHead(t *testing.T) {
	ws := randomComplete(rand.New(rand.NewPCG(4, 4)), 4)
	for u := range 4 {
		ws.Set(u, 0, math.NaN())
	}
	if !ws.FixHead(3, 1) {
		t.Fatal("FixHead on present edge failed")
	}
	ws.Set(0, 2, math.NaN())
	if ws.FixHead(0, 2) {
		t.Error("FixHead on absent edge should fail")
	}
	parent := make([]int, 4)
	NewSolver(nil).Solve(ws, parent)
	if parent[1] != 3 {
		t.Errorf("parent of 1 = %d, want fixed head 3", parent[1])
	}
}

func TestRestrictToClusters(t *testing.T) {
	ws := randomComplete(rand.New(rand.NewPCG(9, 9)), 5)
	for u := range 5 {
		ws.Set(u, 0, math.NaN())
	}
	cluster := []int{-1, 0, 1, 0, 1}
	ws.RestrictToClusters(cluster, 0)
	parent := make([]int, 5)
	solver := &Solver{}
	solver.Solve(ws, parent)
	for c, p := range parent {
		if p > 0 && cluster[p] != cluster[c] {
			t.Errorf("edge %d->%d crosses clusters", p, c)
		}
	}
}

func TestWorkspaceReuse(t *testing.T) {
	ws := NewWorkspace(2)
	r := rand.New(rand.NewPCG(6, 6))
	solver := NewSolver(nil)
	for _, n := range []int{5, 3, 6} {
		ws.Reset(n)
		for u := range n {
			for v := range n {
				if u != v {
					ws.Set(u, v, r.Float64())
				}
			}
		}
		parent := make([]int, n)
		got := solver.Solve(ws, parent)
		if want := bruteForce(ws); math.Abs(got-want) > 1e-9 {
			t.Errorf("n=%d: weight %v, want %v", n, got, want)
		}
	}
}
