// Package disjoint implements union-find over integer-labeled elements.
package disjoint

// Sets is a forest of disjoint sets over the elements 0..n-1.
// Find uses path compression and Union uses union by rank.
type Sets struct {
	parent []int
	rank   []int
}

// New creates n singleton sets.
func New(n int) *Sets {
	s := &Sets{}
	s.Reset(n)
	return s
}

// Reset makes every element of 0..n-1 a singleton again, reusing storage.
func (s *Sets) Reset(n int) {
	if cap(s.parent) < n {
		s.parent = make([]int, n)
		s.rank = make([]int, n)
	}
	s.parent = s.parent[:n]
	s.rank = s.rank[:n]
	for i := range n {
		s.parent[i] = i
		s.rank[i] = 0
	}
}

// Len returns the number of elements.
func (s *Sets) Len() int {
	return len(s.parent)
}

// Find returns the representative of the set containing x.
func (s *Sets) Find(x int) int {
	root := x
	for s.parent[root] != root {
		root = s.parent[root]
	}
	for s.parent[x] != root {
		next := s.parent[x]
		s.parent[x] = root
		x = next
	}
	return root
}

// Union merges the sets containing x and y and returns the new representative.
func (s *Sets) Union(x, y int) int {
	rx, ry := s.Find(x), s.Find(y)
	if rx == ry {
		return rx
	}
	switch {
	case s.rank[rx] < s.rank[ry]:
		rx, ry = ry, rx
	case s.rank[rx] == s.rank[ry]:
		s.rank[rx]++
	}
	s.parent[ry] = rx
	return rx
}

// Same reports whether x and y are in the same set.
func (s *Sets) Same(x, y int) bool {
	return s.Find(x) == s.Find(y)
}

// Clusters returns a cluster id per element. Ids are numbered by the order in
// which each set's first element appears.
func (s *Sets) Clusters() []int {
	ids := make([]int, len(s.parent))
	seen := make(map[int]int)
	for i := range s.parent {
		r := s.Find(i)
		id, ok := seen[r]
		if !ok {
			id = len(seen)
			seen[r] = id
		}
		ids[i] = id
	}
	return ids
}

// Clone returns an independent copy.
func (s *Sets) Clone() *Sets {
	c := &Sets{
		parent: make([]int, len(s.parent)),
		rank:   make([]int, len(s.rank)),
	}
	copy(c.parent, s.parent)
	copy(c.rank, s.rank)
	return c
}
