package param

import (
	"errors"
	"fmt"

	"github.com/google/btree"
)

// ErrCode is returned when updating a code outside a dense store.
var ErrCode = errors.New("param: feature code out of range")

type slot struct {
	code int
	idx  int
}

func slotLess(a, b slot) bool { return a.code < b.code }

// Store owns a collection of parameters keyed by feature code.
//
// Parameters live in an arena. Updates record the arena slot in a touched
// list so SumUpdates folds only what changed since the previous fold.
// A dense store maps code i to slot i and is sized up front; a sparse store
// grows on demand and keeps an ordered code index.
type Store struct {
	params  []Parameter
	touched []int
	dirty   []bool
	index   *btree.BTreeG[slot]

	averaged bool
}

// NewDense creates a store for codes 0..n-1.
func NewDense(n int) *Store {
	return &Store{
		params: make([]Parameter, n),
		dirty:  make([]bool, n),
	}
}

// NewSparse creates an empty store that allocates parameters on first update.
func NewSparse() *Store {
	return &Store{index: btree.NewG(32, slotLess)}
}

// Sparse reports whether the store grows on demand.
func (s *Store) Sparse() bool {
	return s.index != nil
}

// Len returns the number of allocated parameters.
func (s *Store) Len() int {
	return len(s.params)
}

func (s *Store) lookup(code int) (int, bool) {
	if code < 0 {
		return 0, false
	}
	if s.index == nil {
		return code, code < len(s.params)
	}
	it, ok := s.index.Get(slot{code: code})
	return it.idx, ok
}

func (s *Store) alloc(code int) int {
	idx := len(s.params)
	s.params = append(s.params, Parameter{})
	s.dirty = append(s.dirty, false)
	s.index.ReplaceOrInsert(slot{code: code, idx: idx})
	return idx
}

// Weight returns the current weight of code, or 0 if it has none.
func (s *Store) Weight(code int) float64 {
	if idx, ok := s.lookup(code); ok {
		return s.params[idx].Weight
	}
	return 0
}

// Known reports whether code has a parameter.
func (s *Store) Known(code int) bool {
	_, ok := s.lookup(code)
	return ok
}

// Param returns the parameter for code, or nil.
func (s *Store) Param(code int) *Parameter {
	if idx, ok := s.lookup(code); ok {
		return &s.params[idx]
	}
	return nil
}

// Update adds delta to the pending update of code and marks it touched.
func (s *Store) Update(code int, delta float64) error {
	if s.averaged {
		return ErrFinalized
	}
	idx, ok := s.lookup(code)
	if !ok {
		if s.index == nil || code < 0 {
			return fmt.Errorf("%w: %d (size %d)", ErrCode, code, len(s.params))
		}
		idx = s.alloc(code)
	}
	s.params[idx].Update(delta)
	if !s.dirty[idx] {
		s.dirty[idx] = true
		s.touched = append(s.touched, idx)
	}
	return nil
}

// Touched returns the number of parameters updated since the last fold.
func (s *Store) Touched() int {
	return len(s.touched)
}

// SumUpdates folds every parameter touched since the last call.
func (s *Store) SumUpdates(iteration int) error {
	for _, idx := range s.touched {
		s.dirty[idx] = false
		if err := s.params[idx].Fold(iteration); err != nil {
			s.touched = s.touched[:0]
			return err
		}
	}
	s.touched = s.touched[:0]
	return nil
}

// Average replaces every weight with its mean over [0, total).
func (s *Store) Average(total int) error {
	if s.averaged {
		return ErrFinalized
	}
	if total <= 0 {
		return ErrNoIterations
	}
	for i := range s.params {
		if err := s.params[i].Average(total); err != nil {
			return fmt.Errorf("average slot %d: %w", i, err)
		}
		s.dirty[i] = false
	}
	s.touched = s.touched[:0]
	s.averaged = true
	return nil
}

// Set overwrites the weight of code, allocating it in a sparse store.
// It is meant for loading persisted models.
func (s *Store) Set(code int, weight float64) error {
	idx, ok := s.lookup(code)
	if !ok {
		if s.index == nil || code < 0 {
			return fmt.Errorf("%w: %d (size %d)", ErrCode, code, len(s.params))
		}
		idx = s.alloc(code)
	}
	s.params[idx].Weight = weight
	return nil
}

// Each calls fn for every parameter in increasing code order.
func (s *Store) Each(fn func(code int, weight float64)) {
	if s.index == nil {
		for i := range s.params {
			fn(i, s.params[i].Weight)
		}
		return
	}
	s.index.Ascend(func(it slot) bool {
		fn(it.code, s.params[it.idx].Weight)
		return true
	})
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	c := &Store{
		params:   make([]Parameter, len(s.params)),
		dirty:    make([]bool, len(s.dirty)),
		touched:  make([]int, len(s.touched)),
		averaged: s.averaged,
	}
	copy(c.params, s.params)
	copy(c.dirty, s.dirty)
	copy(c.touched, s.touched)
	if s.index != nil {
		c.index = s.index.Clone()
	}
	return c
}
