package param

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

// simulateAverage returns the mean of the weight used at each iteration in
// [0, total), where an update made during iteration i is visible from i+1.
func simulateAverage(updates map[int]float64, total int) float64 {
	w, sum := 0.0, 0.0
	for it := range total {
		sum += w
		w += updates[it]
	}
	return sum / float64(total)
}

func TestAverageMatchesSimulation(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for trial := range 200 {
		total := 1 + r.IntN(40)
		updates := make(map[int]float64)
		var p Parameter
		for it := range total {
			if r.IntN(3) != 0 {
				continue
			}
			n := 1 + r.IntN(3)
			for range n {
				d := r.NormFloat64()
				p.Update(d)
				updates[it] += d
			}
			if err := p.Fold(it); err != nil {
				t.Fatalf("trial %d: Fold(%d): %v", trial, it, err)
			}
		}
		if err := p.Average(total); err != nil {
			t.Fatalf("trial %d: Average: %v", trial, err)
		}
		want := simulateAverage(updates, total)
		if math.Abs(p.Weight-want) > 1e-9 {
			t.Errorf("trial %d: average = %v, want %v", trial, p.Weight, want)
		}
	}
}

func TestUpdateDefersWeight(t *testing.T) {
	var p Parameter
	p.Update(2)
	if p.Weight != 0 {
		t.Errorf("Weight = %v before fold, want 0", p.Weight)
	}
	if err := p.Fold(0); err != nil {
		t.Fatal(err)
	}
	if p.Weight != 2 {
		t.Errorf("Weight = %v after fold, want 2", p.Weight)
	}
	if p.LastFold() != 0 {
		t.Errorf("LastFold = %d, want 0", p.LastFold())
	}
}

func TestFoldMustIncrease(t *testing.T) {
	var p Parameter
	if err := p.Fold(3); err != nil {
		t.Fatal(err)
	}
	if err := p.Fold(3); !errors.Is(err, ErrNonMonotonic) {
		t.Errorf("repeated fold: err = %v, want ErrNonMonotonic", err)
	}
	if err := p.Fold(1); !errors.Is(err, ErrNonMonotonic) {
		t.Errorf("backwards fold: err = %v, want ErrNonMonotonic", err)
	}
}

func TestAverageOnce(t *testing.T) {
	var p Parameter
	p.Update(1)
	if err := p.Fold(0); err != nil {
		t.Fatal(err)
	}
	if err := p.Average(4); err != nil {
		t.Fatal(err)
	}
	// weight 0 at iteration 0, then 1 for iterations 1..3
	if math.Abs(p.Weight-0.75) > 1e-12 {
		t.Errorf("Weight = %v, want 0.75", p.Weight)
	}
	if err := p.Average(4); !errors.Is(err, ErrFinalized) {
		t.Errorf("second Average: err = %v, want ErrFinalized", err)
	}
	if err := p.Fold(5); !errors.Is(err, ErrFinalized) {
		t.Errorf("Fold after Average: err = %v, want ErrFinalized", err)
	}
}

func TestAverageAfterFoldAtLastIteration(t *testing.T) {
	var p Parameter
	p.Update(3)
	if err := p.Fold(1); err != nil {
		t.Fatal(err)
	}
	if err := p.Average(2); err != nil {
		t.Fatal(err)
	}
	if p.Weight != 0 {
		t.Errorf("Weight = %v, want 0 (update only visible after the last iteration)", p.Weight)
	}
}

func TestAverageZeroIterations(t *testing.T) {
	var p Parameter
	if err := p.Average(0); !errors.Is(err, ErrNoIterations) {
		t.Errorf("err = %v, want ErrNoIterations", err)
	}
}
