package ranking

import (
	"bytes"
	"errors"
	"testing"
)

func query() *Query {
	return &Query{Items: [][]int{{0, 1}, {2}, {1, 3}}}
}

func TestInferArgmax(t *testing.T) {
	m := NewModel()
	for code, w := range map[int]float64{0: 1, 1: 0.5, 2: 2, 3: 1} {
		if err := m.Params().Set(code, w); err != nil {
			t.Fatal(err)
		}
	}
	// scores 1.5, 2, 1.5
	if got := NewRanker(nil).Infer(m, query()).Item; got != 1 {
		t.Errorf("Infer = %d, want 1", got)
	}
}

func TestInferTieBreaksLowestItem(t *testing.T) {
	if got := NewRanker(nil).Infer(NewModel(), query()).Item; got != 0 {
		t.Errorf("Infer on zero model = %d, want 0", got)
	}
	if got := NewRanker(nil).Infer(NewModel(), &Query{}).Item; got != Unlabeled {
		t.Errorf("Infer on empty query = %d, want Unlabeled", got)
	}
}

func TestPartialInfer(t *testing.T) {
	r := NewRanker(nil)
	m := NewModel()
	if got := r.PartialInfer(m, query(), &Choice{Item: 2}).Item; got != 2 {
		t.Errorf("labeled partial = %d, want 2", got)
	}
	if got := r.PartialInfer(m, query(), &Choice{Item: Unlabeled}).Item; got != 0 {
		t.Errorf("unlabeled partial = %d, want 0", got)
	}
	if got := r.PartialInfer(m, query(), &Choice{Item: 7}).Item; got != 0 {
		t.Errorf("invalid partial = %d, want 0", got)
	}
}

func TestLossAugmentedInfer(t *testing.T) {
	r := NewRanker(nil)
	m := NewModel()
	ref := &Choice{Item: 0}
	if got := r.LossAugmentedInfer(m, query(), ref, 1).Item; got == 0 {
		t.Error("augmented decoding returned the reference")
	}
	if got := r.LossAugmentedInfer(m, query(), &Choice{Item: 2}, -1).Item; got != 2 {
		t.Errorf("negatively augmented = %d, want 2", got)
	}
	got := r.LossAugmentedInferWithSplitWeights(m, query(), &Choice{Item: Unlabeled}, ref, 1, 0).Item
	if got != 0 {
		t.Errorf("non-annotated weight 0 decoded %d, want 0", got)
	}
}

func TestUpdate(t *testing.T) {
	m := NewModel()
	q := query()
	loss, err := m.Update(q, &Choice{Item: 2}, &Choice{Item: 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if loss != 1 {
		t.Errorf("loss = %v, want 1", loss)
	}
	if err := m.SumUpdates(0); err != nil {
		t.Fatal(err)
	}
	// feature 1 is shared by both items and cancels out
	want := map[int]float64{0: -1, 1: 0, 3: 1}
	for code, w := range want {
		if got := m.Params().Weight(code); got != w {
			t.Errorf("weight[%d] = %v, want %v", code, got, w)
		}
	}
	if got := NewRanker(nil).Infer(m, q).Item; got != 2 {
		t.Errorf("after update Infer = %d, want 2", got)
	}

	if loss, err := m.Update(q, &Choice{Item: 1}, &Choice{Item: 1}, 1); err != nil || loss != 0 {
		t.Errorf("correct prediction: loss %v, err %v", loss, err)
	}
	if _, err := m.Update(q, &Choice{Item: 5}, &Choice{Item: 1}, 1); !errors.Is(err, ErrShape) {
		t.Errorf("err = %v, want ErrShape", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	m := NewModel()
	for code, w := range map[int]float64{4: 1.25, 9: -3, 2: 0.5} {
		if err := m.Params().Set(code, w); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := m.Write(&buf); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "2\t0.5\n4\t1.25\n9\t-3\n"; got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
	loaded, err := ReadModel(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := loaded.Params().Weight(loaded.Features.Get("9")); got != -3 {
		t.Errorf("weight of 9 = %v, want -3", got)
	}
}
