package perceptron_test

import (
	"bytes"
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/happyhackingspace/structperc/hmm"
	"github.com/happyhackingspace/structperc/perceptron"
	"github.com/happyhackingspace/structperc/ranking"
)

const (
	stateA = 0
	stateB = 1
	symA   = 0
	symB   = 1
)

type hmmTrainer = perceptron.Trainer[*hmm.Model, *hmm.Sequence, *hmm.Tagging]

func newHMMTrainer(m *hmm.Model, cfg perceptron.Config) *hmmTrainer {
	return perceptron.New[*hmm.Model, *hmm.Sequence, *hmm.Tagging](m, hmm.NewViterbi(nil), cfg)
}

// separable emits symbol a in state A and b in state B.
func separable() ([]*hmm.Sequence, []*hmm.Tagging) {
	labels := [][]int{
		{stateA, stateB, stateA},
		{stateB, stateB},
		{stateA, stateA},
		{stateB, stateA},
	}
	var inputs []*hmm.Sequence
	var refs []*hmm.Tagging
	for _, l := range labels {
		in := &hmm.Sequence{}
		for _, s := range l {
			sym := symA
			if s == stateB {
				sym = symB
			}
			in.Features = append(in.Features, []int{sym})
		}
		inputs = append(inputs, in)
		refs = append(refs, &hmm.Tagging{Labels: l})
	}
	return inputs, refs
}

func testConfig() perceptron.Config {
	cfg := perceptron.DefaultConfig()
	cfg.Shuffle = false
	cfg.Average = false
	return cfg
}

func TestConvergesOnSeparableData(t *testing.T) {
	inputs, refs := separable()
	var history []perceptron.EpochStats
	cfg := testConfig()
	cfg.Epochs = 20
	cfg.OnEpoch = func(s perceptron.EpochStats) bool {
		history = append(history, s)
		return s.Mistakes > 0
	}
	m := hmm.NewModel(2, 2)
	tr := newHMMTrainer(m, cfg)
	if err := tr.Train(inputs, refs); err != nil {
		t.Fatal(err)
	}
	if len(history) == 0 || len(history) == cfg.Epochs {
		t.Fatalf("ran %d epochs, want an early stop", len(history))
	}
	last := history[len(history)-1]
	if last.Mistakes != 0 || last.Loss != 0 {
		t.Errorf("last epoch %+v, want no mistakes", last)
	}
	if history[0].Mistakes == 0 {
		t.Error("zero model should make mistakes in the first epoch")
	}
	if tr.Iteration() != len(history)*len(inputs) {
		t.Errorf("iteration = %d, want %d", tr.Iteration(), len(history)*len(inputs))
	}

	v := hmm.NewViterbi(nil)
	for i, in := range inputs {
		if got := v.Infer(m, in).Labels; !reflect.DeepEqual(got, refs[i].Labels) {
			t.Errorf("example %d decoded %v, want %v", i, got, refs[i].Labels)
		}
	}
}

func TestOneEpochPrefersReference(t *testing.T) {
	// features [1], [2], [1]; reference A B A
	in := &hmm.Sequence{Features: [][]int{{1}, {2}, {1}}}
	ref := &hmm.Tagging{Labels: []int{stateA, stateB, stateA}}
	m := hmm.NewModel(2, 3)
	v := hmm.NewViterbi(nil)

	before := v.Infer(m, in)
	if reflect.DeepEqual(before.Labels, ref.Labels) {
		t.Fatal("zero model already predicts the reference")
	}
	cfg := testConfig()
	cfg.Epochs = 1
	if err := newHMMTrainer(m, cfg).Train([]*hmm.Sequence{in}, []*hmm.Tagging{ref}); err != nil {
		t.Fatal(err)
	}
	if m.Score(in, ref.Labels) <= m.Score(in, before.Labels) {
		t.Errorf("reference scores %v, previous prediction %v",
			m.Score(in, ref.Labels), m.Score(in, before.Labels))
	}
	after := v.Infer(m, in)
	if !reflect.DeepEqual(after.Labels, ref.Labels) {
		t.Errorf("after one epoch decoded %v, want %v", after.Labels, ref.Labels)
	}
}

func TestAverageOnceThenRefuse(t *testing.T) {
	inputs, refs := separable()
	cfg := testConfig()
	cfg.Epochs = 3
	cfg.Average = true
	tr := newHMMTrainer(hmm.NewModel(2, 2), cfg)
	if err := tr.Train(inputs, refs); err != nil {
		t.Fatal(err)
	}
	if tr.State() != perceptron.Averaged {
		t.Errorf("state = %v, want Averaged", tr.State())
	}
	if err := tr.Train(inputs, refs); !errors.Is(err, perceptron.ErrAlreadyAveraged) {
		t.Errorf("second Train err = %v, want ErrAlreadyAveraged", err)
	}
}

func TestShuffleIsReproducible(t *testing.T) {
	inputs, refs := separable()
	run := func(seed uint64) string {
		cfg := perceptron.DefaultConfig()
		cfg.Epochs = 4
		cfg.Seed = seed
		m := hmm.NewModel(2, 2)
		if err := newHMMTrainer(m, cfg).Train(inputs, refs); err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := m.Write(&buf); err != nil {
			t.Fatal(err)
		}
		return buf.String()
	}
	if a, b := run(7), run(7); a != b {
		t.Errorf("same seed produced different models:\n%s\n%s", a, b)
	}
}

func TestInjectedRandIsUsed(t *testing.T) {
	inputs, refs := separable()
	cfg := perceptron.DefaultConfig()
	cfg.Epochs = 2
	r := rand.New(rand.NewPCG(1, 2))
	cfg.Rand = r
	if err := newHMMTrainer(hmm.NewModel(2, 2), cfg).Train(inputs, refs); err != nil {
		t.Fatal(err)
	}
	fresh := rand.New(rand.NewPCG(1, 2))
	if r.Uint64() == fresh.Uint64() {
		t.Error("shuffling did not draw from the injected generator")
	}
}

func TestVariantsTrain(t *testing.T) {
	inputs, refs := separable()
	for _, variant := range []perceptron.Variant{
		perceptron.Plain,
		perceptron.LossAugmented,
		perceptron.TowardBetter,
		perceptron.AwayFromWorse,
		perceptron.Dual,
	} {
		t.Run(variant.String(), func(t *testing.T) {
			cfg := testConfig()
			cfg.Epochs = 3
			cfg.Variant = variant
			cfg.LossWeightIncrement = 0.5
			tr := newHMMTrainer(hmm.NewModel(2, 2), cfg)
			if err := tr.Train(inputs, refs); err != nil {
				t.Fatal(err)
			}
			if tr.Iteration() != 3*len(inputs) {
				t.Errorf("iteration = %d, want %d", tr.Iteration(), 3*len(inputs))
			}
			if got := tr.LossWeight(); got != 2.5 {
				t.Errorf("loss weight = %v, want 2.5", got)
			}
		})
	}
}

func TestDualCountsMistakes(t *testing.T) {
	inputs, refs := separable()
	mistakes := 0
	cfg := testConfig()
	cfg.Epochs = 3
	cfg.Variant = perceptron.Dual
	cfg.OnEpoch = func(s perceptron.EpochStats) bool {
		mistakes += s.Mistakes
		return true
	}
	tr := newHMMTrainer(hmm.NewModel(2, 2), cfg)
	if err := tr.Train(inputs, refs); err != nil {
		t.Fatal(err)
	}
	counts := tr.DualCounts()
	if len(counts) != len(inputs) {
		t.Fatalf("%d dual counts, want %d", len(counts), len(inputs))
	}
	total := 0.0
	for _, c := range counts {
		total += c
	}
	if total != float64(mistakes) {
		t.Errorf("dual counts sum to %v, want %d mistakes", total, mistakes)
	}
}

func TestPartialReferences(t *testing.T) {
	inputs, refs := separable()
	for _, r := range refs {
		r.Labels[len(r.Labels)-1] = hmm.Unlabeled
	}
	cfg := testConfig()
	cfg.Epochs = 2
	cfg.Partial = true
	cfg.Variant = perceptron.LossAugmented
	cfg.SplitLossWeights = true
	cfg.AnnotatedLossWeight = 1
	cfg.NonAnnotatedLossWeight = 0.1
	tr := newHMMTrainer(hmm.NewModel(2, 2), cfg)
	if err := tr.Train(inputs, refs); err != nil {
		t.Fatal(err)
	}
	if tr.Iteration() != 2*len(inputs) {
		t.Errorf("iteration = %d, want %d", tr.Iteration(), 2*len(inputs))
	}
}

func TestSplitWeightsNeedPartial(t *testing.T) {
	inputs, refs := separable()
	cfg := testConfig()
	cfg.SplitLossWeights = true
	err := newHMMTrainer(hmm.NewModel(2, 2), cfg).Train(inputs, refs)
	if !errors.Is(err, perceptron.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestShapeErrorAbortsTraining(t *testing.T) {
	inputs, refs := separable()
	refs[1] = &hmm.Tagging{Labels: []int{stateB}}
	err := newHMMTrainer(hmm.NewModel(2, 2), testConfig()).Train(inputs, refs)
	if !errors.Is(err, hmm.ErrShape) {
		t.Errorf("err = %v, want hmm.ErrShape", err)
	}
	if err := newHMMTrainer(hmm.NewModel(2, 2), testConfig()).Train(inputs, refs[:2]); !errors.Is(err, perceptron.ErrMismatch) {
		t.Errorf("err = %v, want ErrMismatch", err)
	}
}

func TestTwoPools(t *testing.T) {
	inputs, refs := separable()
	a := perceptron.Pool[*hmm.Sequence, *hmm.Tagging]{Inputs: inputs, References: refs}
	// any draw from b fails with a shape error
	b := perceptron.Pool[*hmm.Sequence, *hmm.Tagging]{
		Inputs:     []*hmm.Sequence{inputs[0]},
		References: []*hmm.Tagging{{Labels: []int{stateA}}},
	}

	cfg := testConfig()
	cfg.Epochs = 2
	cfg.WeightA = 1
	tr := newHMMTrainer(hmm.NewModel(2, 2), cfg)
	if err := tr.TrainTwoPools(a, b); err != nil {
		t.Fatal(err)
	}
	if want := 2 * (len(a.Inputs) + len(b.Inputs)); tr.Iteration() != want {
		t.Errorf("iteration = %d, want %d", tr.Iteration(), want)
	}

	cfg.WeightA = 0
	if err := newHMMTrainer(hmm.NewModel(2, 2), cfg).TrainTwoPools(a, b); !errors.Is(err, hmm.ErrShape) {
		t.Errorf("drawing from b: err = %v, want hmm.ErrShape", err)
	}

	// WeightA falls to 0 after the first epoch
	cfg.WeightA = 1
	cfg.WeightStep = 1
	var epochs []int
	cfg.OnEpoch = func(s perceptron.EpochStats) bool {
		epochs = append(epochs, s.Epoch)
		return true
	}
	err := newHMMTrainer(hmm.NewModel(2, 2), cfg).TrainTwoPools(a, b)
	if !errors.Is(err, hmm.ErrShape) {
		t.Errorf("annealed to b: err = %v, want hmm.ErrShape", err)
	}
	if !reflect.DeepEqual(epochs, []int{0}) {
		t.Errorf("completed epochs %v, want [0]", epochs)
	}

	cfg.OnEpoch = nil
	cfg.WeightStep = 0
	cfg.Variant = perceptron.Dual
	if err := newHMMTrainer(hmm.NewModel(2, 2), cfg).TrainTwoPools(a, b); !errors.Is(err, perceptron.ErrUnsupported) {
		t.Errorf("dual two pools: err = %v, want ErrUnsupported", err)
	}
}

func TestSchedules(t *testing.T) {
	tests := []struct {
		s    perceptron.Schedule
		t    int
		want float64
	}{
		{perceptron.Constant, 9, 2},
		{perceptron.Inverse, 3, 0.5},
		{perceptron.InverseSqrt, 3, 1},
		{perceptron.Scaled, 1, 2.0 / 6},
	}
	for _, tt := range tests {
		if got := tt.s.Rate(2, tt.t); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%v.Rate(2, %d) = %v, want %v", tt.s, tt.t, got, tt.want)
		}
	}
}

func TestParseNames(t *testing.T) {
	for _, v := range []perceptron.Variant{perceptron.Plain, perceptron.Dual, perceptron.AwayFromWorse} {
		got, err := perceptron.ParseVariant(v.String())
		if err != nil || got != v {
			t.Errorf("ParseVariant(%q) = %v, %v", v.String(), got, err)
		}
	}
	if _, err := perceptron.ParseVariant("kernel"); err == nil {
		t.Error("expected error for unknown variant")
	}
	if s, err := perceptron.ParseSchedule("inverse-sqrt"); err != nil || s != perceptron.InverseSqrt {
		t.Errorf("ParseSchedule = %v, %v", s, err)
	}
}

func TestRankingTrainer(t *testing.T) {
	queries := []*ranking.Query{
		{Items: [][]int{{0}, {1}, {2}}},
		{Items: [][]int{{2}, {0}}},
		{Items: [][]int{{1}, {2}}},
	}
	refs := []*ranking.Choice{{Item: 2}, {Item: 0}, {Item: 1}}
	m := ranking.NewModel()
	cfg := testConfig()
	cfg.Epochs = 5
	tr := perceptron.New[*ranking.Model, *ranking.Query, *ranking.Choice](m, ranking.NewRanker(nil), cfg)
	if err := tr.Train(queries, refs); err != nil {
		t.Fatal(err)
	}
	r := ranking.NewRanker(nil)
	for i, q := range queries {
		if got := r.Infer(m, q).Item; got != refs[i].Item {
			t.Errorf("query %d ranked item %d first, want %d", i, got, refs[i].Item)
		}
	}
}
