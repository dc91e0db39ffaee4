package structperc

import (
	"fmt"
	"log/slog"

	"github.com/happyhackingspace/structperc/encoding"
	"github.com/happyhackingspace/structperc/graph"
	"github.com/happyhackingspace/structperc/hmm"
	"github.com/happyhackingspace/structperc/internal/checkpoint"
	"github.com/happyhackingspace/structperc/internal/dataset"
	"github.com/happyhackingspace/structperc/perceptron"
	"github.com/happyhackingspace/structperc/ranking"
)

// TrainConfig holds configuration for training.
type TrainConfig struct {
	Kind       Kind
	Perceptron perceptron.Config
	// DefaultState names the HMM label for tokens without a known feature.
	DefaultState string
	// PoolB is an optional second training file; when set the examples are
	// drawn from both pools with perceptron.Config.WeightA.
	PoolB string
	// CheckpointPath is a SQLite database receiving a snapshot every
	// CheckpointEvery epochs under the name Run.
	CheckpointPath  string
	CheckpointEvery int
	Run             string
}

// DefaultTrainConfig returns the default configuration for kind.
func DefaultTrainConfig(kind Kind) *TrainConfig {
	return &TrainConfig{
		Kind:            kind,
		Perceptron:      perceptron.DefaultConfig(),
		CheckpointEvery: 1,
		Run:             kind.String(),
	}
}

// Train trains a model on the JSON lines examples in dataPath.
func Train(dataPath string, config *TrainConfig) (*Model, error) {
	if config == nil {
		config = DefaultTrainConfig(HMM)
	}
	cfg := *config
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 1
	}
	if cfg.Run == "" {
		cfg.Run = cfg.Kind.String()
	}

	var store *checkpoint.Store
	if cfg.CheckpointPath != "" {
		var err error
		store, err = checkpoint.Open(cfg.CheckpointPath)
		if err != nil {
			return nil, fmt.Errorf("structperc: %w", err)
		}
		defer func() { _ = store.Close() }()
	}

	var (
		m   *Model
		err error
	)
	switch cfg.Kind {
	case HMM:
		m, err = trainHMM(dataPath, &cfg, store)
	case Dependency, Coref:
		m, err = trainGraph(dataPath, &cfg, store)
	case Ranking:
		m, err = trainRanking(dataPath, &cfg, store)
	default:
		err = fmt.Errorf("unknown model kind %v", cfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("structperc: %w", err)
	}
	return m, nil
}

// run trains with t on the first pool, or on both when b is not nil.
func run[M perceptron.Model[I, O], I, O any](t *perceptron.Trainer[M, I, O], a perceptron.Pool[I, O], b *perceptron.Pool[I, O]) error {
	if len(a.Inputs) == 0 {
		return fmt.Errorf("no training examples")
	}
	if b != nil {
		return t.TrainTwoPools(a, *b)
	}
	return t.Train(a.Inputs, a.References)
}

// withCheckpoints chains a snapshotting hook in front of cfg.OnEpoch.
func withCheckpoints(pc perceptron.Config, cfg *TrainConfig, store *checkpoint.Store, m *Model) perceptron.Config {
	if store == nil {
		return pc
	}
	next := pc.OnEpoch
	pc.OnEpoch = func(s perceptron.EpochStats) bool {
		if (s.Epoch+1)%cfg.CheckpointEvery == 0 {
			info := checkpoint.Info{
				Run:       cfg.Run,
				Kind:      m.Kind.String(),
				Epoch:     s.Epoch,
				Iteration: s.Iteration,
				Mistakes:  s.Mistakes,
			}
			if id, err := store.Save(info, m.Clone()); err != nil {
				slog.Warn("Cannot save checkpoint", "epoch", s.Epoch, "error", err)
			} else {
				slog.Debug("Checkpoint saved", "id", id, "epoch", s.Epoch)
			}
		}
		if next != nil {
			return next(s)
		}
		return true
	}
	return pc
}

func readSequences(path string, states, features *encoding.Alphabet) (perceptron.Pool[*hmm.Sequence, *hmm.Tagging], error) {
	var pool perceptron.Pool[*hmm.Sequence, *hmm.Tagging]
	recs, err := dataset.Read[dataset.SequenceRecord](path)
	if err != nil {
		return pool, err
	}
	for i, rec := range recs {
		in, ref, err := dataset.EncodeSequence(rec, states, features)
		if err != nil {
			return pool, fmt.Errorf("%s record %d: %w", path, i, err)
		}
		pool.Inputs = append(pool.Inputs, in)
		pool.References = append(pool.References, ref)
	}
	return pool, nil
}

func trainHMM(dataPath string, cfg *TrainConfig, store *checkpoint.Store) (*Model, error) {
	states, features := encoding.NewAlphabet(), encoding.NewAlphabet()
	a, err := readSequences(dataPath, states, features)
	if err != nil {
		return nil, err
	}
	var b *perceptron.Pool[*hmm.Sequence, *hmm.Tagging]
	if cfg.PoolB != "" {
		pool, err := readSequences(cfg.PoolB, states, features)
		if err != nil {
			return nil, err
		}
		b = &pool
	}
	if cfg.DefaultState != "" {
		states.Add(cfg.DefaultState)
	}

	seq := hmm.NewModel(states.Size(), features.Size())
	seq.States, seq.Features = states, features
	m := &Model{Kind: HMM, DefaultState: cfg.DefaultState, seq: seq}

	viterbi := hmm.NewViterbi(cfg.Perceptron.Logger)
	if cfg.DefaultState != "" {
		viterbi.DefaultState = states.Get(cfg.DefaultState)
	}
	slog.Info("Training sequence model", "examples", len(a.Inputs), "states", states.Size(), "features", features.Size())
	t := perceptron.New[*hmm.Model, *hmm.Sequence, *hmm.Tagging](seq, viterbi, withCheckpoints(cfg.Perceptron, cfg, store, m))
	if err := run(t, a, b); err != nil {
		return nil, err
	}
	freeze(states, features)
	return m, nil
}

func readGraphs(path string, features *encoding.Alphabet) (perceptron.Pool[*graph.Input, *graph.Tree], error) {
	var pool perceptron.Pool[*graph.Input, *graph.Tree]
	recs, err := dataset.Read[dataset.GraphRecord](path)
	if err != nil {
		return pool, err
	}
	for i, rec := range recs {
		in, ref, err := dataset.EncodeGraph(rec, features)
		if err != nil {
			return pool, fmt.Errorf("%s record %d: %w", path, i, err)
		}
		pool.Inputs = append(pool.Inputs, in)
		pool.References = append(pool.References, ref)
	}
	return pool, nil
}

func trainGraph(dataPath string, cfg *TrainConfig, store *checkpoint.Store) (*Model, error) {
	features := encoding.NewAlphabet()
	a, err := readGraphs(dataPath, features)
	if err != nil {
		return nil, err
	}
	var b *perceptron.Pool[*graph.Input, *graph.Tree]
	if cfg.PoolB != "" {
		pool, err := readGraphs(cfg.PoolB, features)
		if err != nil {
			return nil, err
		}
		b = &pool
	}

	if cfg.Kind == Coref && !cfg.Perceptron.Partial && clustersOnly(a.References) {
		slog.Info("Coreference references carry clusters without heads, decoding them as latent trees")
		cfg.Perceptron.Partial = true
	}

	edge := graph.NewModel(features.Size())
	edge.Features = features
	m := &Model{Kind: cfg.Kind, edge: edge}
	pc := withCheckpoints(cfg.Perceptron, cfg, store, m)

	slog.Info("Training graph model", "kind", cfg.Kind, "examples", len(a.Inputs), "features", features.Size())
	var inf perceptron.Inference[*graph.Model, *graph.Input, *graph.Tree]
	if cfg.Kind == Coref {
		inf = graph.NewCoref(cfg.Perceptron.Logger)
	} else {
		inf = graph.NewParser(cfg.Perceptron.Logger)
	}
	t := perceptron.New[*graph.Model, *graph.Input, *graph.Tree](edge, inf, pc)
	if err := run(t, a, b); err != nil {
		return nil, err
	}
	freeze(features)
	return m, nil
}

// clustersOnly reports whether some reference has gold clusters but no
// known mention head, so only partial decoding can recover its tree.
func clustersOnly(refs []*graph.Tree) bool {
	for _, ref := range refs {
		if ref.Cluster == nil {
			continue
		}
		known := false
		for d := 1; d < len(ref.Heads); d++ {
			if ref.Heads[d] != graph.Unlabeled {
				known = true
				break
			}
		}
		if !known {
			return true
		}
	}
	return false
}

func readQueries(path string, features *encoding.Alphabet) (perceptron.Pool[*ranking.Query, *ranking.Choice], error) {
	var pool perceptron.Pool[*ranking.Query, *ranking.Choice]
	recs, err := dataset.Read[dataset.RankingRecord](path)
	if err != nil {
		return pool, err
	}
	for i, rec := range recs {
		q, ref, err := dataset.EncodeQuery(rec, features)
		if err != nil {
			return pool, fmt.Errorf("%s record %d: %w", path, i, err)
		}
		pool.Inputs = append(pool.Inputs, q)
		pool.References = append(pool.References, ref)
	}
	return pool, nil
}

func trainRanking(dataPath string, cfg *TrainConfig, store *checkpoint.Store) (*Model, error) {
	features := encoding.NewAlphabet()
	a, err := readQueries(dataPath, features)
	if err != nil {
		return nil, err
	}
	var b *perceptron.Pool[*ranking.Query, *ranking.Choice]
	if cfg.PoolB != "" {
		pool, err := readQueries(cfg.PoolB, features)
		if err != nil {
			return nil, err
		}
		b = &pool
	}

	rank := ranking.NewModel()
	rank.Features = features
	m := &Model{Kind: Ranking, rank: rank}

	slog.Info("Training ranking model", "examples", len(a.Inputs), "features", features.Size())
	t := perceptron.New[*ranking.Model, *ranking.Query, *ranking.Choice](
		rank, ranking.NewRanker(cfg.Perceptron.Logger), withCheckpoints(cfg.Perceptron, cfg, store, m))
	if err := run(t, a, b); err != nil {
		return nil, err
	}
	freeze(features)
	return m, nil
}
