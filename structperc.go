// Package structperc trains and applies structured perceptron models:
// sequence taggers, dependency parsers, coreference resolvers and item
// rankers.
//
//	m, _ := structperc.Train("train.jsonl", &structperc.TrainConfig{Kind: structperc.HMM})
//	_ = m.Save("tagger.model")
//	labels, _ := m.Tag(structperc.SequenceRecord{Tokens: [][]string{{"w=the"}, {"w=dog"}}})
package structperc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/happyhackingspace/structperc/encoding"
	"github.com/happyhackingspace/structperc/graph"
	"github.com/happyhackingspace/structperc/hmm"
	"github.com/happyhackingspace/structperc/internal/dataset"
	"github.com/happyhackingspace/structperc/ranking"
)

// Record types read from JSON lines files.
type (
	SequenceRecord = dataset.SequenceRecord
	GraphRecord    = dataset.GraphRecord
	EdgeRecord     = dataset.EdgeRecord
	RankingRecord  = dataset.RankingRecord
)

// Kind selects the model family.
type Kind int

const (
	HMM Kind = iota
	Dependency
	Coref
	Ranking
)

var kindNames = []string{"hmm", "dependency", "coref", "ranking"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind parses a kind name as printed by String.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("structperc: unknown model kind %q", s)
}

// ErrKind is returned when a model is used for another kind of input.
var ErrKind = errors.New("structperc: wrong model kind")

const header = "# structperc"

// Model is a trained model of one Kind together with its vocabularies.
type Model struct {
	Kind Kind
	// DefaultState is the label given to HMM tokens without a known feature.
	DefaultState string

	seq  *hmm.Model
	edge *graph.Model
	rank *ranking.Model

	viterbi *hmm.Viterbi
	parser  *graph.Parser
	coref   *graph.Coref
	ranker  *ranking.Ranker
}

func (m *Model) check(kinds ...Kind) error {
	for _, k := range kinds {
		if m.Kind == k {
			return nil
		}
	}
	return fmt.Errorf("%w: %s model", ErrKind, m.Kind)
}

// Clone returns a deep copy of the weights. Vocabularies are shared.
func (m *Model) Clone() *Model {
	c := &Model{Kind: m.Kind, DefaultState: m.DefaultState}
	switch {
	case m.seq != nil:
		c.seq = m.seq.Clone()
	case m.edge != nil:
		c.edge = m.edge.Clone()
	case m.rank != nil:
		c.rank = m.rank.Clone()
	}
	return c
}

// Write writes the model in its text format behind a kind header.
func (m *Model) Write(w io.Writer) error {
	line := header + " " + m.Kind.String()
	if m.Kind == HMM && m.DefaultState != "" {
		line += " " + m.DefaultState
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	switch m.Kind {
	case HMM:
		return m.seq.Write(w)
	case Dependency, Coref:
		return m.edge.Write(w)
	default:
		return m.rank.Write(w)
	}
}

// Save writes the model to path.
func (m *Model) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("structperc: %w", err)
	}
	if err := m.Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("structperc: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("structperc: %w", err)
	}
	return nil
}

// Load reads a model written by Save.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("structperc: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Read parses a model written by Write. Its vocabularies are frozen.
func Read(r io.Reader) (*Model, error) {
	br := bufio.NewReader(r)
	first, err := br.ReadString('\n')
	if err != nil && first == "" {
		return nil, fmt.Errorf("structperc: read header: %w", err)
	}
	fields := strings.Fields(strings.TrimPrefix(first, header))
	if !strings.HasPrefix(first, header) || len(fields) == 0 {
		return nil, fmt.Errorf("structperc: missing model header")
	}
	kind, err := ParseKind(fields[0])
	if err != nil {
		return nil, err
	}
	m := &Model{Kind: kind}
	if len(fields) > 1 {
		m.DefaultState = fields[1]
	}
	switch kind {
	case HMM:
		m.seq, err = hmm.ReadModel(br)
		if err == nil {
			freeze(m.seq.States, m.seq.Features)
		}
	case Dependency, Coref:
		m.edge, err = graph.ReadModel(br)
		if err == nil {
			freeze(m.edge.Features)
		}
	case Ranking:
		m.rank, err = ranking.ReadModel(br)
		if err == nil {
			freeze(m.rank.Features)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("structperc: %w", err)
	}
	return m, nil
}

func freeze(alphabets ...*encoding.Alphabet) {
	for _, a := range alphabets {
		if a != nil {
			a.Frozen = true
		}
	}
}

// Tag labels every token of rec.
func (m *Model) Tag(rec SequenceRecord) ([]string, error) {
	if err := m.check(HMM); err != nil {
		return nil, err
	}
	in, _, err := dataset.EncodeSequence(SequenceRecord{Tokens: rec.Tokens}, m.seq.States, m.seq.Features)
	if err != nil {
		return nil, fmt.Errorf("structperc: %w", err)
	}
	if m.viterbi == nil {
		m.viterbi = hmm.NewViterbi(nil)
		if code := m.seq.States.Get(m.DefaultState); code >= 0 {
			m.viterbi.DefaultState = code
		}
	}
	out := m.viterbi.Infer(m.seq, in)
	labels := make([]string, len(out.Labels))
	for i, l := range out.Labels {
		labels[i] = m.seq.States.String(l)
	}
	return labels, nil
}

// Parse returns the head of every node of rec, graph.Root for node 0.
func (m *Model) Parse(rec GraphRecord) ([]int, error) {
	if err := m.check(Dependency); err != nil {
		return nil, err
	}
	in, _, err := dataset.EncodeGraph(GraphRecord{Nodes: rec.Nodes, Edges: rec.Edges}, m.edge.Features)
	if err != nil {
		return nil, fmt.Errorf("structperc: %w", err)
	}
	if m.parser == nil {
		m.parser = graph.NewParser(nil)
	}
	return m.parser.Infer(m.edge, in).Heads, nil
}

// Resolve returns the antecedent of every mention of rec and a cluster id
// per node.
func (m *Model) Resolve(rec GraphRecord) (heads, clusters []int, err error) {
	if err := m.check(Coref); err != nil {
		return nil, nil, err
	}
	in, _, err := dataset.EncodeGraph(GraphRecord{Nodes: rec.Nodes, Edges: rec.Edges}, m.edge.Features)
	if err != nil {
		return nil, nil, fmt.Errorf("structperc: %w", err)
	}
	if m.coref == nil {
		m.coref = graph.NewCoref(nil)
	}
	out := m.coref.Infer(m.edge, in)
	return out.Heads, out.Cluster, nil
}

// Rank returns the index of the best item of rec, or -1 when it has none.
func (m *Model) Rank(rec RankingRecord) (int, error) {
	if err := m.check(Ranking); err != nil {
		return 0, err
	}
	q, _, err := dataset.EncodeQuery(RankingRecord{Items: rec.Items}, m.rank.Features)
	if err != nil {
		return 0, fmt.Errorf("structperc: %w", err)
	}
	if m.ranker == nil {
		m.ranker = ranking.NewRanker(nil)
	}
	return m.ranker.Infer(m.rank, q).Item, nil
}
