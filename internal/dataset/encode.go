package dataset

import (
	"fmt"

	"github.com/happyhackingspace/structperc/encoding"
	"github.com/happyhackingspace/structperc/graph"
	"github.com/happyhackingspace/structperc/hmm"
	"github.com/happyhackingspace/structperc/ranking"
)

// EncodeSequence converts rec with the given alphabets. Unknown labels of a
// frozen label alphabet become hmm.Unlabeled.
func EncodeSequence(rec SequenceRecord, labels, features *encoding.Alphabet) (*hmm.Sequence, *hmm.Tagging, error) {
	in := &hmm.Sequence{Features: make([][]int, len(rec.Tokens))}
	for t, feats := range rec.Tokens {
		in.Features[t] = features.Codes(feats)
	}
	out := in.NewOutput()
	if rec.Labels == nil {
		return in, out, nil
	}
	if len(rec.Labels) != len(rec.Tokens) {
		return nil, nil, fmt.Errorf("%w: %d tokens, %d labels", hmm.ErrShape, len(rec.Tokens), len(rec.Labels))
	}
	for t, l := range rec.Labels {
		if l == "" {
			continue
		}
		if code := labels.Code(l); code >= 0 {
			out.Labels[t] = code
		}
	}
	return in, out, nil
}

// EncodeGraph converts rec with the given feature alphabet. A record without
// heads yields a tree with every head unknown.
func EncodeGraph(rec GraphRecord, features *encoding.Alphabet) (*graph.Input, *graph.Tree, error) {
	n := rec.Nodes
	in := &graph.Input{Features: make([][][]int, n)}
	for _, e := range rec.Edges {
		if e.Head < 0 || e.Head >= n || e.Dep < 0 || e.Dep >= n || e.Head == e.Dep {
			return nil, nil, fmt.Errorf("%w: edge %d->%d in a %d-node graph", graph.ErrShape, e.Head, e.Dep, n)
		}
		if in.Features[e.Head] == nil {
			in.Features[e.Head] = make([][]int, n)
		}
		in.Features[e.Head][e.Dep] = features.Codes(e.Features)
	}
	out := in.NewOutput()
	if rec.Heads != nil {
		if len(rec.Heads) != n {
			return nil, nil, fmt.Errorf("%w: %d nodes, %d heads", graph.ErrShape, n, len(rec.Heads))
		}
		copy(out.Heads, rec.Heads)
	}
	if rec.Clusters != nil {
		if len(rec.Clusters) != n {
			return nil, nil, fmt.Errorf("%w: %d nodes, %d cluster ids", graph.ErrShape, n, len(rec.Clusters))
		}
		out.Cluster = append([]int(nil), rec.Clusters...)
	}
	return in, out, nil
}

// EncodeQuery converts rec with the given feature alphabet.
func EncodeQuery(rec RankingRecord, features *encoding.Alphabet) (*ranking.Query, *ranking.Choice, error) {
	q := &ranking.Query{Items: make([][]int, len(rec.Items))}
	for i, feats := range rec.Items {
		q.Items[i] = features.Codes(feats)
	}
	out := q.NewOutput()
	if rec.Answer != nil {
		if *rec.Answer < 0 || *rec.Answer >= len(rec.Items) {
			return nil, nil, fmt.Errorf("%w: answer %d of %d items", ranking.ErrShape, *rec.Answer, len(rec.Items))
		}
		out.Item = *rec.Answer
	}
	return q, out, nil
}
