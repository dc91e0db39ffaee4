package graph

import (
	"fmt"
	"io"
	"os"

	"github.com/happyhackingspace/structperc/encoding"
	"github.com/happyhackingspace/structperc/param"
)

// Write writes one "feature<TAB>weight" line per non-zero weight.
func (m *Model) Write(w io.Writer) error {
	return m.params.WriteText(w, func(code int) string {
		if m.Features == nil {
			return ""
		}
		return m.Features.String(code)
	})
}

// SaveModel writes the model to path.
func SaveModel(m *Model, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadModel reads a model written by SaveModel.
func LoadModel(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadModel(f)
}

// ReadModel parses the text format. Feature names are numbered in file
// order into a new alphabet.
func ReadModel(r io.Reader) (*Model, error) {
	lines, err := param.ReadText(r)
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	features := encoding.NewAlphabet()
	for _, l := range lines {
		features.Add(l.Name)
	}
	m := NewModel(features.Size())
	m.Features = features
	for _, l := range lines {
		if err := m.params.Set(features.Get(l.Name), l.Weight); err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}
	}
	return m, nil
}
