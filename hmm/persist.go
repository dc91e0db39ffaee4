package hmm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/happyhackingspace/structperc/encoding"
)

const (
	sectionInitial     = "# initial state"
	sectionTransitions = "# transitions"
	sectionEmissions   = "# emissions"
)

// ErrName is returned by Write for a state or feature name the text format
// cannot hold.
var ErrName = errors.New("hmm: name not representable in the text format")

// checkNames rejects state names with whitespace or a leading '#', and
// feature names with a tab or newline.
func (m *Model) checkNames() error {
	for s := range m.NumStates {
		name := m.stateName(s)
		if strings.ContainsAny(name, " \t\r\n") || strings.HasPrefix(name, "#") {
			return fmt.Errorf("%w: state %q", ErrName, name)
		}
	}
	for f := range m.NumFeatures {
		if name := m.featureName(f); strings.ContainsAny(name, "\t\r\n") {
			return fmt.Errorf("%w: feature %q", ErrName, name)
		}
	}
	return nil
}

func (m *Model) stateName(s int) string {
	if m.States != nil {
		if name := m.States.String(s); name != "" {
			return name
		}
	}
	return strconv.Itoa(s)
}

func (m *Model) featureName(f int) string {
	if m.Features != nil {
		if name := m.Features.String(f); name != "" {
			return name
		}
	}
	return strconv.Itoa(f)
}

// Write writes the model in the text format: one section per parameter
// kind, one "labels<TAB>weight" line per non-zero weight. Emission lines
// are "state feature<TAB>weight"; a feature with no non-zero weight gets a
// single zero line. State names may not contain whitespace.
func (m *Model) Write(w io.Writer) error {
	if err := m.checkNames(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, sectionInitial)
	for s := range m.NumStates {
		fmt.Fprintf(bw, "%s\t%s\n", m.stateName(s), formatWeight(m.Initial(s)))
	}
	fmt.Fprintln(bw, sectionTransitions)
	for from := range m.NumStates {
		for to := range m.NumStates {
			if wt := m.Transition(from, to); wt != 0 {
				fmt.Fprintf(bw, "%s %s\t%s\n", m.stateName(from), m.stateName(to), formatWeight(wt))
			}
		}
	}
	fmt.Fprintln(bw, sectionEmissions)
	for f := range m.NumFeatures {
		written := false
		for s := range m.NumStates {
			if wt := m.params.Weight(m.EmissionIndex(f, s)); wt != 0 {
				fmt.Fprintf(bw, "%s %s\t%s\n", m.stateName(s), m.featureName(f), formatWeight(wt))
				written = true
			}
		}
		// keep all-zero features in the vocabulary so they stay known
		if !written && m.NumStates > 0 {
			fmt.Fprintf(bw, "%s %s\t0\n", m.stateName(0), m.featureName(f))
		}
	}
	return bw.Flush()
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

type weightLine struct {
	section string
	a, b    string
	weight  float64
}

// ReadModel parses the text format. State and feature names are collected
// into new alphabets in file order, so a model written by Write reads back
// with the same codes.
func ReadModel(r io.Reader) (*Model, error) {
	states := encoding.NewAlphabet()
	features := encoding.NewAlphabet()
	var lines []weightLine

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	section := ""
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			switch line {
			case sectionInitial, sectionTransitions, sectionEmissions:
				section = line
			default:
				return nil, fmt.Errorf("hmm: line %d: unknown section %q", lineNo, line)
			}
			continue
		}
		labels, value, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("hmm: line %d: missing weight", lineNo)
		}
		wt, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("hmm: line %d: %w", lineNo, err)
		}
		wl := weightLine{section: section, weight: wt}
		switch section {
		case sectionInitial:
			wl.a = labels
			states.Add(labels)
		case sectionTransitions, sectionEmissions:
			a, b, ok := strings.Cut(labels, " ")
			if !ok {
				return nil, fmt.Errorf("hmm: line %d: expected two labels", lineNo)
			}
			wl.a, wl.b = a, b
			states.Add(a)
			if section == sectionTransitions {
				states.Add(b)
			} else {
				features.Add(b)
			}
		default:
			return nil, fmt.Errorf("hmm: line %d: weight outside a section", lineNo)
		}
		lines = append(lines, wl)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	m := NewModel(states.Size(), features.Size())
	m.States, m.Features = states, features
	for _, wl := range lines {
		var idx int
		switch wl.section {
		case sectionInitial:
			idx = m.InitialIndex(states.Get(wl.a))
		case sectionTransitions:
			idx = m.TransitionIndex(states.Get(wl.a), states.Get(wl.b))
		case sectionEmissions:
			idx = m.EmissionIndex(features.Get(wl.b), states.Get(wl.a))
		}
		if err := m.params.Set(idx, wl.weight); err != nil {
			return nil, fmt.Errorf("hmm: %w", err)
		}
	}
	return m, nil
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'g', -1, 64)
}
