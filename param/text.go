package param

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// NamedWeight is one line of the text format.
type NamedWeight struct {
	Name   string
	Weight float64
}

// WriteText writes one "name<TAB>weight" line per non-zero weight, in code
// order. name renders a code; nil renders the code itself.
func (s *Store) WriteText(w io.Writer, name func(code int) string) error {
	bw := bufio.NewWriter(w)
	s.Each(func(code int, weight float64) {
		if weight == 0 {
			return
		}
		label := ""
		if name != nil {
			label = name(code)
		}
		if label == "" {
			label = strconv.Itoa(code)
		}
		fmt.Fprintf(bw, "%s\t%s\n", label, strconv.FormatFloat(weight, 'g', -1, 64))
	})
	return bw.Flush()
}

// ReadText parses lines written by WriteText. Blank lines are skipped.
func ReadText(r io.Reader) ([]NamedWeight, error) {
	var out []NamedWeight
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("param: line %d: missing weight", lineNo)
		}
		weight, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("param: line %d: %w", lineNo, err)
		}
		out = append(out, NamedWeight{Name: name, Weight: weight})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
