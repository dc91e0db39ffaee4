// Package dataset reads training examples stored as JSON lines and encodes
// them into model inputs.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// SequenceRecord is one tagged sequence. Tokens[t] lists the feature strings
// of token t; an empty label marks an unlabeled token.
type SequenceRecord struct {
	Tokens [][]string `json:"tokens"`
	Labels []string   `json:"labels,omitempty"`
}

// EdgeRecord lists the features of the edge Head -> Dep.
type EdgeRecord struct {
	Head     int      `json:"head"`
	Dep      int      `json:"dep"`
	Features []string `json:"features"`
}

// GraphRecord is a dependency or coreference example over Nodes nodes, node
// 0 being the artificial root. Heads uses -1 for the root and -2 for unknown
// heads; Clusters holds gold coreference ids, negative for unknown.
type GraphRecord struct {
	Nodes    int          `json:"nodes"`
	Edges    []EdgeRecord `json:"edges"`
	Heads    []int        `json:"heads,omitempty"`
	Clusters []int        `json:"clusters,omitempty"`
}

// RankingRecord is a query over candidate items. Answer is the index of the
// correct item, or absent.
type RankingRecord struct {
	Items  [][]string `json:"items"`
	Answer *int       `json:"answer,omitempty"`
}

// Read decodes one JSON value per line of path. Blank lines are skipped and
// malformed lines are logged and skipped.
func Read[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var records []T
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Warn("Skipping malformed record", "path", path, "line", lineNo, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// Write writes records as JSON lines.
func Write[T any](path string, records []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
