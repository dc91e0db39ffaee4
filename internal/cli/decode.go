package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/happyhackingspace/structperc"
	"github.com/spf13/cobra"
)

func (c *CLI) newDecodeCommand() *cobra.Command {
	var modelPath string

	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode JSON lines records from a file or stdin with a trained model",
		Args:  cobra.MaximumNArgs(1),
		Example: `  # Tag a file of sequences
  structperc decode test.jsonl --model tagger.model

  # Parse records piped from stdin
  cat trees.jsonl | structperc decode --model parser.model`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = os.Stdin
			if len(args) == 0 {
				if isStdinTerminal() {
					return cmd.Help()
				}
			} else {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("read file: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			start := time.Now()
			m, err := structperc.Load(modelPath)
			if err != nil {
				return err
			}
			slog.Debug("Model loaded", "kind", m.Kind, "duration", time.Since(start))

			start = time.Now()
			n, err := decodeRecords(m, in, os.Stdout)
			if err != nil {
				return err
			}
			slog.Debug("Decoding completed", "records", n, "duration", time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelPath, "model", "m", "model.txt", "Path to model file")
	return cmd
}

type tagResult struct {
	Labels []string `json:"labels"`
}

type treeResult struct {
	Heads    []int `json:"heads"`
	Clusters []int `json:"clusters,omitempty"`
}

type rankResult struct {
	Best int `json:"best"`
}

// decodeRecords decodes one record per line of r and writes one JSON result
// per line to w. It returns the number of records decoded.
func decodeRecords(m *structperc.Model, r io.Reader, w io.Writer) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	n, lineNo := 0, 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		result, err := decodeLine(m, line)
		if err != nil {
			return n, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := enc.Encode(result); err != nil {
			return n, err
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, err
	}
	return n, bw.Flush()
}

func decodeLine(m *structperc.Model, line []byte) (any, error) {
	switch m.Kind {
	case structperc.HMM:
		var rec structperc.SequenceRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		labels, err := m.Tag(rec)
		return tagResult{Labels: labels}, err
	case structperc.Dependency:
		var rec structperc.GraphRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		heads, err := m.Parse(rec)
		return treeResult{Heads: heads}, err
	case structperc.Coref:
		var rec structperc.GraphRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		heads, clusters, err := m.Resolve(rec)
		return treeResult{Heads: heads, Clusters: clusters}, err
	default:
		var rec structperc.RankingRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		best, err := m.Rank(rec)
		return rankResult{Best: best}, err
	}
}

func isStdinTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
