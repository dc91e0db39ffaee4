package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/happyhackingspace/structperc/internal/checkpoint"
	"github.com/spf13/cobra"
)

func (c *CLI) newCheckpointsCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect and export per-epoch training snapshots",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "checkpoints.db", "Checkpoint database")

	listCmd := &cobra.Command{
		Use:   "list [run]",
		Short: "List checkpoints, optionally of one run",
		Args:  cobra.MaximumNArgs(1),
		Example: `  structperc checkpoints list --db ckpt.db
  structperc checkpoints list hmm --db ckpt.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			run := ""
			if len(args) == 1 {
				run = args[0]
			}
			store, err := checkpoint.Open(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			infos, err := store.List(run)
			if err != nil {
				return err
			}
			return printCheckpoints(os.Stdout, infos)
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export <id|run|latest> <modelfile>",
		Short: "Write a checkpoint as a model file; a run name exports its latest snapshot",
		Args:  cobra.ExactArgs(2),
		Example: `  structperc checkpoints export latest tagger-last.model --db ckpt.db
  structperc checkpoints export hmm tagger-last.model --db ckpt.db
  structperc checkpoints export 12 tagger-epoch3.model --db ckpt.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := checkpoint.Open(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			info, err := exportCheckpoint(store, args[0], args[1])
			if err != nil {
				return err
			}
			slog.Info("Checkpoint exported", "id", info.ID, "run", info.Run, "epoch", info.Epoch, "path", args[1])
			return nil
		},
	}

	cmd.AddCommand(listCmd, exportCmd)
	return cmd
}

// exportCheckpoint writes the checkpoint named by ref to path. ref is a
// checkpoint id, a run name for that run's latest snapshot, or "latest"
// for the most recent snapshot of any run.
func exportCheckpoint(store *checkpoint.Store, ref, path string) (checkpoint.Info, error) {
	var id int64
	var err error
	if ref == "latest" {
		id, err = store.Latest("")
	} else if id, err = strconv.ParseInt(ref, 10, 64); err != nil {
		id, err = store.Latest(ref)
	}
	if err != nil {
		return checkpoint.Info{}, err
	}
	info, model, err := store.Load(id)
	if err != nil {
		return info, err
	}
	if err := os.WriteFile(path, model, 0644); err != nil {
		return info, fmt.Errorf("write model: %w", err)
	}
	return info, nil
}

func printCheckpoints(w io.Writer, infos []checkpoint.Info) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "No checkpoints found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tRUN\tKIND\tEPOCH\tITERATION\tMISTAKES\tSIZE\tCREATED")
	for _, info := range infos {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			info.ID, info.Run, info.Kind, info.Epoch, info.Iteration, info.Mistakes, info.Size,
			info.Created.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
