package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldline/stocktrail/internal/syncer"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <snapshot.jsonl>",
		Short: "Apply an upstream snapshot to the ledger",
		Long: `Apply a line-delimited JSON snapshot to the ledger.

Each record is captured with sync origin: new positions append INSERT
events, changed positions append SYNC events, and unchanged records
append nothing. Pass "-" to read the snapshot from stdin.

Example:
  stocktrail sync --db ./stocktrail.db snapshot.jsonl
  gunzip -c snapshot.jsonl.gz | stocktrail sync --db ./stocktrail.db -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSync(opts *RootOptions, path string, cmd *cobra.Command) error {
	logger := setupLogging(opts)

	var in io.Reader
	if path == "-" {
		in = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open snapshot", err)
		}
		defer f.Close()
		in = f
	}

	records, err := syncer.ReadSnapshot(in)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse snapshot", err)
	}

	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	sync := syncer.New(st, syncer.WithLogger(logger))
	ctx := cmd.Context()

	var total syncer.Stats
	for start := 0; start < len(records); start += cfg.SyncBatchSize {
		end := start + cfg.SyncBatchSize
		if end > len(records) {
			end = len(records)
		}
		stats, err := sync.ApplyBatch(ctx, records[start:end])
		if err != nil {
			return WrapExitError(ExitFailure, "failed to apply batch", err)
		}
		total.Inserted += stats.Inserted
		total.Updated += stats.Updated
		total.Unchanged += stats.Unchanged
		total.Failed += stats.Failed
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return out.Success(total)
	}
	out.Text("applied %d records: %d inserted, %d updated, %d unchanged, %d failed",
		len(records), total.Inserted, total.Updated, total.Unchanged, total.Failed)
	if total.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d records failed", total.Failed))
	}
	return nil
}
