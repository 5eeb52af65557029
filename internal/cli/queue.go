package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldline/stocktrail/internal/ledger"
	"github.com/fieldline/stocktrail/internal/queue"
	"github.com/fieldline/stocktrail/internal/store"
	"github.com/fieldline/stocktrail/internal/syncer"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drive the processing queue",
	}
	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueRequeueCommand(rootOpts))
	cmd.AddCommand(newQueueWorkCommand(rootOpts))
	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(rootOpts, status, cmd)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending|processing|completed|failed)")
	return cmd
}

func runQueueList(opts *RootOptions, status string, cmd *cobra.Command) error {
	filter := queue.Status(status)
	if status != "" && !filter.Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q", status))
	}

	st, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	jobs, err := st.ListJobs(cmd.Context(), filter)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list jobs", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return out.Success(jobs)
	}
	if len(jobs) == 0 {
		out.Text("no jobs")
		return nil
	}
	for _, job := range jobs {
		line := fmt.Sprintf("%s %-10s %s attempts=%d", job.ID, job.Status, job.Kind, job.Attempts)
		if job.LastError != "" {
			line += fmt.Sprintf(" last_error=%q", job.LastError)
		}
		out.Text("%s", line)
	}
	return nil
}

func newQueueRequeueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Move a failed job back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueRequeue(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runQueueRequeue(opts *RootOptions, jobID string, cmd *cobra.Command) error {
	st, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Requeue(cmd.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return WrapExitError(ExitFailure, "job not found", err)
		case queue.IsInvalidTransition(err):
			return WrapExitError(ExitFailure, "job is not failed", err)
		default:
			return WrapExitError(ExitCommandError, "requeue failed", err)
		}
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return out.Success(map[string]string{"job_id": jobID, "status": string(queue.StatusPending)})
	}
	out.Text("job %s requeued", jobID)
	return nil
}

func newQueueWorkCommand(rootOpts *RootOptions) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run queue workers until interrupted",
		Long: `Claim and process pending jobs with the configured worker pool.
Export jobs write a snapshot of every current position as line-delimited
JSON into the output directory, one file per job.

Example:
  stocktrail queue work --db ./stocktrail.db --out ./exports`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueWork(rootOpts, outDir, cmd)
		},
	}
	cmd.Flags().StringVar(&outDir, "out", ".", "directory for export job output")
	return cmd
}

func runQueueWork(opts *RootOptions, outDir string, cmd *cobra.Command) error {
	logger := setupLogging(opts)

	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output directory", err)
	}

	d := queue.NewDispatcher(st, exportHandler(st, outDir),
		queue.WithWorkers(cfg.Workers),
		queue.WithPollInterval(cfg.PollInterval),
		queue.WithMaxAttempts(cfg.MaxAttempts),
		queue.WithLogger(logger),
	)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "Workers started. Press Ctrl-C to stop.")
	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "dispatcher error", err)
	}
	return nil
}

// exportHandler processes export jobs: it writes the current state of
// every position as a snapshot file readable by the sync command.
func exportHandler(st *store.Store, outDir string) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		if job.Kind != syncer.ExportJobKind {
			return fmt.Errorf("unknown job kind %q", job.Kind)
		}

		events, err := st.LatestAll(ctx)
		if err != nil {
			return fmt.Errorf("read positions: %w", err)
		}
		records := make([]syncer.Record, 0, len(events))
		for _, e := range events {
			// A key whose latest event is DELETE has no live position.
			if e.ChangeType == ledger.ChangeDelete {
				continue
			}
			records = append(records, syncer.FromEvent(e))
		}

		path := filepath.Join(outDir, fmt.Sprintf("export-%s.jsonl", job.ID))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		if err := syncer.WriteSnapshot(f, records); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
}
