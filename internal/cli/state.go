package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldline/stocktrail/internal/ledger"
	"github.com/fieldline/stocktrail/internal/store"
	"github.com/fieldline/stocktrail/internal/timeline"
)

// keyFlags holds the --item/--location pair shared by the read
// commands.
type keyFlags struct {
	Item     int64
	Location int64
}

func (k *keyFlags) register(cmd *cobra.Command, required bool) {
	cmd.Flags().Int64Var(&k.Item, "item", 0, "inventory item id")
	cmd.Flags().Int64Var(&k.Location, "location", 0, "location id")
	if required {
		_ = cmd.MarkFlagRequired("item")
		_ = cmd.MarkFlagRequired("location")
	}
}

func (k *keyFlags) key() ledger.Key {
	return ledger.Key{ItemID: k.Item, LocationID: k.Location}
}

// NewLatestCommand creates the latest command.
func NewLatestCommand(rootOpts *RootOptions) *cobra.Command {
	keys := &keyFlags{}

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the current state of one position, or all",
		Long: `Show the most recent recorded state. With --item and --location
the single position is shown; without them, one line per tracked
position.

Example:
  stocktrail latest --db ./stocktrail.db --item 100 --location 5
  stocktrail latest --db ./stocktrail.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLatest(rootOpts, keys, cmd)
		},
	}
	keys.register(cmd, false)
	return cmd
}

func runLatest(opts *RootOptions, keys *keyFlags, cmd *cobra.Command) error {
	st, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := timeline.New(st)
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if keys.Item == 0 && keys.Location == 0 {
		events, err := svc.Overview(cmd.Context())
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read overview", err)
		}
		if opts.Format == "json" {
			return out.Success(events)
		}
		for _, e := range events {
			out.Text("%s", timeline.RenderLine(e))
		}
		return nil
	}

	event, err := svc.Latest(cmd.Context(), keys.key())
	if err != nil {
		return readError("position has no recorded state", err)
	}
	return emitEvent(out, opts, *event)
}

// NewAsOfCommand creates the asof command.
func NewAsOfCommand(rootOpts *RootOptions) *cobra.Command {
	keys := &keyFlags{}
	var at string

	cmd := &cobra.Command{
		Use:   "asof",
		Short: "Show the state of a position at a past instant",
		Long: `Show the state a position had at the given instant: the most
recent event recorded at or before it.

Example:
  stocktrail asof --db ./stocktrail.db --item 100 --location 5 --at 2025-06-01T12:30:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --at timestamp", err)
			}
			return runAsOf(rootOpts, keys, t, cmd)
		},
	}
	keys.register(cmd, true)
	cmd.Flags().StringVar(&at, "at", "", "instant to reconstruct, RFC 3339 (required)")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func runAsOf(opts *RootOptions, keys *keyFlags, at time.Time, cmd *cobra.Command) error {
	st, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	event, err := timeline.New(st).AsOf(cmd.Context(), keys.key(), at)
	if err != nil {
		return readError("position did not exist at that time", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return emitEvent(out, opts, *event)
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	keys := &keyFlags{}
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a position's change feed",
		Long: `Show the change feed for a position, most recent first. Each line
carries the per-attribute deltas annotated next to the values.

Example:
  stocktrail history --db ./stocktrail.db --item 100 --location 5 --since 72h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, keys, since, cmd)
		},
	}
	keys.register(cmd, true)
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "trailing window to show")
	return cmd
}

func runHistory(opts *RootOptions, keys *keyFlags, since time.Duration, cmd *cobra.Command) error {
	st, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := timeline.New(st)
	events, err := svc.Feed(cmd.Context(), keys.key(), time.Now().UTC().Add(-since))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read history", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return out.Success(events)
	}
	if len(events) == 0 {
		out.Text("no events in the last %s", since)
		return nil
	}
	for _, e := range events {
		out.Text("%s", timeline.RenderLine(e))
	}
	return nil
}

// emitEvent prints one event in the configured format.
func emitEvent(out *OutputFormatter, opts *RootOptions, e ledger.Event) error {
	if opts.Format == "json" {
		return out.Success(e)
	}
	out.Text("%s", timeline.RenderLine(e))
	return nil
}

// readError maps ErrNotFound to a clean failure exit and everything
// else to a command error.
func readError(message string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitFailure, message, err)
	}
	return WrapExitError(ExitCommandError, "read failed", err)
}
