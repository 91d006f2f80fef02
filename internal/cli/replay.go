package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/discroundup/roundup/internal/dispatch"
	"github.com/discroundup/roundup/internal/feed"
	"github.com/discroundup/roundup/internal/replay"
	"github.com/discroundup/roundup/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <transcript.yaml>",
		Short: "Replay a recorded card broadcast through the ingestion pipeline",
		Long: `Replay a YAML transcript of sync frames through a real ingestion session.

Without --db nothing is submitted; the joined records and the frames the
session sent are reported. With --db the records and the run summary are
written to the database.

Exit codes:
  0 - The card completed
  1 - The session ended before completion, or a submission failed
  2 - Command error (transcript invalid, database not found, etc.)

Examples:
  roundup replay testdata/complete.yaml
  roundup replay card.yaml --db ./roundup.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "write records and the run to a SQLite database")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, path string) error {
	out := newFormatter(cmd, opts.RootOptions)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	tr, err := replay.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load transcript", err)
	}
	out.VerboseLog("replaying %s (%d frames)", path, len(tr.Frames))

	var (
		sub dispatch.Submitter
		st  *store.Store
	)
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		sub = st
	}

	f := feed.New()
	defer f.Close()
	stopProgress := followFeed(f, out)
	defer stopProgress()

	res, runErr := replay.Run(ctx, tr, sub, replay.Options{Publisher: f})
	stopProgress()

	if st != nil {
		if err := st.WriteRun(ctx, res.Summary); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
	}

	return reportSummary(out, res.Summary, res.Sent, runErr)
}
