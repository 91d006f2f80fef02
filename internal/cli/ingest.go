package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/discroundup/roundup/internal/dispatch"
	"github.com/discroundup/roundup/internal/feed"
	"github.com/discroundup/roundup/internal/ingest"
	"github.com/discroundup/roundup/internal/results"
	"github.com/discroundup/roundup/internal/store"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	APIURL         string
	Token          string
	Database       string
	SyncURL        string
	MetaTimeout    time.Duration
	ResolveTimeout time.Duration
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <cardcast-url>",
		Short: "Follow a live card until it is complete and submit its scores",
		Long: `Connect to the live sync service for a cardcast link, wait until every
player's entry has arrived, then submit one score record per player.

Records go to the results API (--api, --token) unless --db is given, in
which case they are written to a local database along with the run summary.

Exit codes:
  0 - Card completed and every record was submitted
  1 - Session ended before completion, or a submission failed
  2 - Command error (bad link, database not found, etc.)

Examples:
  roundup ingest https://udisc.com/cardcast/AbCdEf --token $TOKEN
  roundup ingest AbCdEf --db ./roundup.db --resolve-timeout 30s`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.APIURL, "api", "", "results API base URL (env "+EnvAPIURL+")")
	cmd.Flags().StringVar(&opts.Token, "token", "", "results API token (env "+EnvToken+")")
	cmd.Flags().StringVar(&opts.Database, "db", "", "write to a local SQLite database instead of the API (env "+EnvDB+")")
	cmd.Flags().StringVar(&opts.SyncURL, "sync-url", "", "sync service endpoint (env "+EnvSyncURL+")")
	cmd.Flags().DurationVar(&opts.MetaTimeout, "meta-timeout", 0, "fail if the card is not announced within this time (0 waits forever)")
	cmd.Flags().DurationVar(&opts.ResolveTimeout, "resolve-timeout", 0, "submit entries without an owner after this time (0 waits forever)")

	return cmd
}

func runIngest(opts *IngestOptions, cmd *cobra.Command, link string) error {
	out := newFormatter(cmd, opts.RootOptions)

	cardID, err := ingest.ParseCardID(link)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid card link", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		submitter dispatch.Submitter
		st        *store.Store
	)
	if db := fromEnv(opts.Database, EnvDB, ""); db != "" {
		st, err = store.Open(db)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		submitter = st
	} else {
		client, err := results.New(fromEnv(opts.APIURL, EnvAPIURL, results.DefaultBaseURL), fromEnv(opts.Token, EnvToken, ""))
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid results API", err)
		}
		submitter = client
	}

	f := feed.New()
	defer f.Close()
	stopProgress := followFeed(f, out)
	defer stopProgress()

	sess := ingest.NewSession(ingest.Config{
		CardID:     cardID,
		Dispatcher: dispatch.New(submitter),
		Publisher:  f,
		Options: ingest.Options{
			SyncURL:        fromEnv(opts.SyncURL, EnvSyncURL, ingest.DefaultSyncURL),
			MetaTimeout:    opts.MetaTimeout,
			ResolveTimeout: opts.ResolveTimeout,
		},
	})

	sum, runErr := sess.Run(ctx)
	stopProgress()

	if st != nil {
		if err := st.WriteRun(context.WithoutCancel(ctx), sum); err != nil {
			slog.Error("failed to record run", "run_id", sum.RunID, "error", err)
		}
	}

	return reportSummary(out, sum, nil, runErr)
}

// followFeed prints progress updates while a session runs. The returned
// func prints whatever was published before it was called, then stops. It
// may be called more than once.
func followFeed(f *feed.Feed, out *OutputFormatter) func() {
	updates := make(chan feed.Update, 64)
	if err := f.Subscribe("cli", updates); err != nil {
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case u := <-updates:
				printUpdate(out, u)
			case <-done:
				for {
					select {
					case u := <-updates:
						printUpdate(out, u)
					default:
						return
					}
				}
			}
		}
	}()

	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		_ = f.Unsubscribe("cli")
		close(done)
		<-finished
	}
}

func printUpdate(out *OutputFormatter, u feed.Update) {
	switch u.Kind {
	case feed.KindStatus:
		if u.Error != "" {
			out.VerboseLog("status: %s (%s)", u.Status, u.Error)
			return
		}
		out.VerboseLog("status: %s", u.Status)
	case feed.KindProgress:
		out.VerboseLog("progress: %d/%d", u.Joined, u.Expected)
	case feed.KindRecord:
		if u.Record != nil {
			out.VerboseLog("joined: %s %s (%d)", u.Record.CardID, u.Record.PlayerName(), u.Record.TotalStrokes())
		}
	}
}

// runOutput is the JSON payload of ingest and replay.
type runOutput struct {
	Summary ingest.Summary `json:"summary"`
	Sent    []string       `json:"sent,omitempty"`
}

// reportSummary prints a finished run and maps it to an exit status.
func reportSummary(out *OutputFormatter, sum ingest.Summary, sent []string, runErr error) error {
	failed := 0
	if sum.Report != nil {
		failed = sum.Report.Failed
	}

	if out.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: runOutput{Summary: sum, Sent: sent}, RunID: sum.RunID}
		switch {
		case runErr != nil:
			resp.Status = "error"
			resp.Error = &CLIError{Code: errorCode(runErr), Message: runErr.Error()}
		case failed > 0:
			resp.Status = "error"
			resp.Error = &CLIError{Code: "E_SUBMIT", Message: fmt.Sprintf("%d submission(s) failed", failed)}
		}
		if err := out.JSON(resp); err != nil {
			return err
		}
	} else {
		printSummary(out.Writer, sum, sent, out.Verbose)
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "ingestion did not complete", runErr)
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d submission(s) failed", failed))
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case ingest.IsTimeout(err):
		return "E_TIMEOUT"
	case ingest.IsCancelled(err):
		return "E_CANCELLED"
	case ingest.IsTransportError(err):
		return "E_TRANSPORT"
	default:
		return "E_INGEST"
	}
}

func printSummary(w io.Writer, sum ingest.Summary, sent []string, verbose bool) {
	fmt.Fprintf(w, "Run %s, card %s: %s\n", sum.RunID, sum.CardID, sum.Phase)
	fmt.Fprintf(w, "  Joined: %d/%d (%d unresolved)\n", sum.Joined, sum.Expected, sum.Unresolved)
	if sum.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", sum.Error)
	}

	if sum.Report != nil {
		fmt.Fprintf(w, "  Submitted: %d, failed: %d\n", sum.Report.Submitted, sum.Report.Failed)
		for _, o := range sum.Report.Outcomes {
			if o.OK {
				fmt.Fprintf(w, "  ✓ %s %s\n", o.CardID, o.Player)
			} else {
				fmt.Fprintf(w, "  ✗ %s %s: %s\n", o.CardID, o.Player, o.Error)
			}
		}
	}

	if verbose && len(sent) > 0 {
		fmt.Fprintln(w, "  Sent frames:")
		for _, s := range sent {
			fmt.Fprintf(w, "    %s\n", s)
		}
	}
}
