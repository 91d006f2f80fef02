package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/discroundup/roundup/internal/event"
	"github.com/discroundup/roundup/internal/leaderboard"
	"github.com/discroundup/roundup/internal/publish"
	"github.com/discroundup/roundup/internal/results"
	"github.com/discroundup/roundup/internal/scorecard"
	"github.com/discroundup/roundup/internal/store"
)

// ResultsOptions holds flags for the results command.
type ResultsOptions struct {
	*RootOptions
	Date      string
	Database  string
	APIURL    string
	Token     string
	EventFile string
	Publish   bool
}

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show the leaderboard for a round",
		Long: `Compute the leaderboard for one round date: divisions ranked by final
score (strokes minus handicap), the top player, duel winners and best-on
winners.

Scores come from --db when given, otherwise from the results API. The
event definition comes from --event, else from the same source, else
the defaults.

With --publish the leaderboard JSON is also uploaded to the S3-compatible
bucket named by `+EnvS3Bucket+` (see the ROUNDUP_S3_* variables).

Examples:
  roundup results --db ./roundup.db --date 2025-06-14
  roundup results --db ./roundup.db --date 2025-06-14 --publish
  roundup results --date 2025-06-14 --event saturday.cue --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "round date YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("date")
	cmd.Flags().StringVar(&opts.Database, "db", "", "read from a SQLite database (env "+EnvDB+")")
	cmd.Flags().StringVar(&opts.APIURL, "api", "", "results API base URL (env "+EnvAPIURL+")")
	cmd.Flags().StringVar(&opts.Token, "token", "", "results API token (env "+EnvToken+")")
	cmd.Flags().StringVar(&opts.EventFile, "event", "", "CUE event definition overriding the stored one")
	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "upload the leaderboard JSON to the configured bucket")

	return cmd
}

// roundSource yields the inputs of a leaderboard.
type roundSource interface {
	rows(ctx context.Context, date string) ([]scorecard.Row, error)
	event(ctx context.Context, date string) (event.Event, error)
}

type storeSource struct{ st *store.Store }

func (s storeSource) rows(ctx context.Context, date string) ([]scorecard.Row, error) {
	return s.st.Scorecards(ctx, store.Filter{Date: date})
}

func (s storeSource) event(ctx context.Context, date string) (event.Event, error) {
	ev, err := s.st.EventByDate(ctx, date)
	if errors.Is(err, store.ErrNotFound) {
		return event.Default(date), nil
	}
	return ev, err
}

type apiSource struct{ client *results.Client }

func (s apiSource) rows(ctx context.Context, date string) ([]scorecard.Row, error) {
	return s.client.FetchScores(ctx, "", date)
}

func (s apiSource) event(ctx context.Context, date string) (event.Event, error) {
	ev, err := s.client.FetchEventByDate(ctx, date)
	var se *results.StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return event.Default(date), nil
	}
	return ev, err
}

func runResults(opts *ResultsOptions, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)
	ctx := cmd.Context()

	if err := scorecard.ValidateDate(opts.Date); err != nil {
		return WrapExitError(ExitCommandError, "invalid --date", err)
	}

	var src roundSource
	if db := fromEnv(opts.Database, EnvDB, ""); db != "" {
		st, err := store.Open(db)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		src = storeSource{st: st}
	} else {
		client, err := results.New(fromEnv(opts.APIURL, EnvAPIURL, results.DefaultBaseURL), fromEnv(opts.Token, EnvToken, ""))
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid results API", err)
		}
		src = apiSource{client: client}
	}

	var (
		ev  event.Event
		err error
	)
	if opts.EventFile != "" {
		ev, err = event.Load(opts.EventFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid event file", err)
		}
		if ev.Date != opts.Date {
			return NewExitError(ExitCommandError, fmt.Sprintf("event file is for %s, not %s", ev.Date, opts.Date))
		}
	} else {
		ev, err = src.event(ctx, opts.Date)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to load event", err)
		}
	}

	rows, err := src.rows(ctx, opts.Date)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load scores", err)
	}
	out.VerboseLog("%d score(s) for %s", len(rows), opts.Date)

	board := leaderboard.Build(ev, rows)

	if !opts.Publish {
		return out.Success(board, func(w io.Writer) { printBoard(w, ev, board) })
	}

	pub, err := publish.New(ctx, publishConfigFromEnv())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid publish configuration", err)
	}
	url, err := pub.PublishBoard(ctx, board)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to publish leaderboard", err)
	}
	out.VerboseLog("published %s", url)

	return out.Success(publishedBoard{Board: board, URL: url}, func(w io.Writer) {
		printBoard(w, ev, board)
		fmt.Fprintf(w, "\n✓ Published %s\n", url)
	})
}

// publishedBoard is the JSON output of results --publish.
type publishedBoard struct {
	leaderboard.Board
	URL string `json:"url"`
}

func publishConfigFromEnv() publish.Config {
	return publish.Config{
		Bucket:          os.Getenv(EnvS3Bucket),
		Prefix:          os.Getenv(EnvS3Prefix),
		Endpoint:        os.Getenv(EnvS3Endpoint),
		Region:          os.Getenv(EnvS3Region),
		AccessKeyID:     os.Getenv(EnvS3AccessKeyID),
		SecretAccessKey: os.Getenv(EnvS3SecretAccessKey),
		PublicBaseURL:   os.Getenv(EnvS3PublicURL),
	}
}

func printBoard(w io.Writer, ev event.Event, b leaderboard.Board) {
	title := b.Date
	if b.Event != "" {
		title = b.Event + ", " + b.Date
	}
	fmt.Fprintln(w, title)

	if b.Top == nil {
		fmt.Fprintln(w, "No scores posted.")
		return
	}
	fmt.Fprintf(w, "Top: %s (%d)\n", b.Top.Name, b.Top.FinalScore)

	for _, d := range b.Divisions {
		fmt.Fprintf(w, "\n%s\n", d.Title)
		for i, e := range d.Entries {
			fmt.Fprintf(w, "  %2d. %-24s %4d  (%d strokes, hcp %d)\n", i+1, e.Name, e.FinalScore, e.TotalStrokes, e.Handicap)
		}
	}

	if len(b.Duels) > 0 {
		fmt.Fprintln(w, "\nDuels")
		for _, d := range b.Duels {
			fmt.Fprintf(w, "  %s: %s\n", d.Name, duelLine(d))
		}
	}

	if len(b.BestOn) > 0 {
		holes := make([]string, len(ev.BestOnHoles))
		for i, h := range ev.BestOnHoles {
			holes[i] = fmt.Sprint(h)
		}
		fmt.Fprintf(w, "\nBest on (holes %s)\n", strings.Join(holes, ", "))
		for _, bo := range b.BestOn {
			names := make([]string, len(bo.Winners))
			for i, e := range bo.Winners {
				names[i] = fmt.Sprintf("%s (%+d)", e.Name, e.BestOnScore)
			}
			fmt.Fprintf(w, "  %s: %s\n", leaderboard.Title(bo.Division), strings.Join(names, ", "))
		}
	}
}

func duelLine(d leaderboard.DuelResult) string {
	switch len(d.Winners) {
	case 0:
		return "no result"
	case 1:
		return d.Winners[0].Name + " wins"
	default:
		return "tie"
	}
}
