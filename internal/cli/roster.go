package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/discroundup/roundup/internal/results"
	"github.com/discroundup/roundup/internal/rostersync"
	"github.com/discroundup/roundup/internal/scorecard"
	"github.com/discroundup/roundup/internal/store"
)

// DBOptions holds the database flag shared by roster commands.
type DBOptions struct {
	*RootOptions
	Database string
}

func (o *DBOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite database (env "+EnvDB+")")
}

func (o *DBOptions) open() (*store.Store, error) {
	db := fromEnv(o.Database, EnvDB, "")
	if db == "" {
		return nil, NewExitError(ExitCommandError, "--db or "+EnvDB+" is required")
	}
	st, err := store.Open(db)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// NewPlayersCommand creates the players command group.
func NewPlayersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "players",
		Short: "Manage registered players",
	}
	cmd.AddCommand(newPlayersAddCommand(rootOpts))
	cmd.AddCommand(newPlayersListCommand(rootOpts))
	cmd.AddCommand(newPlayersSyncCommand(rootOpts))
	return cmd
}

func newPlayersAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{RootOptions: rootOpts}
	var p scorecard.Player

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Register a player or update an existing one",
		Example: `  roundup players add ada --name "Ada Lovelace" --division advanced --handicap 2
  roundup players add ada --user-id Xy12ab --db ./roundup.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			p.Username = args[0]
			saved, err := st.UpsertPlayer(cmd.Context(), p)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to save player", err)
			}
			return newFormatter(cmd, rootOpts).Success(saved, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s (%s), %s, handicap %d\n", saved.Username, saved.FullName, saved.Division, saved.Handicap)
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&p.FullName, "name", "", "full name (defaults to the username)")
	cmd.Flags().StringVar(&p.Division, "division", "", "division (default "+scorecard.DefaultDivision+")")
	cmd.Flags().IntVar(&p.Handicap, "handicap", 0, "strokes subtracted from the total")
	cmd.Flags().StringVar(&p.UserID, "user-id", "", "scoring service user id")
	return cmd
}

func newPlayersListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List registered players",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			players, err := st.Players(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list players", err)
			}
			return newFormatter(cmd, rootOpts).Success(players, func(w io.Writer) {
				if len(players) == 0 {
					fmt.Fprintln(w, "No players registered.")
					return
				}
				for _, p := range players {
					fmt.Fprintf(w, "%-16s %-24s %-14s %3d\n", p.Username, p.FullName, p.Division, p.Handicap)
				}
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

func newPlayersSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{RootOptions: rootOpts}
	var apiURL, token string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy the player list of the results API into the database",
		Long: `Fetch every player from the results API and register or update each one
in the database. Players without a username are skipped and counted as
failed.`,
		Example:       `  roundup players sync --api https://league.example.com --db ./roundup.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := results.New(fromEnv(apiURL, EnvAPIURL, results.DefaultBaseURL), fromEnv(token, EnvToken, ""))
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid results API", err)
			}
			st, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := rostersync.New(client, st, 0, slog.Default()).SyncOnce(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "roster sync failed", err)
			}
			if err := newFormatter(cmd, rootOpts).Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %d player(s) fetched, %d saved, %d failed\n", res.Fetched, res.Saved, res.Failed)
			}); err != nil {
				return err
			}
			if res.Failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d player(s) could not be saved", res.Failed))
			}
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&apiURL, "api", "", "results API base URL (env "+EnvAPIURL+")")
	cmd.Flags().StringVar(&token, "token", "", "results API token (env "+EnvToken+")")
	return cmd
}

// NewCheckinCommand creates the checkin command group.
func NewCheckinCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Check players in for a round",
	}
	cmd.AddCommand(newCheckinAddCommand(rootOpts))
	cmd.AddCommand(newCheckinListCommand(rootOpts))
	return cmd
}

func today() string {
	return time.Now().Format(scorecard.DateLayout)
}

func newCheckinAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{RootOptions: rootOpts}
	var c scorecard.Checkin

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Check a registered player in",
		Long: `Check a registered player in for a round. Division and handicap default
to the player's registration. Checking in again updates the check-in.`,
		Example:       `  roundup checkin add ada --tag 7 --date 2025-06-14`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			c.Username = args[0]
			if c.Date == "" {
				c.Date = today()
			}
			saved, err := st.CheckIn(cmd.Context(), c)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to check in", err)
			}
			return newFormatter(cmd, rootOpts).Success(saved, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s checked in for %s (%s", saved.Username, saved.Date, saved.Division)
				if saved.Tag > 0 {
					fmt.Fprintf(w, ", tag %d", saved.Tag)
				}
				fmt.Fprintln(w, ")")
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&c.Date, "date", "", "round date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&c.Division, "division", "", "division for this round")
	cmd.Flags().IntVar(&c.Handicap, "handicap", 0, "handicap for this round")
	cmd.Flags().IntVar(&c.Tag, "tag", 0, "bag tag number")
	return cmd
}

func newCheckinListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{RootOptions: rootOpts}
	var date, apiURL, token string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the check-ins for a round",
		Long: `List the check-ins for a round from the database, or from the results
API when --api is given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if date == "" {
				date = today()
			}

			var (
				checkins []scorecard.Checkin
				err      error
			)
			if apiURL != "" {
				client, cerr := results.New(apiURL, fromEnv(token, EnvToken, ""))
				if cerr != nil {
					return WrapExitError(ExitCommandError, "invalid results API", cerr)
				}
				checkins, err = client.FetchCheckins(cmd.Context(), date)
			} else {
				st, oerr := opts.open()
				if oerr != nil {
					return oerr
				}
				defer st.Close()
				checkins, err = st.Checkins(cmd.Context(), date)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list check-ins", err)
			}
			return newFormatter(cmd, rootOpts).Success(checkins, func(w io.Writer) {
				if len(checkins) == 0 {
					fmt.Fprintf(w, "No check-ins for %s.\n", date)
					return
				}
				for _, c := range checkins {
					tag := "-"
					if c.Tag > 0 {
						tag = fmt.Sprint(c.Tag)
					}
					fmt.Fprintf(w, "%4s  %-16s %-14s %3d\n", tag, c.Username, c.Division, c.Handicap)
				}
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&date, "date", "", "round date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&apiURL, "api", "", "read from this results API instead of the database")
	cmd.Flags().StringVar(&token, "token", "", "results API token (env "+EnvToken+")")
	return cmd
}
