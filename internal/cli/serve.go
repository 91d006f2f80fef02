package cli

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/discroundup/roundup/internal/dispatch"
	"github.com/discroundup/roundup/internal/feed"
	"github.com/discroundup/roundup/internal/ingest"
	"github.com/discroundup/roundup/internal/results"
	"github.com/discroundup/roundup/internal/rostersync"
	"github.com/discroundup/roundup/internal/server"
	"github.com/discroundup/roundup/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database       string
	Addr           string
	Token          string
	SyncURL        string
	ResolveTimeout time.Duration
	RosterAPI      string
	RosterToken    string
	RosterEvery    time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the results API, leaderboard and live ingestion",
		Long: `Serve the results REST API over a local database.

Live ingestion started with POST /ingest/ writes its records and run
summary to the same database. GET /ingest/stream relays progress as
server-sent events.

With --roster-api the player list of that results API is mirrored into
the database now and then every --roster-every.

Examples:
  roundup serve --db ./roundup.db --token $TOKEN
  ROUNDUP_ADDR=:9000 roundup serve --db ./roundup.db
  roundup serve --db ./roundup.db --roster-api https://league.example.com --roster-every 30m`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (env "+EnvDB+")")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (env "+EnvAddr+", default "+server.DefaultAddr+")")
	cmd.Flags().StringVar(&opts.Token, "token", "", "token required on write routes (env "+EnvToken+")")
	cmd.Flags().StringVar(&opts.SyncURL, "sync-url", "", "sync service endpoint (env "+EnvSyncURL+")")
	cmd.Flags().DurationVar(&opts.ResolveTimeout, "resolve-timeout", 0, "submit entries without an owner after this time (0 waits forever)")
	cmd.Flags().StringVar(&opts.RosterAPI, "roster-api", "", "results API to mirror players from")
	cmd.Flags().StringVar(&opts.RosterToken, "roster-token", "", "token for --roster-api (env "+EnvToken+")")
	cmd.Flags().DurationVar(&opts.RosterEvery, "roster-every", rostersync.DefaultInterval, "roster sync interval")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	db := fromEnv(opts.Database, EnvDB, "")
	if db == "" {
		return NewExitError(ExitCommandError, "--db or "+EnvDB+" is required")
	}
	st, err := store.Open(db)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	f := feed.New()
	defer f.Close()

	manager := ingest.NewManager(ingest.Config{
		Dispatcher: dispatch.New(st),
		Publisher:  f,
		Options: ingest.Options{
			SyncURL:        fromEnv(opts.SyncURL, EnvSyncURL, ingest.DefaultSyncURL),
			ResolveTimeout: opts.ResolveTimeout,
		},
	}, func(sum ingest.Summary, err error) {
		if werr := st.WriteRun(context.Background(), sum); werr != nil {
			slog.Error("failed to record run", "run_id", sum.RunID, "error", werr)
		}
		if err != nil {
			slog.Warn("ingestion ended", "run_id", sum.RunID, "card_id", sum.CardID, "phase", sum.Phase, "error", err)
			return
		}
		slog.Info("ingestion ended", "run_id", sum.RunID, "card_id", sum.CardID, "phase", sum.Phase)
	})

	srv := server.New(server.Config{
		Store:   st,
		Manager: manager,
		Feed:    f,
		Token:   fromEnv(opts.Token, EnvToken, ""),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.RosterAPI != "" {
		client, err := results.New(opts.RosterAPI, fromEnv(opts.RosterToken, EnvToken, ""))
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --roster-api", err)
		}
		worker := rostersync.New(client, st, opts.RosterEvery, slog.Default())
		if err := worker.Start(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to start roster sync", err)
		}
		defer worker.Stop()
	}

	errC := make(chan error, 1)
	go func() {
		errC <- srv.Listen(fromEnv(opts.Addr, EnvAddr, server.DefaultAddr))
	}()

	select {
	case err := <-errC:
		if err != nil {
			return WrapExitError(ExitCommandError, "server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	manager.Cancel()
	manager.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	return nil
}
