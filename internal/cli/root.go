package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Environment variables read when the matching flag is not set.
const (
	EnvAPIURL  = "ROUNDUP_API_URL"
	EnvToken   = "ROUNDUP_TOKEN"
	EnvDB      = "ROUNDUP_DB"
	EnvSyncURL = "ROUNDUP_SYNC_URL"
	EnvAddr    = "ROUNDUP_ADDR"
)

// Environment variables configuring leaderboard publishing.
const (
	EnvS3Bucket          = "ROUNDUP_S3_BUCKET"
	EnvS3Prefix          = "ROUNDUP_S3_PREFIX"
	EnvS3Endpoint        = "ROUNDUP_S3_ENDPOINT"
	EnvS3Region          = "ROUNDUP_S3_REGION"
	EnvS3AccessKeyID     = "ROUNDUP_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "ROUNDUP_S3_SECRET_ACCESS_KEY"
	EnvS3PublicURL       = "ROUNDUP_S3_PUBLIC_URL"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	EnvFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the roundup CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "roundup",
		Short: "roundup - league scoring for disc golf",
		Long:  "Check players in, ingest live scorecards and publish round results.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if err := loadEnv(opts.EnvFile); err != nil {
				return WrapExitError(ExitCommandError, "failed to load environment", err)
			}
			configureLogging(cmd, opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file to load if present")

	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewResultsCommand(opts))
	cmd.AddCommand(NewCheckinCommand(opts))
	cmd.AddCommand(NewPlayersCommand(opts))
	cmd.AddCommand(NewEventCommand(opts))

	return cmd
}

// loadEnv loads path into the environment. A missing file is not an
// error; variables already set win over the file.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// configureLogging installs a text slog handler on stderr.
func configureLogging(cmd *cobra.Command, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// fromEnv returns value, else the environment variable key, else def.
func fromEnv(value, key, def string) string {
	if value != "" {
		return value
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
