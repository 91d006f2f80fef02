package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/discroundup/roundup/internal/event"
)

// NewEventCommand creates the event command group.
func NewEventCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Manage round definitions",
	}
	cmd.AddCommand(newEventLoadCommand(rootOpts))
	return cmd
}

func newEventLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{RootOptions: rootOpts}
	var check bool

	cmd := &cobra.Command{
		Use:   "load <event.cue>",
		Short: "Validate a CUE event definition and store it",
		Long: `Validate a CUE event definition against the event schema and store it
for its date, replacing any earlier definition. With --check the file is
only validated.

Exit codes:
  0 - Event is valid (and stored)
  2 - Event is invalid, or the database could not be opened`,
		Example:       `  roundup event load saturday.cue --db ./roundup.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)

			ev, err := event.Load(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid event", err)
			}

			if !check {
				st, err := opts.open()
				if err != nil {
					return err
				}
				defer st.Close()
				if err := st.PutEvent(cmd.Context(), ev); err != nil {
					return WrapExitError(ExitCommandError, "failed to store event", err)
				}
			}

			return out.Success(ev, func(w io.Writer) {
				name := ev.Name
				if name == "" {
					name = "(unnamed)"
				}
				fmt.Fprintf(w, "✓ %s %s: %d best-on hole(s), %d duel(s)\n", ev.Date, name, len(ev.BestOnHoles), len(ev.Duels))
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&check, "check", false, "validate only, do not store")
	return cmd
}
