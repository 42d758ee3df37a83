package cli

import (
	"time"

	"github.com/prudhvinik1/lansync/internal/livesync"
	"github.com/prudhvinik1/lansync/internal/logger"
	"github.com/spf13/cobra"
)

type GetOptions struct {
	*RootOptions
	Expand   string
	Once     bool
	Duration time.Duration
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Follow a single record",
		Long: `Run a single-record sync engine and print the record every time it
changes. A deleted or missing record prints as <absent>.

Examples:
  lansyncctl get devices abc123def456789
  lansyncctl get customers abc123def456789 --once --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Expand, "expand", "", "relations to expand")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "exit after the first settled view")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")

	return cmd
}

func runGet(opts *GetOptions, cmd *cobra.Command, collection, id string) error {
	ctx, cancel := withDuration(cmd.Context(), opts.Duration)
	defer cancel()

	client, err := opts.connect(ctx)
	if err != nil {
		return err
	}

	out := newPrinter(cmd.OutOrStdout(), opts.Format)
	s := livesync.NewRecordSync(livesync.NewPocketBaseRemote(client), collection, id, livesync.Options{
		Query:  livesync.Query{Expand: opts.Expand},
		Logger: logger.Named("livesync"),
	})
	s.Start(ctx)
	defer s.Stop()

	var last statusLine
	return follow(ctx, s.Changes(), opts.Once, func() (bool, error) {
		v := s.View()
		if v.Loading {
			return false, nil
		}
		st := statusLine{Collection: collection, ID: id, State: v.State.String()}
		if v.Record != nil {
			st.Count = 1
		}
		if v.Err != nil {
			st.Error = v.Err.Error()
		}
		if st != last {
			out.status(st)
			last = st
		}
		if v.Err == nil {
			out.record(v.Record)
		}
		return true, v.Err
	})
}
