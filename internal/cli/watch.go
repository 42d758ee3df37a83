package cli

import (
	"context"
	"time"

	"github.com/prudhvinik1/lansync/internal/livesync"
	"github.com/prudhvinik1/lansync/internal/logger"
	"github.com/spf13/cobra"
)

type WatchOptions struct {
	*RootOptions
	Filter    string
	Sort      string
	Expand    string
	PerPage   int
	SkipFetch bool
	Once      bool
	Duration  time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <collection>",
		Short: "Mirror a collection and print every change",
		Long: `Run a collection sync engine: fetch the collection, subscribe to its
realtime events and print each applied event until interrupted.

Examples:
  lansyncctl watch devices
  lansyncctl watch sessions --filter 'status = "Active"' --format json
  lansyncctl watch snacks --once`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "PocketBase filter expression for the initial fetch")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort expression for the initial fetch")
	cmd.Flags().StringVar(&opts.Expand, "expand", "", "relations to expand")
	cmd.Flags().IntVar(&opts.PerPage, "per-page", 200, "page size for the initial fetch")
	cmd.Flags().BoolVar(&opts.SkipFetch, "skip-fetch", false, "subscribe only, without the initial fetch")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "exit after the first settled view")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command, collection string) error {
	ctx, cancel := withDuration(cmd.Context(), opts.Duration)
	defer cancel()

	client, err := opts.connect(ctx)
	if err != nil {
		return err
	}

	out := newPrinter(cmd.OutOrStdout(), opts.Format)
	s := livesync.NewCollectionSync(livesync.NewPocketBaseRemote(client), collection, livesync.Options{
		Query: livesync.Query{
			Filter:  opts.Filter,
			Sort:    opts.Sort,
			Expand:  opts.Expand,
			PerPage: opts.PerPage,
			All:     true,
		},
		SkipInitialFetch: opts.SkipFetch,
		Logger:           logger.Named("livesync"),
		OnEvent:          out.event,
	})
	s.Start(ctx)
	defer s.Stop()

	var last statusLine
	printed := false
	return follow(ctx, s.Changes(), opts.Once, func() (bool, error) {
		v := s.View()
		if v.Loading {
			return false, nil
		}
		st := statusOf(collection, v)
		if st.State != last.State || st.Error != last.Error {
			out.status(st)
			last = st
		}
		if !printed && v.Err == nil {
			out.records(v.Records)
			printed = true
		}
		return true, v.Err
	})
}

// follow calls report after each change notification until ctx ends. With
// once it returns after the first settled report, turning a recorded error
// into ExitFailure.
func follow(ctx context.Context, changes <-chan struct{}, once bool, report func() (settled bool, err error)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
		}

		settled, err := report()
		if !settled || !once {
			continue
		}
		if err != nil {
			return WrapExitError(ExitFailure, "sync failed", err)
		}
		return nil
	}
}

func withDuration(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
