package cli

import (
	"github.com/prudhvinik1/lansync/internal/livesync"
	"github.com/spf13/cobra"
)

type ListOptions struct {
	*RootOptions
	Filter  string
	Sort    string
	Expand  string
	Page    int
	PerPage int
	All     bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "Fetch a collection once",
		Long: `Fetch the records of a collection once, with the same query options the
daemon passes to PocketBase.

Examples:
  lansyncctl list sessions --filter 'status = "Active"'
  lansyncctl list devices --all --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "PocketBase filter expression")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort expression, e.g. -created")
	cmd.Flags().StringVar(&opts.Expand, "expand", "", "relations to expand")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page to fetch")
	cmd.Flags().IntVar(&opts.PerPage, "per-page", 0, "page size (server default when 0)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "fetch every page")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command, collection string) error {
	ctx := cmd.Context()

	client, err := opts.connect(ctx)
	if err != nil {
		return err
	}

	records, err := livesync.NewPocketBaseRemote(client).FetchList(ctx, collection, livesync.Query{
		Filter:  opts.Filter,
		Sort:    opts.Sort,
		Expand:  opts.Expand,
		Page:    opts.Page,
		PerPage: opts.PerPage,
		All:     opts.All,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list "+collection, err)
	}

	newPrinter(cmd.OutOrStdout(), opts.Format).records(records)
	return nil
}
