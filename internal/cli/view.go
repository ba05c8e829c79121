package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brickparty/brick-party/internal/core/service"
)

type TotalsResult struct {
	SetNumber string         `json:"set_number"`
	Totals    service.Totals `json:"totals"`
}

func NewTotalsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "totals",
		Short:         "Show required, owned and missing part counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(rootOpts)
			if err != nil {
				return err
			}
			result := TotalsResult{
				SetNumber: ws.resolver.SetNumber(),
				Totals:    ws.resolver.Projection().Totals(),
			}
			return rootOpts.formatter(cmd).Success(result, func(w io.Writer) {
				printTotals(w, result.SetNumber, result.Totals)
			})
		},
	}
}

type RowsOptions struct {
	*RootOptions
	Filter string
	Sort   string
	Desc   bool
}

func NewRowsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RowsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rows",
		Short: "List inventory rows with owned and missing counts",
		Long: `List inventory rows.

Examples:
  brickctl rows -i 75000-1.json -o owned.json --filter missing
  brickctl rows -i 75000-1.json --sort rarity --desc`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRows(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "all", "all|missing|owned")
	cmd.Flags().StringVar(&opts.Sort, "sort", "name", "name|color|category|quantity|rarity")
	cmd.Flags().BoolVar(&opts.Desc, "desc", false, "reverse the sort")

	return cmd
}

func runRows(opts *RowsOptions, cmd *cobra.Command) error {
	mode, err := service.ParseFilterMode(opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --filter", err)
	}
	by, err := service.ParseSortKey(opts.Sort)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --sort", err)
	}

	ws, err := loadWorkspace(opts.RootOptions)
	if err != nil {
		return err
	}

	rows := ws.resolver.Projection().Rows(mode, by, opts.Desc)
	return opts.formatter(cmd).Success(rows, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tNAME\tCOLOR\tOWNED\tREQUIRED")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", r.InventoryKey, r.PartName, r.ColorName, r.EffectiveOwned, r.QuantityRequired)
		}
		tw.Flush()
	})
}

func printTotals(w io.Writer, setNumber string, t service.Totals) {
	fmt.Fprintf(w, "%s: %d/%d owned, %d missing\n", setNumber, t.OwnedTotal, t.TotalRequired, t.TotalMissing)
}
