package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/brickparty/brick-party/internal/core/domain"
	"github.com/brickparty/brick-party/internal/core/service"
)

type ChangeResult struct {
	Writes []domain.OwnedWrite `json:"writes"`
	Totals service.Totals      `json:"totals"`
}

type SetOptions struct {
	*RootOptions
	NoCascade bool
}

func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <key> <quantity>",
		Short: "Set the owned quantity of one row",
		Long: `Set the owned quantity of one row and update related minifig rows.

Setting a minifig (fig:<id>) updates its subparts; setting a subpart updates
the minifigs that use it. The quantity is clamped to what the set requires.

Examples:
  brickctl set -i 75000-1.json -o owned.json fig:sw0001 2
  brickctl set -i 75000-1.json -o owned.json 3626cpr0001:14 1 --no-cascade`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "quantity must be an integer", err)
			}
			return runChange(opts.RootOptions, cmd, func(r *service.Resolver) ([]domain.OwnedWrite, error) {
				return r.HandleOwnedChange(args[0], quantity, service.ChangeOptions{SkipCascade: opts.NoCascade})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.NoCascade, "no-cascade", false, "only write the given row")

	return cmd
}

func NewMarkCompleteCommand(rootOpts *RootOptions) *cobra.Command {
	return bulkCommand(rootOpts, "mark-complete", "Mark rows as fully owned",
		(*service.Resolver).MarkAllComplete)
}

func NewMarkMissingCommand(rootOpts *RootOptions) *cobra.Command {
	return bulkCommand(rootOpts, "mark-missing", "Mark rows as not owned",
		(*service.Resolver).MarkAllMissing)
}

func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Forget every owned quantity of the set",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange(rootOpts, cmd, func(r *service.Resolver) ([]domain.OwnedWrite, error) {
				return r.ClearAll(), nil
			})
		},
	}
}

func bulkCommand(rootOpts *RootOptions, name, short string, op func(*service.Resolver, []string) []domain.OwnedWrite) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   name + " [key...]",
		Short: short,
		Long: short + ` without touching related rows.

Name the rows to change, or pass --all for every row of the set.

Examples:
  brickctl ` + name + ` -i 75000-1.json -o owned.json 970c00:1 973pr0001:1
  brickctl ` + name + ` -i 75000-1.json -o owned.json --all`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case all && len(args) > 0:
				return NewExitError(ExitCommandError, "give keys or --all, not both")
			case !all && len(args) == 0:
				return NewExitError(ExitCommandError, "no keys given (use --all for every row)")
			}
			return runChange(rootOpts, cmd, func(r *service.Resolver) ([]domain.OwnedWrite, error) {
				keys := args
				if all {
					keys = r.Index().Keys()
				}
				return op(r, keys), nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "change every row of the set")

	return cmd
}

func runChange(opts *RootOptions, cmd *cobra.Command, change func(*service.Resolver) ([]domain.OwnedWrite, error)) error {
	ws, err := loadWorkspace(opts)
	if err != nil {
		return err
	}

	writes, err := change(ws.resolver)
	if err != nil {
		if errors.Is(err, service.ErrUnknownKey) {
			return WrapExitError(ExitCommandError, "no such inventory row", err)
		}
		return err
	}
	if err := ws.save(); err != nil {
		return err
	}

	out := opts.formatter(cmd)
	out.VerboseLog("%d writes", len(writes))
	if writes == nil {
		writes = []domain.OwnedWrite{}
	}
	result := ChangeResult{Writes: writes, Totals: ws.resolver.Projection().Totals()}
	return out.Success(result, func(w io.Writer) {
		for _, wr := range writes {
			fmt.Fprintf(w, "%s: %d -> %d\n", wr.Key, wr.Previous, wr.Quantity)
		}
		printTotals(w, ws.resolver.SetNumber(), result.Totals)
	})
}
