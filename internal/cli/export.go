package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/brickparty/brick-party/internal/export"
)

type ExportOptions struct {
	*RootOptions
	Output string
}

func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <bricklink|rebrickable|pickabrick>",
		Short: "Export missing parts for a parts marketplace",
		Long: `Export the parts still missing from the set.

BrickLink wanted lists include whole minifigures; Rebrickable and
Pick-a-Brick lists contain loose parts only.

Examples:
  brickctl export -i 75000-1.json -o owned.json bricklink > wanted.xml
  brickctl export -i 75000-1.json -o owned.json pickabrick --out order.csv`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Output, "out", "", "write to file instead of stdout")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command, name string) error {
	target, err := export.ParseTarget(name)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid export target", err)
	}

	ws, err := loadWorkspace(opts.RootOptions)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output file", err)
		}
		defer f.Close()
		w = f
	}

	skipped, err := export.Write(w, target, ws.resolver.Projection().MissingParts(target.IncludesMinifigs()))
	if err != nil {
		return fmt.Errorf("export %s: %w", target, err)
	}
	if skipped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d rows without a %s identifier\n", skipped, target)
	}
	return nil
}
