// Package cli implements brickctl, an offline front end to the ownership
// engine. Inventories and owned quantities live in JSON files.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	Inventory string
	Owned     string
	SetNumber string
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "brickctl",
		Short: "brickctl - track owned LEGO parts",
		Long:  "Track owned parts of a LEGO set, keeping minifigures and their subparts consistent.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Inventory, "inventory", "i", "", "inventory rows JSON file")
	cmd.PersistentFlags().StringVarP(&opts.Owned, "owned", "o", "", "owned quantities JSON file (created on first write)")
	cmd.PersistentFlags().StringVar(&opts.SetNumber, "set", "", "set number (defaults to the inventory's)")

	cmd.AddCommand(NewTotalsCommand(opts))
	cmd.AddCommand(NewRowsCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewMarkCompleteCommand(opts))
	cmd.AddCommand(NewMarkMissingCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewOutboxCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
