package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"

	"github.com/brickparty/brick-party/internal/adapter/storage"
	"github.com/brickparty/brick-party/internal/core/domain"
	"github.com/brickparty/brick-party/internal/core/service"
	"github.com/brickparty/brick-party/internal/port"
)

type OutboxOptions struct {
	*RootOptions
	Path     string
	MySQLDSN string
	Limit    int
}

type OutboxReplayResult struct {
	Replayed  int `json:"replayed"`
	Remaining int `json:"remaining"`
}

func NewOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OutboxOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect or replay owned changes that could not reach cloud storage",
	}
	cmd.PersistentFlags().StringVar(&opts.Path, "outbox", "brickparty-outbox.db", "path to SQLite outbox")
	cmd.PersistentFlags().IntVar(&opts.Limit, "limit", 500, "maximum changes to read")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List pending outbox changes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutboxList(opts, cmd)
		},
	}

	replay := &cobra.Command{
		Use:   "replay",
		Short: "Write pending outbox changes to MySQL",
		Long: `Write pending outbox changes to MySQL, oldest first.

Exit codes:
  0 - Outbox drained
  1 - Some changes are still failing
  2 - Command error (outbox or database unreachable)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := sql.Open("mysql", opts.MySQLDSN)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open mysql", err)
			}
			defer db.Close()
			if err := db.PingContext(commandContext(cmd)); err != nil {
				return WrapExitError(ExitCommandError, "failed to connect mysql", err)
			}
			return runOutboxReplay(opts, cmd, storage.NewMySQLAdapter(db))
		},
	}
	replay.Flags().StringVar(&opts.MySQLDSN, "mysql-dsn", "root:root@tcp(localhost:3306)/brickparty?parseTime=true", "MySQL DSN")

	cmd.AddCommand(list, replay)
	return cmd
}

func runOutboxList(opts *OutboxOptions, cmd *cobra.Command) error {
	outbox, err := storage.OpenSQLiteOutbox(opts.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open outbox", err)
	}
	defer outbox.Close()

	pending, err := outbox.Pending(commandContext(cmd), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read outbox", err)
	}
	if pending == nil {
		pending = []domain.OwnedChange{}
	}

	return opts.formatter(cmd).Success(pending, func(w io.Writer) {
		if len(pending) == 0 {
			fmt.Fprintln(w, "Outbox is empty")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSET\tKEY\tQUANTITY\tATTEMPTS\tCREATED")
		for _, c := range pending {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", c.ID, c.SetNumber, c.Key, c.Quantity, c.Attempt, c.CreatedAt.UTC().Format(time.RFC3339))
		}
		tw.Flush()
	})
}

func runOutboxReplay(opts *OutboxOptions, cmd *cobra.Command, repo port.OwnedRepository) error {
	ctx := commandContext(cmd)

	outbox, err := storage.OpenSQLiteOutbox(opts.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open outbox", err)
	}
	defer outbox.Close()

	forwarder := service.NewSyncForwarder(repo, 1, service.WithOutbox(outbox))
	replayed, err := forwarder.ReplayOutbox(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	remaining, err := outbox.Pending(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read outbox", err)
	}

	result := OutboxReplayResult{Replayed: replayed, Remaining: len(remaining)}
	if err := opts.formatter(cmd).Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "replayed %d changes, %d remaining\n", result.Replayed, result.Remaining)
	}); err != nil {
		return err
	}
	if result.Remaining > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d changes still pending", result.Remaining))
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
