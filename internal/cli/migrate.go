package cli

import (
	"fmt"
	"io"

	"github.com/entity-history/backend/internal/config"
	"github.com/entity-history/backend/internal/db"
	"github.com/spf13/cobra"
)

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if opts.Config.StoreBackend != config.BackendPostgres {
				return NewExitError(ExitCommandError, "migrations require the postgres backend")
			}
			return nil
		},
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.RunMigrations(opts.Config.PostgresDSN, opts.Log); err != nil {
				return WrapExitError(ExitCommandError, "migrate up", err)
			}
			return printVersion(opts, cmd)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.RollbackMigrations(opts.Config.PostgresDSN, steps, opts.Log); err != nil {
				return WrapExitError(ExitCommandError, "migrate down", err)
			}
			return printVersion(opts, cmd)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVersion(opts, cmd)
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func printVersion(opts *RootOptions, cmd *cobra.Command) error {
	v, dirty, err := db.MigrationVersion(opts.Config.PostgresDSN, opts.Log)
	if err != nil {
		return WrapExitError(ExitCommandError, "read schema version", err)
	}
	data := map[string]any{"version": v, "dirty": dirty}
	return opts.output(cmd).Success(data, func(w io.Writer) {
		fmt.Fprintf(w, "schema version %d (dirty=%t)\n", v, dirty)
	})
}
