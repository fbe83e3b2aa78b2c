package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/entity-history/backend/internal/backend"
	"github.com/entity-history/backend/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Env carries what every command needs. Open defaults to backend.Open.
type Env struct {
	Config *config.Config
	Log    *zap.Logger
	Open   func(ctx context.Context) (*backend.Backend, error)
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	*Env
	Format  string // "json" | "text"
	Backend string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the scdctl root command.
func NewRootCommand(env *Env) *cobra.Command {
	opts := &RootOptions{Env: env}
	if opts.Open == nil {
		opts.Open = func(ctx context.Context) (*backend.Backend, error) {
			return backend.Open(ctx, opts.Config, opts.Log)
		}
	}

	cmd := &cobra.Command{
		Use:   "scdctl",
		Short: "Operate the entity history store",
		Long:  "Operator tooling for the versioned entity store: schema migrations, reference types, exports and invariant checks.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Backend != "" {
				opts.Config.StoreBackend = opts.Backend
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "override STORE_BACKEND (postgres|memory)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTypesCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func (o *RootOptions) output(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// withBackend opens the backend for the duration of fn.
func (o *RootOptions) withBackend(ctx context.Context, fn func(*backend.Backend) error) error {
	be, err := o.Open(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store backend", err)
	}
	defer be.Close()
	return fn(be)
}
