package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/entity-history/backend/internal/backend"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/services"
	"github.com/spf13/cobra"
)

func NewTypesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "Manage entity and detail reference types",
	}

	list := &cobra.Command{
		Use:   "list <entity|detail>",
		Short: "List reference types of a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withTypes(cmd.Context(), func(svc *services.RefTypeService) error {
				types, err := svc.List(cmd.Context(), args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "list types", err)
				}
				return opts.output(cmd).Success(types, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "CODE\tNAME\tACTIVE")
					for _, t := range types {
						fmt.Fprintf(tw, "%s\t%s\t%t\n", t.Code, t.Name, t.IsActive)
					}
					_ = tw.Flush()
				})
			})
		},
	}

	var name, description string
	add := &cobra.Command{
		Use:   "add <entity|detail> <code>",
		Short: "Register a reference type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withTypes(cmd.Context(), func(svc *services.RefTypeService) error {
				t, err := svc.Create(cmd.Context(), args[0], args[1], name, description)
				if err != nil {
					return WrapExitError(ExitCommandError, "add type", err)
				}
				return printType(opts, cmd, "added", t)
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name (defaults to the code)")
	add.Flags().StringVar(&description, "description", "", "description")

	cmd.AddCommand(list, add, setActiveCommand(opts, "activate", true), setActiveCommand(opts, "deactivate", false))
	return cmd
}

func setActiveCommand(opts *RootOptions, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <entity|detail> <code>",
		Short: use + " a reference type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withTypes(cmd.Context(), func(svc *services.RefTypeService) error {
				t, err := svc.SetActive(cmd.Context(), args[0], args[1], active)
				if err != nil {
					return WrapExitError(ExitCommandError, use+" type", err)
				}
				return printType(opts, cmd, use+"d", t)
			})
		},
	}
}

func printType(opts *RootOptions, cmd *cobra.Command, verb string, t *models.RefType) error {
	return opts.output(cmd).Success(t, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s (active=%t)\n", verb, t.Code, t.IsActive)
	})
}

func (o *RootOptions) withTypes(ctx context.Context, fn func(*services.RefTypeService) error) error {
	return o.withBackend(ctx, func(be *backend.Backend) error {
		return fn(services.NewRefTypeService(be.Store, be.Publisher, o.Log))
	})
}
