package cli

import (
	"fmt"
	"io"

	"github.com/entity-history/backend/internal/backend"
	"github.com/entity-history/backend/internal/services"
	"github.com/spf13/cobra"
)

func NewVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check interval invariants across all versions",
		Long: `Scan every entity and detail version and report overlapping intervals,
gaps, duplicate current rows and orphaned details.

Exit codes:
  0 - no violations
  1 - violations found
  2 - command error`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd.Context(), func(be *backend.Backend) error {
				report, err := services.NewVerifierService(be.Store, opts.Log).Run(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "verify", err)
				}
				err = opts.output(cmd).Success(report, func(w io.Writer) {
					fmt.Fprintf(w, "checked %d entities, %d versions\n", report.Entities, report.Versions)
					for _, v := range report.Violations {
						fmt.Fprintf(w, "%s %s %s %s: %s\n", v.Check, v.Stream, v.EntityUID, v.DetailType, v.Message)
					}
				})
				if err != nil {
					return err
				}
				if !report.OK() {
					return NewExitError(ExitFailure, fmt.Sprintf("%d invariant violations", len(report.Violations)))
				}
				return nil
			})
		},
	}
}
