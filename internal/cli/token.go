package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/entity-history/backend/internal/auth"
	"github.com/entity-history/backend/internal/rbac"
	"github.com/spf13/cobra"
)

func NewTokenCommand(opts *RootOptions) *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, r := range roles {
				if !rbac.IsKnownRole(r) {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown role %q", r))
				}
			}
			if ttl <= 0 {
				ttl = opts.Config.JWTExpiration
			}
			tok, err := auth.GenerateJWT(opts.Config.JWTSecret, subject, roles, ttl)
			if err != nil {
				return WrapExitError(ExitCommandError, "sign token", err)
			}
			data := map[string]any{"token": tok, "subject": subject, "roles": roles, "expires_in": ttl.String()}
			return opts.output(cmd).Success(data, func(w io.Writer) {
				fmt.Fprintln(w, tok)
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "actor recorded in the audit trail (required)")
	_ = cmd.MarkFlagRequired("subject")
	cmd.Flags().StringSliceVar(&roles, "role", []string{rbac.RoleReader}, "role to grant (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_EXPIRATION_HOURS)")
	return cmd
}
