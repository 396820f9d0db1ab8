package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"example.com/attendance/internal/auth"
	"example.com/attendance/internal/auth/bearer"
	"example.com/attendance/internal/config"
)

// NewTokenCommand creates the token command, which signs development tokens
// with JWT_SECRET and JWT_ISSUER.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(subject, scopes, ttl, time.Now(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "user id carried as the token subject")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeAttendanceReadOwn, auth.ScopeAttendanceWrite}, "granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func runToken(subject string, scopes []string, ttl time.Duration, now time.Time, out io.Writer) error {
	cfg := config.Load()
	token, err := bearer.Sign(bearer.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, subject, scopes, ttl, now)
	if err != nil {
		return WrapExitError(ExitFailure, "sign token", err)
	}
	fmt.Fprintln(out, token)
	return nil
}
