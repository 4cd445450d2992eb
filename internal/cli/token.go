package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/toko-apparel/internal/auth"
)

func newTokenCommand() *cobra.Command {
	var (
		secret   string
		issuer   string
		audience string
		subject  string
		roles    []string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a session token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if subject == "" {
				return errors.New("--subject is required")
			}
			v, err := auth.NewVerifier(auth.Config{Secret: secret, Issuer: issuer, Audience: audience})
			if err != nil {
				return err
			}
			token, err := v.Issue(subject, roles, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 secret (default $JWT_SECRET)")
	cmd.Flags().StringVar(&issuer, "issuer", os.Getenv("JWT_ISSUER"), "iss claim")
	cmd.Flags().StringVar(&audience, "audience", os.Getenv("JWT_AUDIENCE"), "aud claim")
	cmd.Flags().StringVar(&subject, "subject", "", "user id (sub claim)")
	cmd.Flags().StringSliceVar(&roles, "role", []string{"customer"}, "roles claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
