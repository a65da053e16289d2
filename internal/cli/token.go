package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dayplan/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		tenant  string
		role    string
		subject string
		secret  string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 bearer token for the API's hmac auth mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("AUTH_HMAC_SECRET")
			}
			if secret == "" {
				return errors.New("a secret is required (--secret or AUTH_HMAC_SECRET)")
			}
			switch role {
			case auth.RoleAdmin, auth.RolePlanner, auth.RoleViewer:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			now := time.Now()
			claims := map[string]any{"tenant": tenant, "role": role, "iat": now.Unix()}
			if subject != "" {
				claims["sub"] = subject
			}
			if ttl > 0 {
				claims["exp"] = now.Add(ttl).Unix()
			}
			tok, err := auth.SignHS256(secret, claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&tenant, "tenant", "t_demo", "tenant claim")
	f.StringVar(&role, "role", auth.RolePlanner, "role claim: admin, planner or viewer")
	f.StringVar(&subject, "sub", "", "subject claim")
	f.StringVar(&secret, "secret", "", "shared HMAC secret (default $AUTH_HMAC_SECRET)")
	f.DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime; 0 for no expiry")
	return cmd
}
