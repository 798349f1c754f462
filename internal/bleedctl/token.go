package bleedctl

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/founderbleed/bleed/internal/config"
	"github.com/founderbleed/bleed/pkg/token"
)

func newTokenCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token from the server configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return fmt.Errorf("%w: --user is required", ErrUsage)
			}
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("%w: BLEED_JWT_SECRET is not set", ErrUsage)
			}
			m, err := token.NewManager(cfg.JWTSecret, cfg.TokenTTL())
			if err != nil {
				return err
			}
			raw, err := m.Issue(userID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), raw)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed in the token")
	return cmd
}
