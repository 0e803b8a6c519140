package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tg-bot-italian/internal/config"
	"tg-bot-italian/internal/infra/web"
)

func newAdminTokenCmd(flags *rootFlags) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Mint a bearer token for the /admin inspection API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load(config.OneShot())
			if err != nil {
				return err
			}
			if cfg.Admin.Secret == "" {
				return errors.New("admin.secret (or ADMIN_SECRET) is not set")
			}
			tok, err := web.NewAuthManager(cfg.Admin.Secret, cfg.Admin.TokenTTL).Mint(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "ops", "token subject, shown in admin request logs")
	return cmd
}
