package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newWebhookCmd(flags *rootFlags) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "set-webhook",
		Short: "Register bot.webhook_url with the secret token, or remove it with --delete",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			if cfg.Bot.DryRun {
				return errors.New("set-webhook needs a real bot client; unset bot.dry_run")
			}
			_, bot, err := buildClient(cfg, log)
			if err != nil {
				return err
			}
			if remove {
				if err := bot.DeleteWebhook(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "webhook removed")
				return nil
			}
			if cfg.Bot.WebhookURL == "" {
				return errors.New("bot.webhook_url (or WEBHOOK_URL) is required")
			}
			if err := bot.RegisterWebhook(cmd.Context(), cfg.Bot.WebhookURL, cfg.Webhook.Secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "webhook set to %s\n", cfg.Bot.WebhookURL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "remove the webhook instead")
	return cmd
}
