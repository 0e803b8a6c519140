package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tg-bot-italian/internal/config"
	"tg-bot-italian/internal/infra/metrics"
	"tg-bot-italian/internal/infra/sched"
)

// greet sends the configured greeting once and waits for delivery, for use
// from an external scheduler.
func newGreetCmd(flags *rootFlags) *cobra.Command {
	var text string
	var chats []int64
	cmd := &cobra.Command{
		Use:   "greet",
		Short: "Send the greeting once to the configured chats and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load(config.OneShot())
			if err != nil {
				return err
			}
			if text != "" {
				cfg.Greeting.Text = text
			}
			if len(chats) > 0 {
				cfg.Greeting.ChatIDs = chats
			}
			if len(cfg.Greeting.ChatIDs) == 0 {
				return fmt.Errorf("no chats: set greeting.chat_ids, CHAT_ID or --chat")
			}
			metrics.MustRegister()

			client, _, err := buildClient(cfg, log)
			if err != nil {
				return err
			}
			queue, closeSink, err := buildQueue(cfg, client, &stores{}, log)
			if err != nil {
				return err
			}
			defer closeSink()

			w, err := sched.NewGreetingWorker(cfg.Greeting, queue, log)
			if err != nil {
				return err
			}
			sent, serr := w.SendOnce(cmd.Context())

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Outbound.ShutdownTimeout)
			defer cancel()
			if err := queue.Close(ctx); err != nil {
				return fmt.Errorf("delivery incomplete: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "greeting queued for %d chat(s)\n", sent)
			return serr
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "override greeting.text")
	cmd.Flags().Int64SliceVar(&chats, "chat", nil, "chat id to greet (repeatable, overrides config)")
	return cmd
}
