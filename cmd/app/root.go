package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tg-bot-italian/internal/config"
	"tg-bot-italian/internal/infra/logging"
)

type rootFlags struct {
	configPath string
	dev        bool
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "tutorbot",
		Short:         "Telegram Italian tutoring bot",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to YAML config file (optional)")
	cmd.PersistentFlags().BoolVar(&flags.dev, "dev", false, "developer mode: console logs, full payloads in logs")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newGreetCmd(flags))
	cmd.AddCommand(newWebhookCmd(flags))
	cmd.AddCommand(newAdminTokenCmd(flags))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func (f *rootFlags) load(opts ...config.LoadOption) (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.Load(f.configPath, f.dev, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		log.Warn().Msg("developer mode enabled")
	}
	return cfg, log, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", version, commit)
		},
	}
}
