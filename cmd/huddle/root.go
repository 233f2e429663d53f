package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/huddle-realtime/internal/config"
	"github.com/vovakirdan/huddle-realtime/internal/log"
)

type rootOptions struct {
	configPath string
	logLevel   string

	cfg    config.Config
	logger *zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "huddle",
		Short:         "Realtime chat client and development server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./huddle.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error, off)")

	cmd.AddCommand(
		newChatCmd(opts),
		newHistoryCmd(opts),
		newServeCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	bootstrap := log.New(o.logLevel)

	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	o.cfg = cfg
	o.logger = log.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel)
	o.logger.Debug().Str("config", path).Msg("configuration loaded")
	return nil
}
