package main

import (
	"github.com/spf13/cobra"

	"github.com/vovakirdan/huddle-realtime/internal/app"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr, dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}
			if dbPath != "" {
				cfg.DatabasePath = dbPath
			}

			application, err := app.New(cfg, root.logger)
			if err != nil {
				return err
			}

			root.logger.Info().Str("addr", cfg.Addr).Msg("starting huddle dev server")
			if err := application.Run(cmd.Context()); err != nil {
				return err
			}
			root.logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path")
	return cmd
}
