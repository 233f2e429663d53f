package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/huddle-realtime/internal/app"
	"github.com/vovakirdan/huddle-realtime/internal/auth"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	var (
		userID   int64
		username string
		fullName string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token accepted by the development server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if root.cfg.Server.JWTSecret == "" {
				return errors.New("server.jwt_secret is not configured")
			}
			if userID <= 0 {
				return errors.New("--user-id is required")
			}
			token, err := auth.GenerateToken(app.JWTConfig(root.cfg.Server), userID, username, fullName)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id carried by the token")
	cmd.Flags().StringVar(&username, "username", "", "username carried by the token")
	cmd.Flags().StringVar(&fullName, "full-name", "", "display name carried by the token")
	return cmd
}
