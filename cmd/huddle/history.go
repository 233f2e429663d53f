package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/huddle-realtime/internal/realtime"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		token  string
		roomID int64
		page   int
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print one page of a room's history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if roomID <= 0 {
				return errors.New("--room is required")
			}
			if token == "" {
				token = root.cfg.Realtime.Token
			}
			if limit <= 0 {
				limit = root.cfg.API.HistoryPageSize
			}

			res, err := newHistoryClient(root.cfg, token, root).Fetch(cmd.Context(), roomID, page, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i := len(res.Messages) - 1; i >= 0; i-- {
				printMessage(out, realtime.ToUIMessage(res.Messages[i]))
			}
			fmt.Fprintf(out, "* page %d of %d (%d messages)\n", res.Page, res.TotalPages, res.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "bearer token (overrides realtime.token)")
	cmd.Flags().Int64Var(&roomID, "room", 0, "room id")
	cmd.Flags().IntVar(&page, "page", 1, "page number, 1 is the newest")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (defaults to api.history_page_size)")
	return cmd
}
