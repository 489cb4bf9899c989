package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

func newRegisterCommand(opts *rootOptions) *cobra.Command {
	var (
		rating float64
		votes  int64
	)

	cmd := &cobra.Command{
		Use:   "register <season> <episode>",
		Short: "Register a new episode on a running server",
		Long: "Register a new episode on a running server. Without --rating the\n" +
			"episode is unobserved and its quality is imputed from the season\n" +
			"posterior at the next fit.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			season, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("season: %w", err)
			}
			episode, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("episode: %w", err)
			}

			body := map[string]any{
				"season":         season,
				"episode_number": episode,
			}
			if cmd.Flags().Changed("rating") {
				body["vote_average"] = rating
			}
			if cmd.Flags().Changed("votes") {
				body["vote_count"] = votes
			}

			var resp struct {
				Status   string `json:"status"`
				Observed bool   `json:"observed"`
			}
			if err := doJSON(cmd.Context(), http.MethodPost, opts.url+"/episodes", body, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "s%02de%02d %s (observed=%t)\n", season, episode, resp.Status, resp.Observed)
			return nil
		},
	}

	cmd.Flags().Float64Var(&rating, "rating", 0, "observed average rating")
	cmd.Flags().Int64Var(&votes, "votes", 1, "vote count backing the rating")
	return cmd
}
