package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/epiqlabs/epiq/internal/domain/infer"
)

func newPredictCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict <season> <episode>",
		Short: "Query a running server for an episode's posterior quality",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			season, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("season: %w", err)
			}
			episode, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("episode: %w", err)
			}

			var summary infer.EpisodeSummary
			url := fmt.Sprintf("%s/predict?season=%d&episode_number=%d", opts.url, season, episode)
			if err := doJSON(cmd.Context(), http.MethodGet, url, nil, &summary); err != nil {
				return err
			}

			observed := "yes"
			if !summary.Observed {
				observed = "no"
			}
			rows := []table.Row{{
				summary.Season, summary.Episode,
				fmt.Sprintf("%.3f", summary.Quality.Mean),
				fmt.Sprintf("%.3f", summary.Quality.Median),
				fmt.Sprintf("%.3f ... %.3f", summary.Quality.Q3, summary.Quality.Q97),
				observed, summary.Votes,
			}}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				table.Row{"season", "episode", "mean", "median", "94% interval", "observed", "votes"},
				rows, 1, 2, 3, 4, 7))
			return nil
		},
	}
	return cmd
}
