package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/epiqlabs/epiq/internal/adapters/csvio"
	"github.com/epiqlabs/epiq/internal/adapters/repository/episodedb"
	"github.com/epiqlabs/epiq/internal/adapters/tmdb"
)

func newFetchCommand(opts *rootOptions) *cobra.Command {
	var (
		apiKey   string
		baseURL  string
		language string
		csvOut   string
	)

	cmd := &cobra.Command{
		Use:   "fetch <show>",
		Short: "Fetch a show's episodes from TMDB into the episode DB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := args[0]

			if apiKey == "" {
				apiKey = os.Getenv("TMDB_API_KEY")
			}
			client, err := tmdb.New(apiKey, baseURL, language)
			if err != nil {
				return err
			}

			details, records, err := client.FetchEpisodes(ctx, query)
			if err != nil {
				return fmt.Errorf("fetch %q: %w", query, err)
			}

			if err := os.MkdirAll(opts.dataDir, 0o755); err != nil {
				return err
			}
			store, err := episodedb.Open(ctx, filepath.Join(opts.dataDir, "episodes.db"))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SaveShow(ctx, details.Name, details.ID, records); err != nil {
				return fmt.Errorf("save %q: %w", details.Name, err)
			}

			if csvOut != "" {
				f, err := os.Create(csvOut)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				if err := csvio.Write(f, records, csvio.DefaultFields()); err != nil {
					return fmt.Errorf("write csv: %w", err)
				}
			}

			perSeason := map[int]int{}
			seasons := []int{}
			for _, rec := range records {
				if perSeason[rec.Season] == 0 {
					seasons = append(seasons, rec.Season)
				}
				perSeason[rec.Season]++
			}
			rows := make([]table.Row, 0, len(seasons))
			for _, s := range seasons {
				rows = append(rows, table.Row{s, perSeason[s]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (tmdb %d): %d episodes\n", details.Name, details.ID, len(records))
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(table.Row{"season", "episodes"}, rows, 1, 2))
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "TMDB API key (defaults to $TMDB_API_KEY)")
	cmd.Flags().StringVar(&baseURL, "base-url", "https://api.themoviedb.org/3", "TMDB API base URL")
	cmd.Flags().StringVar(&language, "language", "en-US", "TMDB response language")
	cmd.Flags().StringVar(&csvOut, "csv", "", "also write the fetched episodes to this CSV file")
	return cmd
}
