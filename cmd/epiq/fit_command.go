package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/epiqlabs/epiq/internal/adapters/csvio"
	"github.com/epiqlabs/epiq/internal/adapters/repository/episodedb"
	"github.com/epiqlabs/epiq/internal/domain/bayes"
	"github.com/epiqlabs/epiq/internal/domain/dataset"
	"github.com/epiqlabs/epiq/internal/domain/infer"
	"github.com/epiqlabs/epiq/internal/domain/mcmc"
)

func newFitCommand(opts *rootOptions) *cobra.Command {
	var (
		csvIn        string
		show         string
		draws        int
		tune         int
		chains       int
		targetAccept float64
		seed         int64
		lower        float64
		upper        float64
		top          int
	)

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Run a local fit from a CSV file or the episode DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			records, err := loadRecords(cmd, opts, csvIn, show)
			if err != nil {
				return err
			}

			ds, err := dataset.New(records)
			if err != nil {
				return err
			}
			graph, err := bayes.Build(ds, bayes.WithBounds(lower, upper))
			if err != nil {
				return err
			}

			sampler := mcmc.New(
				mcmc.WithDraws(draws),
				mcmc.WithTune(tune),
				mcmc.WithChains(chains),
				mcmc.WithTargetAccept(targetAccept),
				mcmc.WithSeed(seed),
			)
			started := time.Now()
			trace, err := sampler.Run(ctx, graph)
			if err != nil {
				return err
			}
			result, err := infer.New(ds, graph, trace)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fitted %d episodes in %d seasons (%d observed) in %s\n",
				ds.Len(), ds.SeasonCount(), ds.ObservedCount(), time.Since(started).Round(time.Millisecond))

			hyper := result.Hyper()
			hyperRows := []table.Row{
				statRow("show mean", hyper.ShowMean),
				statRow("season spread", hyper.SeasonSpread),
				statRow("episode spread", hyper.EpisodeSpread),
			}
			fmt.Fprintln(out, renderTable(
				table.Row{"parameter", "mean", "sd", "3%", "97%", "r_hat", "ess"},
				hyperRows, 2, 3, 4, 5, 6, 7))

			episodes := result.Top(top)
			epRows := make([]table.Row, 0, len(episodes))
			for i, ep := range episodes {
				epRows = append(epRows, table.Row{
					i + 1, ep.Season, ep.Episode,
					fmt.Sprintf("%.2f", ep.Quality.Mean),
					fmt.Sprintf("%.2f ... %.2f", ep.Quality.Q3, ep.Quality.Q97),
					ep.Votes,
				})
			}
			fmt.Fprintln(out, renderTable(
				table.Row{"#", "season", "episode", "quality", "94% interval", "votes"},
				epRows, 1, 2, 3, 4, 6))

			for _, warn := range result.Warnings() {
				fmt.Fprintf(out, "warning (%s): %s\n", warn.Kind, warn.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&csvIn, "csv", "", "fit from this CSV file instead of the episode DB")
	cmd.Flags().StringVar(&show, "show", "", "fit this show from the episode DB")
	cmd.Flags().IntVar(&draws, "draws", 2000, "retained posterior draws per chain")
	cmd.Flags().IntVar(&tune, "tune", 1000, "warmup iterations per chain")
	cmd.Flags().IntVar(&chains, "chains", 4, "independent sampling chains")
	cmd.Flags().Float64Var(&targetAccept, "target-accept", 0.9, "dual-averaging target acceptance")
	cmd.Flags().Int64Var(&seed, "seed", 42, "sampler RNG seed")
	cmd.Flags().Float64Var(&lower, "lower", -0.5, "rating scale lower bound")
	cmd.Flags().Float64Var(&upper, "upper", 10.5, "rating scale upper bound")
	cmd.Flags().IntVar(&top, "top", 10, "episodes to show in the ranking table")
	return cmd
}

func statRow(label string, st mcmc.Stat) table.Row {
	return table.Row{
		label,
		fmt.Sprintf("%.3f", st.Mean),
		fmt.Sprintf("%.3f", st.SD),
		fmt.Sprintf("%.3f", st.Q3),
		fmt.Sprintf("%.3f", st.Q97),
		fmt.Sprintf("%.3f", st.RHat),
		fmt.Sprintf("%.0f", st.ESS),
	}
}

// loadRecords reads episode rows from a CSV file or the episode DB.
func loadRecords(cmd *cobra.Command, opts *rootOptions, csvIn, show string) ([]dataset.Record, error) {
	switch {
	case csvIn != "" && show != "":
		return nil, fmt.Errorf("--csv and --show are mutually exclusive")
	case csvIn != "":
		f, err := os.Open(csvIn)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		return csvio.Read(f, csvio.DefaultFields())
	case show != "":
		store, err := episodedb.Open(cmd.Context(), filepath.Join(opts.dataDir, "episodes.db"))
		if err != nil {
			return nil, err
		}
		defer func() { _ = store.Close() }()
		_, records, err := store.LoadShow(cmd.Context(), show)
		return records, err
	default:
		return nil, fmt.Errorf("one of --csv or --show is required")
	}
}
