package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/epiqlabs/epiq/internal/domain/mcmc"
	"github.com/epiqlabs/epiq/internal/synthetic"
)

func newSynthCommand() *cobra.Command {
	cfg := synthetic.DefaultConfig()
	var (
		draws  int
		tune   int
		chains int
		seed   int64
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate a synthetic show and check posterior calibration",
		Long: "Generate episode ratings from known hierarchical ground truth,\n" +
			"fit the model on them and report how well the posterior recovers\n" +
			"the generating values.",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := synthetic.RunCalibration(cmd.Context(), cfg,
				mcmc.WithDraws(draws),
				mcmc.WithTune(tune),
				mcmc.WithChains(chains),
				mcmc.WithSeed(seed),
			)
			if err != nil {
				return err
			}

			rows := []table.Row{
				{"episodes", report.Episodes},
				{"mean abs error", fmt.Sprintf("%.3f", report.MeanAbsErr)},
				{"max abs error", fmt.Sprintf("%.3f", report.MaxAbsErr)},
				{"94% interval coverage", fmt.Sprintf("%.1f%%", report.Coverage*100)},
				{"show mean error", fmt.Sprintf("%.3f", report.ShowMeanErr)},
				{"sampler elapsed", report.SamplerElapsed.Round(time.Millisecond)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(table.Row{"metric", "value"}, rows, 2))

			for _, warn := range report.Warnings {
				fmt.Fprintf(cmd.OutOrStdout(), "warning (%s): %s\n", warn.Kind, warn.Message)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&cfg.Seasons, "seasons", cfg.Seasons, "seasons to generate")
	cmd.Flags().IntVar(&cfg.EpisodesPerSeason, "episodes", cfg.EpisodesPerSeason, "episodes per season")
	cmd.Flags().Int64Var(&cfg.Seed, "gen-seed", cfg.Seed, "generation RNG seed")
	cmd.Flags().Float64Var(&cfg.MissingFraction, "missing", cfg.MissingFraction, "fraction of episodes without a rating")
	cmd.Flags().IntVar(&draws, "draws", 1000, "retained posterior draws per chain")
	cmd.Flags().IntVar(&tune, "tune", 500, "warmup iterations per chain")
	cmd.Flags().IntVar(&chains, "chains", 2, "independent sampling chains")
	cmd.Flags().Int64Var(&seed, "seed", 42, "sampler RNG seed")
	return cmd
}
