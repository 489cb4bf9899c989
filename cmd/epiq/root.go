package main

import (
	"github.com/spf13/cobra"
)

// rootOptions carries flags shared by every subcommand.
type rootOptions struct {
	dataDir string
	url     string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "epiq",
		Short:         "Episode quality estimation toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "./data", "directory holding the episode DB and fit history")
	cmd.PersistentFlags().StringVar(&opts.url, "url", "http://localhost:8080", "base URL of a running epiqd server")

	cmd.AddCommand(
		newFetchCommand(opts),
		newFitCommand(opts),
		newPredictCommand(opts),
		newRegisterCommand(opts),
		newFitsCommand(opts),
		newSynthCommand(),
	)
	return cmd
}
