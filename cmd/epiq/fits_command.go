package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/epiqlabs/epiq/internal/adapters/fit/queue"
	"github.com/epiqlabs/epiq/internal/adapters/repository/fithistory"
)

func newFitsCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "fits",
		Short: "List past fits on a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var records []fithistory.Record
			url := fmt.Sprintf("%s/fits?limit=%d", opts.url, limit)
			if err := doJSON(cmd.Context(), http.MethodGet, url, nil, &records); err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no fits recorded")
				return nil
			}

			rows := make([]table.Row, 0, len(records))
			for _, rec := range records {
				rows = append(rows, table.Row{
					rec.ID, rec.Reason,
					rec.Finished.Format("2006-01-02 15:04:05"),
					rec.Elapsed().Round(time.Millisecond),
					rec.Episodes, rec.Seasons, rec.Divergences, len(rec.Warnings),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				table.Row{"id", "reason", "finished", "elapsed", "episodes", "seasons", "divergences", "warnings"},
				rows, 4, 5, 6, 7, 8))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "fits to list, newest first")

	cmd.AddCommand(newFitsRequestCommand(opts))
	return cmd
}

func newFitsRequestCommand(opts *rootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Ask a running server to refit",
		RunE: func(cmd *cobra.Command, args []string) error {
			var job queue.Job
			url := fmt.Sprintf("%s/fits?reason=%s", opts.url, reason)
			if err := doJSON(cmd.Context(), http.MethodPost, url, nil, &job); err != nil {
				return err
			}
			if job.Coalesced > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "coalesced into pending fit %s\n", job.ID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fit %s queued\n", job.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "reason recorded with the fit")
	return cmd
}
