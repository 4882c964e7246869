package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/warden/internal/verifications"
)

func newHistoryCommand(opts *options) *cobra.Command {
	var q historyQuery

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List completed verifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := opts.client().history(cmd.Context(), q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(result.Data) == 0 {
				fmt.Fprintln(out, "No verifications recorded.")
				return nil
			}

			fmt.Fprintln(out, renderTable(
				[]string{"Completed", "File", "Status", "Findings", "Seconds"},
				historyRows(result.Data),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			fmt.Fprintf(out, "Page %d of %d (%d total)\n", result.Page, result.TotalPages, result.Total)
			return nil
		},
	}

	cmd.Flags().IntVar(&q.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&q.PageSize, "page-size", 0, "Rows per page (server default when 0)")
	cmd.Flags().StringVarP(&q.Search, "search", "s", "", "Filter by filename or status")
	cmd.Flags().StringVar(&q.Status, "status", "", "Only show results or error")

	return cmd
}

func historyRows(records []verifications.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		seconds := "-"
		if r.ProcessingSeconds != nil {
			seconds = strconv.FormatFloat(*r.ProcessingSeconds, 'f', 1, 64)
		}
		status := r.Status
		if r.ErrorMessage != nil {
			status += ": " + *r.ErrorMessage
		}
		rows = append(rows, []string{
			r.CompletedAt.Local().Format(time.DateTime),
			r.Filename,
			status,
			strconv.Itoa(r.TotalFindings),
			seconds,
		})
	}
	return rows
}
