package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCategoriesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the sensitive information categories the server detects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := opts.client().categories(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(cats))
			for _, c := range cats {
				rows = append(rows, []string{c.Label, c.Description})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Category", "Description"}, rows, nil))
			return nil
		},
	}
}
