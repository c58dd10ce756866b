package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchLimit  int
	searchOffset int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the catalog",
	Long: `Search the catalog of the active configuration by ghost name or
directory name. Matching ignores case and full-width/half-width differences.
Without a query every ghost is listed.

Examples:
  ghostcat search emily
  ghostcat search --limit 20 --offset 40`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		page, err := application.Catalog.Search(cmd.Context(), application.Target.Identity(), query, searchLimit, searchOffset)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		switch {
		case page.Total == 0:
			fmt.Fprintln(w, "No results found")
			return nil
		case len(page.Rows) == 0:
			fmt.Fprintf(w, "No results past offset %d of %d\n", searchOffset, page.Total)
			return nil
		}
		for _, r := range page.Rows {
			fmt.Fprintf(w, "[%s] %s (%s)\n", r.Source, r.Name, r.DirectoryName)
		}
		fmt.Fprintf(w, "%d-%d of %d\n", searchOffset+1, searchOffset+len(page.Rows), page.Total)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 50, "maximum number of results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "number of results to skip")
	rootCmd.AddCommand(searchCmd)
}
