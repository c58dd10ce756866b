package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finelagusaz/ghost-launcher/internal/scan"
)

var forceRefresh bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Scan the configured folders and update the catalog",
	Long: `Run the scanner once for the active configuration.

Unless --force is given, the catalog is left untouched when the scanner
reports the same fingerprint as the previous refresh.

Examples:
  ghostcat refresh
  ghostcat refresh --force --root /opt/ssp --folder /opt/ghosts`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := application.Refresh(cmd.Context(), forceRefresh)
		if err != nil {
			return errors.New(scan.UserMessage(err))
		}

		w := cmd.OutOrStdout()
		switch {
		case out.Skipped:
			fmt.Fprintf(w, "%d ghosts, unchanged since last refresh\n", out.Items)
		default:
			fmt.Fprintf(w, "%d ghosts: %d updated, %d unchanged, %d removed\n",
				out.Items, out.Stats.Upserted, out.Stats.Unchanged, out.Stats.Deleted)
		}
		return nil
	},
}

func init() {
	refreshCmd.Flags().BoolVarP(&forceRefresh, "force", "f", false, "rewrite the catalog even if nothing changed")
	rootCmd.AddCommand(refreshCmd)
}
