package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var evictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Drop catalogs of old configurations",
	Long: `Apply the retention policy: keep the active configuration plus the most
recently used others, up to eviction.max_generations, and drop any older than
eviction.ttl_days.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		survivors, err := application.Evict(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%d configurations kept\n", len(survivors))
		for _, id := range survivors {
			fmt.Fprintln(w, " ", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evictCmd)
}
