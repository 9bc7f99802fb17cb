package cli

import (
	"github.com/spf13/cobra"

	"pegwatch/internal/app"
)

var (
	fetchBase  string
	fetchSize  string
	fetchStore bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one aggregation round and print the result matrix",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.FetchOptions{
			Base:  fetchBase,
			Size:  fetchSize,
			Store: fetchStore,
		}
		return getApp().Fetch(cmd.Context(), opts)
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchBase, "base", "", "Base asset symbol (defaults to config)")
	fetchCmd.Flags().StringVar(&fetchSize, "size", "", "Primary trade size label (defaults to config)")
	fetchCmd.Flags().BoolVar(&fetchStore, "store", false, "Persist the resulting snapshots")
}
