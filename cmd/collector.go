package cmd

import (
	"github.com/quotepulse/stock-tracker/internal/bootstrap"
	"github.com/spf13/cobra"
)

// collectorCmd represents the collector command
var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "run the scheduled market data collector",
	Long: `Run the scheduled collector worker: refreshes market ranking boards and
watchlist snapshots on an interval and pushes ranking digests to the
configured webhook.`,
	Run: bootstrap.StartCollector,
}

func init() {
	rootCmd.AddCommand(collectorCmd)
}
