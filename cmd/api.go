package cmd

import (
	"github.com/quotepulse/stock-tracker/internal/bootstrap"
	"github.com/spf13/cobra"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "run the http api server",
	Long:  `Run the HTTP API server exposing watchlist, snapshot, ranking and trade-import endpoints.`,
	Run:   bootstrap.StartAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}
