package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	envFiles []string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "seed-scraper",
	Short: "Cannabis seed price scraper and alert engine",
	Long: `seed-scraper collects seed prices from retailer websites, stores them
as time-limited offers and notifies subscribers when a seed reaches their
target price.

Configuration is read from the environment, optionally seeded from .env files.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, scrapeCmd, checkAlertsCmd, sweepAlertsCmd, addAlertCmd, migrateCmd)
}
