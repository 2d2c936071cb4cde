// Package cmd defines and implements the CLI commands for the seedcrawl executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seedcrawl",
		Short: "A bounded-concurrency crawler for fixed seed lists.",
		Long: `seedcrawl fetches every URL in a seed list with a fixed pool of workers
and records one result row per URL, plus optional link, image and heading
tables, to CSV, JSON lines or Postgres.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// Execute is the main entry point. Any error exits with status 1.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "seedcrawl: %v\n", err)
		os.Exit(1)
	}
}
