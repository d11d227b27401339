package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pinscheduler",
	Short: "Schedule Pinterest pins for deferred publication",
	Long: `pinscheduler accepts pins through an HTTP API, holds them in a delayed
job queue and publishes them to Pinterest when they fall due.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), true, true)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API only",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), true, false)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the queue workers and the token refresh scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), false, true)
	},
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run the HTTP API and the workers in one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), true, true)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, allCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
