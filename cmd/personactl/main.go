// Package main implements the personactl CLI for manual operations against
// a running personad daemon.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the personad HTTP server
	serverURL string
	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "personactl",
	Short: "CLI for personad daemon operations",
	Long: `personactl is a command-line interface for interacting with a personad daemon.
It submits messages for persona synthesis, checks daemon health, and renders
a live monitoring dashboard.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8420", "personad server URL")
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(monitorCmd)
}
