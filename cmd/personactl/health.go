package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/personad/internal/monitor"
)

// healthCmd checks daemon health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check personad daemon health",
	Long: `Check the health status of a personad daemon.

Examples:
  # Check health
  personactl health

  # Check health of a remote daemon
  personactl health --server http://10.0.0.5:8420`,
	RunE: runHealth,
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := monitor.NewStatsClient(serverURL).FetchHealth(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to reach %s: %v\n", serverURL, err)
		return err
	}

	fmt.Printf("Server Status: %s\n", health.Status)
	fmt.Printf("Server URL:    %s\n", serverURL)
	if health.Version != "" {
		fmt.Printf("Version:       %s\n", health.Version)
	}

	names := make([]string, 0, len(health.Services))
	for name := range health.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-8s %s\n", name, health.Services[name])
	}

	if health.Status != "ok" {
		return fmt.Errorf("daemon reports %q", health.Status)
	}
	return nil
}
