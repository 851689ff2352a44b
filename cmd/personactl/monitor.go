package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/personad/internal/monitor"
)

var monitorInterval time.Duration

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", monitor.DefaultInterval, "poll interval")
}

// monitorCmd renders the live dashboard
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard for a personad daemon",
	Long: `Render a live terminal dashboard of run rate, quality, and latency.

Examples:
  # Watch the local daemon
  personactl monitor

  # Watch a remote daemon, polling every 2 seconds
  personactl monitor --server http://10.0.0.5:8420 --interval 2s`,
	RunE: runMonitor,
}

// runMonitor handles the monitor command
func runMonitor(cmd *cobra.Command, args []string) error {
	p := tea.NewProgram(
		monitor.NewModel(serverURL, monitorInterval),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run dashboard: %w", err)
	}
	return nil
}
