package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zsiec/edgeview/internal/monitor"
	"github.com/zsiec/edgeview/pkg/version"
)

func main() {
	var (
		server   string
		interval time.Duration
	)
	flag.StringVar(&server, "server", "http://localhost:8080", "EdgeView server base URL")
	flag.DurationVar(&interval, "interval", monitor.DefaultInterval, "Polling interval")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}

	model := monitor.NewModel(monitor.NewClient(server, nil), server, interval)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}
