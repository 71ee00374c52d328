package cli

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/getfaultd/faultd/internal/cliconfig"
)

// RunStatus handles the status command.
func RunStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)

	adminURL := fs.String("admin-url", cliconfig.GetAdminURL(), "Admin API base URL")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd status [flags]

Show the status of the running faultd server.

Flags:
      --admin-url  Admin API base URL (default: http://127.0.0.1:7460)
      --json       Output in JSON format

Examples:
  # Check server status
  faultd status

  # Output as JSON
  faultd status --json

  # Query a remote server
  faultd status --admin-url http://remote:7460
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	client := NewAdminClientWithAuth(*adminURL)
	status, err := client.Status()
	if err != nil {
		return formatConnectionError(err)
	}

	if *jsonOutput {
		return outputJSON(status)
	}

	generation := "idle"
	if status.Running {
		generation = fmt.Sprintf("running (%s, every %s)",
			status.Pattern, formatSeconds(status.IntervalSeconds))
	}

	fmt.Printf("faultd %s\n", status.Version)
	fmt.Printf("  Uptime:      %s\n", formatSeconds(status.UptimeSeconds))
	fmt.Printf("  Generation:  %s\n", generation)
	if status.Guard != "" {
		fmt.Printf("  Guard:       %s\n", status.Guard)
	}
	fmt.Printf("  Sources:     %d\n", status.Sources)
	fmt.Printf("  Injections:  %d\n", status.TotalInjections)
	if status.DroppedEvents > 0 {
		fmt.Printf("  Dropped:     %d events\n", status.DroppedEvents)
	}
	return nil
}

// formatSeconds renders a second count as a rounded duration.
func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second))
	if d >= time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Millisecond).String()
}
