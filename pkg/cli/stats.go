package cli

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/getfaultd/faultd/internal/cliconfig"
)

// RunStats handles the stats command.
func RunStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)

	adminURL := fs.String("admin-url", cliconfig.GetAdminURL(), "Admin API base URL")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd stats [flags]

Show aggregate injection statistics.

Flags:
      --admin-url  Admin API base URL (default: http://127.0.0.1:7460)
      --json       Output in JSON format

Examples:
  # Show counters
  faultd stats

  # Machine-readable form
  faultd stats --json
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	client := NewAdminClientWithAuth(*adminURL)
	snap, err := client.Stats()
	if err != nil {
		return formatConnectionError(err)
	}

	if *jsonOutput {
		return outputJSON(snap)
	}

	fmt.Printf("Total injections: %d\n", snap.Total)
	fmt.Printf("Rate:             %.2f/min\n", snap.RatePerMinute)
	if snap.BurstsTriggered > 0 {
		fmt.Printf("Bursts:           %d (%d injections)\n", snap.BurstsTriggered, snap.BurstInjections)
	}

	printCountMap := func(title string, m map[string]int64) {
		if len(m) == 0 {
			return
		}
		fmt.Printf("\n%s:\n", title)
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		w := newTable()
		for _, k := range keys {
			fmt.Fprintf(w, "  %s\t%d\n", k, m[k])
		}
		_ = w.Flush()
	}

	printCountMap("By source", snap.PerSource)
	printCountMap("By pattern", snap.PerPattern)

	if len(snap.PerKind) > 0 {
		byKind := make(map[string]int64, len(snap.PerKind))
		for k, v := range snap.PerKind {
			byKind[string(k)] = v
		}
		printCountMap("By kind", byKind)
	}
	return nil
}

// RunReset handles the reset command.
func RunReset(args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)

	adminURL := fs.String("admin-url", cliconfig.GetAdminURL(), "Admin API base URL")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd reset [flags]

Reset aggregate injection statistics to zero. Generation state and
configuration are untouched.

Flags:
      --admin-url  Admin API base URL (default: http://127.0.0.1:7460)

Examples:
  # Zero the counters before a test run
  faultd reset
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	client := NewAdminClientWithAuth(*adminURL)
	if err := client.ResetStats(); err != nil {
		return formatConnectionError(err)
	}
	fmt.Println("Statistics reset")
	return nil
}
