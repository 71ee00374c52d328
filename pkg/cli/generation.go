package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/getfaultd/faultd/internal/cliconfig"
)

// RunStart handles the start command: begin scheduled injection.
func RunStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)

	adminURL := fs.String("admin-url", cliconfig.GetAdminURL(), "Admin API base URL")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd start [flags]

Start scheduled fault generation on the running server.

Flags:
      --admin-url  Admin API base URL (default: http://127.0.0.1:7460)
      --json       Output in JSON format

Examples:
  # Start generation with the configured pattern
  faultd start
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	client := NewAdminClientWithAuth(*adminURL)
	state, err := client.StartGeneration()
	if err != nil {
		return formatConnectionError(err)
	}

	if *jsonOutput {
		return outputJSON(state)
	}
	if state.AlreadyRunning {
		fmt.Println("Generation already running")
		return nil
	}
	fmt.Printf("Generation started (pattern: %s)\n", state.Pattern)
	return nil
}

// RunStop handles the stop command: halt scheduled injection.
func RunStop(args []string) error {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)

	adminURL := fs.String("admin-url", cliconfig.GetAdminURL(), "Admin API base URL")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd stop [flags]

Stop scheduled fault generation on the running server. On-demand
injection and the admin API stay available.

Flags:
      --admin-url  Admin API base URL (default: http://127.0.0.1:7460)
      --json       Output in JSON format

Examples:
  # Stop generation
  faultd stop
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	client := NewAdminClientWithAuth(*adminURL)
	state, err := client.StopGeneration()
	if err != nil {
		return formatConnectionError(err)
	}

	if *jsonOutput {
		return outputJSON(state)
	}
	if !state.WasRunning {
		fmt.Println("Generation was not running")
		return nil
	}
	fmt.Printf("Generation stopped (%d injections so far)\n", state.TotalInjections)
	return nil
}
