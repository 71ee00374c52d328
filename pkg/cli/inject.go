package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/getfaultd/faultd/internal/cliconfig"
)

// RunInject handles the inject command: fire one fault right now.
func RunInject(args []string) error {
	fs := flag.NewFlagSet("inject", flag.ContinueOnError)

	adminURL := fs.String("admin-url", cliconfig.GetAdminURL(), "Admin API base URL")
	src := fs.String("source", "", "Fault source name (required)")
	fs.StringVar(src, "s", "", "Fault source name (shorthand)")
	operation := fs.String("operation", "", "Operation to fail (required)")
	fs.StringVar(operation, "o", "", "Operation to fail (shorthand)")
	kind := fs.String("kind", "", "Force a specific fault kind (timeout, validation, ...)")
	fs.StringVar(kind, "k", "", "Force a specific fault kind (shorthand)")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd inject [flags]

Inject a single fault on demand, bypassing the schedule. The source's
failure probability is forced for this one invocation.

Flags:
  -s, --source     Fault source name (required)
  -o, --operation  Operation to fail (required)
  -k, --kind       Force a specific fault kind
      --admin-url  Admin API base URL (default: http://127.0.0.1:7460)
      --json       Output in JSON format

Examples:
  # Fail a payment
  faultd inject -s PaymentService -o process_payment

  # Force a timeout specifically
  faultd inject -s PaymentService -o process_payment -k timeout

  # Inspect the full result
  faultd inject -s UserService -o authenticate_user --json
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *src == "" || *operation == "" {
		fs.Usage()
		return fmt.Errorf("both --source and --operation are required")
	}

	client := NewAdminClientWithAuth(*adminURL)
	res, err := client.Inject(*src, *operation, *kind)
	if err != nil {
		return formatConnectionError(err)
	}

	if *jsonOutput {
		return outputJSON(res)
	}
	if res.Succeeded {
		fmt.Printf("No fault raised for %s/%s\n", res.Source, res.Operation)
		return nil
	}
	fmt.Printf("Injected %s into %s/%s: %s\n", res.FaultKind, res.Source, res.Operation, res.Message)
	return nil
}
