package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/getfaultd/faultd/internal/cliconfig"
)

// stringSlice is a repeatable string flag.
type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }

func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// RunPattern handles the pattern command.
func RunPattern(args []string) error {
	fs := flag.NewFlagSet("pattern", flag.ContinueOnError)

	adminURL := fs.String("admin-url", cliconfig.GetAdminURL(), "Admin API base URL")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd pattern <name>

Switch the scheduling pattern on the running server.

Arguments:
  name    Pattern name: random, burst, periodic, wave

Flags:
      --admin-url  Admin API base URL (default: http://127.0.0.1:7460)

Examples:
  # Clustered failures
  faultd pattern burst

  # Sinusoidal intensity
  faultd pattern wave
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("pattern name is required")
	}

	client := NewAdminClientWithAuth(*adminURL)
	if err := client.SetPattern(fs.Arg(0)); err != nil {
		return formatConnectionError(err)
	}
	fmt.Printf("Pattern set to %s\n", fs.Arg(0))
	return nil
}

// RunInterval handles the interval command.
func RunInterval(args []string) error {
	fs := flag.NewFlagSet("interval", flag.ContinueOnError)

	adminURL := fs.String("admin-url", cliconfig.GetAdminURL(), "Admin API base URL")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd interval <seconds>

Change the base interval between scheduled injections.

Arguments:
  seconds    Interval in seconds (fractional values allowed)

Flags:
      --admin-url  Admin API base URL (default: http://127.0.0.1:7460)

Examples:
  # One injection attempt every 5 seconds
  faultd interval 5

  # Every 250 milliseconds
  faultd interval 0.25
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("interval in seconds is required")
	}
	seconds, err := strconv.ParseFloat(fs.Arg(0), 64)
	if err != nil {
		return fmt.Errorf("invalid interval %q: %w", fs.Arg(0), err)
	}

	client := NewAdminClientWithAuth(*adminURL)
	if err := client.SetInterval(seconds); err != nil {
		return formatConnectionError(err)
	}
	fmt.Printf("Interval set to %ss\n", fs.Arg(0))
	return nil
}

// RunWeights handles the weights command.
func RunWeights(args []string) error {
	fs := flag.NewFlagSet("weights", flag.ContinueOnError)

	adminURL := fs.String("admin-url", cliconfig.GetAdminURL(), "Admin API base URL")
	var kindWeights stringSlice
	fs.Var(&kindWeights, "kind", "Fault kind weight as kind=weight, repeatable")
	fs.Var(&kindWeights, "k", "Fault kind weight (shorthand)")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd weights [flags] [source=weight ...]

Adjust source selection weights and fault kind weights. Weights are
relative; a weight of zero removes a source from scheduling.

Arguments:
  source=weight    Source weight pairs, e.g. PaymentService=2

Flags:
  -k, --kind       Fault kind weight as kind=weight, repeatable
      --admin-url  Admin API base URL (default: http://127.0.0.1:7460)

Examples:
  # Skew scheduling toward payments
  faultd weights PaymentService=3 UserService=1

  # Make timeouts twice as likely everywhere
  faultd weights --kind timeout=2

  # Stop scheduling the data pipeline
  faultd weights DataProcessingService=0
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	sources, err := parseWeightPairs(fs.Args())
	if err != nil {
		return err
	}
	kinds, err := parseWeightPairs(kindWeights)
	if err != nil {
		return err
	}
	if len(sources) == 0 && len(kinds) == 0 {
		fs.Usage()
		return fmt.Errorf("at least one source=weight pair or --kind flag is required")
	}

	client := NewAdminClientWithAuth(*adminURL)
	if err := client.SetWeights(sources, kinds); err != nil {
		return formatConnectionError(err)
	}
	fmt.Println("Weights updated")
	return nil
}

// parseWeightPairs parses name=weight strings into a map.
func parseWeightPairs(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid weight %q, expected name=weight", pair)
		}
		w, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", pair, err)
		}
		out[name] = w
	}
	return out, nil
}

// RunGuard handles the guard command.
func RunGuard(args []string) error {
	fs := flag.NewFlagSet("guard", flag.ContinueOnError)

	adminURL := fs.String("admin-url", cliconfig.GetAdminURL(), "Admin API base URL")
	clearGuard := fs.Bool("clear", false, "Remove the guard expression")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd guard [flags] [expression]

Install a guard expression that gates scheduled injection. Cycles where
the expression is false inject nothing. Available variables: hour,
minute, weekday, weekend, pattern, elapsed.

Arguments:
  expression    Boolean expression, e.g. 'hour >= 9 && hour < 17'

Flags:
      --clear      Remove the guard expression
      --admin-url  Admin API base URL (default: http://127.0.0.1:7460)

Examples:
  # Only inject during business hours
  faultd guard 'hour >= 9 && hour < 17'

  # Never on weekends
  faultd guard '!weekend'

  # Remove the guard
  faultd guard --clear
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	expression := ""
	if !*clearGuard {
		if fs.NArg() < 1 {
			fs.Usage()
			return fmt.Errorf("an expression or --clear is required")
		}
		expression = strings.Join(fs.Args(), " ")
	}

	client := NewAdminClientWithAuth(*adminURL)
	if err := client.SetGuard(expression); err != nil {
		return formatConnectionError(err)
	}
	if expression == "" {
		fmt.Println("Guard cleared")
	} else {
		fmt.Printf("Guard set to %q\n", expression)
	}
	return nil
}
