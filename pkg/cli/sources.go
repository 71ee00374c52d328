package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/getfaultd/faultd/internal/cliconfig"
)

// RunSources handles the sources command: list sources, show one, or
// tune its failure probability.
func RunSources(args []string) error {
	fs := flag.NewFlagSet("sources", flag.ContinueOnError)

	adminURL := fs.String("admin-url", cliconfig.GetAdminURL(), "Admin API base URL")
	probability := fs.Float64("probability", -1, "Set the source's failure probability (0.0-1.0)")
	fs.Float64Var(probability, "P", -1, "Set failure probability (shorthand)")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd sources [flags] [name]

List registered fault sources, or show one source in detail. With
--probability, change how often the named source's invocations fail.

Arguments:
  name    Source name (omit to list all)

Flags:
  -P, --probability  Set the source's failure probability (0.0-1.0)
      --admin-url    Admin API base URL (default: http://127.0.0.1:7460)
      --json         Output in JSON format

Examples:
  # List all sources
  faultd sources

  # Inspect one source
  faultd sources PaymentService

  # Make payments fail 80% of the time
  faultd sources PaymentService --probability 0.8
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	client := NewAdminClientWithAuth(*adminURL)

	if fs.NArg() == 0 {
		if *probability >= 0 {
			return fmt.Errorf("--probability requires a source name")
		}
		return listSources(client, *jsonOutput)
	}

	name := fs.Arg(0)
	if *probability >= 0 {
		if err := client.SetSourceProbability(name, *probability); err != nil {
			return formatConnectionError(err)
		}
		fmt.Printf("Failure probability for %s set to %.2f\n", name, *probability)
		return nil
	}

	info, err := client.GetSource(name)
	if err != nil {
		return formatConnectionError(err)
	}
	if *jsonOutput {
		return outputJSON(info)
	}

	fmt.Printf("%s\n", info.Name)
	fmt.Printf("  Probability: %.2f\n", info.FailureProbability)
	fmt.Printf("  Weight:      %.2f\n", info.Weight)
	fmt.Printf("  Health:      %s (error rate %.2f)\n", info.Health.Status, info.Health.ErrorRate)
	fmt.Printf("  Operations:  %s\n", strings.Join(info.Operations, ", "))
	return nil
}

func listSources(client AdminClient, jsonOutput bool) error {
	sources, err := client.ListSources()
	if err != nil {
		return formatConnectionError(err)
	}
	if jsonOutput {
		return outputJSON(map[string]any{"sources": sources, "count": len(sources)})
	}

	w := newTable()
	fmt.Fprintln(w, "NAME\tPROBABILITY\tWEIGHT\tHEALTH\tOPERATIONS")
	for _, s := range sources {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%s\t%d\n",
			s.Name, s.FailureProbability, s.Weight, s.Health.Status, len(s.Operations))
	}
	return w.Flush()
}
