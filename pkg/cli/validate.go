package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/getfaultd/faultd/pkg/config"
)

// RunValidate handles the validate command.
func RunValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd validate <file>

Validate a configuration file without starting the server.

Arguments:
  file    Path to configuration file (YAML or JSON)

Examples:
  # Check a config before deploying it
  faultd validate faultd.yaml
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("configuration file path is required")
	}

	path := fs.Arg(0)
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("%s is valid\n", path)
	fmt.Printf("  Pattern:  %s every %gs\n", cfg.Generation.Pattern, cfg.Generation.IntervalSeconds)
	fmt.Printf("  Sources:  %d\n", len(cfg.Sources))
	if cfg.Generation.Guard != "" {
		fmt.Printf("  Guard:    %s\n", cfg.Generation.Guard)
	}
	return nil
}
