package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// command pairs a name with its flag-parsing entry point. Flag parsing is
// disabled on the cobra side so each Run function owns its own FlagSet
// and usage text.
type command struct {
	name     string
	short    string
	category string
	run      func(args []string) error
}

// commands is the full command table in display order.
func commands(info BuildInfo) []command {
	return []command{
		{"serve", "Start the fault injection server (default command)", "Core", RunServe},
		{"status", "Show status of the running server", "Core", RunStatus},
		{"validate", "Validate a configuration file", "Core", RunValidate},

		{"start", "Start scheduled fault generation", "Generation", RunStart},
		{"stop", "Stop scheduled fault generation", "Generation", RunStop},
		{"pattern", "Switch the scheduling pattern", "Generation", RunPattern},
		{"interval", "Change the base injection interval", "Generation", RunInterval},
		{"weights", "Adjust source and fault kind weights", "Generation", RunWeights},
		{"guard", "Install or clear the guard expression", "Generation", RunGuard},

		{"inject", "Inject a single fault on demand", "Injection", RunInject},
		{"sources", "List and tune fault sources", "Injection", RunSources},

		{"stats", "Show aggregate injection statistics", "Observability", RunStats},
		{"reset", "Reset injection statistics", "Observability", RunReset},
		{"events", "Stream injection events over WebSocket", "Observability", RunEvents},

		{"completion", "Generate shell completion scripts", "Utilities", RunCompletion},
		{"version", "Show version information", "Utilities", func(args []string) error {
			return RunVersion(info, args)
		}},
	}
}

// NewRootCommand builds the cobra command tree. Running the root with no
// subcommand starts the server, so 'faultd' alone just works.
func NewRootCommand(info BuildInfo) *cobra.Command {
	root := &cobra.Command{
		Use:   "faultd",
		Short: "faultd is a fault injection scheduler for resilience testing",
		Long: `faultd injects synthetic faults into simulated services on a schedule:
steady random failures, clustered bursts, exact periodic ticks, or a
sinusoidal wave. An admin API controls generation at runtime.

Running faultd with no command starts the server in the foreground.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunServe(args)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	for _, group := range []string{"Core", "Generation", "Injection", "Observability", "Utilities"} {
		root.AddGroup(&cobra.Group{ID: group, Title: group + ":"})
	}
	for _, c := range commands(info) {
		c := c
		root.AddCommand(&cobra.Command{
			Use:                c.name,
			Short:              c.short,
			GroupID:            c.category,
			DisableFlagParsing: true,
			SilenceUsage:       true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(args)
			},
		})
	}
	return root
}

// Execute runs the CLI. Called by main.
func Execute(info BuildInfo) {
	Version = info.Version
	Commit = info.Commit
	BuildDate = info.BuildDate

	if err := NewRootCommand(info).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
