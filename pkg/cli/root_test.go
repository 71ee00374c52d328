package cli

import (
	"testing"
)

func TestRootCommandTree(t *testing.T) {
	t.Parallel()

	root := NewRootCommand(BuildInfo{Version: "test"})

	want := []string{
		"serve", "status", "validate",
		"start", "stop", "pattern", "interval", "weights", "guard",
		"inject", "sources",
		"stats", "reset", "events",
		"completion", "version",
	}
	registered := make(map[string]bool)
	for _, cmd := range root.Commands() {
		registered[cmd.Name()] = true
		if cmd.GroupID == "" && cmd.Name() != "help" {
			t.Errorf("command %q has no group", cmd.Name())
		}
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered", name)
		}
	}
	if root.RunE == nil {
		t.Error("root command has no default action")
	}
}
