package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/getfaultd/faultd/internal/cliconfig"
	"github.com/getfaultd/faultd/pkg/admin"
	"github.com/getfaultd/faultd/pkg/stats"
)

// RunEvents handles the events command: tail the injection event stream.
func RunEvents(args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)

	adminURL := fs.String("admin-url", cliconfig.GetAdminURL(), "Admin API base URL")
	count := fs.Int("count", 0, "Number of events to receive (0 = until interrupted)")
	fs.IntVar(count, "n", 0, "Number of events (shorthand)")
	jsonOutput := fs.Bool("json", false, "Output events in JSON format")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd events [flags]

Stream injection events from the running server over WebSocket and
print them as they arrive, until interrupted.

Flags:
  -n, --count      Number of events to receive (0 = until interrupted)
      --admin-url  Admin API base URL (default: http://127.0.0.1:7460)
      --json       Output events in JSON format

Examples:
  # Watch injections live
  faultd events

  # Capture ten events as JSON lines
  faultd events -n 10 --json
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	wsURL := toWebsocketURL(*adminURL) + "/events"
	opts := &websocket.DialOptions{}
	if key := cliconfig.GetAPIKey(); key != "" {
		opts.HTTPHeader = map[string][]string{admin.APIKeyHeader: {key}}
	}

	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		return fmt.Errorf("cannot connect to event stream at %s: %w", wsURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	received := 0
	for *count == 0 || received < *count {
		var ev stats.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("event stream closed: %w", err)
		}
		received++

		if *jsonOutput {
			if err := outputJSON(ev); err != nil {
				return err
			}
			continue
		}
		kind := string(ev.Kind)
		if kind == "" {
			kind = "none"
		}
		fmt.Printf("%s  %-10s %-8s %s/%s\n",
			ev.Timestamp.Format("15:04:05.000"), ev.Pattern, kind, ev.Source, ev.Operation)
	}
	return nil
}

// toWebsocketURL rewrites an http(s) base URL to its ws(s) form.
func toWebsocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
