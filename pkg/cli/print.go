package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
)

// ErrServerNotRunning is returned when the admin API is unreachable.
var ErrServerNotRunning = errors.New("server not running - start with: faultd serve")

// outputJSON writes indented JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTable creates an aligned table writer for stdout. Call Flush when
// done writing.
func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

// formatConnectionError turns a connection failure into a hint the user
// can act on. Other errors pass through untouched.
func formatConnectionError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 0 {
		return fmt.Errorf("%w\n\n%s", ErrServerNotRunning, apiErr.Message)
	}
	return err
}
