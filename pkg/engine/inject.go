package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getfaultd/faultd/pkg/fault"
)

// InjectionResult is the structured outcome of an on-demand injection.
type InjectionResult struct {
	// Source and Operation echo what was invoked.
	Source    string `json:"source"`
	Operation string `json:"operation"`

	// Succeeded reports whether the invocation completed cleanly. With
	// the probability forced to certainty a raised fault is the expected
	// outcome, reported as Succeeded false.
	Succeeded bool `json:"succeeded"`

	// FaultKind and Message describe the raised fault, empty when the
	// invocation completed cleanly.
	FaultKind fault.Kind `json:"faultKind,omitempty"`
	Message   string     `json:"message,omitempty"`

	// Timestamp is the wall-clock time of the injection.
	Timestamp time.Time `json:"timestamp"`
}

// InjectNow triggers one immediate injection outside the scheduled loop.
// The source's failure probability is forced to certainty for the single
// invocation and restored afterwards on every path. The injection is
// recorded in the shared statistics under the on-demand tag.
//
// Lookup misses return a not-found error; a failure to restore the
// probability is surfaced even when the injection itself worked, since
// it leaves the source misconfigured.
func (c *Coordinator) InjectNow(ctx context.Context, sourceName, op string, params map[string]any) (res *InjectionResult, err error) {
	src, err := c.registry.Get(sourceName)
	if err != nil {
		return nil, err
	}

	previous := src.FailureProbability()
	if err := src.SetFailureProbability(1.0); err != nil {
		return nil, fmt.Errorf("forcing failure probability on %s: %w", sourceName, err)
	}
	defer func() {
		if restoreErr := src.SetFailureProbability(previous); restoreErr != nil {
			c.log.Error("failed to restore failure probability after on-demand injection",
				"component", "engine",
				"severity", "critical",
				"service", sourceName,
				"previous_probability", previous,
				"error", restoreErr)
			err = errors.Join(err, fmt.Errorf("restoring failure probability on %s: %w", sourceName, restoreErr))
		}
	}()

	invokeErr := c.sched.InjectOnce(ctx, sourceName, op, params)
	if invokeErr != nil {
		if fault.IsNotFound(invokeErr) {
			return nil, invokeErr
		}
		if errors.Is(invokeErr, context.Canceled) || errors.Is(invokeErr, context.DeadlineExceeded) {
			return nil, invokeErr
		}
	}

	res = &InjectionResult{
		Source:    sourceName,
		Operation: op,
		Succeeded: invokeErr == nil,
		Timestamp: time.Now(),
	}
	if invokeErr != nil {
		if fe, ok := fault.AsFault(invokeErr); ok {
			res.FaultKind = fe.Kind
			res.Message = fe.Message
		} else {
			res.Message = invokeErr.Error()
		}
	}

	c.log.Info("on-demand injection triggered",
		"component", "engine",
		"service", sourceName,
		"operation", op,
		"fault_raised", invokeErr != nil,
		"fault_kind", string(res.FaultKind))
	return res, nil
}
