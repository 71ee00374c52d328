// Package fault defines the capability boundary between the injection
// engine and the pluggable fault sources it drives.
//
// A fault source simulates one subsystem (identity, payments, a data
// pipeline, ...) by exposing named operations that probabilistically fail.
// The failures it raises are the designed signal of the system: they are
// tagged with a Kind the source declares, so the engine can record and
// route them without inspecting dynamic types.
package fault

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the category of a synthetic failure.
// Sources declare the kinds they can raise. The set is open: a deployment
// can add its own kinds without touching the engine.
type Kind string

// Built-in fault kinds raised by the reference sources.
const (
	KindTimeout        Kind = "timeout"
	KindUnavailable    Kind = "unavailable"
	KindAuthDenied     Kind = "auth_denied"
	KindRateLimited    Kind = "rate_limited"
	KindDataCorruption Kind = "data_corruption"
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindResourceLimit  Kind = "resource_limit"
	KindDependency     Kind = "dependency"
	KindInternal       Kind = "internal"
)

// Error is the tagged fault payload a source raises when an operation
// fails. It is an ordinary error value; the engine matches on it with
// AsFault rather than on the dynamic type of whatever a source returns.
type Error struct {
	// Kind is the declared category of the failure.
	Kind Kind
	// Source is the name of the source that raised the failure.
	Source string
	// Op is the operation that failed.
	Op string
	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s.%s: %s: %s", e.Source, e.Op, e.Kind, e.Message)
}

// New creates a tagged fault error.
func New(kind Kind, source, op, message string) *Error {
	return &Error{Kind: kind, Source: source, Op: op, Message: message}
}

// Newf creates a tagged fault error with a formatted message.
func Newf(kind Kind, source, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Source: source, Op: op, Message: fmt.Sprintf(format, args...)}
}

// AsFault extracts the tagged fault from err, unwrapping as needed.
// Returns nil, false when err is not (and does not wrap) a fault.
func AsFault(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the fault kind carried by err, or KindInternal when err
// is a plain error. A nil err has no kind; callers must check first.
func KindOf(err error) Kind {
	if fe, ok := AsFault(err); ok {
		return fe.Kind
	}
	return KindInternal
}

// Health is a point-in-time health report from a source.
type Health struct {
	Status    string  `json:"status"`
	ErrorRate float64 `json:"errorRate"`
}

// Source is the capability interface every fault source implements.
// The engine consumes sources only through this interface; their internal
// bug implementations are their own business.
type Source interface {
	// Name returns the unique source identifier.
	Name() string

	// Operations returns the ordered list of operation names the source
	// exposes. The order is stable across calls.
	Operations() []string

	// Invoke runs the named operation with optional parameters. It returns
	// nil when the simulated call succeeds and a *Error when the source
	// decides to fail. Unknown operations return an error that is not a
	// fault.
	Invoke(ctx context.Context, op string, params map[string]any) error

	// FailureProbability returns the current probability in [0,1] that an
	// invocation fails.
	FailureProbability() float64

	// SetFailureProbability adjusts the failure probability. Values outside
	// [0,1] are rejected and leave the previous value in place.
	SetFailureProbability(p float64) error

	// Health reports the source's current status and observed error rate.
	Health() Health
}

// NotFoundError reports a lookup miss against the registry or a source's
// operation list, naming what was available so callers can self-correct.
type NotFoundError struct {
	// What is the category of the missing thing ("source" or "operation").
	What string
	// Name is the identifier that missed.
	Name string
	// Available lists the valid identifiers.
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found (available: %s)", e.What, e.Name, strings.Join(e.Available, ", "))
}

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
