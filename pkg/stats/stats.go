// Package stats provides the concurrency-safe counters tracking injection
// history. Every injection path, scheduled or on-demand, records into
// one Aggregate; status and metrics consumers read consistent snapshots.
package stats

import (
	"sync"
	"time"

	"github.com/getfaultd/faultd/pkg/fault"
)

// Event is the ephemeral record of one injection. It is consumed
// immediately by the Aggregate and the configured sinks; nothing persists
// it.
type Event struct {
	// ID is a time-sortable unique identifier.
	ID string `json:"id"`
	// Source is the fault source that was invoked.
	Source string `json:"source"`
	// Operation is the invoked operation name.
	Operation string `json:"operation"`
	// Pattern is the wire name of the pattern that produced the injection
	// ("random", "burst", "periodic", "wave", "on_demand").
	Pattern string `json:"pattern"`
	// Kind is the fault kind the invocation raised; empty when the
	// invocation happened to succeed.
	Kind fault.Kind `json:"kind,omitempty"`
	// Timestamp is the wall-clock time of the injection.
	Timestamp time.Time `json:"timestamp"`
}

// Aggregate is the mutable counters structure behind one lock. All
// increments are atomic relative to reads: Snapshot never observes the
// total bumped without its per-key counterpart.
type Aggregate struct {
	mu sync.Mutex

	total      int64
	perSource  map[string]int64
	perKind    map[fault.Kind]int64
	perPattern map[string]int64

	bursts          int64
	burstInjections int64

	lastInjection   time.Time
	generationStart time.Time
}

// New creates an empty aggregate. The generation-start timestamp is set
// by MarkStart when the scheduler begins.
func New() *Aggregate {
	return &Aggregate{
		perSource:  make(map[string]int64),
		perKind:    make(map[fault.Kind]int64),
		perPattern: make(map[string]int64),
	}
}

// MarkStart records the generation start time. Later calls overwrite, so
// a stop/start cycle restarts the rate window.
func (a *Aggregate) MarkStart(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generationStart = t
}

// Record counts one injection under its source, kind and pattern keys.
func (a *Aggregate) Record(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.perSource[ev.Source]++
	a.perPattern[ev.Pattern]++
	if ev.Kind != "" {
		a.perKind[ev.Kind]++
	}
	a.lastInjection = ev.Timestamp
}

// RecordBurst counts one completed burst: bursts-triggered goes up by
// one regardless of size, burst-injections by the number of injections
// the burst actually produced.
func (a *Aggregate) RecordBurst(injections int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bursts++
	a.burstInjections += int64(injections)
}

// Reset zeroes every counter while preserving the generation-start
// timestamp so rate computation stays meaningful.
func (a *Aggregate) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total = 0
	a.perSource = make(map[string]int64)
	a.perKind = make(map[fault.Kind]int64)
	a.perPattern = make(map[string]int64)
	a.bursts = 0
	a.burstInjections = 0
	a.lastInjection = time.Time{}
}

// Snapshot is a consistent, immutable copy of the aggregate plus derived
// fields.
type Snapshot struct {
	Total      int64                `json:"totalInjections"`
	PerSource  map[string]int64     `json:"bySource"`
	PerKind    map[fault.Kind]int64 `json:"byKind"`
	PerPattern map[string]int64     `json:"byPattern"`

	BurstsTriggered int64 `json:"burstsTriggered"`
	BurstInjections int64 `json:"burstInjections"`

	LastInjection   time.Time `json:"lastInjection,omitzero"`
	GenerationStart time.Time `json:"generationStart,omitzero"`

	ElapsedSeconds float64 `json:"elapsedSeconds"`
	RatePerMinute  float64 `json:"ratePerMinute"`
}

// Snapshot returns a deep copy of the current state. Derived fields use
// the supplied clock moment.
func (a *Aggregate) Snapshot() Snapshot {
	return a.snapshotAt(time.Now())
}

func (a *Aggregate) snapshotAt(now time.Time) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Total:           a.total,
		PerSource:       copyMap(a.perSource),
		PerKind:         copyMap(a.perKind),
		PerPattern:      copyMap(a.perPattern),
		BurstsTriggered: a.bursts,
		BurstInjections: a.burstInjections,
		LastInjection:   a.lastInjection,
		GenerationStart: a.generationStart,
	}

	if !a.generationStart.IsZero() && now.After(a.generationStart) {
		elapsed := now.Sub(a.generationStart).Seconds()
		snap.ElapsedSeconds = elapsed
		if elapsed > 0 {
			snap.RatePerMinute = float64(a.total) * 60 / elapsed
		}
	}
	return snap
}

// Merge adds two snapshots per matching key, taking the union of keys.
// It is a pure function kept for deployments that run several independent
// schedulers; the reference engine owns exactly one.
func Merge(a, b Snapshot) Snapshot {
	out := Snapshot{
		Total:           a.Total + b.Total,
		PerSource:       mergeMaps(a.PerSource, b.PerSource),
		PerKind:         mergeMaps(a.PerKind, b.PerKind),
		PerPattern:      mergeMaps(a.PerPattern, b.PerPattern),
		BurstsTriggered: a.BurstsTriggered + b.BurstsTriggered,
		BurstInjections: a.BurstInjections + b.BurstInjections,
	}

	out.LastInjection = a.LastInjection
	if b.LastInjection.After(out.LastInjection) {
		out.LastInjection = b.LastInjection
	}

	// The merged window starts at the earliest non-zero start.
	out.GenerationStart = a.GenerationStart
	if out.GenerationStart.IsZero() || (!b.GenerationStart.IsZero() && b.GenerationStart.Before(out.GenerationStart)) {
		out.GenerationStart = b.GenerationStart
	}
	if !out.GenerationStart.IsZero() {
		out.ElapsedSeconds = time.Since(out.GenerationStart).Seconds()
		if out.ElapsedSeconds > 0 {
			out.RatePerMinute = float64(out.Total) * 60 / out.ElapsedSeconds
		}
	}
	return out
}

func copyMap[K comparable](m map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mergeMaps[K comparable](a, b map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(a)+len(b))
	for k, v := range a {
		out[k] += v
	}
	for k, v := range b {
		out[k] += v
	}
	return out
}
