// Package engine provides the injection coordinator, the single owner of
// the fault-source registry, the pattern scheduler and the shared stats
// aggregate. Everything above it (admin API, CLI) talks to this package;
// everything below it (sources, scheduler, stats) is composed here.
package engine

import (
	"log/slog"
	"time"

	"github.com/getfaultd/faultd/pkg/fault"
	"github.com/getfaultd/faultd/pkg/logging"
	"github.com/getfaultd/faultd/pkg/scheduler"
	"github.com/getfaultd/faultd/pkg/source"
	"github.com/getfaultd/faultd/pkg/stats"
)

// Coordinator wires the registry, the scheduler and the aggregate
// together and fans injection events out to the registered sinks. All
// methods are safe for concurrent use.
type Coordinator struct {
	log      *slog.Logger
	registry *fault.Registry
	agg      *stats.Aggregate
	sched    *scheduler.Scheduler
	fan      *fanout
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	log        *slog.Logger
	paramsFor  func(source, op string) map[string]any
	sinkBuffer int
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithParams overrides the provider of default operation parameters.
func WithParams(fn func(source, op string) map[string]any) Option {
	return func(o *options) { o.paramsFor = fn }
}

// WithSinkBuffer sets the event fan-out buffer size.
func WithSinkBuffer(n int) Option {
	return func(o *options) { o.sinkBuffer = n }
}

// New creates a coordinator over the given registry with the given
// scheduler tunables.
func New(registry *fault.Registry, cfg scheduler.Config, opts ...Option) (*Coordinator, error) {
	o := options{
		log:        logging.Nop(),
		paramsFor:  source.DefaultParams,
		sinkBuffer: defaultSinkBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	agg := stats.New()
	fan := newFanout(o.log, o.sinkBuffer)

	sched, err := scheduler.New(registry, agg, cfg,
		scheduler.WithLogger(o.log),
		scheduler.WithParams(o.paramsFor),
		scheduler.WithSink(fan.publish),
	)
	if err != nil {
		fan.close()
		return nil, err
	}

	return &Coordinator{
		log:      o.log,
		registry: registry,
		agg:      agg,
		sched:    sched,
		fan:      fan,
	}, nil
}

// Start begins scheduled injection. Idempotent.
func (c *Coordinator) Start() {
	c.sched.Start()
}

// Stop halts scheduled injection, waiting for the loop to drain.
// Idempotent. On-demand injection and the sinks stay available.
func (c *Coordinator) Stop() {
	c.sched.Stop()
}

// Close stops scheduled injection and shuts down the sink fan-out. The
// coordinator is unusable afterwards.
func (c *Coordinator) Close() {
	if c.sched.IsRunning() {
		c.sched.Stop()
	}
	c.fan.close()
}

// IsRunning reports whether the scheduled loop is active.
func (c *Coordinator) IsRunning() bool {
	return c.sched.IsRunning()
}

// Uptime returns how long the current run has been active, zero when
// stopped.
func (c *Coordinator) Uptime() time.Duration {
	if !c.sched.IsRunning() {
		return 0
	}
	started := c.sched.StartedAt()
	if started.IsZero() {
		return 0
	}
	return time.Since(started)
}

// Snapshot returns a consistent copy of the injection statistics.
func (c *Coordinator) Snapshot() stats.Snapshot {
	return c.agg.Snapshot()
}

// Reset clears the injection statistics. The generation-start timestamp
// survives so rates stay meaningful across a reset.
func (c *Coordinator) Reset() {
	c.agg.Reset()
	c.log.Info("injection statistics reset", "component", "engine")
}

// AddSink registers an event sink. Delivery is non-blocking: a slow
// consumer loses events rather than stalling injection.
func (c *Coordinator) AddSink(s Sink) {
	c.fan.add(s)
}

// DroppedEvents reports how many events the fan-out discarded because
// the buffer was full.
func (c *Coordinator) DroppedEvents() int64 {
	return c.fan.droppedCount()
}

// Pattern returns the configured injection pattern.
func (c *Coordinator) Pattern() scheduler.Pattern {
	return c.sched.Pattern()
}

// SetPattern switches the injection pattern. Unknown patterns are
// rejected, retaining the previous one.
func (c *Coordinator) SetPattern(p scheduler.Pattern) error {
	return c.sched.SetPattern(p)
}

// BaseInterval returns the base interval between injection cycles.
func (c *Coordinator) BaseInterval() time.Duration {
	return c.sched.BaseInterval()
}

// SetInterval adjusts the base interval. Non-positive intervals are
// rejected, retaining the previous one.
func (c *Coordinator) SetInterval(d time.Duration) error {
	return c.sched.SetBaseInterval(d)
}

// Weights returns a copy of the per-source selection weights.
func (c *Coordinator) Weights() map[string]float64 {
	return c.sched.Weights()
}

// UpdateWeights applies a partial update to the per-source selection
// weights. Unknown sources and negative weights are ignored.
func (c *Coordinator) UpdateWeights(weights map[string]float64) {
	c.sched.UpdateWeights(weights)
}

// kindWeighted is implemented by sources whose fault-kind distribution
// can be steered at runtime.
type kindWeighted interface {
	SetKindWeights(weights map[fault.Kind]float64)
}

// UpdateKindWeights applies a partial fault-kind weight update to every
// source that supports steering. Unknown kinds are ignored by the
// sources themselves.
func (c *Coordinator) UpdateKindWeights(weights map[fault.Kind]float64) {
	if len(weights) == 0 {
		return
	}
	updated := 0
	c.registry.Each(func(src fault.Source) {
		if kw, ok := src.(kindWeighted); ok {
			kw.SetKindWeights(weights)
			updated++
		}
	})
	c.log.Info("fault kind weights updated",
		"component", "engine", "kinds", len(weights), "sources", updated)
}

// ConfigurePeakHours replaces the peak-hour windows. All-or-nothing:
// one invalid window rejects the whole set.
func (c *Coordinator) ConfigurePeakHours(windows []scheduler.Window) error {
	return c.sched.ConfigurePeakHours(windows)
}

// SetTimeModifiers replaces the time-of-day interval modifiers.
func (c *Coordinator) SetTimeModifiers(m scheduler.TimeModifiers) error {
	return c.sched.SetTimeModifiers(m)
}

// TimeModifiers returns the current time-of-day interval modifiers.
func (c *Coordinator) TimeModifiers() scheduler.TimeModifiers {
	return c.sched.TimeModifiersConfig()
}

// SetGuard installs a cycle guard expression, or clears it when empty.
func (c *Coordinator) SetGuard(expression string) error {
	return c.sched.SetGuard(expression)
}

// Guard returns the current guard expression.
func (c *Coordinator) Guard() string {
	return c.sched.Guard()
}

// SourceInfo is a point-in-time description of one registered source.
type SourceInfo struct {
	Name               string       `json:"name"`
	Operations         []string     `json:"operations"`
	FailureProbability float64      `json:"failureProbability"`
	Weight             float64      `json:"weight"`
	Health             fault.Health `json:"health"`
}

// Sources describes every registered source in registration order.
func (c *Coordinator) Sources() []SourceInfo {
	weights := c.sched.Weights()
	out := make([]SourceInfo, 0, c.registry.Len())
	c.registry.Each(func(src fault.Source) {
		out = append(out, SourceInfo{
			Name:               src.Name(),
			Operations:         src.Operations(),
			FailureProbability: src.FailureProbability(),
			Weight:             weights[src.Name()],
			Health:             src.Health(),
		})
	})
	return out
}

// Source describes one registered source by name.
func (c *Coordinator) Source(name string) (SourceInfo, error) {
	src, err := c.registry.Get(name)
	if err != nil {
		return SourceInfo{}, err
	}
	return SourceInfo{
		Name:               src.Name(),
		Operations:         src.Operations(),
		FailureProbability: src.FailureProbability(),
		Weight:             c.sched.Weights()[src.Name()],
		Health:             src.Health(),
	}, nil
}

// SetSourceProbability adjusts one source's failure probability. Values
// outside [0,1] are rejected by the source, retaining the previous
// value.
func (c *Coordinator) SetSourceProbability(name string, p float64) error {
	src, err := c.registry.Get(name)
	if err != nil {
		return err
	}
	if err := src.SetFailureProbability(p); err != nil {
		return err
	}
	c.log.Info("source failure probability updated",
		"component", "engine", "service", name, "probability", p)
	return nil
}
