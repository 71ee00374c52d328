package metrics

import (
	"net/http"

	"github.com/getfaultd/faultd/pkg/stats"
)

// Faultd is the set of metrics the daemon exports. It implements the
// engine's sink contract, so per-event counters update as injections
// happen; snapshot-derived gauges are refreshed by Observe before each
// scrape.
type Faultd struct {
	registry *Registry

	// InjectionsTotal counts injections by source, fault kind and pattern.
	// Kind is "none" when the invocation happened to succeed.
	InjectionsTotal *Counter

	// BurstsTotal mirrors the aggregate's burst counter.
	BurstsTotal *Gauge

	// Running is 1 while the scheduled loop is active.
	Running *Gauge

	// RatePerMinute is the injection rate since generation start.
	RatePerMinute *Gauge

	// DroppedEvents counts events the sink fan-out discarded.
	DroppedEvents *Gauge

	// AdminRequestsTotal counts admin API requests by method, path and
	// status.
	AdminRequestsTotal *Counter
}

// NewFaultd creates the daemon's metric set on a fresh registry.
func NewFaultd() *Faultd {
	r := NewRegistry()
	return &Faultd{
		registry: r,
		InjectionsTotal: r.NewCounter("faultd_injections_total",
			"Total injections by source, fault kind and pattern.",
			"source", "kind", "pattern"),
		BurstsTotal: r.NewGauge("faultd_bursts_total",
			"Total burst clusters triggered."),
		Running: r.NewGauge("faultd_generation_running",
			"Whether the scheduled injection loop is running."),
		RatePerMinute: r.NewGauge("faultd_injection_rate_per_minute",
			"Injection rate since generation start."),
		DroppedEvents: r.NewGauge("faultd_sink_dropped_events_total",
			"Injection events dropped by the sink fan-out."),
		AdminRequestsTotal: r.NewCounter("faultd_admin_requests_total",
			"Admin API requests by method, path and status.",
			"method", "path", "status"),
	}
}

// Publish records one injection event. It satisfies the engine's Sink
// interface.
func (f *Faultd) Publish(ev stats.Event) {
	kind := string(ev.Kind)
	if kind == "" {
		kind = "none"
	}
	vec, err := f.InjectionsTotal.WithLabels(ev.Source, kind, ev.Pattern)
	if err != nil {
		return
	}
	_ = vec.Inc()
}

// Observe refreshes the snapshot-derived gauges. Call before serving a
// scrape.
func (f *Faultd) Observe(snap stats.Snapshot, running bool, dropped int64) {
	_ = f.BurstsTotal.Set(float64(snap.BurstsTriggered))
	_ = f.RatePerMinute.Set(snap.RatePerMinute)
	_ = f.DroppedEvents.Set(float64(dropped))
	if running {
		_ = f.Running.Set(1)
	} else {
		_ = f.Running.Set(0)
	}
}

// Handler serves the registry in Prometheus text format.
func (f *Faultd) Handler() http.Handler {
	return f.registry.Handler()
}
