// Package metrics implements a small Prometheus-text-format metric
// registry: counters and gauges, optionally labelled, exposed over an
// http.Handler. It keeps faultd dependency-light; the exposition format
// is the stable contract, not a client library.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrLabelCountMismatch is returned when the number of label values does
// not match the metric's declared labels.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ErrNegativeCounterValue is returned when attempting to add a negative
// value to a counter.
var ErrNegativeCounterValue = errors.New("counter cannot be decreased")

// ErrDuplicateMetric is returned when registering a metric under a name
// that is already taken.
var ErrDuplicateMetric = errors.New("duplicate metric name")

// atomicFloat64 stores float64 bits in a uint64 for atomic access.
type atomicFloat64 struct {
	bits uint64
}

func (a *atomicFloat64) Load() float64 {
	return math.Float64frombits(atomic.LoadUint64(&a.bits))
}

func (a *atomicFloat64) Store(val float64) {
	atomic.StoreUint64(&a.bits, math.Float64bits(val))
}

func (a *atomicFloat64) Add(delta float64) {
	for {
		old := atomic.LoadUint64(&a.bits)
		next := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(&a.bits, old, math.Float64bits(next)) {
			return
		}
	}
}

// MetricType is the exposition type of a metric.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// Metric is implemented by all metric types.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Collect() []Sample
}

// Sample is one exposed value with its labels.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// seriesValue is one labelled time series of a counter or gauge.
type seriesValue struct {
	labels map[string]string
	value  atomicFloat64
}

// series is the shared label-keyed storage behind Counter and Gauge.
type series struct {
	name       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]*seriesValue
}

func (s *series) withLabels(values []string) (*seriesValue, error) {
	if len(values) != len(s.labelNames) {
		return nil, fmt.Errorf("%w: %s expected %d labels, got %d",
			ErrLabelCountMismatch, s.name, len(s.labelNames), len(values))
	}

	key := strings.Join(values, "\x00")
	s.mu.RLock()
	sv, ok := s.values[key]
	s.mu.RUnlock()
	if ok {
		return sv, nil
	}

	labels := make(map[string]string, len(s.labelNames))
	for i, name := range s.labelNames {
		labels[name] = values[i]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sv, ok = s.values[key]; !ok {
		sv = &seriesValue{labels: labels}
		s.values[key] = sv
	}
	return sv, nil
}

func (s *series) collect(metricName string) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	samples := make([]Sample, 0, len(s.values))
	for _, sv := range s.values {
		samples = append(samples, Sample{
			Name:   metricName,
			Labels: sv.labels,
			Value:  sv.value.Load(),
		})
	}
	return samples
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name string
	help string
	series
}

func newCounter(name, help string, labelNames []string) *Counter {
	return &Counter{
		name:   name,
		help:   help,
		series: series{name: name, labelNames: labelNames, values: make(map[string]*seriesValue)},
	}
}

func (c *Counter) Name() string      { return c.name }
func (c *Counter) Help() string      { return c.help }
func (c *Counter) Type() MetricType  { return MetricTypeCounter }
func (c *Counter) Collect() []Sample { return c.collect(c.name) }

// WithLabels returns a CounterVec bound to one label combination.
func (c *Counter) WithLabels(values ...string) (*CounterVec, error) {
	sv, err := c.withLabels(values)
	if err != nil {
		return nil, err
	}
	return &CounterVec{sv: sv}, nil
}

// Inc increments an unlabelled counter by 1.
func (c *Counter) Inc() error { return c.Add(1) }

// Add adds delta to an unlabelled counter. Negative deltas are rejected.
func (c *Counter) Add(delta float64) error {
	vec, err := c.WithLabels()
	if err != nil {
		return err
	}
	return vec.Add(delta)
}

// CounterVec operates on one label combination of a counter.
type CounterVec struct {
	sv *seriesValue
}

func (v *CounterVec) Inc() error { return v.Add(1) }

func (v *CounterVec) Add(delta float64) error {
	if delta < 0 {
		return ErrNegativeCounterValue
	}
	v.sv.value.Add(delta)
	return nil
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	name string
	help string
	series
}

func newGauge(name, help string, labelNames []string) *Gauge {
	return &Gauge{
		name:   name,
		help:   help,
		series: series{name: name, labelNames: labelNames, values: make(map[string]*seriesValue)},
	}
}

func (g *Gauge) Name() string      { return g.name }
func (g *Gauge) Help() string      { return g.help }
func (g *Gauge) Type() MetricType  { return MetricTypeGauge }
func (g *Gauge) Collect() []Sample { return g.collect(g.name) }

// WithLabels returns a GaugeVec bound to one label combination.
func (g *Gauge) WithLabels(values ...string) (*GaugeVec, error) {
	sv, err := g.withLabels(values)
	if err != nil {
		return nil, err
	}
	return &GaugeVec{sv: sv}, nil
}

// Set sets an unlabelled gauge.
func (g *Gauge) Set(value float64) error {
	vec, err := g.WithLabels()
	if err != nil {
		return err
	}
	vec.Set(value)
	return nil
}

// GaugeVec operates on one label combination of a gauge.
type GaugeVec struct {
	sv *seriesValue
}

func (v *GaugeVec) Set(value float64) { v.sv.value.Store(value) }
func (v *GaugeVec) Add(delta float64) { v.sv.value.Add(delta) }

// Registry holds registered metrics and serves the exposition endpoint.
type Registry struct {
	mu      sync.RWMutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter creates and registers a counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := newCounter(name, help, labels)
	r.register(c)
	return c
}

// NewGauge creates and registers a gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	g := newGauge(name, help, labels)
	r.register(g)
	return g
}

// register panics on a duplicate name, since duplicates produce invalid
// exposition output.
func (r *Registry) register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateMetric, m.Name()))
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
}

// Handler serves the registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.RLock()
		metrics := make([]Metric, len(r.metrics))
		copy(metrics, r.metrics)
		r.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		for _, m := range metrics {
			writeMetric(w, m)
		}
	})
}

func writeMetric(w http.ResponseWriter, m Metric) {
	samples := m.Collect()
	if len(samples) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "# HELP %s %s\n", m.Name(), escapeHelp(m.Help()))
	_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", m.Name(), m.Type())
	for _, s := range samples {
		if len(s.Labels) == 0 {
			_, _ = fmt.Fprintf(w, "%s %s\n", s.Name, formatFloat(s.Value))
		} else {
			_, _ = fmt.Fprintf(w, "%s{%s} %s\n", s.Name, formatLabels(s.Labels), formatFloat(s.Value))
		}
	}
}

// formatLabels renders labels sorted by key for deterministic output.
func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, escapeLabelValue(labels[k]))
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	if math.IsInf(v, 1) {
		return "+Inf"
	}
	if math.IsInf(v, -1) {
		return "-Inf"
	}
	s := fmt.Sprintf("%g", v)
	if v == float64(int64(v)) && !strings.Contains(s, ".") && !strings.Contains(s, "e") {
		return fmt.Sprintf("%.0f", v)
	}
	return s
}

func escapeHelp(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func escapeLabelValue(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
