package scheduler

import (
	"errors"
	"time"
)

// Configuration errors. Every rejection leaves the previous configuration
// untouched.
var (
	ErrInvalidPattern  = errors.New("invalid pattern")
	ErrInvalidInterval = errors.New("interval must be positive")
)

// SetPattern switches the configured pattern. Unknown patterns are
// rejected without mutating state.
func (s *Scheduler) SetPattern(p Pattern) error {
	if !p.Valid() {
		s.log.Warn("rejected invalid pattern",
			"component", "scheduler", "operation", "set_pattern", "pattern", string(p))
		return ErrInvalidPattern
	}
	s.mu.Lock()
	s.cfg.Pattern = p
	s.mu.Unlock()
	s.log.Info("injection pattern updated",
		"component", "scheduler", "pattern", string(p))
	return nil
}

// Pattern returns the configured pattern.
func (s *Scheduler) Pattern() Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Pattern
}

// SetBaseInterval adjusts the base interval between cycles. Non-positive
// values are rejected without mutating state.
func (s *Scheduler) SetBaseInterval(d time.Duration) error {
	if d <= 0 {
		s.log.Warn("rejected non-positive interval",
			"component", "scheduler", "operation", "set_interval", "interval", d.Seconds())
		return ErrInvalidInterval
	}
	s.mu.Lock()
	s.cfg.BaseInterval = d
	s.mu.Unlock()
	s.log.Info("base interval updated",
		"component", "scheduler", "interval", d.Seconds())
	return nil
}

// BaseInterval returns the configured base interval.
func (s *Scheduler) BaseInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.BaseInterval
}

// UpdateWeights applies a partial update to the per-source weights.
// Names not present in the registry, and negative weights, are ignored
// so configuration drift never errors. Setting a weight to zero removes
// the source from the draw.
func (s *Scheduler) UpdateWeights(weights map[string]float64) {
	registered := make(map[string]bool)
	for _, name := range s.registry.Names() {
		registered[name] = true
	}

	s.mu.Lock()
	for name, w := range weights {
		if !registered[name] || w < 0 {
			continue
		}
		s.cfg.Weights[name] = w
	}
	s.mu.Unlock()

	s.log.Info("source weights updated",
		"component", "scheduler", "weights", len(weights))
}

// Weights returns a copy of the current per-source weights.
func (s *Scheduler) Weights() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.cfg.Weights))
	for k, v := range s.cfg.Weights {
		out[k] = v
	}
	return out
}

// SetTimeModifiers replaces the time-of-day modifiers. Invalid modifiers
// are rejected, retaining the previous configuration.
func (s *Scheduler) SetTimeModifiers(m TimeModifiers) error {
	if err := m.Validate(); err != nil {
		s.log.Warn("rejected invalid time modifiers",
			"component", "scheduler", "error", err)
		return err
	}
	s.mu.Lock()
	s.cfg.Modifiers = m
	s.mu.Unlock()
	s.log.Info("time modifiers updated",
		"component", "scheduler", "enabled", m.Enabled, "peak_windows", len(m.PeakHours))
	return nil
}

// TimeModifiersConfig returns the current time-of-day modifiers.
func (s *Scheduler) TimeModifiersConfig() TimeModifiers {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.cfg.Modifiers
	m.PeakHours = append([]Window(nil), m.PeakHours...)
	return m
}

// ConfigurePeakHours replaces the peak-hour windows. Validation is
// all-or-nothing: one invalid window rejects the whole set and the
// previous windows remain in force.
func (s *Scheduler) ConfigurePeakHours(windows []Window) error {
	for _, w := range windows {
		if err := w.Validate(); err != nil {
			s.log.Warn("rejected peak-hour windows",
				"component", "scheduler", "operation", "configure_peak_hours", "error", err)
			return err
		}
	}
	s.mu.Lock()
	s.cfg.Modifiers.PeakHours = append([]Window(nil), windows...)
	s.mu.Unlock()
	s.log.Info("peak hours configured",
		"component", "scheduler", "windows", len(windows))
	return nil
}

// SetGuard compiles and installs a new cycle guard. An empty expression
// clears the guard; a compile failure rejects the expression and keeps
// the previous guard in force.
func (s *Scheduler) SetGuard(expression string) error {
	grd, err := compileGuard(expression)
	if err != nil {
		s.log.Warn("rejected guard expression",
			"component", "scheduler", "error", err)
		return err
	}
	s.mu.Lock()
	s.grd = grd
	s.cfg.Guard = expression
	s.mu.Unlock()
	if expression == "" {
		s.log.Info("cycle guard cleared", "component", "scheduler")
	} else {
		s.log.Info("cycle guard installed",
			"component", "scheduler", "guard", expression)
	}
	return nil
}

// Guard returns the current guard expression, empty when unguarded.
func (s *Scheduler) Guard() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Guard
}
