package scheduler

import (
	"fmt"
	"time"
)

// Window is a peak-hour window in 24-hour local time, inclusive start,
// exclusive end.
type Window struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Validate enforces 0 ≤ start < end < 24.
func (w Window) Validate() error {
	if w.Start < 0 || w.Start >= 24 || w.End < 0 || w.End >= 24 || w.Start >= w.End {
		return fmt.Errorf("invalid peak window (%d,%d): need 0 <= start < end < 24", w.Start, w.End)
	}
	return nil
}

// Contains reports whether the local hour falls inside the window.
func (w Window) Contains(hour int) bool {
	return hour >= w.Start && hour < w.End
}

// TimeModifiers stretch or shrink the base interval by wall-clock
// context: quieter weekends and nights, denser peak hours. The defaults
// mirror a business-hours traffic shape.
type TimeModifiers struct {
	// Enabled turns time-of-day modulation on. Disabled modifiers leave
	// the interval untouched.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// WeekendFactor stretches the interval by (1+factor) on Saturday and
	// Sunday.
	WeekendFactor float64 `json:"weekendFactor" yaml:"weekendFactor"`

	// NightFactor stretches the interval by (1+factor) between 22:00 and
	// 06:00 local time.
	NightFactor float64 `json:"nightFactor" yaml:"nightFactor"`

	// PeakHours are windows where the interval shrinks (denser injection).
	PeakHours []Window `json:"peakHours" yaml:"peakHours"`
}

// peakShrink is the interval multiplier inside a peak window.
const peakShrink = 0.7

// DefaultTimeModifiers returns the reference deployment's shape: enabled,
// half-again-slower weekends, much slower nights, morning and afternoon
// peaks.
func DefaultTimeModifiers() TimeModifiers {
	return TimeModifiers{
		Enabled:       true,
		WeekendFactor: 0.5,
		NightFactor:   0.7,
		PeakHours:     []Window{{Start: 9, End: 12}, {Start: 14, End: 17}},
	}
}

// Validate checks every peak window. All-or-nothing: one bad window
// rejects the whole set.
func (m TimeModifiers) Validate() error {
	for _, w := range m.PeakHours {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	if m.WeekendFactor < 0 || m.NightFactor < 0 {
		return fmt.Errorf("time modifier factors must be non-negative")
	}
	return nil
}

// Apply modulates a base interval for the given wall-clock moment.
func (m TimeModifiers) Apply(base time.Duration, now time.Time) time.Duration {
	if !m.Enabled {
		return base
	}

	scaled := float64(base)

	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		scaled *= 1 + m.WeekendFactor
	}

	hour := now.Hour()
	if hour < 6 || hour >= 22 {
		scaled *= 1 + m.NightFactor
	}

	for _, w := range m.PeakHours {
		if w.Contains(hour) {
			scaled *= peakShrink
			break
		}
	}

	return time.Duration(scaled)
}
