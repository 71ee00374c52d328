package scheduler

import (
	"testing"
	"time"
)

func TestWindowValidate(t *testing.T) {
	tests := []struct {
		name    string
		w       Window
		wantErr bool
	}{
		{"morning peak", Window{9, 12}, false},
		{"single hour", Window{14, 15}, false},
		{"full day edge", Window{0, 23}, false},
		{"start equals end", Window{9, 9}, true},
		{"start after end", Window{17, 9}, true},
		{"negative start", Window{-1, 5}, true},
		{"end out of range", Window{20, 24}, true},
		{"start out of range", Window{24, 25}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%+v) err = %v, wantErr = %v", tt.w, err, tt.wantErr)
			}
		})
	}
}

// 2026-08-29 is a Saturday.
var (
	saturdayNoon   = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	mondayNoon     = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	mondayMidnight = time.Date(2026, 8, 31, 2, 0, 0, 0, time.UTC)
	mondayPeak     = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
)

func TestApplyDisabled(t *testing.T) {
	m := DefaultTimeModifiers()
	m.Enabled = false
	base := 2 * time.Second
	if got := m.Apply(base, saturdayNoon); got != base {
		t.Errorf("disabled modifiers changed interval: %v", got)
	}
}

func TestApplyWeekend(t *testing.T) {
	m := TimeModifiers{Enabled: true, WeekendFactor: 0.5}
	base := 2 * time.Second
	if got := m.Apply(base, saturdayNoon); got != 3*time.Second {
		t.Errorf("weekend interval = %v, want 3s", got)
	}
	if got := m.Apply(base, mondayNoon); got != base {
		t.Errorf("weekday interval = %v, want %v", got, base)
	}
}

func TestApplyNight(t *testing.T) {
	m := TimeModifiers{Enabled: true, NightFactor: 0.7}
	base := time.Second
	got := m.Apply(base, mondayMidnight)
	want := time.Duration(float64(base) * 1.7)
	if got != want {
		t.Errorf("night interval = %v, want %v", got, want)
	}

	lateEvening := time.Date(2026, 8, 31, 22, 30, 0, 0, time.UTC)
	if got := m.Apply(base, lateEvening); got != want {
		t.Errorf("22:30 interval = %v, want %v", got, want)
	}
	if got := m.Apply(base, mondayNoon); got != base {
		t.Errorf("daytime interval = %v, want %v", got, base)
	}
}

func TestApplyPeak(t *testing.T) {
	m := TimeModifiers{Enabled: true, PeakHours: []Window{{9, 12}, {14, 17}}}
	base := time.Second
	got := m.Apply(base, mondayPeak)
	want := time.Duration(float64(base) * peakShrink)
	if got != want {
		t.Errorf("peak interval = %v, want %v", got, want)
	}
	if got := m.Apply(base, mondayNoon); got != base {
		t.Errorf("off-peak interval = %v, want %v", got, base)
	}
}

func TestApplyStacks(t *testing.T) {
	// Saturday at 02:00: weekend and night both apply.
	m := TimeModifiers{Enabled: true, WeekendFactor: 0.5, NightFactor: 0.7}
	saturdayNight := time.Date(2026, 8, 29, 2, 0, 0, 0, time.UTC)
	base := time.Second
	got := m.Apply(base, saturdayNight)
	want := time.Duration(float64(base) * 1.5 * 1.7)
	if got != want {
		t.Errorf("stacked interval = %v, want %v", got, want)
	}
}

func TestModifiersValidate(t *testing.T) {
	good := DefaultTimeModifiers()
	if err := good.Validate(); err != nil {
		t.Errorf("default modifiers invalid: %v", err)
	}

	bad := TimeModifiers{PeakHours: []Window{{9, 12}, {17, 9}}}
	if err := bad.Validate(); err == nil {
		t.Error("one bad window must reject the whole set")
	}

	negative := TimeModifiers{WeekendFactor: -1}
	if err := negative.Validate(); err == nil {
		t.Error("negative factors must be rejected")
	}
}
