package scheduler

import (
	"strings"
	"testing"
	"time"
)

func TestCompileGuard(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantNil bool
		wantErr bool
	}{
		{"empty clears", "", true, false},
		{"hour bound", "hour >= 9 && hour < 17", false, false},
		{"weekend gate", "!weekend", false, false},
		{"pattern match", `pattern == "burst"`, false, false},
		{"elapsed ramp", "elapsed > 300", false, false},
		{"syntax error", "hour >= ", false, true},
		{"unknown variable", "load > 0.5", false, true},
		{"non-bool result", "hour + 1", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := compileGuard(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("compileGuard(%q) err = %v, wantErr = %v", tt.expr, err, tt.wantErr)
			}
			if !tt.wantErr && (g == nil) != tt.wantNil {
				t.Errorf("compileGuard(%q) guard = %v, wantNil = %v", tt.expr, g, tt.wantNil)
			}
		})
	}
}

func TestGuardAllows(t *testing.T) {
	// 2026-08-31 is a Monday.
	monday := time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)
	saturday := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expr    string
		now     time.Time
		elapsed time.Duration
		pattern Pattern
		want    bool
	}{
		{"business hours pass", "hour >= 9 && hour < 17", monday, 0, PatternRandom, true},
		{"business hours block", "hour >= 17", monday, 0, PatternRandom, false},
		{"weekday only blocks saturday", "!weekend", saturday, 0, PatternRandom, false},
		{"weekday only passes monday", "!weekend", monday, 0, PatternRandom, true},
		{"weekday name", `weekday == "Monday"`, monday, 0, PatternRandom, true},
		{"minute gate", "minute >= 30", monday, 0, PatternRandom, true},
		{"elapsed not yet", "elapsed > 300", monday, 200 * time.Second, PatternRandom, false},
		{"elapsed reached", "elapsed > 300", monday, 400 * time.Second, PatternRandom, true},
		{"pattern gate", `pattern != "burst"`, monday, 0, PatternBurst, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := compileGuard(tt.expr)
			if err != nil {
				t.Fatalf("compileGuard(%q): %v", tt.expr, err)
			}
			got, err := g.allows(tt.now, tt.elapsed, tt.pattern)
			if err != nil {
				t.Fatalf("allows: %v", err)
			}
			if got != tt.want {
				t.Errorf("guard %q at %v = %v, want %v", tt.expr, tt.now, got, tt.want)
			}
		})
	}
}

func TestNilGuardAllowsEverything(t *testing.T) {
	var g *guard
	ok, err := g.allows(time.Now(), 0, PatternRandom)
	if !ok || err != nil {
		t.Errorf("nil guard = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestGuardFailsOpen(t *testing.T) {
	// Division by a zero-valued env field fails at runtime, not compile
	// time. The cycle must proceed and the error must name the guard.
	g, err := compileGuard("1/minute > 0")
	if err != nil {
		t.Fatalf("compileGuard: %v", err)
	}
	midnight := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	ok, err := g.allows(midnight, 0, PatternRandom)
	if !ok {
		t.Error("runtime guard failure must fail open")
	}
	if err == nil || !strings.Contains(err.Error(), "1/minute") {
		t.Errorf("error must name the guard expression, got %v", err)
	}
}

func TestParsePattern(t *testing.T) {
	for _, s := range []string{"random", "burst", "periodic", "wave"} {
		p, err := ParsePattern(s)
		if err != nil || string(p) != s {
			t.Errorf("ParsePattern(%q) = (%q, %v)", s, p, err)
		}
	}
	for _, s := range []string{"", "steady", "RANDOM", "waves"} {
		if _, err := ParsePattern(s); err == nil {
			t.Errorf("ParsePattern(%q) must fail", s)
		}
	}
	if Pattern(PatternOnDemand).Valid() {
		t.Error("on_demand is a stats tag, not a schedulable pattern")
	}
}
