package scheduler

import "fmt"

// Pattern is the temporal shape of injection density.
type Pattern string

// Supported patterns. PatternRandom is the steady default: one injection
// per tick at a jittered interval, with probabilistic escalation into
// bursts and waves. The wire names match what downstream consumers of the
// stats snapshot key on.
const (
	// PatternRandom fires one injection per tick at a jittered base
	// interval, escalating probabilistically to bursts and waves.
	PatternRandom Pattern = "random"
	// PatternBurst fires clusters of 3-8 injections in rapid succession,
	// concentrated on one primary source, then cools down.
	PatternBurst Pattern = "burst"
	// PatternPeriodic fires exactly on the base interval: no jitter,
	// no time-of-day modulation, no escalation.
	PatternPeriodic Pattern = "periodic"
	// PatternWave modulates injection probability sinusoidally over a
	// configurable period.
	PatternWave Pattern = "wave"
)

// ParsePattern validates a pattern name. Unknown names return an error
// listing the valid set.
func ParsePattern(s string) (Pattern, error) {
	switch Pattern(s) {
	case PatternRandom, PatternBurst, PatternPeriodic, PatternWave:
		return Pattern(s), nil
	}
	return "", fmt.Errorf("invalid pattern %q (valid: random, burst, periodic, wave)", s)
}

// Valid reports whether p is a member of the closed pattern enum.
func (p Pattern) Valid() bool {
	_, err := ParsePattern(string(p))
	return err == nil
}
