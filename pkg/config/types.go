// Package config defines the faultd configuration file format and its
// loader. A configuration describes the admin server, logging, the
// generation tunables and the set of fault sources to register.
package config

import (
	"fmt"
	"time"

	"github.com/getfaultd/faultd/pkg/scheduler"
)

// Config is the root of a faultd configuration file.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Sources    []SourceConfig   `json:"sources" yaml:"sources"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	// Host is the listen address. Defaults to loopback.
	Host string `json:"host" yaml:"host"`
	// Port is the admin port.
	Port int `json:"port" yaml:"port"`
	// APIKey, when set, is required in the X-API-Key header of every
	// non-health request. Keys use a fk_ prefix.
	APIKey string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	// LocalhostBypass exempts loopback clients from API-key auth.
	LocalhostBypass bool `json:"localhostBypass" yaml:"localhostBypass"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level" yaml:"level"`
	// Format is json or text.
	Format string `json:"format" yaml:"format"`
	// File, when set, sends logs to this path instead of stderr.
	File string `json:"file,omitempty" yaml:"file,omitempty"`
	// LokiURL, when set, additionally pushes logs to a Loki endpoint.
	LokiURL string `json:"lokiUrl,omitempty" yaml:"lokiUrl,omitempty"`
	// AddSource includes source file and line in each record.
	AddSource bool `json:"addSource" yaml:"addSource"`
}

// GenerationConfig holds the scheduler tunables in file form.
type GenerationConfig struct {
	// Pattern is random, burst, periodic or wave.
	Pattern string `json:"pattern" yaml:"pattern"`
	// IntervalSeconds is the base interval between injection cycles.
	IntervalSeconds float64 `json:"intervalSeconds" yaml:"intervalSeconds"`
	// BurstProbability and WaveProbability steer escalation from the
	// random pattern. Zero means the built-in default; a negative value
	// disables that escalation.
	BurstProbability float64 `json:"burstProbability" yaml:"burstProbability"`
	WaveProbability  float64 `json:"waveProbability" yaml:"waveProbability"`
	// BurstGapMillis is the delay between injections inside a burst.
	BurstGapMillis int `json:"burstGapMillis" yaml:"burstGapMillis"`
	// WavePeriodSeconds and WaveAmplitude shape the wave pattern.
	WavePeriodSeconds float64 `json:"wavePeriodSeconds" yaml:"wavePeriodSeconds"`
	WaveAmplitude     float64 `json:"waveAmplitude" yaml:"waveAmplitude"`
	// TimeModifiers modulate the interval by wall-clock context.
	TimeModifiers scheduler.TimeModifiers `json:"timeModifiers" yaml:"timeModifiers"`
	// Guard is an optional expression gating every cycle.
	Guard string `json:"guard,omitempty" yaml:"guard,omitempty"`
}

// SourceConfig declares one fault source to register.
type SourceConfig struct {
	// Type selects a built-in source (user, payments, pipeline, auth).
	Type string `json:"type" yaml:"type"`
	// Weight is the source's relative selection probability mass.
	Weight float64 `json:"weight" yaml:"weight"`
	// FailureProbability overrides the source's default when positive.
	FailureProbability float64 `json:"failureProbability,omitempty" yaml:"failureProbability,omitempty"`
	// KindWeights steers the source's fault-kind distribution. Weights
	// must be non-negative; kinds the source never raises are ignored.
	KindWeights map[string]float64 `json:"kindWeights,omitempty" yaml:"kindWeights,omitempty"`
}

// Default returns the reference configuration: loopback admin on the
// default port, JSON logs, the four built-in sources under the default
// generation tunables.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            DefaultAdminPort,
			LocalhostBypass: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Generation: GenerationConfig{
			Pattern:           string(scheduler.PatternRandom),
			IntervalSeconds:   2,
			WavePeriodSeconds: 60,
			WaveAmplitude:     0.5,
			TimeModifiers:     scheduler.DefaultTimeModifiers(),
		},
		Sources: []SourceConfig{
			{Type: "user", Weight: 0.3},
			{Type: "payments", Weight: 0.3},
			{Type: "pipeline", Weight: 0.2},
			{Type: "auth", Weight: 0.2},
		},
	}
}

// DefaultAdminPort is the admin server's default port.
const DefaultAdminPort = 7460

// Validate checks the whole configuration. The first problem found is
// returned.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if err := c.Logging.validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Generation.validate(); err != nil {
		return fmt.Errorf("generation: %w", err)
	}
	for i, src := range c.Sources {
		if err := src.validate(); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
	}
	return nil
}

func (l LoggingConfig) validate() error {
	switch l.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown level %q", l.Level)
	}
	switch l.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown format %q", l.Format)
	}
	return nil
}

func (g GenerationConfig) validate() error {
	if g.Pattern != "" {
		if _, err := scheduler.ParsePattern(g.Pattern); err != nil {
			return err
		}
	}
	if g.IntervalSeconds < 0 {
		return fmt.Errorf("interval must be positive, got %gs", g.IntervalSeconds)
	}
	if g.BurstProbability > 1 || g.WaveProbability > 1 {
		return fmt.Errorf("escalation probabilities must not exceed 1")
	}
	if g.BurstGapMillis < 0 {
		return fmt.Errorf("burst gap must be non-negative, got %dms", g.BurstGapMillis)
	}
	if g.WavePeriodSeconds < 0 {
		return fmt.Errorf("wave period must be non-negative, got %gs", g.WavePeriodSeconds)
	}
	if g.WaveAmplitude < 0 {
		return fmt.Errorf("wave amplitude must be non-negative, got %g", g.WaveAmplitude)
	}
	if err := g.TimeModifiers.Validate(); err != nil {
		return err
	}
	if err := scheduler.ValidateGuard(g.Guard); err != nil {
		return err
	}
	return nil
}

func (s SourceConfig) validate() error {
	if s.Type == "" {
		return fmt.Errorf("source type is required")
	}
	if s.Weight < 0 {
		return fmt.Errorf("weight must be non-negative, got %g", s.Weight)
	}
	if s.FailureProbability < 0 || s.FailureProbability > 1 {
		return fmt.Errorf("failure probability must be within [0,1], got %g", s.FailureProbability)
	}
	for kind, w := range s.KindWeights {
		if w < 0 {
			return fmt.Errorf("kind weight for %q must be non-negative, got %g", kind, w)
		}
	}
	return nil
}

// SchedulerConfig converts the generation section plus the per-source
// weights into the scheduler's tunables. Zero-valued fields stay zero so
// the scheduler fills in its own defaults.
func (c *Config) SchedulerConfig(sourceNames []string) scheduler.Config {
	weights := make(map[string]float64, len(c.Sources))
	for i, src := range c.Sources {
		if i < len(sourceNames) && src.Weight > 0 {
			weights[sourceNames[i]] = src.Weight
		}
	}
	return scheduler.Config{
		Pattern:          scheduler.Pattern(c.Generation.Pattern),
		BaseInterval:     time.Duration(c.Generation.IntervalSeconds * float64(time.Second)),
		Weights:          weights,
		BurstProbability: c.Generation.BurstProbability,
		WaveProbability:  c.Generation.WaveProbability,
		BurstGap:         time.Duration(c.Generation.BurstGapMillis) * time.Millisecond,
		WavePeriod:       time.Duration(c.Generation.WavePeriodSeconds * float64(time.Second)),
		WaveAmplitude:    c.Generation.WaveAmplitude,
		Modifiers:        c.Generation.TimeModifiers,
		Guard:            c.Generation.Guard,
	}
}
