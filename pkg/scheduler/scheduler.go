// Package scheduler implements the pattern-driven injection loop at the
// heart of faultd.
//
// A Scheduler runs one cancellable timed loop. Each cycle it resolves the
// effective temporal pattern (steady random noise, a burst cluster, a
// sinusoidal wave), draws a weighted fault source, invokes one of its
// operations, records the outcome, and computes how long to sleep until
// the next cycle from the pattern, the elapsed time and the time-of-day
// modifiers. Everything live-tunable (pattern, interval, weights, guard)
// sits behind one mutex and may be adjusted while the loop runs.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/getfaultd/faultd/internal/id"
	"github.com/getfaultd/faultd/pkg/fault"
	"github.com/getfaultd/faultd/pkg/logging"
	"github.com/getfaultd/faultd/pkg/stats"
)

// Timing and probability constants of the reference deployment.
const (
	burstSizeMin     = 3
	burstSizeMax     = 8
	burstPrimaryBias = 0.7 // chance the second half of a burst stays on the primary source

	waveBaseChance = 0.8 // per-cycle injection chance at multiplier 1.0

	cooldownMin = 1.5 // post-burst interval stretch, lower bound
	cooldownMax = 2.5 // post-burst interval stretch, upper bound

	jitterMin = 0.8
	jitterMax = 1.2

	// loopBackoff spaces out cycles after a bookkeeping failure so a
	// persistent bug cannot turn the loop hot.
	loopBackoff = time.Second

	// stopGrace bounds how long Stop waits for the loop to observe
	// cancellation.
	stopGrace = 2 * time.Second
)

// PatternOnDemand tags injections triggered outside the timed loop. It is
// a stats key, not a schedulable pattern.
const PatternOnDemand = "on_demand"

// Config holds the scheduler's tunables. Zero values are filled in from
// DefaultConfig by New.
type Config struct {
	// Pattern is the configured pattern. PatternRandom escalates
	// probabilistically; the others are used verbatim.
	Pattern Pattern

	// BaseInterval is the base sleep between cycles.
	BaseInterval time.Duration

	// Weights maps source name to relative probability mass. A source
	// absent from the map, or with weight zero, is excluded from draws.
	Weights map[string]float64

	// BurstProbability is the chance a random-pattern cycle escalates to
	// a burst. Zero means the default; a negative value disables burst
	// escalation entirely.
	BurstProbability float64

	// WaveProbability is the chance a random-pattern cycle escalates to a
	// wave, drawn from the mass remaining after the burst roll. Zero means
	// the default; negative disables wave escalation.
	WaveProbability float64

	// BurstGap is the fixed delay between injections inside a burst.
	BurstGap time.Duration

	// WavePeriod is the period of the sinusoidal wave.
	WavePeriod time.Duration

	// WaveAmplitude scales the wave's swing.
	WaveAmplitude float64

	// Modifiers are the time-of-day interval modifiers.
	Modifiers TimeModifiers

	// Guard is an optional expr guard evaluated each cycle; empty means
	// no guard.
	Guard string
}

// DefaultConfig returns the reference deployment's tunables.
func DefaultConfig() Config {
	return Config{
		Pattern:          PatternRandom,
		BaseInterval:     2 * time.Second,
		Weights:          map[string]float64{},
		BurstProbability: 0.2,
		WaveProbability:  0.3,
		BurstGap:         200 * time.Millisecond,
		WavePeriod:       60 * time.Second,
		WaveAmplitude:    0.5,
		Modifiers:        DefaultTimeModifiers(),
	}
}

// Scheduler runs the timed injection loop. Construct with New; all
// methods are safe for concurrent use.
type Scheduler struct {
	log      *slog.Logger
	registry *fault.Registry
	agg      *stats.Aggregate

	paramsFor func(source, op string) map[string]any
	sink      func(stats.Event)

	mu        sync.Mutex
	rng       *rand.Rand
	cfg       Config
	grd       *guard
	running   bool
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithSink sets a callback receiving every injection event after it is
// recorded. The callback must not block.
func WithSink(sink func(stats.Event)) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// WithParams sets the provider of default operation parameters.
func WithParams(fn func(source, op string) map[string]any) Option {
	return func(s *Scheduler) { s.paramsFor = fn }
}

// WithSeed fixes the rng seed for reproducible selection in tests.
func WithSeed(seed int64) Option {
	return func(s *Scheduler) { s.rng = rand.New(rand.NewSource(seed)) }
}

// New creates a scheduler over the given registry and aggregate.
// A config Guard that fails to compile is reported immediately.
func New(registry *fault.Registry, agg *stats.Aggregate, cfg Config, opts ...Option) (*Scheduler, error) {
	def := DefaultConfig()
	if cfg.Pattern == "" {
		cfg.Pattern = def.Pattern
	}
	if !cfg.Pattern.Valid() {
		return nil, errors.New("invalid pattern in scheduler config")
	}
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = def.BaseInterval
	}
	if cfg.Weights == nil {
		cfg.Weights = map[string]float64{}
	}
	switch {
	case cfg.BurstProbability == 0:
		cfg.BurstProbability = def.BurstProbability
	case cfg.BurstProbability < 0:
		cfg.BurstProbability = 0
	}
	switch {
	case cfg.WaveProbability == 0:
		cfg.WaveProbability = def.WaveProbability
	case cfg.WaveProbability < 0:
		cfg.WaveProbability = 0
	}
	if cfg.BurstGap <= 0 {
		cfg.BurstGap = def.BurstGap
	}
	if cfg.WavePeriod <= 0 {
		cfg.WavePeriod = def.WavePeriod
	}
	if cfg.WaveAmplitude <= 0 {
		cfg.WaveAmplitude = def.WaveAmplitude
	}
	if err := cfg.Modifiers.Validate(); err != nil {
		return nil, err
	}

	grd, err := compileGuard(cfg.Guard)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		log:       logging.Nop(),
		registry:  registry,
		agg:       agg,
		cfg:       cfg,
		grd:       grd,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		paramsFor: func(string, string) map[string]any { return nil },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins the injection loop on its own goroutine. Idempotent: a
// second Start warns and changes nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("injection scheduler is already running",
			"component", "scheduler", "operation", "start")
		return
	}
	s.running = true
	s.startedAt = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	pattern := s.cfg.Pattern
	interval := s.cfg.BaseInterval
	s.mu.Unlock()

	s.agg.MarkStart(time.Now())
	s.log.Info("starting scheduled injection",
		"component", "scheduler",
		"pattern", string(pattern),
		"base_interval", interval.Seconds(),
		"sources", s.registry.Names())

	go s.loop(ctx, done)
}

// Stop signals cancellation and waits up to the grace period for the
// loop to exit. Idempotent: stopping a stopped scheduler warns and
// changes nothing. In-flight invocations are allowed to finish; they are
// never force-killed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.log.Warn("injection scheduler is not running",
			"component", "scheduler", "operation", "stop")
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.log.Warn("scheduler loop did not exit within grace period",
			"component", "scheduler", "grace", stopGrace.String())
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	snap := s.agg.Snapshot()
	s.log.Info("stopped scheduled injection",
		"component", "scheduler",
		"total_injections", snap.Total,
		"bursts_triggered", snap.BurstsTriggered,
		"runtime_seconds", snap.ElapsedSeconds)
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StartedAt returns the moment the latest run began, zero before the
// first Start.
func (s *Scheduler) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		pattern := s.cycle(ctx)
		if !sleepCtx(ctx, s.nextInterval(pattern)) {
			return
		}
	}
}

// cycle performs one selection-and-injection pass. A panic in the
// scheduler's own bookkeeping aborts only this cycle: it is logged and
// followed by a fixed backoff so a persistent failure cannot spin.
func (s *Scheduler) cycle(ctx context.Context) (pattern Pattern) {
	pattern = s.effectivePattern()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("injection cycle aborted",
				"component", "scheduler",
				"pattern", string(pattern),
				"panic", r)
			sleepCtx(ctx, loopBackoff)
		}
	}()

	s.mu.Lock()
	grd := s.grd
	started := s.startedAt
	s.mu.Unlock()

	now := time.Now()
	var elapsed time.Duration
	if !started.IsZero() {
		elapsed = now.Sub(started)
	}
	allowed, err := grd.allows(now, elapsed, pattern)
	if err != nil {
		s.log.Warn("guard evaluation failed, allowing cycle",
			"component", "scheduler", "error", err)
	}
	if !allowed {
		s.log.Debug("cycle suppressed by guard",
			"component", "scheduler", "pattern", string(pattern))
		return pattern
	}

	switch pattern {
	case PatternBurst:
		s.runBurst(ctx)
	case PatternWave:
		s.runWave(ctx)
	default:
		s.injectSingle(ctx, PatternRandom)
	}
	return pattern
}

// effectivePattern resolves what this cycle actually does. A configured
// random pattern escalates probabilistically to burst or wave; explicit
// configurations are used verbatim.
func (s *Scheduler) effectivePattern() Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Pattern != PatternRandom {
		return s.cfg.Pattern
	}
	if s.rng.Float64() < s.cfg.BurstProbability {
		return PatternBurst
	}
	if s.rng.Float64() < s.cfg.WaveProbability {
		return PatternWave
	}
	return PatternRandom
}

// injectSingle performs one steady-style injection: weighted source,
// uniform operation, invoke, record. Selection misses are a logged no-op,
// never fatal.
func (s *Scheduler) injectSingle(ctx context.Context, tag Pattern) {
	name, ok := s.selectWeighted()
	if !ok {
		s.log.Warn("no eligible sources for injection",
			"component", "scheduler", "pattern", string(tag))
		return
	}
	src, err := s.registry.Get(name)
	if err != nil {
		s.log.Warn("selected source vanished from registry",
			"component", "scheduler", "service", name)
		return
	}
	ops := src.Operations()
	if len(ops) == 0 {
		s.log.Warn("selected source exposes no operations",
			"component", "scheduler", "service", name)
		return
	}
	op := ops[s.randIntn(len(ops))]
	_ = s.invokeAndRecord(ctx, src, op, string(tag), nil)
}

// runBurst fires a rapid cluster of injections concentrated on one
// primary source. Lookup failures on a sub-step skip that step only.
func (s *Scheduler) runBurst(ctx context.Context) {
	s.mu.Lock()
	size := burstSizeMin + s.rng.Intn(burstSizeMax-burstSizeMin+1)
	gap := s.cfg.BurstGap
	s.mu.Unlock()

	primary, ok := s.selectWeighted()
	if !ok {
		s.log.Warn("no eligible sources for burst", "component", "scheduler")
		return
	}

	s.log.Info("starting injection burst",
		"component", "scheduler",
		"pattern", string(PatternBurst),
		"burst_size", size,
		"primary_service", primary)

	burstStart := time.Now()
	generated := 0

	for i := 0; i < size; i++ {
		if ctx.Err() != nil {
			break
		}

		// First half stays on the primary source; the second half stays
		// with probability burstPrimaryBias, else re-rolls.
		name := primary
		if i >= size/2 && s.randFloat() >= burstPrimaryBias {
			if alt, ok := s.selectWeighted(); ok {
				name = alt
			}
		}

		src, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		ops := src.Operations()
		if len(ops) == 0 {
			continue
		}
		op := ops[s.randIntn(len(ops))]

		err = s.invokeAndRecord(ctx, src, op, string(PatternBurst), nil)
		if err != nil && ctx.Err() != nil {
			break
		}
		// Lookup misses record no event, so they do not count toward
		// the burst total.
		if !fault.IsNotFound(err) {
			generated++
		}

		if i < size-1 && !sleepCtx(ctx, gap) {
			break
		}
	}

	s.agg.RecordBurst(generated)
	s.log.Info("completed injection burst",
		"component", "scheduler",
		"pattern", string(PatternBurst),
		"burst_size", size,
		"injections_generated", generated,
		"duration_seconds", time.Since(burstStart).Seconds())
}

// runWave performs at most one injection, gated by the sinusoidal
// probability for the current wave phase.
func (s *Scheduler) runWave(ctx context.Context) {
	s.mu.Lock()
	started := s.startedAt
	period := s.cfg.WavePeriod
	amplitude := s.cfg.WaveAmplitude
	roll := s.rng.Float64()
	s.mu.Unlock()

	var elapsed time.Duration
	if !started.IsZero() {
		elapsed = time.Since(started)
	}
	phase := wavePhase(elapsed, period)
	p := waveProbability(phase, amplitude)

	if roll >= p {
		s.log.Debug("wave trough, skipping cycle",
			"component", "scheduler",
			"wave_phase", phase,
			"injection_probability", p)
		return
	}
	s.injectSingle(ctx, PatternWave)
}

// invokeAndRecord is the shared invocation-and-recording path used by the
// timed loop and by on-demand injection. The raised fault is the designed
// signal: it is recorded, logged, and returned raw. A cancelled context
// returns without recording.
func (s *Scheduler) invokeAndRecord(ctx context.Context, src fault.Source, op, tag string, params map[string]any) error {
	if params == nil {
		params = s.paramsFor(src.Name(), op)
	}

	err := src.Invoke(ctx, op, params)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if fault.IsNotFound(err) {
			s.log.Warn("operation lookup missed during injection",
				"component", "scheduler",
				"service", src.Name(),
				"operation", op,
				"error", err)
			return err
		}
	}

	ev := stats.Event{
		ID:        id.Event(),
		Source:    src.Name(),
		Operation: op,
		Pattern:   tag,
		Timestamp: time.Now(),
	}
	if err != nil {
		ev.Kind = fault.KindOf(err)
	}

	s.agg.Record(ev)
	if s.sink != nil {
		s.sink(ev)
	}

	s.log.Info("generated injection",
		"component", "scheduler",
		"pattern", tag,
		"service", ev.Source,
		"operation", ev.Operation,
		"fault_kind", string(ev.Kind),
		"event_id", ev.ID)
	return err
}

// InjectOnce validates and invokes a specific operation outside the
// timed loop, recording it under the on-demand pattern tag. The raw
// fault, if any, is returned to the caller; the coordinator layer wraps
// it into a structured result.
func (s *Scheduler) InjectOnce(ctx context.Context, sourceName, op string, params map[string]any) error {
	src, err := s.registry.Get(sourceName)
	if err != nil {
		return err
	}

	ops := src.Operations()
	found := false
	for _, candidate := range ops {
		if candidate == op {
			found = true
			break
		}
	}
	if !found {
		return &fault.NotFoundError{What: "operation", Name: op, Available: ops}
	}

	return s.invokeAndRecord(ctx, src, op, PatternOnDemand, params)
}

// selectWeighted draws a source proportionally to the configured weights.
// Sources with zero weight, absent from the weight map, or exposing no
// operations are excluded. Returns false when nothing is eligible.
func (s *Scheduler) selectWeighted() (string, bool) {
	type candidate struct {
		name   string
		weight float64
	}

	s.mu.Lock()
	weights := make(map[string]float64, len(s.cfg.Weights))
	for k, v := range s.cfg.Weights {
		weights[k] = v
	}
	s.mu.Unlock()

	var eligible []candidate
	var total float64
	for _, name := range s.registry.Names() {
		w, ok := weights[name]
		if !ok || w <= 0 {
			continue
		}
		src, err := s.registry.Get(name)
		if err != nil || len(src.Operations()) == 0 {
			continue
		}
		eligible = append(eligible, candidate{name: name, weight: w})
		total += w
	}
	if len(eligible) == 0 {
		return "", false
	}

	roll := s.randFloat() * total
	for _, c := range eligible {
		roll -= c.weight
		if roll < 0 {
			return c.name, true
		}
	}
	return eligible[len(eligible)-1].name, true
}

// nextInterval computes how long to sleep after a cycle of the given
// pattern. Burst and wave carry their own timing and skip jitter and
// time-of-day modulation; periodic is the exact base interval.
func (s *Scheduler) nextInterval(pattern Pattern) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.cfg.BaseInterval
	switch pattern {
	case PatternBurst:
		stretch := cooldownMin + s.rng.Float64()*(cooldownMax-cooldownMin)
		return time.Duration(float64(base) * stretch)
	case PatternWave:
		var elapsed time.Duration
		if !s.startedAt.IsZero() {
			elapsed = time.Since(s.startedAt)
		}
		phase := wavePhase(elapsed, s.cfg.WavePeriod)
		return time.Duration(float64(base) * (1 - 0.5*math.Sin(2*math.Pi*phase)))
	case PatternPeriodic:
		return base
	}

	modulated := s.cfg.Modifiers.Apply(base, time.Now())
	jitter := jitterMin + s.rng.Float64()*(jitterMax-jitterMin)
	return time.Duration(float64(modulated) * jitter)
}

// wavePhase maps elapsed time to a position in [0,1) within the wave
// period.
func wavePhase(elapsed, period time.Duration) float64 {
	if period <= 0 {
		return 0
	}
	return math.Mod(elapsed.Seconds(), period.Seconds()) / period.Seconds()
}

// waveProbability is the per-cycle injection chance at a wave phase,
// clamped to 1.
func waveProbability(phase, amplitude float64) float64 {
	multiplier := 1 + amplitude*(0.5+0.5*math.Sin(2*math.Pi*phase))
	return math.Min(1, waveBaseChance*multiplier)
}

func (s *Scheduler) randIntn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func (s *Scheduler) randFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// sleepCtx sleeps for d or until the context is cancelled. Returns false
// on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
