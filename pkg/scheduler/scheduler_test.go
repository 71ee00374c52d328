package scheduler

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getfaultd/faultd/pkg/fault"
	"github.com/getfaultd/faultd/pkg/stats"
)

// fakeSource is a deterministic fault.Source: every invocation of a known
// operation raises the configured kind (or succeeds when fail is false).
type fakeSource struct {
	name string
	ops  []string
	kind fault.Kind
	fail bool

	delay time.Duration

	mu      sync.Mutex
	invoked int64
}

func newFakeSource(name string, ops ...string) *fakeSource {
	return &fakeSource{name: name, ops: ops, kind: fault.KindTimeout, fail: true}
}

func (f *fakeSource) Name() string         { return f.name }
func (f *fakeSource) Operations() []string { return f.ops }

func (f *fakeSource) Invoke(ctx context.Context, op string, params map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	found := false
	for _, candidate := range f.ops {
		if candidate == op {
			found = true
			break
		}
	}
	if !found {
		return &fault.NotFoundError{What: "operation", Name: op, Available: f.ops}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.invoked++
	f.mu.Unlock()
	if !f.fail {
		return nil
	}
	return fault.New(f.kind, f.name, op, "injected failure")
}

func (f *fakeSource) invocations() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invoked
}

func (f *fakeSource) FailureProbability() float64 { return 1.0 }

func (f *fakeSource) SetFailureProbability(p float64) error { return nil }

func (f *fakeSource) Health() fault.Health {
	return fault.Health{Status: "healthy", ErrorRate: 0}
}

func newRegistry(t *testing.T, sources ...fault.Source) *fault.Registry {
	t.Helper()
	reg := fault.NewRegistry()
	for _, src := range sources {
		if err := reg.Register(src); err != nil {
			t.Fatalf("register %s: %v", src.Name(), err)
		}
	}
	return reg
}

func newScheduler(t *testing.T, reg *fault.Registry, agg *stats.Aggregate, cfg Config, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(reg, agg, cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestWeightedSelectionFidelity(t *testing.T) {
	a := newFakeSource("alpha", "op")
	b := newFakeSource("beta", "op")
	reg := newRegistry(t, a, b)

	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{"alpha": 0.8, "beta": 0.2}
	s := newScheduler(t, reg, stats.New(), cfg, WithSeed(1))

	const draws = 2000
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		name, ok := s.selectWeighted()
		if !ok {
			t.Fatal("selectWeighted found no eligible source")
		}
		counts[name]++
	}

	share := float64(counts["alpha"]) / draws
	if share < 0.70 || share > 0.90 {
		t.Errorf("alpha share = %.3f over %d draws, want within [0.70, 0.90]", share, draws)
	}
	if counts["beta"] == 0 {
		t.Error("beta never selected despite positive weight")
	}
}

func TestSelectWeightedEligibility(t *testing.T) {
	weighted := newFakeSource("weighted", "op")
	unweighted := newFakeSource("unweighted", "op")
	zeroed := newFakeSource("zeroed", "op")
	opless := newFakeSource("opless")
	reg := newRegistry(t, weighted, unweighted, zeroed, opless)

	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{"weighted": 1.0, "zeroed": 0, "opless": 1.0}
	s := newScheduler(t, reg, stats.New(), cfg, WithSeed(7))

	for i := 0; i < 200; i++ {
		name, ok := s.selectWeighted()
		if !ok {
			t.Fatal("selectWeighted found no eligible source")
		}
		if name != "weighted" {
			t.Fatalf("selected ineligible source %q", name)
		}
	}
}

func TestSelectWeightedNothingEligible(t *testing.T) {
	reg := newRegistry(t, newFakeSource("alpha", "op"))

	cfg := DefaultConfig()
	s := newScheduler(t, reg, stats.New(), cfg, WithSeed(3))

	if name, ok := s.selectWeighted(); ok {
		t.Errorf("empty weight map must yield no selection, got %q", name)
	}
}

func TestBurstSizeAndAccounting(t *testing.T) {
	src := newFakeSource("primary", "op_a", "op_b")
	reg := newRegistry(t, src)
	agg := stats.New()

	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{"primary": 1.0}
	cfg.BurstGap = time.Millisecond
	s := newScheduler(t, reg, agg, cfg, WithSeed(42))

	const runs = 25
	prev := int64(0)
	for i := 0; i < runs; i++ {
		s.runBurst(context.Background())
		now := src.invocations()
		size := now - prev
		if size < burstSizeMin || size > burstSizeMax {
			t.Fatalf("burst %d generated %d injections, want within [%d, %d]", i, size, burstSizeMin, burstSizeMax)
		}
		prev = now
	}

	snap := agg.Snapshot()
	if snap.BurstsTriggered != runs {
		t.Errorf("bursts triggered = %d, want %d", snap.BurstsTriggered, runs)
	}
	if snap.BurstInjections != src.invocations() {
		t.Errorf("burst injections = %d, want %d", snap.BurstInjections, src.invocations())
	}
	if snap.PerPattern[string(PatternBurst)] != snap.Total {
		t.Errorf("burst events tagged %v, want all %d under %q", snap.PerPattern, snap.Total, PatternBurst)
	}
	if snap.PerSource["primary"] != snap.Total {
		t.Errorf("per-source count = %d, want %d on sole source", snap.PerSource["primary"], snap.Total)
	}
}

// phantomOpSource advertises one operation more than its Invoke accepts,
// modeling a custom source whose declared surface is out of sync.
type phantomOpSource struct{ *fakeSource }

func (p *phantomOpSource) Operations() []string {
	return append(append([]string{}, p.fakeSource.ops...), "phantom")
}

func TestBurstSkipsRejectedOperations(t *testing.T) {
	src := &phantomOpSource{newFakeSource("primary", "op_a")}
	reg := newRegistry(t, src)
	agg := stats.New()

	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{"primary": 1.0}
	cfg.BurstGap = time.Millisecond
	s := newScheduler(t, reg, agg, cfg, WithSeed(7))

	for i := 0; i < 20; i++ {
		s.runBurst(context.Background())
	}

	snap := agg.Snapshot()
	if snap.Total == 0 {
		t.Fatal("no injections recorded across 20 bursts")
	}
	if snap.BurstInjections != snap.Total {
		t.Errorf("burst injections = %d, want %d: rejected operations must not count", snap.BurstInjections, snap.Total)
	}
	if snap.BurstInjections != src.invocations() {
		t.Errorf("burst injections = %d, want %d actually invoked", snap.BurstInjections, src.invocations())
	}
}

func TestBurstHaltsOnCancel(t *testing.T) {
	src := newFakeSource("primary", "op")
	reg := newRegistry(t, src)
	agg := stats.New()

	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{"primary": 1.0}
	cfg.BurstGap = 50 * time.Millisecond
	s := newScheduler(t, reg, agg, cfg, WithSeed(9))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	s.runBurst(ctx)

	snap := agg.Snapshot()
	if snap.BurstsTriggered != 1 {
		t.Errorf("interrupted burst still counts once, got %d", snap.BurstsTriggered)
	}
	if snap.BurstInjections != src.invocations() {
		t.Errorf("burst injections = %d, want %d actually generated", snap.BurstInjections, src.invocations())
	}
	// The 50ms gap means cancellation at 20ms cuts the burst well short.
	if snap.BurstInjections > 2 {
		t.Errorf("cancelled burst generated %d injections, want at most 2", snap.BurstInjections)
	}
}

func TestWaveProbabilityBounds(t *testing.T) {
	for _, amplitude := range []float64{0.5, 1.0, 2.0} {
		for phase := 0.0; phase < 1.0; phase += 0.01 {
			p := waveProbability(phase, amplitude)
			if p > 1.0 {
				t.Fatalf("waveProbability(%.2f, %.1f) = %.4f exceeds 1", phase, amplitude, p)
			}
			if p < waveBaseChance {
				t.Fatalf("waveProbability(%.2f, %.1f) = %.4f below base chance at non-negative amplitude", phase, amplitude, p)
			}
		}
	}

	// Crest of the wave: the multiplier pushes past 1 and clamps.
	if p := waveProbability(0.25, 0.5); p != 1.0 {
		t.Errorf("crest probability = %.4f, want clamp to 1", p)
	}
}

func TestNextIntervalPerPattern(t *testing.T) {
	reg := newRegistry(t, newFakeSource("alpha", "op"))
	base := time.Second

	cfg := DefaultConfig()
	cfg.BaseInterval = base
	cfg.Modifiers = TimeModifiers{} // disabled: jitter bounds must hold alone
	s := newScheduler(t, reg, stats.New(), cfg, WithSeed(5))

	for i := 0; i < 100; i++ {
		if d := s.nextInterval(PatternBurst); d < time.Duration(float64(base)*cooldownMin) || d > time.Duration(float64(base)*cooldownMax) {
			t.Fatalf("burst cooldown = %v, want within [%.1fs, %.1fs]", d, cooldownMin, cooldownMax)
		}
		if d := s.nextInterval(PatternRandom); d < time.Duration(float64(base)*jitterMin) || d > time.Duration(float64(base)*jitterMax)+time.Millisecond {
			t.Fatalf("random interval = %v, want within jitter bounds of %v", d, base)
		}
		if d := s.nextInterval(PatternWave); d < base/2 || d > base+base/2 {
			t.Fatalf("wave interval = %v, want within [%v, %v]", d, base/2, base+base/2)
		}
		if d := s.nextInterval(PatternPeriodic); d != base {
			t.Fatalf("periodic interval = %v, want exactly %v", d, base)
		}
	}
}

func TestStartStopIdempotent(t *testing.T) {
	var buf bytes.Buffer
	var bufMu sync.Mutex
	log := slog.New(slog.NewTextHandler(&lockedWriter{mu: &bufMu, buf: &buf}, nil))

	src := newFakeSource("alpha", "op")
	reg := newRegistry(t, src)

	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{"alpha": 1.0}
	cfg.BaseInterval = 20 * time.Millisecond
	cfg.BurstProbability = -1
	cfg.WaveProbability = -1
	cfg.Modifiers = TimeModifiers{}
	s := newScheduler(t, reg, stats.New(), cfg, WithLogger(log), WithSeed(11))

	s.Start()
	startedAt := s.StartedAt()
	s.Start()
	if got := s.StartedAt(); !got.Equal(startedAt) {
		t.Error("second Start must not restart the run")
	}
	if !s.IsRunning() {
		t.Fatal("scheduler not running after Start")
	}

	s.Stop()
	if s.IsRunning() {
		t.Fatal("scheduler still running after Stop")
	}
	s.Stop()

	bufMu.Lock()
	logged := buf.String()
	bufMu.Unlock()
	if !strings.Contains(logged, "already running") {
		t.Error("second Start must warn that the scheduler is already running")
	}
	if !strings.Contains(logged, "is not running") {
		t.Error("second Stop must warn that the scheduler is not running")
	}
}

// lockedWriter serializes handler writes so the test can read the buffer
// while the loop goroutine logs.
type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func TestStopWithinGrace(t *testing.T) {
	src := newFakeSource("alpha", "op")
	src.delay = 50 * time.Millisecond
	reg := newRegistry(t, src)

	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{"alpha": 1.0}
	cfg.BaseInterval = 10 * time.Millisecond
	cfg.BurstProbability = -1
	cfg.WaveProbability = -1
	cfg.Modifiers = TimeModifiers{}
	s := newScheduler(t, reg, stats.New(), cfg, WithSeed(13))

	s.Start()
	time.Sleep(60 * time.Millisecond)

	begun := time.Now()
	s.Stop()
	if waited := time.Since(begun); waited > stopGrace+500*time.Millisecond {
		t.Errorf("Stop took %v, want within grace period %v", waited, stopGrace)
	}
	if s.IsRunning() {
		t.Error("scheduler reports running after Stop")
	}
}

func TestSteadyRunEndToEnd(t *testing.T) {
	src := newFakeSource("user_service", "authenticate_user", "get_user_profile")
	reg := newRegistry(t, src)
	agg := stats.New()

	var sinkMu sync.Mutex
	var sunk []stats.Event

	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{"user_service": 1.0}
	cfg.BaseInterval = 20 * time.Millisecond
	cfg.BurstProbability = -1
	cfg.WaveProbability = -1
	cfg.Modifiers = TimeModifiers{}
	s := newScheduler(t, reg, agg, cfg, WithSeed(17), WithSink(func(ev stats.Event) {
		sinkMu.Lock()
		sunk = append(sunk, ev)
		sinkMu.Unlock()
	}))

	s.Start()
	time.Sleep(500 * time.Millisecond)
	s.Stop()

	snap := agg.Snapshot()
	if snap.Total < 1 {
		t.Fatal("steady run produced no injections")
	}
	if snap.PerPattern[string(PatternRandom)] != snap.Total {
		t.Errorf("per-pattern = %v, want all %d under %q with escalation disabled",
			snap.PerPattern, snap.Total, PatternRandom)
	}
	if snap.PerSource["user_service"] != snap.Total {
		t.Errorf("per-source = %v, want all %d on the sole source", snap.PerSource, snap.Total)
	}
	if snap.PerKind[fault.KindTimeout] != snap.Total {
		t.Errorf("per-kind = %v, want all %d as %q", snap.PerKind, snap.Total, fault.KindTimeout)
	}
	if snap.RatePerMinute <= 0 {
		t.Errorf("rate per minute = %.2f, want positive", snap.RatePerMinute)
	}
	if snap.LastInjection.IsZero() {
		t.Error("last-injection timestamp never set")
	}

	sinkMu.Lock()
	defer sinkMu.Unlock()
	if int64(len(sunk)) != snap.Total {
		t.Errorf("sink saw %d events, aggregate counted %d", len(sunk), snap.Total)
	}
	for _, ev := range sunk {
		if ev.ID == "" {
			t.Error("sink event missing id")
		}
		if ev.Operation != "authenticate_user" && ev.Operation != "get_user_profile" {
			t.Errorf("sink event on unknown operation %q", ev.Operation)
		}
	}
}

func TestGuardSuppressesCycles(t *testing.T) {
	src := newFakeSource("alpha", "op")
	reg := newRegistry(t, src)
	agg := stats.New()

	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{"alpha": 1.0}
	cfg.BaseInterval = 10 * time.Millisecond
	cfg.Guard = "hour < 0"
	cfg.Modifiers = TimeModifiers{}
	s := newScheduler(t, reg, agg, cfg, WithSeed(19))

	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.Stop()

	if snap := agg.Snapshot(); snap.Total != 0 {
		t.Errorf("guarded run injected %d times, want 0", snap.Total)
	}
}

func TestInjectOnce(t *testing.T) {
	src := newFakeSource("payments", "process_payment")
	src.kind = fault.KindRateLimited
	reg := newRegistry(t, src)
	agg := stats.New()

	s := newScheduler(t, reg, agg, DefaultConfig(), WithSeed(23))

	err := s.InjectOnce(context.Background(), "payments", "process_payment", map[string]any{"amount": 50.0})
	fe, ok := fault.AsFault(err)
	if !ok {
		t.Fatalf("InjectOnce returned %v, want a fault", err)
	}
	if fe.Kind != fault.KindRateLimited {
		t.Errorf("fault kind = %q, want %q", fe.Kind, fault.KindRateLimited)
	}

	snap := agg.Snapshot()
	if snap.Total != 1 {
		t.Fatalf("total = %d, want 1", snap.Total)
	}
	if snap.PerPattern[PatternOnDemand] != 1 {
		t.Errorf("per-pattern = %v, want the injection tagged %q", snap.PerPattern, PatternOnDemand)
	}
	if snap.PerKind[fault.KindRateLimited] != 1 {
		t.Errorf("per-kind = %v, want one %q", snap.PerKind, fault.KindRateLimited)
	}
}

func TestInjectOnceSuccessStillRecorded(t *testing.T) {
	src := newFakeSource("alpha", "op")
	src.fail = false
	reg := newRegistry(t, src)
	agg := stats.New()

	s := newScheduler(t, reg, agg, DefaultConfig(), WithSeed(29))

	if err := s.InjectOnce(context.Background(), "alpha", "op", nil); err != nil {
		t.Fatalf("InjectOnce: %v", err)
	}

	snap := agg.Snapshot()
	if snap.Total != 1 {
		t.Fatalf("total = %d, want 1", snap.Total)
	}
	if len(snap.PerKind) != 0 {
		t.Errorf("per-kind = %v, want empty when the invocation succeeded", snap.PerKind)
	}
}

func TestInjectOnceLookupMisses(t *testing.T) {
	src := newFakeSource("alpha", "op")
	reg := newRegistry(t, src)
	agg := stats.New()

	s := newScheduler(t, reg, agg, DefaultConfig(), WithSeed(31))

	if err := s.InjectOnce(context.Background(), "ghost", "op", nil); !fault.IsNotFound(err) {
		t.Errorf("unknown source: err = %v, want not-found", err)
	}
	err := s.InjectOnce(context.Background(), "alpha", "ghost_op", nil)
	if !fault.IsNotFound(err) {
		t.Fatalf("unknown operation: err = %v, want not-found", err)
	}
	if !strings.Contains(err.Error(), "op") {
		t.Errorf("not-found error %q must name the available operations", err)
	}

	if snap := agg.Snapshot(); snap.Total != 0 {
		t.Errorf("lookup misses recorded %d injections, want 0", snap.Total)
	}
}

func TestTuningRejectionsRetainState(t *testing.T) {
	reg := newRegistry(t, newFakeSource("alpha", "op"))

	cfg := DefaultConfig()
	cfg.Pattern = PatternWave
	cfg.BaseInterval = 3 * time.Second
	s := newScheduler(t, reg, stats.New(), cfg, WithSeed(37))

	if err := s.SetPattern("steady"); err != ErrInvalidPattern {
		t.Errorf("SetPattern(steady) err = %v, want ErrInvalidPattern", err)
	}
	if got := s.Pattern(); got != PatternWave {
		t.Errorf("pattern after rejection = %q, want retained %q", got, PatternWave)
	}

	if err := s.SetBaseInterval(-time.Second); err != ErrInvalidInterval {
		t.Errorf("SetBaseInterval(-1s) err = %v, want ErrInvalidInterval", err)
	}
	if err := s.SetBaseInterval(0); err != ErrInvalidInterval {
		t.Errorf("SetBaseInterval(0) err = %v, want ErrInvalidInterval", err)
	}
	if got := s.BaseInterval(); got != 3*time.Second {
		t.Errorf("interval after rejection = %v, want retained 3s", got)
	}

	if err := s.ConfigurePeakHours([]Window{{9, 12}, {25, 30}}); err == nil {
		t.Error("ConfigurePeakHours must reject an invalid window")
	}
	if got := s.TimeModifiersConfig().PeakHours; len(got) != len(DefaultTimeModifiers().PeakHours) {
		t.Errorf("peak hours after rejection = %v, want defaults retained", got)
	}

	if err := s.SetGuard("hour >>"); err == nil {
		t.Error("SetGuard must reject a malformed expression")
	}
	if got := s.Guard(); got != "" {
		t.Errorf("guard after rejection = %q, want empty", got)
	}
}

func TestTuningUpdatesApply(t *testing.T) {
	alpha := newFakeSource("alpha", "op")
	beta := newFakeSource("beta", "op")
	reg := newRegistry(t, alpha, beta)

	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{"alpha": 1.0, "beta": 1.0}
	s := newScheduler(t, reg, stats.New(), cfg, WithSeed(41))

	if err := s.SetPattern(PatternBurst); err != nil {
		t.Fatalf("SetPattern: %v", err)
	}
	if got := s.Pattern(); got != PatternBurst {
		t.Errorf("pattern = %q, want %q", got, PatternBurst)
	}

	if err := s.SetBaseInterval(500 * time.Millisecond); err != nil {
		t.Fatalf("SetBaseInterval: %v", err)
	}
	if got := s.BaseInterval(); got != 500*time.Millisecond {
		t.Errorf("interval = %v, want 500ms", got)
	}

	// Partial update: unregistered names and negative weights are ignored,
	// zero removes beta from the draw.
	s.UpdateWeights(map[string]float64{"beta": 0, "ghost": 5, "alpha": -1})
	got := s.Weights()
	if got["alpha"] != 1.0 {
		t.Errorf("negative weight mutated alpha: %v", got)
	}
	if got["beta"] != 0 {
		t.Errorf("beta weight = %v, want 0", got["beta"])
	}
	if _, ok := got["ghost"]; ok {
		t.Error("unregistered source accepted into weights")
	}
	for i := 0; i < 100; i++ {
		name, ok := s.selectWeighted()
		if !ok || name != "alpha" {
			t.Fatalf("draw after zeroing beta = (%q, %v), want alpha only", name, ok)
		}
	}

	if err := s.SetGuard("!weekend"); err != nil {
		t.Fatalf("SetGuard: %v", err)
	}
	if got := s.Guard(); got != "!weekend" {
		t.Errorf("guard = %q, want %q", got, "!weekend")
	}
	if err := s.SetGuard(""); err != nil {
		t.Fatalf("SetGuard clear: %v", err)
	}
	if got := s.Guard(); got != "" {
		t.Errorf("cleared guard = %q, want empty", got)
	}
}

func TestNewValidation(t *testing.T) {
	reg := newRegistry(t, newFakeSource("alpha", "op"))
	agg := stats.New()

	if _, err := New(reg, agg, Config{Pattern: "spiky"}); err == nil {
		t.Error("New must reject an unknown pattern")
	}
	if _, err := New(reg, agg, Config{Guard: "hour >>"}); err == nil {
		t.Error("New must reject a malformed guard")
	}
	if _, err := New(reg, agg, Config{Modifiers: TimeModifiers{Enabled: true, PeakHours: []Window{{12, 9}}}}); err == nil {
		t.Error("New must reject invalid peak windows")
	}

	s, err := New(reg, agg, Config{})
	if err != nil {
		t.Fatalf("New with zero config: %v", err)
	}
	def := DefaultConfig()
	if got := s.Pattern(); got != def.Pattern {
		t.Errorf("default pattern = %q, want %q", got, def.Pattern)
	}
	if got := s.BaseInterval(); got != def.BaseInterval {
		t.Errorf("default interval = %v, want %v", got, def.BaseInterval)
	}
}
