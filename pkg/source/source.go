// Package source provides the built-in fault sources shipped with faultd.
//
// Each source simulates one subsystem of the reference deployment
// (identity, payments, data pipeline, authorization) and exposes a small
// set of named operations that fail with declared fault kinds when the
// source's probability gate fires. The engine consumes them only through
// the fault.Source interface; deployments can register their own
// implementations alongside or instead of these.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/getfaultd/faultd/pkg/fault"
	"github.com/getfaultd/faultd/pkg/logging"
)

// opSpec describes one operation: the fault kinds it can raise and the
// message used for each.
type opSpec struct {
	name     string
	kinds    []fault.Kind
	messages map[fault.Kind]string
}

// Service is the common fault.Source implementation behind all built-in
// sources. It owns the probability gate, the per-kind weighting, and the
// per-source success/failure accounting.
type Service struct {
	name string
	log  *slog.Logger
	ops  []opSpec

	mu          sync.Mutex
	rng         *rand.Rand
	prob        float64
	kindWeights map[fault.Kind]float64

	total  int64
	failed int64
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithFailureProbability sets the initial probability gate.
func WithFailureProbability(p float64) Option {
	return func(s *Service) {
		if p >= 0 && p <= 1 {
			s.prob = p
		}
	}
}

// WithSeed fixes the rng seed. Tests use this for reproducible draws.
func WithSeed(seed int64) Option {
	return func(s *Service) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithKindWeights overrides the per-kind selection weights.
func WithKindWeights(weights map[fault.Kind]float64) Option {
	return func(s *Service) {
		for k, w := range weights {
			if w >= 0 {
				s.kindWeights[k] = w
			}
		}
	}
}

func newService(name string, defaultProb float64, ops []opSpec, opts ...Option) *Service {
	s := &Service{
		name:        name,
		log:         logging.Nop(),
		ops:         ops,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		prob:        defaultProb,
		kindWeights: make(map[fault.Kind]float64),
	}
	for _, op := range ops {
		for _, k := range op.kinds {
			if _, ok := s.kindWeights[k]; !ok {
				s.kindWeights[k] = 1.0
			}
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements fault.Source.
func (s *Service) Name() string { return s.name }

// Operations implements fault.Source.
func (s *Service) Operations() []string {
	names := make([]string, len(s.ops))
	for i, op := range s.ops {
		names[i] = op.name
	}
	return names
}

// ParamFaultKind is a reserved parameter key. When set to a kind the
// operation declares, a failing invocation raises that kind instead of
// drawing one from the weights.
const ParamFaultKind = "fault_kind"

// Invoke implements fault.Source. When the probability gate fires, the
// failure kind is drawn from the operation's declared kinds weighted by
// the service's kind weights, unless the caller forces one through the
// ParamFaultKind parameter.
func (s *Service) Invoke(ctx context.Context, op string, params map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	spec, ok := s.lookup(op)
	if !ok {
		return &fault.NotFoundError{What: "operation", Name: op, Available: s.Operations()}
	}

	forced, ok := forcedKind(spec, params)
	if params != nil {
		if _, requested := params[ParamFaultKind]; requested && !ok {
			s.log.Warn("requested fault kind not declared for operation, drawing instead",
				"service", s.name,
				"operation", op,
				"requested_kind", fmt.Sprint(params[ParamFaultKind]))
		}
	}

	s.mu.Lock()
	s.total++
	fail := s.rng.Float64() < s.prob
	var kind fault.Kind
	if fail {
		s.failed++
		if ok {
			kind = forced
		} else {
			kind = s.drawKindLocked(spec.kinds)
		}
	}
	s.mu.Unlock()

	if !fail {
		s.log.Debug("operation completed",
			"service", s.name,
			"operation", op,
			"params", len(params))
		return nil
	}

	msg := spec.messages[kind]
	if msg == "" {
		msg = "simulated failure"
	}
	err := fault.New(kind, s.name, op, msg)
	s.log.Error("operation failed",
		"service", s.name,
		"operation", op,
		"fault_kind", string(kind),
		"error", err)
	return err
}

// forcedKind resolves the ParamFaultKind parameter against the
// operation's declared kinds.
func forcedKind(spec opSpec, params map[string]any) (fault.Kind, bool) {
	if params == nil {
		return "", false
	}
	raw, ok := params[ParamFaultKind].(string)
	if !ok || raw == "" {
		return "", false
	}
	want := fault.Kind(raw)
	for _, k := range spec.kinds {
		if k == want {
			return want, true
		}
	}
	return "", false
}

func (s *Service) lookup(op string) (opSpec, bool) {
	for _, spec := range s.ops {
		if spec.name == op {
			return spec, true
		}
	}
	return opSpec{}, false
}

// drawKindLocked selects a kind among candidates proportionally to the
// configured kind weights. Callers hold s.mu.
func (s *Service) drawKindLocked(candidates []fault.Kind) fault.Kind {
	if len(candidates) == 1 {
		return candidates[0]
	}
	var totalWeight float64
	for _, k := range candidates {
		totalWeight += s.kindWeights[k]
	}
	if totalWeight <= 0 {
		return candidates[s.rng.Intn(len(candidates))]
	}
	roll := s.rng.Float64() * totalWeight
	for _, k := range candidates {
		roll -= s.kindWeights[k]
		if roll < 0 {
			return k
		}
	}
	return candidates[len(candidates)-1]
}

// FailureProbability implements fault.Source.
func (s *Service) FailureProbability() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prob
}

// SetFailureProbability implements fault.Source.
func (s *Service) SetFailureProbability(p float64) error {
	if p < 0 || p > 1 {
		return fault.Newf(fault.KindValidation, s.name, "set_failure_probability",
			"probability %v outside [0,1]", p)
	}
	s.mu.Lock()
	old := s.prob
	s.prob = p
	s.mu.Unlock()
	s.log.Info("failure probability updated",
		"service", s.name, "old", old, "new", p)
	return nil
}

// SetKindWeights applies a partial update to the per-kind weights.
// Unknown kinds are ignored so configuration drift is not an error.
func (s *Service) SetKindWeights(weights map[fault.Kind]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, w := range weights {
		if _, known := s.kindWeights[k]; known && w >= 0 {
			s.kindWeights[k] = w
		}
	}
}

// Health implements fault.Source. Status is derived from the observed
// failure rate, not the configured probability: "healthy" below 0.5,
// "degraded" below 0.8, "unhealthy" at or above.
func (s *Service) Health() fault.Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := 0.0
	if s.total > 0 {
		rate = float64(s.failed) / float64(s.total)
	}
	status := "healthy"
	switch {
	case rate >= 0.8:
		status = "unhealthy"
	case rate >= 0.5:
		status = "degraded"
	}
	return fault.Health{Status: status, ErrorRate: rate}
}
