package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/getfaultd/faultd/pkg/stats"
)

// Sink consumes injection events after they are recorded. Publish is
// called from a single dispatch goroutine; a sink that needs to fan out
// further does its own buffering.
type Sink interface {
	Publish(ev stats.Event)
}

// defaultSinkBuffer is the fan-out buffer between the injection loop and
// the sinks.
const defaultSinkBuffer = 256

// fanout decouples the injection loop from the sinks. The loop publishes
// into a buffered channel and never blocks: when the dispatcher falls
// behind, events are dropped and counted.
type fanout struct {
	log *slog.Logger
	ch  chan stats.Event

	mu     sync.RWMutex
	sinks  []Sink
	closed bool

	dropped atomic.Int64
	done    chan struct{}
}

func newFanout(log *slog.Logger, buffer int) *fanout {
	if buffer <= 0 {
		buffer = defaultSinkBuffer
	}
	f := &fanout{
		log:  log,
		ch:   make(chan stats.Event, buffer),
		done: make(chan struct{}),
	}
	go f.dispatch()
	return f
}

func (f *fanout) add(s Sink) {
	if s == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

// publish enqueues an event for the sinks without blocking the caller.
// Events arriving after close are dropped silently; the read lock keeps
// the send and the channel close from racing.
func (f *fanout) publish(ev stats.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- ev:
	default:
		if f.dropped.Add(1) == 1 {
			f.log.Warn("event sink buffer full, dropping events",
				"component", "engine", "buffer", cap(f.ch))
		}
	}
}

func (f *fanout) dispatch() {
	defer close(f.done)
	for ev := range f.ch {
		f.mu.RLock()
		sinks := f.sinks
		f.mu.RUnlock()
		for _, s := range sinks {
			s.Publish(ev)
		}
	}
}

func (f *fanout) droppedCount() int64 {
	return f.dropped.Load()
}

// close drains pending events into the sinks and stops the dispatcher.
// Idempotent.
func (f *fanout) close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	close(f.ch)
	<-f.done
}

// LogSink writes every injection event to a logger. It is the simplest
// downstream consumer and doubles as a template for custom sinks.
type LogSink struct {
	Log *slog.Logger
}

// Publish implements Sink.
func (s *LogSink) Publish(ev stats.Event) {
	s.Log.Info("injection event",
		"component", "sink",
		"event_id", ev.ID,
		"service", ev.Source,
		"operation", ev.Operation,
		"pattern", ev.Pattern,
		"fault_kind", string(ev.Kind))
}
