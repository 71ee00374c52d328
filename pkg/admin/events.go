package admin

import (
	"log/slog"
	"net/http"
	"sync"

	ws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/getfaultd/faultd/pkg/stats"
)

// clientBuffer is the per-client event buffer. A client that cannot keep
// up loses events rather than stalling the stream.
const clientBuffer = 64

// eventStream fans injection events out to websocket clients. It plugs
// into the coordinator as a sink.
type eventStream struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[chan stats.Event]struct{}
	closed  bool
}

func newEventStream(log *slog.Logger) *eventStream {
	return &eventStream{
		log:     log,
		clients: make(map[chan stats.Event]struct{}),
	}
}

// Publish implements the coordinator's sink contract. Slow clients drop
// events individually; the stream never blocks the fan-out.
func (s *eventStream) Publish(ev stats.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *eventStream) subscribe() (chan stats.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	ch := make(chan stats.Event, clientBuffer)
	s.clients[ch] = struct{}{}
	return ch, true
}

func (s *eventStream) unsubscribe(ch chan stats.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[ch]; ok {
		delete(s.clients, ch)
		close(ch)
	}
}

// closeAll disconnects every client and refuses new subscriptions.
func (s *eventStream) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for ch := range s.clients {
		delete(s.clients, ch)
		close(ch)
	}
}

// clientCount reports the number of connected clients.
func (s *eventStream) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// handleEvents handles GET /events: upgrades to a websocket and streams
// every injection event as JSON until the client disconnects.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true, // origin is enforced by the CORS layer
	})
	if err != nil {
		a.log.Warn("websocket upgrade failed",
			"component", "admin", "error", err, "trace_id", TraceID(r.Context()))
		return
	}

	ch, ok := a.stream.subscribe()
	if !ok {
		_ = conn.Close(ws.StatusGoingAway, "server shutting down")
		return
	}
	defer a.stream.unsubscribe(ch)

	a.log.Info("event stream client connected",
		"component", "admin",
		"remote", r.RemoteAddr,
		"clients", a.stream.clientCount())

	// The client never sends application data; CloseRead surfaces the
	// disconnect through context cancellation.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(ws.StatusNormalClosure, "")
			return
		case ev, open := <-ch:
			if !open {
				_ = conn.Close(ws.StatusGoingAway, "server shutting down")
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				a.log.Debug("event stream write failed, dropping client",
					"component", "admin", "error", err)
				return
			}
		}
	}
}
