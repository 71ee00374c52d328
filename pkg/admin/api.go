// Package admin provides the REST control surface for faultd: status,
// statistics, generation control, on-demand injection and a websocket
// event firehose.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/getfaultd/faultd/pkg/engine"
	"github.com/getfaultd/faultd/pkg/logging"
	"github.com/getfaultd/faultd/pkg/metrics"
)

// API exposes the faultd control surface over HTTP.
type API struct {
	coord   *engine.Coordinator
	metrics *metrics.Faultd
	stream  *eventStream

	host       string
	port       int
	httpServer *http.Server
	startTime  time.Time
	version    string
	log        *slog.Logger

	apiKeyConfig APIKeyConfig
	apiKeyAuth   *apiKeyAuth
	corsConfig   CORSConfig
}

// Option configures the API.
type Option func(*API)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) { a.log = log }
}

// WithHost sets the listen address. Defaults to loopback.
func WithHost(host string) Option {
	return func(a *API) { a.host = host }
}

// WithVersion sets the version string reported by /status.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithAPIKeyConfig overrides API-key authentication settings.
func WithAPIKeyConfig(cfg APIKeyConfig) Option {
	return func(a *API) { a.apiKeyConfig = cfg }
}

// WithCORSConfig overrides the CORS settings.
func WithCORSConfig(cfg CORSConfig) Option {
	return func(a *API) { a.corsConfig = cfg }
}

// WithMetrics wires an existing metric set into /metrics. When unset, a
// fresh one is created.
func WithMetrics(m *metrics.Faultd) Option {
	return func(a *API) { a.metrics = m }
}

// New creates the admin API over a coordinator. The returned API serves
// nothing until Start.
func New(coord *engine.Coordinator, port int, opts ...Option) (*API, error) {
	a := &API{
		coord:        coord,
		host:         "127.0.0.1",
		port:         port,
		version:      "dev",
		log:          logging.Nop(),
		apiKeyConfig: DefaultAPIKeyConfig(),
		corsConfig:   DefaultCORSConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.metrics == nil {
		a.metrics = metrics.NewFaultd()
	}
	// Feed the metric counters and the websocket firehose from the
	// coordinator's event fan-out.
	a.stream = newEventStream(a.log)
	coord.AddSink(a.metrics)
	coord.AddSink(a.stream)

	auth, err := newAPIKeyAuth(a.apiKeyConfig, a.log)
	if err != nil {
		return nil, fmt.Errorf("initializing API key auth: %w", err)
	}
	a.apiKeyAuth = auth

	return a, nil
}

// Handler returns the fully assembled handler chain. Exposed for tests.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.routes()
	h = a.apiKeyAuth.middleware(h)
	h = newCORSMiddleware(h, a.corsConfig)
	h = securityHeaders(h)
	h = a.loggingMiddleware(h)
	h = a.traceMiddleware(h)
	return h
}

// Start begins serving on the configured address. It returns once the
// listener is bound; serving continues on a background goroutine.
func (a *API) Start() error {
	addr := net.JoinHostPort(a.host, fmt.Sprintf("%d", a.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin API failed to listen on %s: %w", addr, err)
	}

	a.startTime = time.Now()
	a.httpServer = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.log.Info("admin API listening",
		"component", "admin",
		"address", addr,
		"auth_enabled", a.apiKeyConfig.Enabled)

	go func() {
		if err := a.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			a.log.Error("admin API server failed", "component", "admin", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server and closes the event firehose.
func (a *API) Shutdown(ctx context.Context) error {
	a.stream.closeAll()
	if a.httpServer == nil {
		return nil
	}
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin API shutdown: %w", err)
	}
	a.log.Info("admin API stopped", "component", "admin")
	return nil
}

// Uptime returns seconds since Start, zero before.
func (a *API) Uptime() float64 {
	if a.startTime.IsZero() {
		return 0
	}
	return time.Since(a.startTime).Seconds()
}
