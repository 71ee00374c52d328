package admin

import "net/http"

// routes assembles the admin mux. Method-qualified patterns make the
// mux return 405 for wrong methods on known paths.
func (a *API) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /status", a.handleStatus)
	mux.Handle("GET /metrics", a.metricsHandler())

	mux.HandleFunc("POST /generation/start", a.handleGenerationStart)
	mux.HandleFunc("POST /generation/stop", a.handleGenerationStop)
	mux.HandleFunc("PUT /generation/pattern", a.handleSetPattern)
	mux.HandleFunc("PUT /generation/interval", a.handleSetInterval)
	mux.HandleFunc("PUT /generation/weights", a.handleSetWeights)
	mux.HandleFunc("PUT /generation/peak-hours", a.handleSetPeakHours)
	mux.HandleFunc("PUT /generation/guard", a.handleSetGuard)

	mux.HandleFunc("POST /inject", a.handleInject)

	mux.HandleFunc("GET /stats", a.handleGetStats)
	mux.HandleFunc("DELETE /stats", a.handleResetStats)

	mux.HandleFunc("GET /sources", a.handleListSources)
	mux.HandleFunc("GET /sources/{name}", a.handleGetSource)
	mux.HandleFunc("PUT /sources/{name}/probability", a.handleSetSourceProbability)

	mux.HandleFunc("GET /events", a.handleEvents)

	return mux
}

// metricsHandler refreshes snapshot-derived gauges before each scrape.
func (a *API) metricsHandler() http.Handler {
	inner := a.metrics.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.metrics.Observe(a.coord.Snapshot(), a.coord.IsRunning(), a.coord.DroppedEvents())
		inner.ServeHTTP(w, r)
	})
}
