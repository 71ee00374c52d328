package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/getfaultd/faultd/pkg/fault"
	"github.com/getfaultd/faultd/pkg/scheduler"
	"github.com/getfaultd/faultd/pkg/source"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

// StatusResponse is the GET /status payload.
type StatusResponse struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	Running           bool    `json:"running"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
	GenerationSeconds float64 `json:"generationSeconds"`
	Pattern           string  `json:"pattern"`
	IntervalSeconds   float64 `json:"intervalSeconds"`
	Guard             string  `json:"guard,omitempty"`
	Sources           int     `json:"sources"`
	TotalInjections   int64   `json:"totalInjections"`
	DroppedEvents     int64   `json:"droppedEvents"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}

// handleHealth handles GET /health.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: a.Uptime(),
	})
}

// handleStatus handles GET /status.
func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := a.coord.Snapshot()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:            "ok",
		Version:           a.version,
		Running:           a.coord.IsRunning(),
		UptimeSeconds:     a.Uptime(),
		GenerationSeconds: a.coord.Uptime().Seconds(),
		Pattern:           string(a.coord.Pattern()),
		IntervalSeconds:   a.coord.BaseInterval().Seconds(),
		Guard:             a.coord.Guard(),
		Sources:           len(a.coord.Sources()),
		TotalInjections:   snap.Total,
		DroppedEvents:     a.coord.DroppedEvents(),
	})
}

// handleGetStats handles GET /stats.
func (a *API) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.coord.Snapshot())
}

// handleResetStats handles DELETE /stats.
func (a *API) handleResetStats(w http.ResponseWriter, r *http.Request) {
	a.coord.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleListSources handles GET /sources.
func (a *API) handleListSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sources": a.coord.Sources(),
	})
}

// handleGetSource handles GET /sources/{name}.
func (a *API) handleGetSource(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	info, err := a.coord.Source(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "source_not_found",
			sanitizeError(err, a.log, "get source", "source", name))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// probabilityRequest is the PUT /sources/{name}/probability body.
type probabilityRequest struct {
	Probability float64 `json:"probability"`
}

// handleSetSourceProbability handles PUT /sources/{name}/probability.
func (a *API) handleSetSourceProbability(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req probabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", sanitizeJSONError(err, a.log))
		return
	}

	if err := a.coord.SetSourceProbability(name, req.Probability); err != nil {
		if fault.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "source_not_found",
				sanitizeError(err, a.log, "set source probability", "source", name))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_probability", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":      name,
		"probability": req.Probability,
	})
}

// injectRequest is the POST /inject body.
type injectRequest struct {
	Source     string         `json:"source"`
	Operation  string         `json:"operation"`
	FaultKind  string         `json:"faultKind,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// handleInject handles POST /inject: one immediate injection with the
// source's probability forced to certainty.
func (a *API) handleInject(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", sanitizeJSONError(err, a.log))
		return
	}
	if req.Source == "" || req.Operation == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "source and operation are required")
		return
	}

	params := req.Parameters
	if req.FaultKind != "" {
		if params == nil {
			params = map[string]any{}
		}
		params[source.ParamFaultKind] = req.FaultKind
	}

	res, err := a.coord.InjectNow(r.Context(), req.Source, req.Operation, params)
	if err != nil {
		if fault.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found",
				sanitizeError(err, a.log, "inject", "source", req.Source, "operation", req.Operation))
			return
		}
		writeError(w, http.StatusInternalServerError, "inject_failed",
			sanitizeError(err, a.log, "inject", "source", req.Source))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGenerationStart handles POST /generation/start.
func (a *API) handleGenerationStart(w http.ResponseWriter, r *http.Request) {
	already := a.coord.IsRunning()
	a.coord.Start()
	writeJSON(w, http.StatusOK, map[string]any{
		"running":        true,
		"alreadyRunning": already,
		"pattern":        string(a.coord.Pattern()),
	})
}

// handleGenerationStop handles POST /generation/stop.
func (a *API) handleGenerationStop(w http.ResponseWriter, r *http.Request) {
	wasRunning := a.coord.IsRunning()
	a.coord.Stop()
	snap := a.coord.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"running":         false,
		"wasRunning":      wasRunning,
		"totalInjections": snap.Total,
	})
}

// patternRequest is the PUT /generation/pattern body.
type patternRequest struct {
	Pattern string `json:"pattern"`
}

// handleSetPattern handles PUT /generation/pattern.
func (a *API) handleSetPattern(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", sanitizeJSONError(err, a.log))
		return
	}
	if err := a.coord.SetPattern(scheduler.Pattern(req.Pattern)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_pattern",
			"Unknown pattern; valid: random, burst, periodic, wave")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pattern": req.Pattern})
}

// intervalRequest is the PUT /generation/interval body.
type intervalRequest struct {
	Seconds float64 `json:"seconds"`
}

// handleSetInterval handles PUT /generation/interval.
func (a *API) handleSetInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", sanitizeJSONError(err, a.log))
		return
	}
	d := time.Duration(req.Seconds * float64(time.Second))
	if err := a.coord.SetInterval(d); err != nil {
		if errors.Is(err, scheduler.ErrInvalidInterval) {
			writeError(w, http.StatusBadRequest, "invalid_interval", "Interval must be positive")
			return
		}
		writeError(w, http.StatusInternalServerError, "set_interval_failed",
			sanitizeError(err, a.log, "set interval"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"seconds": req.Seconds})
}

// weightsRequest is the PUT /generation/weights body. Both sections are
// optional and partial.
type weightsRequest struct {
	Sources map[string]float64 `json:"sources,omitempty"`
	Kinds   map[string]float64 `json:"kinds,omitempty"`
}

// handleSetWeights handles PUT /generation/weights.
func (a *API) handleSetWeights(w http.ResponseWriter, r *http.Request) {
	var req weightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", sanitizeJSONError(err, a.log))
		return
	}
	if len(req.Sources) == 0 && len(req.Kinds) == 0 {
		writeError(w, http.StatusBadRequest, "missing_field", "sources or kinds is required")
		return
	}

	if len(req.Sources) > 0 {
		a.coord.UpdateWeights(req.Sources)
	}
	if len(req.Kinds) > 0 {
		kinds := make(map[fault.Kind]float64, len(req.Kinds))
		for k, v := range req.Kinds {
			kinds[fault.Kind(k)] = v
		}
		a.coord.UpdateKindWeights(kinds)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sources": a.coord.Weights(),
	})
}

// peakHoursRequest is the PUT /generation/peak-hours body.
type peakHoursRequest struct {
	Windows []scheduler.Window `json:"windows"`
}

// handleSetPeakHours handles PUT /generation/peak-hours.
func (a *API) handleSetPeakHours(w http.ResponseWriter, r *http.Request) {
	var req peakHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", sanitizeJSONError(err, a.log))
		return
	}
	if err := a.coord.ConfigurePeakHours(req.Windows); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_windows", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": req.Windows})
}

// guardRequest is the PUT /generation/guard body.
type guardRequest struct {
	Expression string `json:"expression"`
}

// handleSetGuard handles PUT /generation/guard. An empty expression
// clears the guard.
func (a *API) handleSetGuard(w http.ResponseWriter, r *http.Request) {
	var req guardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", sanitizeJSONError(err, a.log))
		return
	}
	if err := a.coord.SetGuard(req.Expression); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_guard", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"expression": req.Expression})
}
