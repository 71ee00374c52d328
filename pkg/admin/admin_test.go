package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getfaultd/faultd/pkg/engine"
	"github.com/getfaultd/faultd/pkg/scheduler"
	"github.com/getfaultd/faultd/pkg/source"
	"github.com/getfaultd/faultd/pkg/stats"
)

func newTestAPI(t *testing.T, opts ...Option) (*API, *engine.Coordinator) {
	t.Helper()

	reg := source.Builtin(source.WithSeed(1))
	cfg := scheduler.DefaultConfig()
	cfg.BaseInterval = 20 * time.Millisecond
	cfg.Weights = map[string]float64{"UserService": 1.0}
	cfg.BurstProbability = -1
	cfg.WaveProbability = -1
	cfg.Modifiers = scheduler.TimeModifiers{}

	coord, err := engine.New(reg, cfg)
	require.NoError(t, err)
	t.Cleanup(coord.Close)

	opts = append([]Option{
		WithAPIKeyConfig(APIKeyConfig{Enabled: false}),
		WithVersion("test"),
	}, opts...)
	api, err := New(coord, 0, opts...)
	require.NoError(t, err)
	return api, coord
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func TestHealthAndStatus(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, body := doJSON(t, srv, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)

	resp, body = doJSON(t, srv, "GET", "/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, "test", status.Version)
	assert.False(t, status.Running)
	assert.Equal(t, "random", status.Pattern)
	assert.Equal(t, 4, status.Sources)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestInject(t *testing.T) {
	api, coord := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, body := doJSON(t, srv, "POST", "/inject", map[string]any{
		"source":    "PaymentService",
		"operation": "process_payment",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res engine.InjectionResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.False(t, res.Succeeded, "a raised fault reports a failed invocation")
	assert.NotEmpty(t, res.FaultKind)
	assert.NotEmpty(t, res.Message)

	assert.Equal(t, int64(1), coord.Snapshot().Total)
}

func TestInjectForcedKind(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	for i := 0; i < 10; i++ {
		resp, body := doJSON(t, srv, "POST", "/inject", map[string]any{
			"source":    "PaymentService",
			"operation": "process_payment",
			"faultKind": "timeout",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var res engine.InjectionResult
		require.NoError(t, json.Unmarshal(body, &res))
		assert.Equal(t, "timeout", string(res.FaultKind))
	}
}

func TestInjectErrors(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, body := doJSON(t, srv, "POST", "/inject", map[string]any{
		"source": "GhostService", "operation": "op",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "not found")

	resp, body = doJSON(t, srv, "POST", "/inject", map[string]any{
		"source": "UserService", "operation": "delete_user",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "authenticate_user")

	resp, _ = doJSON(t, srv, "POST", "/inject", map[string]any{"source": "UserService"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, _ := http.NewRequest("POST", srv.URL+"/inject", strings.NewReader("{broken"))
	raw, err := srv.Client().Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

	// Method-qualified mux patterns reject wrong methods.
	resp, _ = doJSON(t, srv, "GET", "/inject", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestGenerationLifecycle(t *testing.T) {
	api, coord := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, body := doJSON(t, srv, "POST", "/generation/start", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"alreadyRunning":false`)
	assert.True(t, coord.IsRunning())

	resp, body = doJSON(t, srv, "POST", "/generation/start", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"alreadyRunning":true`)

	time.Sleep(100 * time.Millisecond)

	resp, body = doJSON(t, srv, "POST", "/generation/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"wasRunning":true`)
	assert.False(t, coord.IsRunning())
}

func TestGenerationTuning(t *testing.T) {
	api, coord := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, _ := doJSON(t, srv, "PUT", "/generation/pattern", map[string]string{"pattern": "wave"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, scheduler.PatternWave, coord.Pattern())

	resp, _ = doJSON(t, srv, "PUT", "/generation/pattern", map[string]string{"pattern": "spiky"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, scheduler.PatternWave, coord.Pattern())

	resp, _ = doJSON(t, srv, "PUT", "/generation/interval", map[string]float64{"seconds": 0.5})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 500*time.Millisecond, coord.BaseInterval())

	resp, _ = doJSON(t, srv, "PUT", "/generation/interval", map[string]float64{"seconds": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, srv, "PUT", "/generation/weights", map[string]any{
		"sources": map[string]float64{"PaymentService": 2.5},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2.5, coord.Weights()["PaymentService"])

	resp, _ = doJSON(t, srv, "PUT", "/generation/weights", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, srv, "PUT", "/generation/peak-hours", map[string]any{
		"windows": []map[string]int{{"start": 8, "end": 11}},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []scheduler.Window{{Start: 8, End: 11}}, coord.TimeModifiers().PeakHours)

	resp, _ = doJSON(t, srv, "PUT", "/generation/peak-hours", map[string]any{
		"windows": []map[string]int{{"start": 11, "end": 8}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, srv, "PUT", "/generation/guard", map[string]string{"expression": "!weekend"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "!weekend", coord.Guard())

	resp, _ = doJSON(t, srv, "PUT", "/generation/guard", map[string]string{"expression": "hour >>"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "!weekend", coord.Guard())
}

func TestStatsEndpoints(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	_, _ = doJSON(t, srv, "POST", "/inject", map[string]any{
		"source": "AuthService", "operation": "generate_token",
	})

	resp, body := doJSON(t, srv, "GET", "/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var snap stats.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, int64(1), snap.Total)
	assert.Equal(t, int64(1), snap.PerPattern["on_demand"])

	resp, _ = doJSON(t, srv, "DELETE", "/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = doJSON(t, srv, "GET", "/stats", nil)
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Zero(t, snap.Total)
}

func TestSourceEndpoints(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, body := doJSON(t, srv, "GET", "/sources", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Sources []engine.SourceInfo `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Sources, 4)
	assert.Equal(t, "UserService", list.Sources[0].Name)

	resp, body = doJSON(t, srv, "GET", "/sources/PaymentService", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var info engine.SourceInfo
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, "PaymentService", info.Name)
	assert.Equal(t, "healthy", info.Health.Status)

	resp, _ = doJSON(t, srv, "GET", "/sources/GhostService", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, srv, "PUT", "/sources/PaymentService/probability",
		map[string]float64{"probability": 0.4})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, body = doJSON(t, srv, "GET", "/sources/PaymentService", nil)
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, 0.4, info.FailureProbability)

	resp, _ = doJSON(t, srv, "PUT", "/sources/PaymentService/probability",
		map[string]float64{"probability": 1.5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	_, _ = doJSON(t, srv, "POST", "/inject", map[string]any{
		"source": "UserService", "operation": "authenticate_user",
	})

	require.Eventually(t, func() bool {
		_, body := doJSON(t, srv, "GET", "/metrics", nil)
		return strings.Contains(string(body), "faultd_injections_total")
	}, time.Second, 20*time.Millisecond, "injection counter must appear after the sink consumes the event")

	_, body := doJSON(t, srv, "GET", "/metrics", nil)
	assert.Contains(t, string(body), "faultd_generation_running 0")
	assert.Contains(t, string(body), `pattern="on_demand"`)
}

func TestAPIKeyAuth(t *testing.T) {
	api, _ := newTestAPI(t, WithAPIKeyConfig(APIKeyConfig{
		Enabled: true,
		Key:     "fk_test_key",
	}))
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	// Health stays exempt.
	resp, _ := doJSON(t, srv, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, srv, "GET", "/status", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest("GET", srv.URL+"/status", nil)
	req.Header.Set(APIKeyHeader, "fk_wrong")
	raw, err := srv.Client().Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, raw.StatusCode)

	req.Header.Set(APIKeyHeader, "fk_test_key")
	raw, err = srv.Client().Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusOK, raw.StatusCode)

	// Bearer form works too.
	req, _ = http.NewRequest("GET", srv.URL+"/status", nil)
	req.Header.Set("Authorization", "Bearer fk_test_key")
	raw, err = srv.Client().Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusOK, raw.StatusCode)
}

func TestLocalhostBypass(t *testing.T) {
	api, _ := newTestAPI(t, WithAPIKeyConfig(APIKeyConfig{
		Enabled:        true,
		Key:            "fk_test_key",
		AllowLocalhost: true,
	}))
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	// httptest clients connect from loopback.
	resp, _ := doJSON(t, srv, "GET", "/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventStreamWebsocket(t *testing.T) {
	api, coord := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := ws.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(ws.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return api.stream.clientCount() == 1 },
		time.Second, 10*time.Millisecond)

	_, err = coord.InjectNow(context.Background(), "UserService", "authenticate_user", nil)
	require.NoError(t, err)

	var ev stats.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, "UserService", ev.Source)
	assert.Equal(t, "authenticate_user", ev.Operation)
	assert.Equal(t, "on_demand", ev.Pattern)
	assert.NotEmpty(t, ev.ID)
}

func TestSecurityHeaders(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, _ := doJSON(t, srv, "GET", "/health", nil)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
