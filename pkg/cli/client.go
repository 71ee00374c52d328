package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/getfaultd/faultd/internal/cliconfig"
	"github.com/getfaultd/faultd/pkg/admin"
	"github.com/getfaultd/faultd/pkg/engine"
	"github.com/getfaultd/faultd/pkg/stats"
)

// AdminClient talks to the faultd admin API.
type AdminClient interface {
	// Health checks whether the server is reachable.
	Health() error
	// Status returns the server status summary.
	Status() (*admin.StatusResponse, error)
	// StartGeneration starts the injection loop.
	StartGeneration() (*GenerationState, error)
	// StopGeneration stops the injection loop.
	StopGeneration() (*GenerationState, error)
	// Inject fires one injection against a source operation.
	Inject(source, operation, kind string) (*engine.InjectionResult, error)
	// SetPattern switches the scheduling pattern.
	SetPattern(pattern string) error
	// SetInterval changes the base interval.
	SetInterval(seconds float64) error
	// SetWeights replaces source or kind weights.
	SetWeights(sources map[string]float64, kinds map[string]float64) error
	// SetGuard installs or clears the guard expression.
	SetGuard(expression string) error
	// Stats returns the aggregate counters.
	Stats() (*stats.Snapshot, error)
	// ResetStats zeroes the aggregate counters.
	ResetStats() error
	// ListSources returns all registered fault sources.
	ListSources() ([]engine.SourceInfo, error)
	// GetSource returns one source by name.
	GetSource(name string) (*engine.SourceInfo, error)
	// SetSourceProbability changes a source's failure probability.
	SetSourceProbability(name string, p float64) error
}

// GenerationState is the response to start/stop generation calls.
type GenerationState struct {
	Running         bool   `json:"running"`
	AlreadyRunning  bool   `json:"alreadyRunning"`
	WasRunning      bool   `json:"wasRunning"`
	Pattern         string `json:"pattern,omitempty"`
	TotalInjections int64  `json:"totalInjections"`
}

// APIError is an error response from the admin API.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsNotFound reports whether the error is a 404 from the admin API.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// adminClient implements AdminClient over HTTP.
type adminClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// ClientOption configures an admin client.
type ClientOption func(*adminClient)

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *adminClient) {
		c.httpClient.Timeout = timeout
	}
}

// WithAPIKey sets the API key sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(c *adminClient) {
		c.apiKey = key
	}
}

// NewAdminClient creates an admin API client for a base URL.
func NewAdminClient(baseURL string, opts ...ClientOption) AdminClient {
	c := &adminClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewAdminClientWithAuth creates a client that resolves the API key from
// the environment and the local key file. This is what CLI commands use.
func NewAdminClientWithAuth(baseURL string, opts ...ClientOption) AdminClient {
	if key := cliconfig.GetAPIKey(); key != "" {
		opts = append([]ClientOption{WithAPIKey(key)}, opts...)
	}
	return NewAdminClient(baseURL, opts...)
}

func (c *adminClient) Health() error {
	resp, err := c.get("/health")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

func (c *adminClient) Status() (*admin.StatusResponse, error) {
	resp, err := c.get("/status")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	var status admin.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &status, nil
}

func (c *adminClient) StartGeneration() (*GenerationState, error) {
	return c.generation("/generation/start")
}

func (c *adminClient) StopGeneration() (*GenerationState, error) {
	return c.generation("/generation/stop")
}

func (c *adminClient) generation(path string) (*GenerationState, error) {
	resp, err := c.post(path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	var state GenerationState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &state, nil
}

func (c *adminClient) Inject(source, operation, kind string) (*engine.InjectionResult, error) {
	body, err := json.Marshal(map[string]string{
		"source":    source,
		"operation": operation,
		"faultKind": kind,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.post("/inject", body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	var res engine.InjectionResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &res, nil
}

func (c *adminClient) SetPattern(pattern string) error {
	return c.putExpectOK("/generation/pattern", map[string]string{"pattern": pattern})
}

func (c *adminClient) SetInterval(seconds float64) error {
	return c.putExpectOK("/generation/interval", map[string]float64{"seconds": seconds})
}

func (c *adminClient) SetWeights(sources, kinds map[string]float64) error {
	return c.putExpectOK("/generation/weights", map[string]any{
		"sources": sources,
		"kinds":   kinds,
	})
}

func (c *adminClient) SetGuard(expression string) error {
	return c.putExpectOK("/generation/guard", map[string]string{"expression": expression})
}

func (c *adminClient) Stats() (*stats.Snapshot, error) {
	resp, err := c.get("/stats")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	var snap stats.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &snap, nil
}

func (c *adminClient) ResetStats() error {
	resp, err := c.delete("/stats")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

func (c *adminClient) ListSources() ([]engine.SourceInfo, error) {
	resp, err := c.get("/sources")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	var result struct {
		Sources []engine.SourceInfo `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return result.Sources, nil
}

func (c *adminClient) GetSource(name string) (*engine.SourceInfo, error) {
	resp, err := c.get("/sources/" + url.PathEscape(name))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	var info engine.SourceInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &info, nil
}

func (c *adminClient) SetSourceProbability(name string, p float64) error {
	return c.putExpectOK("/sources/"+url.PathEscape(name)+"/probability",
		map[string]float64{"probability": p})
}

func (c *adminClient) putExpectOK(path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.put(path, data)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

func (c *adminClient) get(path string) (*http.Response, error) {
	return c.doRequest(http.MethodGet, path, nil)
}

func (c *adminClient) post(path string, body []byte) (*http.Response, error) {
	return c.doRequest(http.MethodPost, path, body)
}

func (c *adminClient) put(path string, body []byte) (*http.Response, error) {
	return c.doRequest(http.MethodPut, path, body)
}

func (c *adminClient) delete(path string) (*http.Response, error) {
	return c.doRequest(http.MethodDelete, path, nil)
}

func (c *adminClient) doRequest(method, path string, body []byte) (*http.Response, error) {
	fullURL := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.apiKey != "" {
		req.Header.Set(admin.APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{
			StatusCode: 0,
			ErrorCode:  "connection_error",
			Message:    fmt.Sprintf("cannot connect to admin API at %s: %v", c.baseURL, err),
		}
	}
	return resp, nil
}

func (c *adminClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorCode:  errResp.Error,
			Message:    errResp.Message,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		ErrorCode:  "unknown_error",
		Message:    fmt.Sprintf("server returned status %d: %s", resp.StatusCode, string(body)),
	}
}
