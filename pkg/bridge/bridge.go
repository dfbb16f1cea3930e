// Package bridge provides the client for the python-bridge helper process.
//
// The python-bridge is a supervised subprocess exposing a small set of setup
// helper endpoints that have no Go-native implementation: probing a skill
// service API key against its real upstream, and describing the machine's
// hardware acceleration. The HTTP façade proxies its /test-skill-key and
// /hardware/acceleration routes through this client.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single bridge call when no explicit timeout option
// is supplied. Key probes call external APIs, so the default is generous.
const DefaultTimeout = 30 * time.Second

// ProbeResult is the outcome of a key or provider probe.
type ProbeResult struct {
	// Success reports whether the probe call succeeded.
	Success bool `json:"success"`

	// Message carries the human-readable outcome, including upstream error
	// text on failure.
	Message string `json:"message"`
}

// Bridge is the abstraction over the python-bridge process. The production
// implementation is [Client]; tests use the mock subpackage.
type Bridge interface {
	// TestSkillKey probes the named skill service with the given key map and
	// reports whether the keys are usable.
	TestSkillKey(ctx context.Context, service string, keys map[string]string) (*ProbeResult, error)

	// HardwareAcceleration returns the bridge's structured hardware probe
	// verbatim. The shape is owned by the bridge and passed through untouched.
	HardwareAcceleration(ctx context.Context) (json.RawMessage, error)

	// Health probes the bridge's liveness endpoint.
	Health(ctx context.Context) error
}

// Ensure Client implements the Bridge interface.
var _ Bridge = (*Client)(nil)

// Client is the production HTTP implementation of [Bridge].
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// config holds optional configuration for the client.
type config struct {
	httpClient *http.Client
	timeout    time.Duration
}

// Option is a functional option for Client.
type Option func(*config)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) {
		cfg.httpClient = c
	}
}

// WithTimeout sets the per-call timeout. The default is [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// NewClient constructs a bridge client rooted at baseURL
// (e.g., "http://127.0.0.1:5002"). A trailing slash is stripped.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("bridge: baseURL must not be empty")
	}

	cfg := &config{timeout: DefaultTimeout}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: cfg.httpClient,
		timeout:    cfg.timeout,
	}, nil
}

// TestSkillKey implements [Bridge].
func (c *Client) TestSkillKey(ctx context.Context, service string, keys map[string]string) (*ProbeResult, error) {
	if service == "" {
		return nil, fmt.Errorf("bridge: test skill key: service must not be empty")
	}

	body, err := json.Marshal(map[string]any{
		"service": service,
		"keys":    keys,
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: test skill key: marshal: %w", err)
	}

	raw, err := c.post(ctx, "/test-skill-key", body)
	if err != nil {
		return nil, fmt.Errorf("bridge: test skill key: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("bridge: test skill key: decode: %w", err)
	}
	return &result, nil
}

// HardwareAcceleration implements [Bridge].
func (c *Client) HardwareAcceleration(ctx context.Context) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/hardware/acceleration", nil)
	if err != nil {
		return nil, fmt.Errorf("bridge: hardware: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge: hardware: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge: hardware: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bridge: hardware: read body: %w", err)
	}
	return json.RawMessage(raw), nil
}

// Health implements [Bridge].
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("bridge: build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge: health: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// post sends a JSON POST bounded by the configured timeout and returns the raw
// response body for 2xx statuses.
func (c *Client) post(ctx context.Context, route string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}
