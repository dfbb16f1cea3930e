package skills

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

// DefaultInvokeTimeout bounds a single skill invocation when no explicit
// timeout option is supplied. Skill bodies routinely call external APIs, so
// the default is generous.
const DefaultInvokeTimeout = 30 * time.Second

// StatusError reports a non-2xx response from the skills host. The body is
// retained (truncated) so error events can carry the skill's own message.
type StatusError struct {
	// StatusCode is the HTTP status returned by the host.
	StatusCode int

	// Body is the (possibly truncated) response body.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("skills host returned status %d: %s", e.StatusCode, e.Body)
}

// maxErrorBody caps how much of an error response body is kept in a StatusError.
const maxErrorBody = 2048

// Ensure Client implements the Host interface.
var _ Host = (*Client)(nil)

// Client is the production HTTP implementation of [Host].
//
// Client is safe for concurrent use; it holds no per-call state beyond the
// pooled http.Client.
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

// WithHTTPClient replaces the default pooled HTTP client. Useful in tests and
// for callers that need custom transports.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) {
		cfg.httpClient = c
	}
}

// WithInvokeTimeout sets the per-invocation timeout. The default is
// [DefaultInvokeTimeout].
func WithInvokeTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// NewClient constructs a skills-host client rooted at baseURL
// (e.g., "http://127.0.0.1:5001"). A trailing slash is stripped.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("skills: baseURL must not be empty")
	}

	cfg := &config{timeout: DefaultInvokeTimeout}
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

// Capabilities implements [Host]. It fetches and decodes the full descriptor
// list from GET /capabilities.
func (c *Client) Capabilities(ctx context.Context) ([]Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/capabilities", nil)
	if err != nil {
		return nil, fmt.Errorf("skills: build capabilities request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("skills: fetch capabilities: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("skills: fetch capabilities: %w", newStatusError(resp))
	}

	// The host wraps the list in {"skills": [...]} ; accept a bare array too
	// for older hosts.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("skills: read capabilities body: %w", err)
	}

	var wrapped struct {
		Skills []Descriptor `json:"skills"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Skills != nil {
		return wrapped.Skills, nil
	}

	var list []Descriptor
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("skills: decode capabilities: %w", err)
	}
	return list, nil
}

// Invoke implements [Host]. The call is bounded by the configured invocation
// timeout in addition to any deadline already on ctx; cancelling ctx cancels
// the underlying HTTP request.
func (c *Client) Invoke(ctx context.Context, route, method string, params map[string]any) (json.RawMessage, error) {
	if route == "" {
		return nil, fmt.Errorf("skills: invoke: route must not be empty")
	}
	if method == "" {
		method = http.MethodPost
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("skills: invoke %s: marshal params: %w", route, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("skills: invoke %s: build request: %w", route, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("skills: invoke %s: %w", route, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("skills: invoke %s: %w", route, newStatusError(resp))
	}

	result, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("skills: invoke %s: read body: %w", route, err)
	}
	return json.RawMessage(result), nil
}

// Health implements [Host].
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("skills: build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("skills: health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("skills: health: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// newStatusError drains up to maxErrorBody bytes of resp's body into a
// StatusError.
func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
