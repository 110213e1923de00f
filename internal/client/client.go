// Package client talks to the development pipeline host over HTTP. It
// carries the mutable pipeline context tuple (version, replay, cache
// policy), binds it around every request so the propagation transport
// injects the x-tpf-* headers, and surfaces the cache status the host
// reports back. The interactive shell behind `tpf repl` lives here too.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tpf/internal/pipectx"
)

// DefaultServerURL matches the dev host's default listen address.
const DefaultServerURL = "http://localhost:8420"

const defaultTimeout = 30 * time.Second

// Options configure a Client.
type Options struct {
	// BaseURL is the host root. Empty selects DefaultServerURL.
	BaseURL string
	// Timeout bounds every unary request. Zero selects 30 seconds.
	// Streaming requests are bounded by their context instead.
	Timeout time.Duration
	// Version is propagated as x-tpf-version on every request.
	Version string
}

// Client is a pipeline host client. Safe for concurrent use; the policy
// and replay setters apply to requests started after the call.
type Client struct {
	baseURL string
	unary   *http.Client
	stream  *http.Client

	mu sync.RWMutex
	pc pipectx.Context
}

// New returns a client for the host at opts.BaseURL.
func New(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultServerURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := pipectx.NewTransport(nil)
	return &Client{
		baseURL: base,
		unary:   &http.Client{Transport: transport, Timeout: timeout},
		stream:  &http.Client{Transport: transport},
		pc:      pipectx.Context{Version: opts.Version},
	}
}

// BaseURL returns the host root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Context returns the tuple attached to outgoing requests.
func (c *Client) Context() pipectx.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pc
}

// SetPolicy pins the per-request cache policy. Empty clears the pin so
// the host default applies again.
func (c *Client) SetPolicy(p pipectx.CachePolicy) error {
	if p != "" && !p.Valid() {
		return fmt.Errorf("unknown cache policy %q", string(p))
	}
	c.mu.Lock()
	c.pc.Policy = p
	c.mu.Unlock()
	return nil
}

// SetReplay marks subsequent requests as replay traffic.
func (c *Client) SetReplay(on bool) {
	c.mu.Lock()
	c.pc.Replay = on
	c.mu.Unlock()
}

// Result is one unary pipeline response.
type Result struct {
	// Value is the decoded pipeline result. Nil when NoResult is set.
	Value any
	// CacheStatus is the host's x-tpf-cache-status report, empty when
	// the host reported none.
	CacheStatus pipectx.CacheStatus
	// NoResult marks a run that completed without emitting.
	NoResult bool
}

// ServerError is a non-2xx host response.
type ServerError struct {
	Status  int
	Kind    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	if e.Kind == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Execute runs the pipeline over one input and returns its single
// result.
func (c *Client) Execute(ctx context.Context, input any) (*Result, error) {
	ctx, release := pipectx.Bind(ctx, c.Context())
	defer release()

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encoding input: %w", err)
	}
	resp, err := c.post(ctx, c.unary, "/v1/pipeline/execute", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	status, _ := pipectx.CacheStatusOf(ctx)
	switch {
	case resp.StatusCode == http.StatusNoContent:
		return &Result{CacheStatus: status, NoResult: true}, nil
	case resp.StatusCode != http.StatusOK:
		return nil, decodeServerError(resp)
	}

	var body struct {
		Result any `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &Result{Value: body.Result, CacheStatus: status}, nil
}

// StreamLine is one NDJSON line from the host. Lines carry either a
// value or an item failure; a fatal line terminates the stream with the
// run failure.
type StreamLine struct {
	Value any    `json:"value"`
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Fatal bool   `json:"fatal"`
}

// Failed reports whether the line carries a failure instead of a value.
func (l StreamLine) Failed() bool { return l.Error != "" }

// Stream runs the pipeline over items and hands every emission line to
// fn in arrival order. A non-nil error from fn stops reading.
func (c *Client) Stream(ctx context.Context, items []any, fn func(StreamLine) error) error {
	ctx, release := pipectx.Bind(ctx, c.Context())
	defer release()

	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding input array: %w", err)
	}
	resp, err := c.post(ctx, c.stream, "/v1/pipeline/stream", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeServerError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line StreamLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("decoding stream line: %w", err)
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}

// Stage describes one planned pipeline stage as reported by the host.
type Stage struct {
	Name     string `json:"name"`
	Shape    string `json:"shape"`
	Parallel bool   `json:"parallel"`
}

// Steps lists the planned stages in execution order.
func (c *Client) Steps(ctx context.Context) ([]Stage, error) {
	resp, err := c.get(ctx, "/v1/pipeline/steps")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeServerError(resp)
	}
	var stages []Stage
	if err := json.NewDecoder(resp.Body).Decode(&stages); err != nil {
		return nil, fmt.Errorf("decoding stages: %w", err)
	}
	return stages, nil
}

// Health is the host liveness report.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health returns the host liveness report.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	resp, err := c.get(ctx, "/healthz")
	if err != nil {
		return h, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return h, decodeServerError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return h, fmt.Errorf("decoding health: %w", err)
	}
	return h, nil
}

// Readiness reports the host's startup gate.
type Readiness struct {
	State string
	Ready bool
}

// Ready returns the startup gate state. Both a ready and a not-ready
// host answer; only transport trouble is an error.
func (c *Client) Ready(ctx context.Context) (Readiness, error) {
	var r Readiness
	resp, err := c.get(ctx, "/readyz")
	if err != nil {
		return r, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return r, decodeServerError(resp)
	}
	var body struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return r, fmt.Errorf("decoding readiness: %w", err)
	}
	return Readiness{State: body.State, Ready: resp.StatusCode == http.StatusOK}, nil
}

func (c *Client) post(ctx context.Context, hc *http.Client, path string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", path, err)
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	ctx, release := pipectx.Bind(ctx, c.Context())
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.unary.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", path, err)
	}
	return resp, nil
}

// decodeServerError reads the host's {"kind","error"} body; anything
// else is reported raw.
func decodeServerError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	se := &ServerError{Status: resp.StatusCode}
	var body struct {
		Kind  string `json:"kind"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		se.Kind = body.Kind
		se.Message = body.Error
	} else {
		se.Message = strings.TrimSpace(string(raw))
	}
	return se
}
