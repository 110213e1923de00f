package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Prober checks one dependent service. Probe returns nil when the
// dependency is reachable and ready.
type Prober interface {
	Name() string
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function into a named Prober.
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

func (p ProbeFunc) Name() string { return p.ProbeName }

func (p ProbeFunc) Probe(ctx context.Context) error { return p.Fn(ctx) }

// DialProber reports healthy when a TCP (or unix) connection can be
// established.
type DialProber struct {
	name    string
	network string
	addr    string
	timeout time.Duration
}

// NewDialProber builds a connectivity probe for one downstream module.
func NewDialProber(name, network, addr string, timeout time.Duration) *DialProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DialProber{name: name, network: network, addr: addr, timeout: timeout}
}

func (p *DialProber) Name() string { return p.name }

func (p *DialProber) Probe(ctx context.Context) error {
	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, p.network, p.addr)
	if err != nil {
		return fmt.Errorf("dial %s %s: %w", p.network, p.addr, err)
	}
	return conn.Close()
}

// HTTPProber reports healthy on any 2xx response from the probe URL.
type HTTPProber struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPProber builds an HTTP readiness probe. A nil client uses a
// 5 second default.
func NewHTTPProber(name, url string, client *http.Client) *HTTPProber {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPProber{name: name, url: url, client: client}
}

func (p *HTTPProber) Name() string { return p.name }

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build probe request for %s: %w", p.url, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe %s: unexpected status %d", p.url, resp.StatusCode)
	}
	return nil
}
