// Package health checks whether the sidecar's control endpoint answers.
//
// A failed probe is data, not an error: "not ready yet" is the normal state
// while the sidecar boots, so Probe never returns an error to the caller.
package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/sidecar/internal/metrics"
)

const (
	DefaultTimeout      = 2 * time.Second
	DefaultPollInterval = time.Second
)

// HTTPClient is the subset of *http.Client used for probing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the outcome of one probe. It is produced fresh on every call.
type Result struct {
	Ready      bool      `json:"ready"`
	ObservedAt time.Time `json:"observed_at"`
}

// Checker performs a single readiness check.
type Checker interface {
	Probe(ctx context.Context) Result
}

// Config configures an HTTP prober.
type Config struct {
	URL     string        // full control endpoint URL, e.g. http://127.0.0.1:8000/api/health
	Timeout time.Duration // per-request bound (default 2s)
	Client  HTTPClient    // optional; defaults to a client without keep-alives
}

// Prober issues GET requests against the sidecar control endpoint.
type Prober struct {
	url     string
	timeout time.Duration
	client  HTTPClient
}

// NewProber creates a Prober from cfg.
func NewProber(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{
			// Fresh connection per probe so a restarted sidecar is never masked
			// by a pooled connection to the previous one.
			Transport: &http.Transport{DisableKeepAlives: true, Proxy: nil},
		}
	}
	return &Prober{url: cfg.URL, timeout: cfg.Timeout, client: cfg.Client}
}

// Probe performs one bounded request. Ready is true iff the endpoint answered
// with a 2xx status within the timeout.
func (p *Prober) Probe(ctx context.Context) Result {
	ready := p.do(ctx)
	metrics.IncProbe(ready)
	return Result{Ready: ready, ObservedAt: time.Now()}
}

func (p *Prober) do(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		slog.Debug("health probe request invalid", "url", p.url, "error", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		slog.Debug("health probe failed", "url", p.url, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Debug("health probe not ready", "url", p.url, "status", resp.StatusCode)
		return false
	}
	return true
}

// Describe returns a human-readable description of the check.
func (p *Prober) Describe() string { return "http:" + p.url }

// Alive reports readiness in the shape of a liveness detector.
func (p *Prober) Alive() (bool, error) {
	return p.Probe(context.Background()).Ready, nil
}
