package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client talks to the shell's message channel from the UI side.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8765/ipc",
		Timeout: 10 * time.Second,
	}
}

// New creates a message channel client. The timeout does not apply to
// OpenFileDialog, which waits for the user.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the shell is serving the message channel.
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.DataDir(ctx)
	if err != nil {
		c.logger.Debug("message channel unreachable", "error", err)
		return false
	}
	return true
}

// DataDir returns the vault directory path.
func (c *Client) DataDir(ctx context.Context) (string, error) {
	var out dataDirResponse
	if err := c.do(ctx, c.client, http.MethodGet, "/data-dir", &out); err != nil {
		return "", err
	}
	return out.Path, nil
}

// ListFiles returns the vault directory listing.
func (c *Client) ListFiles(ctx context.Context) ([]FileMetadata, error) {
	var out filesResponse
	if err := c.do(ctx, c.client, http.MethodGet, "/files", &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// OpenFileDialog asks the shell to show the native chooser and returns the
// selected paths; empty when the user cancels.
func (c *Client) OpenFileDialog(ctx context.Context) ([]string, error) {
	noTimeout := &http.Client{Transport: c.client.Transport}
	var out pathsResponse
	if err := c.do(ctx, noTimeout, http.MethodPost, "/open-file-dialog", &out); err != nil {
		return nil, err
	}
	return out.Paths, nil
}

// Status returns the sidecar lifecycle snapshot. The shell serves it on its
// diagnostics listener, so BaseURL must point there rather than at the
// message channel.
func (c *Client) Status(ctx context.Context) (SidecarStatus, error) {
	var out SidecarStatus
	err := c.do(ctx, c.client, http.MethodGet, "/status", &out)
	return out, err
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// handleErrorResponse processes error responses from the server
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, er.Error)
	}
	return fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
