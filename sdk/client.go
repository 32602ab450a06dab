// Package sdk provides a Go client for a wafwatch telemetry backend.
//
// Basic usage:
//
//	c := sdk.NewClient("http://localhost:5000/api", 10*time.Second)
//	stats, err := c.Stats(ctx)
//	events, err := c.Events(ctx, 50)
//
// Devices report decisions with Report; dashboards wipe state with Clear.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oktsec/wafwatch/internal/waf"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultBaseURL is where the reference backend listens by default.
const DefaultBaseURL = "http://localhost:5000/api"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// APIError is returned when the backend answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("wafwatch: %s returned HTTP %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("wafwatch: %s returned HTTP %d: %s", e.Path, e.StatusCode, e.Body)
}

// Client talks to the backend HTTP contract.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewClient creates a client for the backend rooted at baseURL
// (e.g. http://localhost:5000/api). A zero timeout means no timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		dialer: websocket.DefaultDialer,
	}
}

// BaseURL returns the backend root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stats fetches GET /stats.
func (c *Client) Stats(ctx context.Context) (*waf.StatsSnapshot, error) {
	var stats waf.StatsSnapshot
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Events fetches GET /events?limit=N. The result is newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]waf.Event, error) {
	path := "/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp waf.EventsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Events == nil {
		resp.Events = []waf.Event{}
	}
	return resp.Events, nil
}

// Clear asks the backend to drop every stored event and reset its counters.
// The response body is not consumed beyond the status code.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/clear", nil, nil)
}

// Report posts a firewall decision to /report.
func (c *Client) Report(ctx context.Context, r waf.Report) (*waf.ReportResponse, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}
	var resp waf.ReportResponse
	if err := c.do(ctx, http.MethodPost, "/report", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the backend health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return &resp, nil
}

// Subscribe connects to the backend's notification stream and calls fn for
// every notification until ctx is cancelled or the connection drops.
func (c *Client) Subscribe(ctx context.Context, fn func(waf.Notification)) error {
	wsURL, err := streamURL(c.baseURL)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("X-Request-ID", uuid.New().String())
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("dialing stream: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close() //nolint:errcheck // best-effort close

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var n waf.Notification
		if err := conn.ReadJSON(&n); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading stream: %w", err)
		}
		fn(n)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decoding %s (HTTP %d): %w", path, resp.StatusCode, err)
	}
	return nil
}

// streamURL maps http(s)://host/api to ws(s)://host/api/stream.
func streamURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("base url must be http or https")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/stream"
	return u.String(), nil
}
