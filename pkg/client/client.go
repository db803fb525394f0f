// Package client is a small HTTP client for the suite daemon API. It retries
// transient transport failures and surfaces the daemon's classified errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Config holds client configuration.
type Config struct {
	BaseURL  string // daemon root, e.g. http://localhost:8080
	BasePath string // API prefix, e.g. /api
	Timeout  time.Duration
	RetryMax int
	Logger   *slog.Logger
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "http://localhost:8080",
		BasePath: "/api",
		Timeout:  10 * time.Second,
		RetryMax: 2,
	}
}

// Client talks to a running suite daemon.
type Client struct {
	base   string
	api    string
	http   *http.Client
	logger *slog.Logger
}

func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.BasePath == "" {
		config.BasePath = def.BasePath
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = config.RetryMax
	rc.HTTPClient.Timeout = config.Timeout
	rc.Logger = nil
	return &Client{
		base:   strings.TrimRight(config.BaseURL, "/"),
		api:    strings.TrimRight(config.BaseURL, "/") + config.BasePath,
		http:   rc.StandardClient(),
		logger: config.Logger,
	}
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status   int
	Message  string
	Category string
}

func (e *APIError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Category)
	}
	return e.Message
}

// --- response types, mirroring the daemon's JSON ---

type ServiceStatus struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	PID       int       `json:"pid"`
	Restarts  int       `json:"restarts"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
}

type Session struct {
	SessionID    string    `json:"session_id"`
	RemoteID     string    `json:"browserbase_session_id"`
	LiveURL      string    `json:"live_url"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

type CreateSessionParams struct {
	APIKey    string `json:"api_key"`
	ProjectID string `json:"project_id"`
	ModelKey  string `json:"model_api_key"`
	Headless  bool   `json:"headless"`
	Debug     bool   `json:"debug"`
}

type CreatedSession struct {
	SessionID string `json:"session_id"`
	RemoteID  string `json:"browserbase_session_id"`
	LiveURL   string `json:"live_url"`
	Status    string `json:"status"`
}

type ActionRequest struct {
	URL         string `json:"url,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

type ActionResult struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
}

type CleanupResult struct {
	SessionID string `json:"session_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

type CleanupSummary struct {
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Results   []CleanupResult `json:"results"`
}

type Stats struct {
	Active       int `json:"active"`
	TotalCreated int `json:"total_created"`
	TotalClosed  int `json:"total_closed"`
}

// --- operations ---

// IsReachable checks that the daemon answers its health endpoint.
func (c *Client) IsReachable(ctx context.Context) bool {
	var out map[string]any
	return c.do(ctx, http.MethodGet, c.base+"/health", nil, &out) == nil
}

func (c *Client) Services(ctx context.Context) ([]ServiceStatus, error) {
	var out []ServiceStatus
	err := c.do(ctx, http.MethodGet, c.api+"/services", nil, &out)
	return out, err
}

func (c *Client) CreateSession(ctx context.Context, p CreateSessionParams) (CreatedSession, error) {
	var out CreatedSession
	err := c.do(ctx, http.MethodPost, c.api+"/sessions", p, &out)
	return out, err
}

func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var out []Session
	err := c.do(ctx, http.MethodGet, c.api+"/sessions", nil, &out)
	return out, err
}

func (c *Client) SessionAction(ctx context.Context, id, action string, req ActionRequest) (ActionResult, error) {
	var out ActionResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/sessions/%s/%s", c.api, id, action), req, &out)
	return out, err
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	var out map[string]any
	return c.do(ctx, http.MethodDelete, c.api+"/sessions/"+id, nil, &out)
}

func (c *Client) Cleanup(ctx context.Context) (CleanupSummary, error) {
	var out CleanupSummary
	err := c.do(ctx, http.MethodPost, c.api+"/sessions/cleanup", nil, &out)
	return out, err
}

func (c *Client) SessionStats(ctx context.Context) (Stats, error) {
	var out Stats
	err := c.do(ctx, http.MethodGet, c.api+"/sessions/stats", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error    string `json:"error"`
			Category string `json:"category"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: apiErr.Error, Category: apiErr.Category}
		}
		return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("daemon returned status %d", resp.StatusCode)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
