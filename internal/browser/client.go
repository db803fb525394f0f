package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client dials the automation-session service over its HTTP action protocol.
type Client struct {
	http *resty.Client
}

// NewClient builds a provider client for baseURL (the automation-session
// service, e.g. http://127.0.0.1:8081).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second // navigation can legitimately take a while
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// wire envelope shared by all provider responses.
type providerResponse struct {
	Success   bool            `json:"success"`
	SessionID string          `json:"sessionId"`
	RemoteID  string          `json:"browserbaseSessionId"`
	LiveURL   string          `json:"liveUrl"`
	Result    json.RawMessage `json:"result"`
	Error     string          `json:"error"`
	Trace     string          `json:"trace"`
}

// Start implements Dialer.
func (c *Client) Start(ctx context.Context, p StartParams) (Handle, error) {
	var out providerResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(p).
		SetResult(&out).
		SetError(&out).
		Post("/sessions/start")
	if err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("cannot connect to automation service: %v", err)}
	}
	if resp.IsError() || !out.Success {
		return nil, &ProviderError{Message: providerMessage(out, resp.StatusCode()), Trace: out.Trace}
	}
	return &httpHandle{c: c, id: out.SessionID, remoteID: out.RemoteID, liveURL: out.LiveURL}, nil
}

func providerMessage(out providerResponse, status int) string {
	if out.Error != "" {
		return out.Error
	}
	return fmt.Sprintf("automation service returned status %d", status)
}

// httpHandle drives one remote session. Not safe for concurrent use.
type httpHandle struct {
	c        *Client
	id       string // provider-local session id used in action URLs
	remoteID string
	liveURL  string
}

func (h *httpHandle) RemoteID() string { return h.remoteID }
func (h *httpHandle) LiveURL() string  { return h.liveURL }

func (h *httpHandle) Navigate(ctx context.Context, url string) (json.RawMessage, error) {
	return h.do(ctx, "navigate", map[string]any{"url": url})
}

func (h *httpHandle) Act(ctx context.Context, instruction string) (json.RawMessage, error) {
	return h.do(ctx, "act", map[string]any{"instruction": instruction})
}

func (h *httpHandle) Observe(ctx context.Context, instruction string) (json.RawMessage, error) {
	return h.do(ctx, "observe", map[string]any{"instruction": instruction})
}

func (h *httpHandle) Extract(ctx context.Context, instruction string) (json.RawMessage, error) {
	return h.do(ctx, "extract", map[string]any{"instruction": instruction})
}

func (h *httpHandle) Screenshot(ctx context.Context, opts ScreenshotOptions) (json.RawMessage, error) {
	return h.do(ctx, "screenshot", opts)
}

func (h *httpHandle) Close(ctx context.Context) error {
	_, err := h.do(ctx, "end", struct{}{})
	return err
}

func (h *httpHandle) do(ctx context.Context, action string, body any) (json.RawMessage, error) {
	var out providerResponse
	resp, err := h.c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/sessions/%s/%s", h.id, action))
	if err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("cannot connect to automation service: %v", err)}
	}
	if resp.IsError() || !out.Success {
		return nil, &ProviderError{Message: providerMessage(out, resp.StatusCode()), Trace: out.Trace}
	}
	return out.Result, nil
}
