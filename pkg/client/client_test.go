package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
	mux.HandleFunc("GET /api/services", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]ServiceStatus{{Name: "stagehand", State: "healthy", PID: 42}})
	})
	mux.HandleFunc("POST /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		var p CreateSessionParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		if p.APIKey == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "api_key, project_id and model_api_key are required", "category": "client_error"})
			return
		}
		_ = json.NewEncoder(w).Encode(CreatedSession{SessionID: "s-1", RemoteID: "bb-1", Status: "active"})
	})
	mux.HandleFunc("POST /api/sessions/s-1/navigate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": map[string]string{"title": "LinkedIn"}})
	})
	mux.HandleFunc("DELETE /api/sessions/s-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("POST /api/sessions/cleanup", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(CleanupSummary{Total: 2, Succeeded: 1, Failed: 1})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RetryMax = 0
	return New(cfg)
}

func TestClientRoundTrip(t *testing.T) {
	srv := fakeDaemon(t)
	c := newTestClient(srv)
	ctx := context.Background()

	assert.True(t, c.IsReachable(ctx))

	sts, err := c.Services(ctx)
	require.NoError(t, err)
	require.Len(t, sts, 1)
	assert.Equal(t, "stagehand", sts[0].Name)

	created, err := c.CreateSession(ctx, CreateSessionParams{APIKey: "k", ProjectID: "p", ModelKey: "m"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", created.SessionID)

	res, err := c.SessionAction(ctx, "s-1", "navigate", ActionRequest{URL: "https://linkedin.com"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, string(res.Result), "LinkedIn")

	require.NoError(t, c.DeleteSession(ctx, "s-1"))

	sum, err := c.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
}

func TestClientSurfacesAPIError(t *testing.T) {
	srv := fakeDaemon(t)
	c := newTestClient(srv)

	_, err := c.CreateSession(context.Background(), CreateSessionParams{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "client_error", apiErr.Category)
	assert.Contains(t, apiErr.Error(), "client_error")
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RetryMax = 2
	c := New(cfg)

	assert.True(t, c.IsReachable(context.Background()))
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestClientUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://127.0.0.1:1"
	cfg.RetryMax = 0
	c := New(cfg)
	assert.False(t, c.IsReachable(context.Background()))
}
