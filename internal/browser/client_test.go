package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions/start", func(w http.ResponseWriter, r *http.Request) {
		var p StartParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		if p.APIKey == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "apiKey required"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":              true,
			"sessionId":            "local-1",
			"browserbaseSessionId": "bb-1",
			"liveUrl":              "https://live.example/bb-1",
		})
	})
	mux.HandleFunc("POST /sessions/local-1/navigate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": map[string]string{"title": "Example"}})
	})
	mux.HandleFunc("POST /sessions/local-1/act", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Navigation timeout exceeded", "trace": "at act"})
	})
	mux.HandleFunc("POST /sessions/local-1/end", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientStartAndNavigate(t *testing.T) {
	srv := fakeProvider(t)
	c := NewClient(srv.URL, time.Second)

	h, err := c.Start(context.Background(), StartParams{APIKey: "k", ProjectID: "p", ModelKey: "m"})
	require.NoError(t, err)
	assert.Equal(t, "bb-1", h.RemoteID())
	assert.Equal(t, "https://live.example/bb-1", h.LiveURL())

	res, err := h.Navigate(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Contains(t, string(res), "Example")

	require.NoError(t, h.Close(context.Background()))
}

func TestClientStartRejected(t *testing.T) {
	srv := fakeProvider(t)
	c := NewClient(srv.URL, time.Second)

	_, err := c.Start(context.Background(), StartParams{})
	require.Error(t, err)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "apiKey required", pe.Message)
}

func TestClientActionErrorCarriesTrace(t *testing.T) {
	srv := fakeProvider(t)
	c := NewClient(srv.URL, time.Second)

	h, err := c.Start(context.Background(), StartParams{APIKey: "k"})
	require.NoError(t, err)

	_, err = h.Act(context.Background(), "click login")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Navigation timeout exceeded", pe.Message)
	assert.Equal(t, "at act", pe.Trace)
}

func TestClientUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.Start(context.Background(), StartParams{APIKey: "k"})
	require.Error(t, err)
	ce := Classify(err, DefaultRules())
	assert.Equal(t, CategoryProviderUnreachable, ce.Category)
}
