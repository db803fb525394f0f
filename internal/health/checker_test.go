package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckNonErrorStatusIsHealthy(t *testing.T) {
	for _, code := range []int{200, 204, 301} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))
		c := NewChecker(time.Second)
		assert.True(t, c.Check(context.Background(), srv.URL), "status %d", code)
		srv.Close()
	}
}

func TestCheckErrorStatusIsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := NewChecker(time.Second)
	assert.False(t, c.Check(context.Background(), srv.URL))
}

func TestCheckConnectionRefused(t *testing.T) {
	c := NewChecker(200 * time.Millisecond)
	assert.False(t, c.Check(context.Background(), "http://127.0.0.1:1/health"))
}

func TestPollSucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChecker(time.Second)
	ok := c.Poll(context.Background(), srv.URL, 10*time.Millisecond, 5)
	assert.True(t, ok)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollExhaustsBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewChecker(time.Second)
	ok := c.Poll(context.Background(), srv.URL, time.Millisecond, 4)
	assert.False(t, ok)
	assert.Equal(t, int32(4), calls.Load())
}

func TestPollCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewChecker(time.Second)
	assert.False(t, c.Poll(ctx, srv.URL, time.Minute, 30))
}
