package eventbus

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPublishReachesSubscriber(t *testing.T) {
	b := New(nil)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	b.Publish("session_created", map[string]any{"session_id": "abc"})

	var ev Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "session_created", ev.Type)
	assert.Equal(t, "abc", ev.Data["session_id"])
	assert.False(t, ev.Time.IsZero())
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	b := New(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish("tick", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestCloseDetachesSubscribers(t *testing.T) {
	b := New(nil)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	b.Close()
	assert.Equal(t, 0, b.Subscribers())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	assert.Error(t, conn.ReadJSON(&ev), "stream ends once the bus is closed")

	b.Publish("after-close", nil) // no-op, must not panic
}
