// Package eventbus fans suite lifecycle events out to websocket subscribers,
// primarily the dashboard's live activity feed.
package eventbus

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one bus message. Data is event-specific and shallow.
type Event struct {
	Type string         `json:"type"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data,omitempty"`
}

type subscriber struct {
	ch chan Event
}

// Bus is a fan-out hub. Publishing never blocks; a subscriber that cannot
// keep up is dropped rather than stalling the publishers.
type Bus struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	log    *slog.Logger
	closed bool
}

func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{subs: make(map[*subscriber]struct{}), log: log}
}

// Publish delivers an event to every current subscriber.
func (b *Bus) Publish(typ string, data map[string]any) {
	ev := Event{Type: typ, Time: time.Now(), Data: data}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			delete(b.subs, s)
			close(s.ch)
			b.log.Warn("dropping slow event subscriber")
		}
	}
}

// Subscribers reports the current fan-out width.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close detaches every subscriber and stops accepting new ones.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

func (b *Bus) subscribe() (*subscriber, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	s := &subscriber{ch: make(chan Event, 32)}
	b.subs[s] = struct{}{}
	return s, true
}

func (b *Bus) unsubscribe(s *subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	b.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from another port during development.
	CheckOrigin: func(*http.Request) bool { return true },
}

const writeWait = 5 * time.Second

// Handler upgrades the request and streams events until the peer goes away.
func (b *Bus) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Warn("websocket upgrade failed", "error", err)
			return
		}
		sub, ok := b.subscribe()
		if !ok {
			_ = conn.Close()
			return
		}
		defer b.unsubscribe(sub)
		defer func() { _ = conn.Close() }()

		// Reader just watches for the peer closing.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case ev, open := <-sub.ch:
				if !open {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			}
		}
	})
}
