// Package history exports lifecycle events to external destinations
// (analytics and the persistent event log).
package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/k2riddim/linkedin-research-suite/internal/store"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventServiceState   EventType = "service_state"
	EventSessionCreated EventType = "session_created"
	EventSessionClosed  EventType = "session_closed"
)

// Event represents one lifecycle event to be exported.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Fanout delivers each event to every sink. A failing sink is logged and
// skipped; history export must never interfere with supervision.
type Fanout struct {
	sinks []Sink
	log   *slog.Logger
}

func NewFanout(log *slog.Logger, sinks ...Sink) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	return &Fanout{sinks: sinks, log: log}
}

func (f *Fanout) Send(ctx context.Context, e Event) error {
	for _, s := range f.sinks {
		if err := s.Send(ctx, e); err != nil {
			f.log.Warn("history sink failed", "type", string(e.Type), "name", e.Name, "error", err)
		}
	}
	return nil
}

// StoreSink persists events into the lifecycle event store.
type StoreSink struct {
	St store.Store
}

func (s StoreSink) Send(ctx context.Context, e Event) error {
	kind := store.KindService
	if e.Type == EventSessionCreated || e.Type == EventSessionClosed {
		kind = store.KindSession
	}
	return s.St.Append(ctx, store.Event{
		Kind:      kind,
		Name:      e.Name,
		State:     e.State,
		Detail:    e.Detail,
		CreatedAt: e.OccurredAt,
	})
}
