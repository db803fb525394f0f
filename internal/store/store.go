// Package store persists lifecycle events so operators can reconstruct what
// the suite did across restarts.
package store

import (
	"context"
	"time"
)

// Kind separates the two event families sharing one table.
const (
	KindService = "service"
	KindSession = "session"
)

// Event is one lifecycle transition: a service changing state or a session
// being created or closed. Detail is free-form (exit error, error category).
type Event struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the minimal persistence interface for the event log.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, ev Event) error
	Recent(ctx context.Context, kind string, limit int) ([]Event, error)
	PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}
