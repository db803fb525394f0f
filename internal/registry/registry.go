// Package registry tracks ephemeral remote browser-automation sessions owned
// by the suite service: creation, resolution by local or provider id, action
// dispatch, and best-effort bulk teardown.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/k2riddim/linkedin-research-suite/internal/browser"
	"github.com/k2riddim/linkedin-research-suite/internal/metrics"
)

// ErrNotFound reports that an identifier matched neither a local nor a remote
// session id. Callers must be able to tell this apart from remote failures.
var ErrNotFound = errors.New("session not found")

// Record is a live automation session. The local ID is the primary key; the
// remote provider id is a secondary best-effort lookup key that may become
// known only after creation completes.
type Record struct {
	ID           string    `json:"session_id"`
	RemoteID     string    `json:"browserbase_session_id,omitempty"`
	LiveURL      string    `json:"live_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`

	handle browser.Handle
}

// Registry owns the session map. All mutation happens under mu; remote calls
// never hold the lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Record

	dialer   browser.Dialer
	rules    []browser.Rule
	log      *slog.Logger
	notify   func(event string, fields map[string]any)
	defCreds browser.Credentials

	created int
	closed  int

	sweepStop chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithRules replaces the provider error classification table.
func WithRules(rules []browser.Rule) Option {
	return func(r *Registry) { r.rules = rules }
}

// WithNotifier wires lifecycle notifications (session created/closed) into an
// event sink such as the dashboard event bus.
func WithNotifier(fn func(event string, fields map[string]any)) Option {
	return func(r *Registry) { r.notify = fn }
}

// WithDefaultCredentials fills request fields the caller left empty, usually
// from the daemon's environment.
func WithDefaultCredentials(c browser.Credentials) Option {
	return func(r *Registry) { r.defCreds = c }
}

func New(dialer browser.Dialer, log *slog.Logger, opts ...Option) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		sessions: make(map[string]*Record),
		dialer:   dialer,
		rules:    browser.DefaultRules(),
		log:      log,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CreateParams are the caller-supplied inputs for a new session.
type CreateParams struct {
	APIKey    string `json:"api_key"`
	ProjectID string `json:"project_id"`
	ModelKey  string `json:"model_api_key"`
	Headless  bool   `json:"headless"`
	Debug     bool   `json:"debug"`
}

// Created is the response payload for a successful creation.
type Created struct {
	SessionID string `json:"session_id"`
	RemoteID  string `json:"browserbase_session_id"`
	LiveURL   string `json:"live_url"`
	Status    string `json:"status"`
}

// Create starts a remote session and registers it. Missing credentials fail
// immediately with a client-error classification; the provider is never
// called. A provider that does not surface its session id fails the request
// and no record is retained.
func (r *Registry) Create(ctx context.Context, p CreateParams) (Created, error) {
	if p.APIKey == "" {
		p.APIKey = r.defCreds.APIKey
	}
	if p.ProjectID == "" {
		p.ProjectID = r.defCreds.ProjectID
	}
	if p.ModelKey == "" {
		p.ModelKey = r.defCreds.ModelKey
	}
	if p.APIKey == "" || p.ProjectID == "" || p.ModelKey == "" {
		return Created{}, &browser.ClassifiedError{
			Category: browser.CategoryClientError,
			Message:  "api_key, project_id and model_api_key are required",
		}
	}
	h, err := r.dialer.Start(ctx, browser.StartParams{
		APIKey:    p.APIKey,
		ProjectID: p.ProjectID,
		ModelKey:  p.ModelKey,
		Headless:  p.Headless,
		Debug:     p.Debug,
	})
	if err != nil {
		return Created{}, browser.Classify(err, r.rules)
	}
	if h.RemoteID() == "" {
		// The session is unusable without the provider id; tear it down
		// rather than track an unresolvable handle.
		_ = h.Close(ctx)
		return Created{}, &browser.ClassifiedError{
			Category: browser.CategoryUnknown,
			Message:  "provider did not return a session id",
		}
	}

	now := time.Now()
	rec := &Record{
		ID:           uuid.NewString(),
		RemoteID:     h.RemoteID(),
		LiveURL:      h.LiveURL(),
		CreatedAt:    now,
		LastActivity: now,
		handle:       h,
	}
	r.mu.Lock()
	r.sessions[rec.ID] = rec
	r.created++
	active := len(r.sessions)
	r.mu.Unlock()

	metrics.IncSessionCreated()
	metrics.SetSessionsActive(active)
	r.log.Info("session created", "session_id", rec.ID, "browserbase_session_id", rec.RemoteID)
	r.emit("session_created", map[string]any{"session_id": rec.ID, "live_url": rec.LiveURL})

	return Created{SessionID: rec.ID, RemoteID: rec.RemoteID, LiveURL: rec.LiveURL, Status: "active"}, nil
}

// resolve finds a record by local id first, then by a linear scan over remote
// ids. The remote id has no reverse index because it may arrive late.
func (r *Registry) resolve(id string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.sessions[id]; ok {
		return rec, nil
	}
	for _, rec := range r.sessions {
		if rec.RemoteID != "" && rec.RemoteID == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Lookup returns a copy of the record for id (local or remote).
func (r *Registry) Lookup(id string) (Record, error) {
	rec, err := r.resolve(id)
	if err != nil {
		return Record{}, err
	}
	return *rec, nil
}

// List returns copies of all live records.
func (r *Registry) List() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.sessions))
	for _, rec := range r.sessions {
		out = append(out, *rec)
	}
	return out
}
