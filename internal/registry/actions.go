package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/k2riddim/linkedin-research-suite/internal/browser"
	"github.com/k2riddim/linkedin-research-suite/internal/metrics"
)

// Action names the remote operations a session supports.
type Action string

const (
	ActionNavigate   Action = "navigate"
	ActionAct        Action = "act"
	ActionObserve    Action = "observe"
	ActionExtract    Action = "extract"
	ActionScreenshot Action = "screenshot"
)

// ParseAction validates a caller-supplied action name.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionNavigate, ActionAct, ActionObserve, ActionExtract, ActionScreenshot:
		return Action(s), nil
	}
	return "", &browser.ClassifiedError{
		Category: browser.CategoryClientError,
		Message:  fmt.Sprintf("unknown action %q", s),
	}
}

// ActionRequest carries the per-action inputs. Fields irrelevant to the
// chosen action are ignored.
type ActionRequest struct {
	URL         string                    `json:"url"`
	Instruction string                    `json:"instruction"`
	Screenshot  browser.ScreenshotOptions `json:"screenshot"`
}

// Do resolves the session, dispatches the action and refreshes the activity
// timestamp. Failures come back classified.
func (r *Registry) Do(ctx context.Context, id string, action Action, req ActionRequest) (json.RawMessage, error) {
	rec, err := r.resolve(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := r.dispatch(ctx, rec.handle, action, req)
	metrics.ObserveActionDuration(string(action), time.Since(start).Seconds())
	if err != nil {
		metrics.IncSessionAction(string(action), false)
		ce := browser.Classify(err, r.rules)
		r.log.Warn("session action failed",
			"session_id", rec.ID, "action", string(action),
			"category", string(ce.Category), "error", ce.Message)
		return nil, ce
	}

	r.mu.Lock()
	rec.LastActivity = time.Now()
	r.mu.Unlock()
	metrics.IncSessionAction(string(action), true)
	return res, nil
}

func (r *Registry) dispatch(ctx context.Context, h browser.Handle, action Action, req ActionRequest) (json.RawMessage, error) {
	switch action {
	case ActionNavigate:
		if req.URL == "" {
			return nil, &browser.ClassifiedError{Category: browser.CategoryClientError, Message: "url is required for navigate"}
		}
		return h.Navigate(ctx, req.URL)
	case ActionAct:
		if req.Instruction == "" {
			return nil, &browser.ClassifiedError{Category: browser.CategoryClientError, Message: "instruction is required for act"}
		}
		return h.Act(ctx, req.Instruction)
	case ActionObserve:
		if req.Instruction == "" {
			return nil, &browser.ClassifiedError{Category: browser.CategoryClientError, Message: "instruction is required for observe"}
		}
		return h.Observe(ctx, req.Instruction)
	case ActionExtract:
		if req.Instruction == "" {
			return nil, &browser.ClassifiedError{Category: browser.CategoryClientError, Message: "instruction is required for extract"}
		}
		return h.Extract(ctx, req.Instruction)
	case ActionScreenshot:
		return h.Screenshot(ctx, req.Screenshot)
	}
	return nil, &browser.ClassifiedError{Category: browser.CategoryClientError, Message: fmt.Sprintf("unknown action %q", action)}
}

// Close tears down one session. The record is removed as soon as it has been
// resolved so a remote close failure can never leak registry state; the
// remote error, if any, is logged and returned for reporting only.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	rec, ok := r.sessions[id]
	if !ok {
		for _, cand := range r.sessions {
			if cand.RemoteID != "" && cand.RemoteID == id {
				rec = cand
				break
			}
		}
	}
	if rec == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.sessions, rec.ID)
	r.closed++
	active := len(r.sessions)
	r.mu.Unlock()

	metrics.IncSessionClosed()
	metrics.SetSessionsActive(active)

	err := rec.handle.Close(ctx)
	if err != nil {
		ce := browser.Classify(err, r.rules)
		r.log.Warn("remote close failed, record removed anyway",
			"session_id", rec.ID, "category", string(ce.Category), "error", ce.Message)
		r.emit("session_closed", map[string]any{"session_id": rec.ID, "clean": false})
		return ce
	}
	r.log.Info("session closed", "session_id", rec.ID)
	r.emit("session_closed", map[string]any{"session_id": rec.ID, "clean": true})
	return nil
}

// CleanupResult is the per-session outcome of a bulk cleanup.
type CleanupResult struct {
	SessionID string `json:"session_id"`
	RemoteID  string `json:"browserbase_session_id,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// Summary aggregates a bulk cleanup run.
type Summary struct {
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Results   []CleanupResult `json:"results"`
}

// CleanupAll detaches every tracked session and closes the remote side of
// each concurrently. All records are gone by the time it returns, whatever
// the remote outcomes were.
func (r *Registry) CleanupAll(ctx context.Context) Summary {
	r.mu.Lock()
	recs := make([]*Record, 0, len(r.sessions))
	for _, rec := range r.sessions {
		recs = append(recs, rec)
	}
	r.sessions = make(map[string]*Record)
	r.closed += len(recs)
	r.mu.Unlock()
	metrics.SetSessionsActive(0)

	results := make([]CleanupResult, len(recs))
	var wg sync.WaitGroup
	for i, rec := range recs {
		wg.Add(1)
		go func(i int, rec *Record) {
			defer wg.Done()
			res := CleanupResult{SessionID: rec.ID, RemoteID: rec.RemoteID, OK: true}
			if err := rec.handle.Close(ctx); err != nil {
				ce := browser.Classify(err, r.rules)
				res.OK = false
				res.Error = ce.Message
			} else {
				metrics.IncSessionClosed()
			}
			results[i] = res
		}(i, rec)
	}
	wg.Wait()

	s := Summary{Total: len(results), Results: results}
	for _, res := range results {
		if res.OK {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	r.log.Info("bulk session cleanup finished", "total", s.Total, "succeeded", s.Succeeded, "failed", s.Failed)
	r.emit("sessions_cleaned", map[string]any{"total": s.Total, "succeeded": s.Succeeded, "failed": s.Failed})
	return s
}

// ShutdownCleanup runs CleanupAll under a hard time budget. When the budget
// expires, remaining remote closes are abandoned and the map is cleared so
// shutdown never hangs on an unresponsive provider.
func (r *Registry) ShutdownCleanup(budget time.Duration) Summary {
	r.mu.Lock()
	n := len(r.sessions)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	done := make(chan Summary, 1)
	go func() { done <- r.CleanupAll(ctx) }()

	select {
	case s := <-done:
		return s
	case <-ctx.Done():
		// CleanupAll detaches every record before dialing out, so only the
		// in-flight remote closes are abandoned here.
		r.log.Warn("session cleanup exceeded shutdown budget, abandoning remote closes", "budget", budget)
		return Summary{Total: n, Failed: n}
	}
}

// Stats summarizes registry activity since startup.
type Stats struct {
	Active       int `json:"active"`
	TotalCreated int `json:"total_created"`
	TotalClosed  int `json:"total_closed"`
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Active: len(r.sessions), TotalCreated: r.created, TotalClosed: r.closed}
}

// StartSweeper closes sessions idle longer than maxIdle, checking every
// interval. Call StopSweeper to terminate it.
func (r *Registry) StartSweeper(interval, maxIdle time.Duration) {
	r.mu.Lock()
	if r.sweepStop != nil {
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	r.sweepStop = stop
	r.mu.Unlock()

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				r.sweepIdle(maxIdle)
			}
		}
	}()
}

func (r *Registry) StopSweeper() {
	r.mu.Lock()
	if r.sweepStop != nil {
		close(r.sweepStop)
		r.sweepStop = nil
	}
	r.mu.Unlock()
}

func (r *Registry) sweepIdle(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.Lock()
	var stale []string
	for id, rec := range r.sessions {
		if rec.LastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()
	for _, id := range stale {
		r.log.Info("closing idle session", "session_id", id, "max_idle", maxIdle)
		_ = r.Close(context.Background(), id)
	}
}

func (r *Registry) emit(event string, fields map[string]any) {
	if r.notify != nil {
		r.notify(event, fields)
	}
}
