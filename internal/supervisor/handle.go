package supervisor

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/k2riddim/linkedin-research-suite/internal/service"
)

// State is the externally visible lifecycle phase of a managed service.
type State string

const (
	StateStarting  State = "starting"
	StateHealthy   State = "healthy"
	StateRunning   State = "running" // up, no health endpoint configured
	StateUnhealthy State = "unhealthy"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

// handle is the supervisor's book-keeping for one managed service. Field
// access goes through the mutex; the running child itself is only ever
// signalled via its process group.
type handle struct {
	spec service.Spec

	mu        sync.Mutex
	cmd       *exec.Cmd
	pid       int
	state     State
	restarts  int
	startedAt time.Time
	stopping  bool
	waitDone  chan struct{}
}

func newHandle(spec service.Spec) *handle {
	return &handle{spec: spec, state: StateStarting}
}

func (h *handle) setStarted(cmd *exec.Cmd) {
	h.mu.Lock()
	h.cmd = cmd
	h.pid = cmd.Process.Pid
	h.startedAt = time.Now()
	h.state = StateStarting
	h.waitDone = make(chan struct{})
	h.mu.Unlock()
}

func (h *handle) currentState() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *handle) markExited() {
	h.mu.Lock()
	h.pid = 0
	h.mu.Unlock()
}

// incRestarts bumps the lifetime exit counter. It is never reset, a healthy
// stretch does not forgive earlier crashes.
func (h *handle) incRestarts() int {
	h.mu.Lock()
	h.restarts++
	v := h.restarts
	h.mu.Unlock()
	return v
}

func (h *handle) requestStop() {
	h.mu.Lock()
	h.stopping = true
	h.mu.Unlock()
}

func (h *handle) stopRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopping
}

func (h *handle) waitChan() chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitDone
}

func (h *handle) alivePID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

// signal delivers sig to the whole process group so grandchildren spawned by
// shell wrappers terminate with the service.
func (h *handle) signal(sig syscall.Signal) {
	if pid := h.alivePID(); pid > 0 {
		_ = syscall.Kill(-pid, sig)
	}
}

// Status is a point-in-time snapshot of one service.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	PID       int       `json:"pid,omitempty"`
	Restarts  int       `json:"restarts"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Uptime    string    `json:"uptime,omitempty"`
}

func (h *handle) snapshot() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Status{
		Name:      h.spec.Name,
		State:     h.state,
		PID:       h.pid,
		Restarts:  h.restarts,
		StartedAt: h.startedAt,
	}
	if h.pid > 0 && !h.startedAt.IsZero() {
		st.Uptime = time.Since(h.startedAt).Round(time.Second).String()
	}
	return st
}
