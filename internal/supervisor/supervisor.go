// Package supervisor starts the suite's services in dependency order, gates
// each startup on its health endpoint, applies the restart policy, and tears
// everything down in parallel on shutdown.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/k2riddim/linkedin-research-suite/internal/env"
	"github.com/k2riddim/linkedin-research-suite/internal/health"
	"github.com/k2riddim/linkedin-research-suite/internal/logmux"
	"github.com/k2riddim/linkedin-research-suite/internal/metrics"
	"github.com/k2riddim/linkedin-research-suite/internal/service"
)

// Options tune the lifecycle policy. Zero values take the production
// defaults; tests shrink them.
type Options struct {
	HealthInterval time.Duration // delay between health probes
	HealthAttempts int           // probes before giving up the gate
	RestartDelay   time.Duration // pause before relaunching a dead service
	MaxRestarts    int           // lifetime restart budget per service
	StopTimeout    time.Duration // SIGTERM grace before SIGKILL
}

func (o Options) withDefaults() Options {
	if o.HealthInterval <= 0 {
		o.HealthInterval = 2 * time.Second
	}
	if o.HealthAttempts <= 0 {
		o.HealthAttempts = 30
	}
	if o.RestartDelay <= 0 {
		o.RestartDelay = 5 * time.Second
	}
	if o.MaxRestarts <= 0 {
		o.MaxRestarts = 3
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 10 * time.Second
	}
	return o
}

// exitEvent is what a wait goroutine reports to the control loop.
type exitEvent struct {
	name string
	err  error
}

// Supervisor owns the service handles. All restart decisions are made on a
// single control loop fed by exit events, so policy never races with itself.
type Supervisor struct {
	opts    Options
	order   []service.Spec
	mux     *logmux.Mux
	checker *health.Checker
	log     *slog.Logger

	onTransition func(name string, state State)
	exitFn       func(code int)

	mu       sync.Mutex
	handles  map[string]*handle
	shutting bool

	events chan exitEvent
	quit   chan struct{}
	done   chan struct{}

	shutdownOnce sync.Once
}

// SupOption configures a Supervisor.
type SupOption func(*Supervisor)

// WithTransitionHook wires state changes into an observer such as the
// lifecycle store or the dashboard event bus.
func WithTransitionHook(fn func(name string, state State)) SupOption {
	return func(s *Supervisor) { s.onTransition = fn }
}

// WithExitFunc replaces os.Exit for fatal terminations. Tests use it to
// observe the exit code instead of dying.
func WithExitFunc(fn func(code int)) SupOption {
	return func(s *Supervisor) { s.exitFn = fn }
}

// WithChecker replaces the default health checker.
func WithChecker(c *health.Checker) SupOption {
	return func(s *Supervisor) { s.checker = c }
}

// New orders the specs by their dependencies and prepares handles. It does
// not start anything.
func New(specs []service.Spec, mux *logmux.Mux, log *slog.Logger, opts Options, sopts ...SupOption) (*Supervisor, error) {
	ordered, err := service.Order(specs)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{
		opts:    opts.withDefaults(),
		order:   ordered,
		mux:     mux,
		checker: health.NewChecker(0),
		log:     log,
		handles: make(map[string]*handle),
		events:  make(chan exitEvent, 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		exitFn:  os.Exit,
	}
	for _, sp := range ordered {
		s.handles[sp.Name] = newHandle(sp)
	}
	for _, o := range sopts {
		o(s)
	}
	return s, nil
}

// Start launches every service in dependency order. Each launch is followed
// by a health gate when the spec has a health endpoint; a gate that never
// turns healthy logs a warning and startup continues, it is not fatal. The
// control loop is running by the time Start returns.
func (s *Supervisor) Start(ctx context.Context) error {
	for _, sp := range s.order {
		h := s.handles[sp.Name]
		s.mux.Event(sp.Name, logmux.LevelInfo, "starting %s", sp.Name)
		if err := s.launch(h); err != nil {
			// A spawn failure follows the same path as a crash: the
			// control loop applies the restart policy to it.
			s.mux.Event(sp.Name, logmux.LevelError, "failed to start: %v", err)
			h.setState(StateFailed)
			s.events <- exitEvent{name: sp.Name, err: err}
			continue
		}
		s.gate(ctx, h)
	}
	go s.loop()
	return nil
}

// launch spawns the child, wires its streams into the mux and attaches the
// wait goroutine that feeds the control loop.
func (s *Supervisor) launch(h *handle) error {
	s.mu.Lock()
	if s.shutting {
		s.mu.Unlock()
		return fmt.Errorf("supervisor is shutting down")
	}
	s.mu.Unlock()

	sp := h.spec
	cmd := sp.BuildCommand()
	if sp.WorkDir != "" {
		cmd.Dir = sp.WorkDir
	}
	cmd.Env = env.Parse(sp.Env).Merge()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn: %w", err)
	}
	h.setStarted(cmd)
	metrics.IncServiceStart(sp.Name)
	s.transition(h, StateStarting)
	s.log.Info("service started", "service", sp.Name, "pid", cmd.Process.Pid)

	go s.mux.Pump(sp.Name, logmux.LevelInfo, stdout)
	go s.mux.Pump(sp.Name, logmux.LevelError, stderr)

	wd := h.waitChan()
	go func() {
		err := cmd.Wait()
		close(wd)
		select {
		case s.events <- exitEvent{name: sp.Name, err: err}:
		case <-s.quit:
		}
	}()
	return nil
}

// gate polls the service's health endpoint until it answers or the probe
// budget runs out. Exhausting the budget is a warning, never fatal; dependent
// services still start.
func (s *Supervisor) gate(ctx context.Context, h *handle) {
	url := h.spec.HealthURL()
	if url == "" {
		h.setState(StateRunning)
		s.transition(h, StateRunning)
		return
	}
	s.mux.Event(h.spec.Name, logmux.LevelInfo, "waiting for %s to become healthy", url)
	if s.pollHealth(ctx, h.spec.Name, url) {
		h.setState(StateHealthy)
		s.transition(h, StateHealthy)
		s.mux.Event(h.spec.Name, logmux.LevelInfo, "healthy")
		return
	}
	h.setState(StateUnhealthy)
	s.transition(h, StateUnhealthy)
	s.mux.Event(h.spec.Name, logmux.LevelWarning,
		"did not become healthy after %d attempts, continuing startup", s.opts.HealthAttempts)
	s.log.Warn("health gate timed out", "service", h.spec.Name, "url", url)
}

func (s *Supervisor) pollHealth(ctx context.Context, name, url string) bool {
	ok := s.checker.Poll(ctx, url, s.opts.HealthInterval, s.opts.HealthAttempts)
	metrics.IncHealthCheck(name, ok)
	return ok
}

// loop is the single control loop. Every exit, expected or not, arrives here
// and nowhere else, so the restart budget cannot be double-counted.
func (s *Supervisor) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.events:
			s.handleExit(ev)
		}
	}
}

func (s *Supervisor) handleExit(ev exitEvent) {
	h := s.handles[ev.name]
	if h == nil {
		return
	}
	h.markExited()

	s.mu.Lock()
	shutting := s.shutting
	s.mu.Unlock()
	if shutting || h.stopRequested() {
		h.setState(StateStopped)
		s.transition(h, StateStopped)
		return
	}
	restarts := h.incRestarts()
	metrics.IncServiceStop(ev.name)

	if ev.err != nil {
		s.mux.Event(ev.name, logmux.LevelError, "exited: %v", ev.err)
	} else {
		s.mux.Event(ev.name, logmux.LevelWarning, "exited unexpectedly")
	}

	// The budget is a lifetime count. A service that keeps falling over is
	// broken; flapping forever would only hide it.
	if restarts > s.opts.MaxRestarts {
		h.setState(StateFailed)
		s.transition(h, StateFailed)
		s.mux.Event(ev.name, logmux.LevelError,
			"restart budget of %d exhausted, shutting down", s.opts.MaxRestarts)
		s.log.Error("restart budget exhausted", "service", ev.name, "exits", restarts)
		go s.Shutdown(1)
		return
	}

	h.setState(StateStarting)
	s.mux.Event(ev.name, logmux.LevelWarning,
		"restarting in %s (attempt %d of %d)", s.opts.RestartDelay, restarts, s.opts.MaxRestarts)
	metrics.IncServiceRestart(ev.name)

	time.AfterFunc(s.opts.RestartDelay, func() {
		s.mu.Lock()
		shutting := s.shutting
		s.mu.Unlock()
		if shutting || h.stopRequested() {
			return
		}
		if err := s.launch(h); err != nil {
			s.mux.Event(ev.name, logmux.LevelError, "restart failed: %v", err)
			select {
			case s.events <- exitEvent{name: ev.name, err: err}:
			case <-s.quit:
			}
			return
		}
		go s.gate(context.Background(), h)
	})
}

// Shutdown stops every service concurrently, SIGTERM first and SIGKILL after
// the grace period, then terminates the program with code. It is safe to call
// from any goroutine any number of times; only the first call acts, the rest
// block until teardown finishes.
func (s *Supervisor) Shutdown(code int) {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.shutting = true
		handles := make([]*handle, 0, len(s.handles))
		for _, h := range s.handles {
			handles = append(handles, h)
		}
		s.mu.Unlock()

		s.log.Info("shutting down", "services", len(handles))
		var wg sync.WaitGroup
		for _, h := range handles {
			wg.Add(1)
			go func(h *handle) {
				defer wg.Done()
				s.stopOne(h)
			}(h)
		}
		wg.Wait()

		close(s.quit)
		_ = s.mux.Close()
		s.log.Info("shutdown complete", "code", code)
		s.exitFn(code)
	})
	<-s.done
}

// stopOne escalates SIGTERM to SIGKILL on the service's process group.
func (s *Supervisor) stopOne(h *handle) {
	h.requestStop()
	if h.alivePID() == 0 {
		// Keep a terminal failed state visible; everything else was simply
		// never running at this point.
		if h.currentState() != StateFailed {
			h.setState(StateStopped)
		}
		return
	}
	name := h.spec.Name
	s.mux.Event(name, logmux.LevelInfo, "stopping")
	h.signal(syscall.SIGTERM)

	wd := h.waitChan()
	if wd == nil {
		h.setState(StateStopped)
		return
	}
	select {
	case <-wd:
	case <-time.After(s.opts.StopTimeout):
		s.mux.Event(name, logmux.LevelWarning, "did not exit within %s, killing", s.opts.StopTimeout)
		h.signal(syscall.SIGKILL)
		select {
		case <-wd:
		case <-time.After(2 * time.Second):
			// SIGKILL cannot be ignored; if the reap is still pending the
			// kernel will finish it without us.
		}
	}
	h.setState(StateStopped)
	metrics.IncServiceStop(name)
	s.transition(h, StateStopped)
	s.log.Info("service stopped", "service", name)
}

// StatusAll reports a snapshot of every service, sorted by name.
func (s *Supervisor) StatusAll() []Status {
	s.mu.Lock()
	out := make([]Status, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h.snapshot())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StatusOf reports one service.
func (s *Supervisor) StatusOf(name string) (Status, error) {
	s.mu.Lock()
	h, ok := s.handles[name]
	s.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("unknown service %q", name)
	}
	return h.snapshot(), nil
}

func (s *Supervisor) transition(h *handle, st State) {
	if s.onTransition != nil {
		s.onTransition(h.spec.Name, st)
	}
}
