package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k2riddim/linkedin-research-suite/internal/logmux"
	"github.com/k2riddim/linkedin-research-suite/internal/service"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func newTestMux() *logmux.Mux {
	return logmux.New(nopCloser{&bytes.Buffer{}}, nil)
}

// healthServer listens on a real port and fails the first failFirst probes.
func healthServer(t *testing.T, failFirst int) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var n atomic.Int32
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if int(n.Add(1)) <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
	return ln.Addr().(*net.TCPAddr).Port
}

// freePort grabs a port nothing will listen on during the test.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

type transitionLog struct {
	mu  sync.Mutex
	seq []string
}

func (l *transitionLog) hook(name string, state State) {
	l.mu.Lock()
	l.seq = append(l.seq, fmt.Sprintf("%s:%s", name, state))
	l.mu.Unlock()
}

func (l *transitionLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.seq...)
}

func testOptions() Options {
	return Options{
		HealthInterval: 10 * time.Millisecond,
		HealthAttempts: 30,
		RestartDelay:   10 * time.Millisecond,
		MaxRestarts:    3,
		StopTimeout:    2 * time.Second,
	}
}

func exitRecorder() (func(int), chan int) {
	codes := make(chan int, 1)
	return func(code int) {
		select {
		case codes <- code:
		default:
		}
	}, codes
}

func TestStartupOrderFollowsDependenciesAndHealthGate(t *testing.T) {
	port := healthServer(t, 2)
	specs := []service.Spec{
		{Name: "api", Command: "sleep 60", DependsOn: "stagehand"},
		{Name: "stagehand", Command: "sleep 60", Port: port, HealthPath: "/health"},
	}
	tl := &transitionLog{}
	exitFn, codes := exitRecorder()
	s, err := New(specs, newTestMux(), nil, testOptions(),
		WithTransitionHook(tl.hook), WithExitFunc(exitFn))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	seq := tl.snapshot()
	assert.Equal(t, []string{
		"stagehand:starting",
		"stagehand:healthy",
		"api:starting",
		"api:running",
	}, seq, "dependency must be gated healthy before the dependent starts")

	s.Shutdown(0)
	assert.Equal(t, 0, <-codes)
}

func TestHealthGateTimeoutIsNonFatal(t *testing.T) {
	specs := []service.Spec{
		{Name: "alpha", Command: "sleep 60", Port: freePort(t), HealthPath: "/health"},
		{Name: "beta", Command: "sleep 60", DependsOn: "alpha"},
	}
	opts := testOptions()
	opts.HealthAttempts = 2
	exitFn, codes := exitRecorder()
	s, err := New(specs, newTestMux(), nil, opts, WithExitFunc(exitFn))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	alpha, err := s.StatusOf("alpha")
	require.NoError(t, err)
	assert.Equal(t, StateUnhealthy, alpha.State)

	beta, err := s.StatusOf("beta")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, beta.State, "dependents start even when the gate times out")
	assert.NotZero(t, beta.PID)

	s.Shutdown(0)
	assert.Equal(t, 0, <-codes)
}

func TestRestartBudgetExhaustedIsFatal(t *testing.T) {
	specs := []service.Spec{
		{Name: "crashy", Command: "sh -c 'exit 3'"},
	}
	opts := testOptions()
	opts.MaxRestarts = 2
	exitFn, codes := exitRecorder()
	s, err := New(specs, newTestMux(), nil, opts, WithExitFunc(exitFn))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	select {
	case code := <-codes:
		assert.Equal(t, 1, code, "exhausting the restart budget terminates with a failure code")
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor never gave up on the crash-looping service")
	}

	st, err := s.StatusOf("crashy")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, opts.MaxRestarts+1, st.Restarts)
}

func TestRestartRelaunchesAfterCrash(t *testing.T) {
	specs := []service.Spec{
		// dies once quickly, then a fresh launch of the same command dies
		// again; the point is that relaunches happen at all
		{Name: "flappy", Command: "sh -c 'sleep 0.05'"},
	}
	opts := testOptions()
	opts.MaxRestarts = 100
	exitFn, _ := exitRecorder()
	s, err := New(specs, newTestMux(), nil, opts, WithExitFunc(exitFn))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		st, err := s.StatusOf("flappy")
		return err == nil && st.Restarts >= 2
	}, 5*time.Second, 20*time.Millisecond, "crashes should keep triggering relaunches")

	s.Shutdown(0)
}

func TestShutdownIsIdempotentAndConcurrent(t *testing.T) {
	specs := []service.Spec{
		{Name: "one", Command: "sleep 60"},
		{Name: "two", Command: "sleep 60"},
	}
	var calls atomic.Int32
	s, err := New(specs, newTestMux(), nil, testOptions(),
		WithExitFunc(func(code int) { calls.Add(1) }))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Shutdown(0)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "only the first Shutdown acts")
	for _, st := range s.StatusAll() {
		assert.Equal(t, StateStopped, st.State)
	}
}

func TestShutdownEscalatesToSigkill(t *testing.T) {
	specs := []service.Spec{
		{Name: "stubborn", Command: `sh -c 'trap "" TERM; while true; do sleep 1; done'`},
	}
	opts := testOptions()
	opts.StopTimeout = 100 * time.Millisecond
	exitFn, codes := exitRecorder()
	s, err := New(specs, newTestMux(), nil, opts, WithExitFunc(exitFn))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	start := time.Now()
	s.Shutdown(0)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, <-codes)

	st, err := s.StatusOf("stubborn")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, st.State)
}

func TestSpawnFailureConsumesRestartBudget(t *testing.T) {
	specs := []service.Spec{
		{Name: "ghost", Command: "/nonexistent/binary-that-is-not-there"},
	}
	opts := testOptions()
	opts.MaxRestarts = 2
	exitFn, codes := exitRecorder()
	s, err := New(specs, newTestMux(), nil, opts, WithExitFunc(exitFn))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	select {
	case code := <-codes:
		assert.Equal(t, 1, code)
	case <-time.After(5 * time.Second):
		t.Fatal("spawn failures must eventually exhaust the restart budget")
	}
}
