package suite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSuiteLifecycle(t *testing.T) {
	codes := make(chan int, 1)
	s, err := New(Config{
		Services: []Spec{
			{Name: "worker", Command: "sleep 60"},
		},
		Lifecycle: Options{
			HealthInterval: 10 * time.Millisecond,
			RestartDelay:   10 * time.Millisecond,
			StopTimeout:    2 * time.Second,
		},
		OnExit: func(code int) { codes <- code },
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	sts := s.Services()
	require.Len(t, sts, 1)
	assert.Equal(t, "worker", sts[0].Name)
	assert.NotZero(t, sts[0].PID)

	st, err := s.Service("worker")
	require.NoError(t, err)
	assert.Equal(t, "worker", st.Name)

	_, err = s.Service("missing")
	assert.Error(t, err)

	assert.Empty(t, s.Sessions())
	assert.NotNil(t, s.Handler("/api"))

	s.Shutdown(0)
	assert.Equal(t, 0, <-codes)
}

func TestNewRejectsBadTopology(t *testing.T) {
	_, err := New(Config{
		Services: []Spec{
			{Name: "a", Command: "sleep 1", DependsOn: "a"},
		},
	})
	require.Error(t, err)
}
