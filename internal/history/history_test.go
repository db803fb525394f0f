package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k2riddim/linkedin-research-suite/internal/store"
	"github.com/k2riddim/linkedin-research-suite/internal/store/sqlite"
)

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Send(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("down")}
	c := &recordingSink{}
	f := NewFanout(nil, a, b, c)

	ev := Event{Type: EventServiceState, Name: "api", State: "healthy", OccurredAt: time.Now()}
	require.NoError(t, f.Send(context.Background(), ev))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1, "a failing sink still receives the event")
	assert.Len(t, c.events, 1, "later sinks run despite earlier failures")
}

func TestStoreSinkMapsKinds(t *testing.T) {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, db.EnsureSchema(context.Background()))

	sink := StoreSink{St: db}
	now := time.Now()
	require.NoError(t, sink.Send(context.Background(), Event{Type: EventServiceState, Name: "api", State: "starting", OccurredAt: now}))
	require.NoError(t, sink.Send(context.Background(), Event{Type: EventSessionCreated, Name: "sess-1", State: "created", OccurredAt: now}))
	require.NoError(t, sink.Send(context.Background(), Event{Type: EventSessionClosed, Name: "sess-1", State: "closed", Detail: "clean", OccurredAt: now}))

	svc, err := db.Recent(context.Background(), store.KindService, 10)
	require.NoError(t, err)
	assert.Len(t, svc, 1)

	sess, err := db.Recent(context.Background(), store.KindSession, 10)
	require.NoError(t, err)
	require.Len(t, sess, 2)
	assert.Equal(t, "closed", sess[0].State)
	assert.Equal(t, "clean", sess[0].Detail)
}
