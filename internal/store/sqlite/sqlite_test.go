package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k2riddim/linkedin-research-suite/internal/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.EnsureSchema(context.Background()))
	return db
}

func TestAppendAndRecent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Append(ctx, store.Event{Kind: store.KindService, Name: "stagehand", State: "starting"}))
	require.NoError(t, db.Append(ctx, store.Event{Kind: store.KindService, Name: "stagehand", State: "healthy"}))
	require.NoError(t, db.Append(ctx, store.Event{Kind: store.KindSession, Name: "sess-1", State: "created"}))

	svc, err := db.Recent(ctx, store.KindService, 10)
	require.NoError(t, err)
	require.Len(t, svc, 2)
	assert.Equal(t, "healthy", svc[0].State, "newest first")
	assert.Equal(t, "starting", svc[1].State)
	assert.False(t, svc[0].CreatedAt.IsZero())

	sess, err := db.Recent(ctx, store.KindSession, 10)
	require.NoError(t, err)
	require.Len(t, sess, 1)
	assert.Equal(t, "sess-1", sess[0].Name)
}

func TestRecentLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Append(ctx, store.Event{Kind: store.KindService, Name: "api", State: "starting"}))
	}
	got, err := db.Recent(ctx, store.KindService, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestPurgeOlderThan(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	old := store.Event{Kind: store.KindService, Name: "api", State: "stopped", CreatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, db.Append(ctx, old))
	require.NoError(t, db.Append(ctx, store.Event{Kind: store.KindService, Name: "api", State: "starting"}))

	n, err := db.PurgeOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := db.Recent(ctx, store.KindService, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
