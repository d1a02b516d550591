package refs

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokosogithub/GeoGit-sub002/internal/keyValStore"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
)

func newRefs(t testing.TB, timeout time.Duration) *Database {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{InMemory: true, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return New(kv.Space("refs"), Config{LockTimeout: timeout, Logger: logger})
}

func TestRefsRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newRefs(t, 0)
	id := model.HashBytes([]byte("commit"))

	_, err := db.GetRef(ctx, Master)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, db.PutRef(ctx, Master, id.String()))
	require.NoError(t, db.PutSymRef(ctx, Head, Master))

	v, err := db.GetRef(ctx, Master)
	require.NoError(t, err)
	assert.Equal(t, id.String(), v)

	target, err := db.GetSymRef(ctx, Head)
	require.NoError(t, err)
	assert.Equal(t, Master, target)

	_, err = db.GetSymRef(ctx, Master)
	assert.ErrorIs(t, err, ErrNotSymbolic)

	resolved, err := Resolve(ctx, db, Head)
	require.NoError(t, err)
	assert.Equal(t, id, resolved)

	assert.Error(t, db.PutRef(ctx, Master, "not-an-id"))
	assert.ErrorIs(t, db.PutRef(ctx, "refs/heads/", id.String()), model.ErrInvalidPath)
}

func TestUpdateFollowsSymbolicRefs(t *testing.T) {
	ctx := context.Background()
	db := newRefs(t, 0)
	require.NoError(t, db.PutSymRef(ctx, Head, Master))

	id := model.HashBytes([]byte("first"))
	require.NoError(t, Update(ctx, db, Head, id))

	v, err := db.GetRef(ctx, Master)
	require.NoError(t, err)
	assert.Equal(t, id.String(), v)
	assert.True(t, IsSymbolic(mustGet(t, db, Head)))

	null, err := ResolveOrNull(ctx, db, OrigHead)
	require.NoError(t, err)
	assert.True(t, null.IsNull())
}

func mustGet(t testing.TB, db *Database, name string) string {
	t.Helper()
	v, err := db.GetRef(context.Background(), name)
	require.NoError(t, err)
	return v
}

func TestResolveDetectsCycles(t *testing.T) {
	ctx := context.Background()
	db := newRefs(t, 0)
	require.NoError(t, db.PutSymRef(ctx, "a", "b"))
	require.NoError(t, db.PutSymRef(ctx, "b", "a"))

	_, err := Resolve(ctx, db, "a")
	assert.Error(t, err)
}

func TestRemoveAndGetAll(t *testing.T) {
	ctx := context.Background()
	db := newRefs(t, 0)
	a := model.HashBytes([]byte("a"))
	b := model.HashBytes([]byte("b"))
	require.NoError(t, db.PutRef(ctx, HeadsPrefix+"a", a.String()))
	require.NoError(t, db.PutRef(ctx, HeadsPrefix+"b", b.String()))
	require.NoError(t, db.PutRef(ctx, TagsPrefix+"v1", a.String()))

	heads, err := db.GetAll(ctx, HeadsPrefix)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		HeadsPrefix + "a": a.String(),
		HeadsPrefix + "b": b.String(),
	}, heads)

	old, err := db.Remove(ctx, HeadsPrefix+"a")
	require.NoError(t, err)
	assert.Equal(t, a.String(), old)

	_, err = db.Remove(ctx, HeadsPrefix+"a")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLockTimesOut(t *testing.T) {
	ctx := context.Background()
	db := newRefs(t, 50*time.Millisecond)

	require.NoError(t, db.Lock(ctx))

	start := time.Now()
	err := db.Lock(ctx)
	assert.ErrorIs(t, err, model.ErrLockTimeout)
	var timeout *model.LockTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 50*time.Millisecond, timeout.Timeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	db.Unlock()
	require.NoError(t, db.WithLock(ctx, func() error { return nil }))
}

func TestLockWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	db := newRefs(t, time.Second)
	require.NoError(t, db.Lock(ctx))

	go func() {
		time.Sleep(20 * time.Millisecond)
		db.Unlock()
	}()
	require.NoError(t, db.Lock(ctx))
	db.Unlock()

	canceled, cancel := context.WithCancel(ctx)
	require.NoError(t, db.Lock(ctx))
	cancel()
	assert.ErrorIs(t, db.Lock(canceled), context.Canceled)
	db.Unlock()
}
