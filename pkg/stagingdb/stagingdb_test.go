package stagingdb

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokosogithub/GeoGit-sub002/internal/keyValStore"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/objectdb"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
)

type fixture struct {
	repo    *objectdb.Database
	staging *Database
}

func newFixture(t testing.TB) fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{InMemory: true, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	repo := objectdb.New(kv.Space("objects"), objectdb.Config{Logger: logger})
	return fixture{
		repo:    repo,
		staging: New(kv.Space("staging"), kv.Space("conflicts"), repo, Config{Logger: logger}),
	}
}

func TestReadsFallBackWritesStayLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stored := model.NewFeature(model.String("stored"))
	_, err := f.repo.Put(ctx, stored)
	require.NoError(t, err)

	staged := model.NewFeature(model.String("staged"))
	inserted, err := f.staging.Put(ctx, staged)
	require.NoError(t, err)
	assert.True(t, inserted)

	for _, id := range []model.ObjectId{stored.ID, staged.ID} {
		ok, err := f.staging.Exists(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
		_, err = f.staging.Get(ctx, id)
		require.NoError(t, err)
		_, err = f.staging.GetRaw(ctx, id)
		require.NoError(t, err)
	}

	ok, err := f.repo.Exists(ctx, staged.ID)
	require.NoError(t, err)
	assert.False(t, ok, "staged objects are not in the repository")

	var counts storage.CountingListener
	objs, err := f.staging.GetAll(ctx, []model.ObjectId{staged.ID, stored.ID, model.HashBytes([]byte("x"))}, &counts)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, staged.ID, objs[0].ObjectID())
	assert.EqualValues(t, 1, counts.NotFoundCount())

	found, err := f.staging.LookUp(ctx, stored.ID.String()[:10])
	require.NoError(t, err)
	assert.Equal(t, []model.ObjectId{stored.ID}, found)

	require.NoError(t, f.staging.Truncate(ctx))
	ok, err = f.staging.Exists(ctx, staged.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.staging.Exists(ctx, stored.ID)
	require.NoError(t, err)
	assert.True(t, ok, "truncate leaves the repository alone")
}

func TestConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	db := f.staging

	has, err := db.HasConflicts(ctx, "")
	require.NoError(t, err)
	assert.False(t, has)

	paths := []string{"roads/1", "roads/2", "rivers/1", "roadsides/9"}
	for i, p := range paths {
		require.NoError(t, db.AddConflict(ctx, "", storage.Conflict{
			Path:     p,
			Ancestor: model.HashBytes([]byte{byte(i)}),
			Ours:     model.HashBytes([]byte{byte(i), 1}),
			Theirs:   model.HashBytes([]byte{byte(i), 2}),
		}))
	}
	require.NoError(t, db.AddConflict(ctx, "other", storage.Conflict{Path: "roads/1"}))

	has, err = db.HasConflicts(ctx, "")
	require.NoError(t, err)
	assert.True(t, has)

	c, ok, err := db.GetConflict(ctx, "", "roads/2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.HashBytes([]byte{1, 2}), c.Theirs)

	all, err := db.GetConflicts(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	roads, err := db.GetConflicts(ctx, "", "roads")
	require.NoError(t, err)
	require.Len(t, roads, 2)
	for _, c := range roads {
		assert.Contains(t, []string{"roads/1", "roads/2"}, c.Path)
	}

	require.NoError(t, db.RemoveConflict(ctx, "", "roads/1"))
	_, ok, err = db.GetConflict(ctx, "", "roads/1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.RemoveConflicts(ctx, ""))
	has, err = db.HasConflicts(ctx, "")
	require.NoError(t, err)
	assert.False(t, has)

	has, err = db.HasConflicts(ctx, "other")
	require.NoError(t, err)
	assert.True(t, has, "namespaces are independent")

	assert.ErrorIs(t, db.AddConflict(ctx, "", storage.Conflict{Path: "bad/"}), model.ErrInvalidPath)
}

func TestTransactionNamespacesConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tx := Transaction(f.staging, uuid.New())

	require.NoError(t, tx.AddConflict(ctx, "", storage.Conflict{Path: "a/b"}))

	has, err := f.staging.HasConflicts(ctx, "")
	require.NoError(t, err)
	assert.False(t, has)

	has, err = tx.HasConflicts(ctx, "")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = f.staging.HasConflicts(ctx, tx.ID().String())
	require.NoError(t, err)
	assert.True(t, has)

	obj := model.NewFeature(model.Int64(7))
	_, err = tx.Put(ctx, obj)
	require.NoError(t, err)
	ok, err := f.staging.Exists(ctx, obj.ID)
	require.NoError(t, err)
	assert.True(t, ok, "objects are shared with the parent")
}
