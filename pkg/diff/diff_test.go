package diff

import (
	"context"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/yokosogithub/GeoGit-sub002/internal/keyValStore"
	"github.com/yokosogithub/GeoGit-sub002/pkg/encoding"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/objectdb"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storageorder"
	"github.com/yokosogithub/GeoGit-sub002/pkg/tree"
)

func newDB(t testing.TB) storage.ObjectDatabase {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{InMemory: true, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return objectdb.New(kv.Space("objects"), objectdb.Config{Logger: logger})
}

type tb interface {
	require.TestingT
	Helper()
}

func node(name string, version int) model.Node {
	return model.NewFeatureNode(name, model.HashBytes([]byte(fmt.Sprintf("%s@%d", name, version))), model.NullID, nil)
}

// leaf builds a tree holding the given features, name to version.
func leaf(t tb, db storage.ObjectDatabase, features map[string]int, opts ...tree.Option) *model.Tree {
	t.Helper()
	b := tree.NewBuilder(db, nil, opts...)
	for name, version := range features {
		require.NoError(t, b.Put(node(name, version)))
	}
	out, err := b.Build(context.Background())
	require.NoError(t, err)
	return out
}

func numbered(n, version int) map[string]int {
	out := map[string]int{}
	for i := 0; i < n; i++ {
		out[fmt.Sprintf("f%d", i)] = version
	}
	return out
}

func collect(t tb, w *Walker) []Entry {
	t.Helper()
	entries, err := Collect(context.Background(), w)
	require.NoError(t, err)
	return entries
}

func paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ChangeType().String() + " " + e.Path()
	}
	return out
}

func TestIdenticalTreesLoadNothing(t *testing.T) {
	db := newDB(t)
	big := leaf(t, db, numbered(3000, 1))
	require.False(t, big.IsLeaf())

	w := NewWalker(db, db, big, big)
	assert.Empty(t, collect(t, w))
	assert.Zero(t, w.Stats().TreesLoaded)

	w = NewWalker(db, db, nil, nil)
	assert.Empty(t, collect(t, w))
}

func TestLeafChanges(t *testing.T) {
	db := newDB(t)
	old := leaf(t, db, map[string]int{"a": 1, "b": 1, "c": 1})
	new := leaf(t, db, map[string]int{"a": 1, "b": 2, "d": 1})

	entries := collect(t, NewWalker(db, db, old, new))
	require.Len(t, entries, 3)

	byPath := map[string]Entry{}
	for _, e := range entries {
		byPath[e.Path()] = e
	}
	assert.Equal(t, Modified, byPath["b"].ChangeType())
	assert.Equal(t, node("b", 1).ObjectID, byPath["b"].OldID())
	assert.Equal(t, node("b", 2).ObjectID, byPath["b"].NewID())
	assert.Equal(t, Removed, byPath["c"].ChangeType())
	assert.Nil(t, byPath["c"].New)
	assert.Equal(t, Added, byPath["d"].ChangeType())
	assert.Equal(t, model.NullID, byPath["d"].OldID())

	for i := 1; i < len(entries); i++ {
		assert.Negative(t, storageorder.Compare(entries[i-1].Path(), entries[i].Path()), "entries come in storage order")
	}
}

func TestSplitTreesOnlyLoadChangedBuckets(t *testing.T) {
	db := newDB(t)
	features := numbered(5000, 1)
	old := leaf(t, db, features)
	features["f17"] = 2
	delete(features, "f4000")
	features["extra"] = 1
	new := leaf(t, db, features)
	require.False(t, old.IsLeaf())
	require.False(t, new.IsLeaf())

	w := NewWalker(db, db, old, new)
	entries := collect(t, w)
	assert.ElementsMatch(t, []string{"MODIFIED f17", "REMOVED f4000", "ADDED extra"}, paths(entries))
	assert.Less(t, w.Stats().TreesLoaded, len(old.Buckets)+len(new.Buckets))
}

func TestSplitAgainstLeaf(t *testing.T) {
	db := newDB(t)
	old := leaf(t, db, numbered(1000, 1))
	new := leaf(t, db, numbered(10, 1))
	require.False(t, old.IsLeaf())
	require.True(t, new.IsLeaf())

	entries := collect(t, NewWalker(db, db, old, new))
	assert.Len(t, entries, 990)
	for _, e := range entries {
		assert.Equal(t, Removed, e.ChangeType())
	}

	entries = collect(t, NewWalker(db, db, new, old))
	assert.Len(t, entries, 990)
	for _, e := range entries {
		assert.Equal(t, Added, e.ChangeType())
	}
}

func TestDiffMatchesSetDifference(t *testing.T) {
	db := newDB(t)
	rapid.Check(t, func(t *rapid.T) {
		gen := rapid.MapOfN(rapid.StringMatching(`[a-z]{1,3}`), rapid.IntRange(1, 3), 0, 60)
		before := gen.Draw(t, "before")
		after := gen.Draw(t, "after")
		old := leaf(t, db, before, tree.WithNormalizedSizeLimit(4))
		new := leaf(t, db, after, tree.WithNormalizedSizeLimit(4))

		var want []string
		for name, v := range before {
			w, ok := after[name]
			switch {
			case !ok:
				want = append(want, "REMOVED "+name)
			case v != w:
				want = append(want, "MODIFIED "+name)
			}
		}
		for name := range after {
			if _, ok := before[name]; !ok {
				want = append(want, "ADDED "+name)
			}
		}

		entries := collect(t, NewWalker(db, db, old, new))
		got := paths(entries)
		if len(want) == 0 {
			assert.Empty(t, got)
		} else {
			assert.ElementsMatch(t, want, got)
		}

		again := collect(t, NewWalker(db, db, old, new))
		assert.Equal(t, got, paths(again), "order is deterministic")
	})
}

// nested builds a root with the features below "roads/local" and a
// feature "rivers".
func nested(t *testing.T, db storage.ObjectDatabase, local map[string]int, river int) *model.Tree {
	t.Helper()
	ctx := context.Background()
	root := encoding.NewEmptyTree()
	id, err := tree.WriteBack(ctx, db, root, leaf(t, db, local), "roads/local", model.NullID)
	require.NoError(t, err)
	root, err = storage.GetTree(ctx, db, id)
	require.NoError(t, err)

	b := tree.NewBuilder(db, root)
	require.NoError(t, b.Put(node("rivers", river)))
	root, err = b.Build(ctx)
	require.NoError(t, err)
	return root
}

func TestNestedTreesAndReportTrees(t *testing.T) {
	db := newDB(t)
	old := nested(t, db, map[string]int{"a": 1, "b": 1}, 1)
	new := nested(t, db, map[string]int{"a": 1, "b": 2}, 1)

	assert.Equal(t, []string{"MODIFIED roads/local/b"}, paths(collect(t, NewWalker(db, db, old, new))))

	assert.Equal(t,
		[]string{"MODIFIED roads", "MODIFIED roads/local", "MODIFIED roads/local/b"},
		paths(collect(t, NewWalker(db, db, old, new, WithReportTrees(true)))))

	assert.Equal(t, []string{"MODIFIED roads"}, paths(collect(t, NewWalker(db, db, old, new, WithRecursive(false)))))
}

func TestAddedAndRemovedTrees(t *testing.T) {
	db := newDB(t)
	withRoads := nested(t, db, map[string]int{"a": 1, "b": 1}, 1)
	bare := leaf(t, db, map[string]int{"rivers": 1})

	entries := collect(t, NewWalker(db, db, bare, withRoads, WithReportTrees(true)))
	got := paths(entries)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"ADDED roads", "ADDED roads/local"}, got[:2], "trees come before their content")
	assert.ElementsMatch(t, []string{"ADDED roads/local/a", "ADDED roads/local/b"}, got[2:])
	assert.Equal(t, model.TypeTree, entries[0].Type())

	entries = collect(t, NewWalker(db, db, withRoads, bare))
	assert.ElementsMatch(t, []string{"REMOVED roads/local/a", "REMOVED roads/local/b"}, paths(entries))
}

func TestPathFilter(t *testing.T) {
	db := newDB(t)
	old := nested(t, db, map[string]int{"a": 1, "b": 1}, 1)
	new := nested(t, db, map[string]int{"a": 2, "b": 2}, 2)

	all := paths(collect(t, NewWalker(db, db, old, new)))
	assert.ElementsMatch(t, []string{"MODIFIED roads/local/a", "MODIFIED roads/local/b", "MODIFIED rivers"}, all)

	assert.Equal(t, []string{"MODIFIED roads/local/a"},
		paths(collect(t, NewWalker(db, db, old, new, WithPathFilter("roads/local/a")))))
	assert.ElementsMatch(t, []string{"MODIFIED roads/local/a", "MODIFIED roads/local/b"},
		paths(collect(t, NewWalker(db, db, old, new, WithPathFilter("roads")))))
	assert.Equal(t, []string{"MODIFIED rivers"},
		paths(collect(t, NewWalker(db, db, old, new, WithPathFilter("rivers", "lakes")))))
	assert.Empty(t, collect(t, NewWalker(db, db, old, new, WithPathFilter("lakes"))))
}

func TestBoundsFilter(t *testing.T) {
	db := newDB(t)
	inside := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	outside := orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{11, 11}}

	b := tree.NewBuilder(db, nil)
	require.NoError(t, b.Put(model.NewFeatureNode("near", model.HashBytes([]byte("near")), model.NullID, &inside)))
	require.NoError(t, b.Put(model.NewFeatureNode("far", model.HashBytes([]byte("far")), model.NullID, &outside)))
	require.NoError(t, b.Put(model.NewFeatureNode("nowhere", model.HashBytes([]byte("nowhere")), model.NullID, nil)))
	new, err := b.Build(context.Background())
	require.NoError(t, err)

	query := orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{2, 2}}
	w := NewWalker(db, db, nil, new, WithBoundsFilter(query))
	assert.ElementsMatch(t, []string{"ADDED near", "ADDED nowhere"}, paths(collect(t, w)))
	assert.Equal(t, 1, w.Stats().BoundsMisses)
	assert.Equal(t, 2, w.Stats().BoundsHits)
}

func TestDeletionMarkersReportRemovals(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	old := leaf(t, db, map[string]int{"a": 1, "b": 1})

	b := tree.NewBuilder(db, old)
	require.NoError(t, b.Put(model.NewFeatureNode("a", model.NullID, model.NullID, nil)))
	require.NoError(t, b.Put(model.NewFeatureNode("ghost", model.NullID, model.NullID, nil)))
	new, err := b.Build(ctx)
	require.NoError(t, err)

	entries := collect(t, NewWalker(db, db, old, new))
	require.Len(t, entries, 1)
	assert.Equal(t, Removed, entries[0].ChangeType())
	assert.Equal(t, "a", entries[0].Path())
	require.NotNil(t, entries[0].New)
	assert.True(t, entries[0].New.IsTombstone())
}

func TestCount(t *testing.T) {
	db := newDB(t)
	old := nested(t, db, map[string]int{"a": 1, "b": 1}, 1)
	new := nested(t, db, map[string]int{"a": 1, "b": 2, "c": 1}, 1)

	c, err := Count(context.Background(), db, db, old, new)
	require.NoError(t, err)
	assert.Equal(t, Counts{FeaturesAdded: 1, FeaturesChanged: 1, TreesChanged: 2}, c)
	assert.Equal(t, 2, c.Features())
	assert.Equal(t, 2, c.Trees())
}

func TestEarlyStopAndCancel(t *testing.T) {
	db := newDB(t)
	old := leaf(t, db, numbered(100, 1))
	new := leaf(t, db, numbered(100, 2))

	n := 0
	for _, err := range NewWalker(db, db, old, new).Entries(context.Background()) {
		require.NoError(t, err)
		n++
		if n == 5 {
			break
		}
	}
	assert.Equal(t, 5, n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Collect(ctx, NewWalker(db, db, old, new))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMissingTreeFails(t *testing.T) {
	db := newDB(t)
	old := leaf(t, db, map[string]int{"a": 1})
	dangling := &model.Tree{Trees: []model.Node{model.NewTreeNode("x", model.HashBytes([]byte("nothing")), model.NullID, nil)}}

	_, err := Collect(context.Background(), NewWalker(db, db, old, dangling))
	assert.ErrorIs(t, err, model.ErrNotFound)
}
