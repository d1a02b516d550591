package repository

import (
	"context"
	"fmt"
	"maps"
	"testing"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokosogithub/GeoGit-sub002/internal/keyValStore"
	"github.com/yokosogithub/GeoGit-sub002/pkg/diff"
	"github.com/yokosogithub/GeoGit-sub002/pkg/encoding"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/progress"
	"github.com/yokosogithub/GeoGit-sub002/pkg/refs"
	"github.com/yokosogithub/GeoGit-sub002/pkg/stagingdb"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
	"github.com/yokosogithub/GeoGit-sub002/pkg/tree"
)

var author = model.Person{Name: "Ada", Email: "ada@example.org"}

func openRepo(t *testing.T) *Repository {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	r, err := Open(context.Background(), Options{
		StoreConfig: keyValStore.StoreConfig{InMemory: true},
		Logger:      logger,
		Workers:     2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func feature(name string, x float64) *model.Feature {
	return model.NewFeature(model.String(name), model.Geometry(orb.Point{x, x}))
}

func insert(t *testing.T, r *Repository, parent string, features map[string]*model.Feature) {
	t.Helper()
	n, err := r.WorkingTree().Insert(context.Background(), parent, maps.All(features), nil, nil)
	require.NoError(t, err)
	require.Equal(t, len(features), n)
}

func stage(t *testing.T, r *Repository, paths ...string) {
	t.Helper()
	require.NoError(t, r.Index().Stage(context.Background(), nil, paths...))
}

func commit(t *testing.T, r *Repository, message string) *model.Commit {
	t.Helper()
	c, err := r.Commit(context.Background(), CommitOptions{Author: author, Message: message})
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func treeAt(t *testing.T, r *Repository, id model.ObjectId) *model.Tree {
	t.Helper()
	out, err := storage.GetTree(context.Background(), r.Objects(), id)
	require.NoError(t, err)
	return out
}

func find(t *testing.T, r *Repository, root *model.Tree, path string) (model.NodeRef, bool) {
	t.Helper()
	ref, ok, err := tree.FindChild(context.Background(), r.Objects(), root, path)
	require.NoError(t, err)
	return ref, ok
}

func TestOpenInitializesHead(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)

	target, err := r.Refs().GetSymRef(ctx, refs.Head)
	require.NoError(t, err)
	assert.Equal(t, refs.Master, target)

	head, err := r.Head(ctx)
	require.NoError(t, err)
	assert.True(t, head.IsNull())

	headTree, err := r.HeadTree(ctx)
	require.NoError(t, err)
	assert.True(t, headTree.IsEmpty())

	id, err := r.ResolveTreeish(ctx, encoding.EmptyTreeID.String())
	require.NoError(t, err)
	assert.Equal(t, encoding.EmptyTreeID, id)
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	f1, f2 := feature("one", 1), feature("two", 2)

	insert(t, r, "layer", map[string]*model.Feature{"1": f1, "2": f2})
	stage(t, r)
	id, err := r.WriteTree(ctx, refs.Head, nil)
	require.NoError(t, err)

	root := treeAt(t, r, id)
	assert.EqualValues(t, 2, root.Size)
	layer, ok := find(t, r, root, "layer")
	require.True(t, ok)
	assert.Equal(t, model.TypeTree, layer.Type())
	layerTree := treeAt(t, r, layer.ObjectID())
	assert.EqualValues(t, 2, layerTree.Size)
	assert.Len(t, layerTree.Features, 2)
	for _, f := range []*model.Feature{f1, f2} {
		exists, err := r.Objects().Exists(ctx, f.ID)
		require.NoError(t, err)
		assert.True(t, exists, "features are moved into the object database")
	}

	deleted, err := r.WorkingTree().Delete(ctx, "layer/1")
	require.NoError(t, err)
	assert.True(t, deleted)
	stage(t, r)
	id, err = r.WriteTree(ctx, refs.Head, nil)
	require.NoError(t, err)

	root = treeAt(t, r, id)
	assert.EqualValues(t, 1, root.Size)
	_, ok = find(t, r, root, "layer/1")
	assert.False(t, ok)
	ref, ok := find(t, r, root, "layer/2")
	require.True(t, ok)
	assert.Equal(t, f2.ID, ref.ObjectID())

	unstaged, err := r.WorkingTree().CountUnstaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, diff.Counts{}, unstaged, "written deletions leave no markers in the working tree")
	work, err := r.WorkingTree().Tree(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, work.ID)
}

func TestDeleteThenWrite(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	insert(t, r, "layer", map[string]*model.Feature{"1": feature("one", 1)})

	deleted, err := r.WorkingTree().Delete(ctx, "layer/1")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = r.WorkingTree().Delete(ctx, "layer/1")
	require.NoError(t, err)
	assert.False(t, deleted, "a deleted node is gone")

	stage(t, r)
	id, err := r.WriteTree(ctx, refs.Head, nil)
	require.NoError(t, err)
	root := treeAt(t, r, id)
	_, ok := find(t, r, root, "layer/1")
	assert.False(t, ok)
	assert.Zero(t, root.Size)
}

func TestStagingLifecycle(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	insert(t, r, "roads", map[string]*model.Feature{"r1": feature("r1", 1)})

	counts, err := r.WorkingTree().CountUnstaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, diff.Counts{FeaturesAdded: 1, TreesAdded: 1}, counts)

	stage(t, r)
	counts, err = r.WorkingTree().CountUnstaged(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Features())
	counts, err = r.Index().CountStaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.FeaturesAdded)

	ref, ok, err := r.Index().FindStaged(ctx, "roads/r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "roads", ref.ParentPath)

	stage(t, r)
	c := commit(t, r, "first")

	ref, ok = find(t, r, treeAt(t, r, c.TreeID), "roads/r1")
	require.True(t, ok)
	assert.Equal(t, model.TypeFeature, ref.Type())

	counts, err = r.Index().CountStaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, diff.Counts{}, counts)
	counts, err = r.WorkingTree().CountUnstaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, diff.Counts{}, counts)

	_, err = r.Commit(ctx, CommitOptions{Author: author, Message: "again"})
	assert.ErrorIs(t, err, ErrNothingToCommit)
}

func TestStagePathFilterAndReset(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	insert(t, r, "a", map[string]*model.Feature{"1": feature("a1", 1)})
	insert(t, r, "b", map[string]*model.Feature{"1": feature("b1", 2)})

	stage(t, r, "a")
	staged, err := r.Index().CountStaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, staged.FeaturesAdded)
	unstaged, err := r.WorkingTree().CountUnstaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, unstaged.FeaturesAdded)

	var paths []string
	for e, err := range r.WorkingTree().Unstaged(ctx) {
		require.NoError(t, err)
		paths = append(paths, e.Path())
	}
	assert.Equal(t, []string{"b/1"}, paths)

	require.NoError(t, r.Index().Reset(ctx))
	require.NoError(t, r.Index().Reset(ctx))
	staged, err = r.Index().CountStaged(ctx)
	require.NoError(t, err)
	assert.Zero(t, staged.Features())
	unstaged, err = r.WorkingTree().CountUnstaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, unstaged.FeaturesAdded, "reset leaves the working tree alone")
}

func TestDeleteTree(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	insert(t, r, "layer", map[string]*model.Feature{"a": feature("a", 1), "b": feature("b", 2)})
	insert(t, r, "other", map[string]*model.Feature{"c": feature("c", 3)})
	stage(t, r)
	commit(t, r, "initial")

	_, err := r.WorkingTree().DeleteTree(ctx, "other/c")
	assert.ErrorIs(t, err, model.ErrInvalidPath)

	deleted, err := r.WorkingTree().DeleteTree(ctx, "layer")
	require.NoError(t, err)
	assert.True(t, deleted)
	stage(t, r)
	c := commit(t, r, "drop layer")

	root := treeAt(t, r, c.TreeID)
	_, ok := find(t, r, root, "layer")
	assert.False(t, ok)
	_, ok = find(t, r, root, "other/c")
	assert.True(t, ok)
	assert.EqualValues(t, 1, root.Size)
	assert.EqualValues(t, 1, root.NumTrees)

	unstaged, err := r.WorkingTree().CountUnstaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, diff.Counts{}, unstaged)
	staged, err := r.Index().CountStaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, diff.Counts{}, staged)
}

func TestUnstagedDeletionSurvivesCommit(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	insert(t, r, "a", map[string]*model.Feature{"1": feature("a1", 1)})
	insert(t, r, "b", map[string]*model.Feature{"1": feature("b1", 2)})
	stage(t, r)
	commit(t, r, "initial")

	for _, path := range []string{"a/1", "b/1"} {
		deleted, err := r.WorkingTree().Delete(ctx, path)
		require.NoError(t, err)
		require.True(t, deleted)
	}
	stage(t, r, "a")
	commit(t, r, "drop a/1")

	var paths []string
	for e, err := range r.WorkingTree().Unstaged(ctx) {
		require.NoError(t, err)
		assert.Equal(t, diff.Removed, e.ChangeType())
		paths = append(paths, e.Path())
	}
	assert.Equal(t, []string{"b/1"}, paths)

	stage(t, r)
	c := commit(t, r, "drop b/1")
	assert.Zero(t, treeAt(t, r, c.TreeID).Size)
	unstaged, err := r.WorkingTree().CountUnstaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, diff.Counts{}, unstaged)
}

func TestModifyFeature(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	insert(t, r, "layer", map[string]*model.Feature{"a": feature("a", 1)})
	stage(t, r)
	first := commit(t, r, "add")

	changed := feature("a", 5)
	insert(t, r, "layer", map[string]*model.Feature{"a": changed})
	stage(t, r)
	second := commit(t, r, "move")

	entries, err := diff.Collect(ctx, diff.NewWalker(r.Objects(), r.Objects(), treeAt(t, r, first.TreeID), treeAt(t, r, second.TreeID)))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, diff.Modified, entries[0].ChangeType())
	assert.Equal(t, changed.ID, entries[0].NewID())
	assert.Equal(t, orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{5, 5}}, *entries[0].New.Bounds())
}

func TestCommitHistoryAndRevParse(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	insert(t, r, "layer", map[string]*model.Feature{"1": feature("one", 1)})
	stage(t, r)
	c1 := commit(t, r, "first")
	insert(t, r, "layer", map[string]*model.Feature{"2": feature("two", 2)})
	stage(t, r)
	c2 := commit(t, r, "second")

	assert.Equal(t, []model.ObjectId{c1.ID}, c2.Parents)
	assert.NotZero(t, c2.Committer.Timestamp)

	var messages []string
	for c, err := range r.Log(ctx, c2.ID) {
		require.NoError(t, err)
		messages = append(messages, c.Message)
	}
	assert.Equal(t, []string{"second", "first"}, messages)

	parents, err := r.Graph().GetParents(ctx, c2.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.ObjectId{c1.ID}, parents)

	for expr, want := range map[string]model.ObjectId{
		"HEAD":                 c2.ID,
		"master":               c2.ID,
		"refs/heads/master":    c2.ID,
		"HEAD^":                c1.ID,
		"HEAD~1":               c1.ID,
		"HEAD^0":               c2.ID,
		c2.ID.String():         c2.ID,
		c1.ID.String()[:10]:    c1.ID,
		"master~1^0":           c1.ID,
		c2.ID.String() + "^1":  c1.ID,
	} {
		got, err := r.RevParse(ctx, expr)
		require.NoError(t, err, expr)
		assert.Equal(t, want, got, expr)
	}

	_, err = r.RevParse(ctx, "HEAD~2")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = r.RevParse(ctx, "no-such-branch")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = r.RevParse(ctx, "^1")
	assert.ErrorIs(t, err, model.ErrInvalidPath)

	treeID, err := r.ResolveTreeish(ctx, "HEAD~1")
	require.NoError(t, err)
	assert.Equal(t, c1.TreeID, treeID)
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	insert(t, r, "layer", map[string]*model.Feature{"1": feature("one", 1)})
	stage(t, r)
	c := commit(t, r, "tagged")

	tag, err := r.CreateTag(ctx, "v1", c.ID, "release", author)
	require.NoError(t, err)

	id, err := r.RevParse(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, id)
	id, err = r.RevParse(ctx, "v1^0")
	require.NoError(t, err)
	assert.Equal(t, c.ID, id)
	treeID, err := r.ResolveTreeish(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, c.TreeID, treeID)

	_, err = r.CreateTag(ctx, "bad", c.TreeID, "", author)
	assert.Error(t, err)
}

func TestFindCommonAncestor(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	put := func(message string, parents ...model.ObjectId) model.ObjectId {
		c := &model.Commit{TreeID: encoding.EmptyTreeID, Parents: parents, Author: author, Committer: author, Message: message}
		_, err := r.Objects().Put(ctx, c)
		require.NoError(t, err)
		return c.ID
	}
	base := put("base")
	left := put("left", base)
	right := put("right", base)
	tip := put("tip", left)

	lca, ok, err := r.FindCommonAncestor(ctx, tip, right)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, base, lca)

	other := put("unrelated")
	_, ok, err = r.FindCommonAncestor(ctx, tip, other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancellation(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)

	canceled := progress.NewCancelable()
	canceled.Cancel()
	n, err := r.WorkingTree().Insert(ctx, "layer", maps.All(map[string]*model.Feature{"1": feature("one", 1)}), nil, canceled)
	require.NoError(t, err)
	assert.Zero(t, n)
	counts, err := r.WorkingTree().CountUnstaged(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Features(), "a canceled insert leaves WORK_HEAD alone")

	insert(t, r, "layer", map[string]*model.Feature{"1": feature("one", 1)})
	require.NoError(t, r.Index().Stage(ctx, canceled))
	counts, err = r.Index().CountStaged(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Features())

	stage(t, r)
	c, err := r.Commit(ctx, CommitOptions{Author: author, Listener: canceled})
	require.NoError(t, err)
	assert.Nil(t, c)
	head, err := r.Head(ctx)
	require.NoError(t, err)
	assert.True(t, head.IsNull())

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	id, err := r.WriteTree(cctx, encoding.EmptyTreeID.String(), nil)
	if err == nil {
		assert.True(t, id.IsNull())
	} else {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestFeatureTypes(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	ft, err := model.NewFeatureType("road",
		model.AttributeDescriptor{Name: "name", Type: model.FieldString},
		model.AttributeDescriptor{Name: "geom", Type: model.FieldPoint, CRS: "EPSG:4326"},
	)
	require.NoError(t, err)
	f, err := ft.NewFeature(map[string]any{"name": "main", "geom": orb.Point{1, 2}})
	require.NoError(t, err)

	_, err = r.WorkingTree().Insert(ctx, "roads", maps.All(map[string]*model.Feature{"main": f}), ft, nil)
	require.NoError(t, err)

	trees, err := r.WorkingTree().FeatureTypeTrees(ctx)
	require.NoError(t, err)
	require.Len(t, trees, 1)
	assert.Equal(t, "roads", trees[0].Path())
	assert.Equal(t, ft.ID, trees[0].MetadataID())

	got, err := r.WorkingTree().FindFeatureType(ctx, "roads/main")
	require.NoError(t, err)
	assert.Equal(t, ft.Name, got.Name)

	stage(t, r)
	c := commit(t, r, "roads")
	exists, err := r.Objects().Exists(ctx, ft.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	ref, ok := find(t, r, treeAt(t, r, c.TreeID), "roads")
	require.True(t, ok)
	assert.Equal(t, ft.ID, ref.Node.MetadataID)
}

func TestFilteredStageKeepsFeatureType(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	ft, err := model.NewFeatureType("road",
		model.AttributeDescriptor{Name: "name", Type: model.FieldString},
		model.AttributeDescriptor{Name: "geom", Type: model.FieldPoint, CRS: "EPSG:4326"},
	)
	require.NoError(t, err)
	features := map[string]*model.Feature{}
	for _, name := range []string{"main", "side"} {
		f, err := ft.NewFeature(map[string]any{"name": name, "geom": orb.Point{1, 2}})
		require.NoError(t, err)
		features[name] = f
	}
	_, err = r.WorkingTree().Insert(ctx, "roads", maps.All(features), ft, nil)
	require.NoError(t, err)

	stage(t, r, "roads/main")
	ref, ok, err := r.Index().FindStaged(ctx, "roads")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ft.ID, ref.Node.MetadataID)

	c := commit(t, r, "main road")
	exists, err := r.Objects().Exists(ctx, ft.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	root := treeAt(t, r, c.TreeID)
	ref, ok = find(t, r, root, "roads")
	require.True(t, ok)
	assert.Equal(t, ft.ID, ref.Node.MetadataID)
	road, ok := find(t, r, root, "roads/main")
	require.True(t, ok)
	assert.Equal(t, ft.ID, road.MetadataID())
	_, ok = find(t, r, root, "roads/side")
	assert.False(t, ok)

	unstaged, err := r.WorkingTree().CountUnstaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, unstaged.FeaturesAdded)
	assert.Equal(t, 1, unstaged.TreesChanged)
}

func TestWriteTreeReportsPercent(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	features := map[string]*model.Feature{}
	for i := range 7 {
		features[fmt.Sprintf("f%d", i)] = feature(fmt.Sprintf("f%d", i), float64(i))
	}
	insert(t, r, "layer", features)
	stage(t, r)

	listener := progress.NewCancelable()
	_, err := r.WriteTree(ctx, refs.Head, listener)
	require.NoError(t, err)
	started, completed, last := listener.State()
	assert.True(t, started)
	assert.True(t, completed)
	assert.InDelta(t, 100, last, 0.01)
}

func TestDeepMove(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	features := map[string]*model.Feature{}
	for i := 0; i < 20; i++ {
		features[fmt.Sprintf("f%d", i)] = feature(fmt.Sprintf("f%d", i), float64(i))
	}
	insert(t, r, "a/b", features)
	work, err := r.WorkingTree().Tree(ctx)
	require.NoError(t, err)

	staging := r.Staging().(*stagingdb.Database)
	require.NoError(t, DeepMove(ctx, staging, r.Objects(), work.ID))

	for _, f := range features {
		exists, err := r.Objects().Exists(ctx, f.ID)
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = staging.Staged().Exists(ctx, f.ID)
		require.NoError(t, err)
		assert.False(t, exists)
	}
	moved := treeAt(t, r, work.ID)
	assert.EqualValues(t, 20, moved.Size)
	_, ok := find(t, r, moved, "a/b/f7")
	assert.True(t, ok)
}

func TestLargeImportSplitsTrees(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	features := map[string]*model.Feature{}
	for i := 0; i < 1500; i++ {
		features[fmt.Sprintf("n%d", i)] = feature(fmt.Sprintf("n%d", i), float64(i%100))
	}
	insert(t, r, "points", features)
	stage(t, r)
	c := commit(t, r, "import")

	ref, ok := find(t, r, treeAt(t, r, c.TreeID), "points")
	require.True(t, ok)
	points := treeAt(t, r, ref.ObjectID())
	assert.False(t, points.IsLeaf())
	assert.EqualValues(t, 1500, points.Size)
	require.NotNil(t, ref.Bounds())
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{99, 99}}, *ref.Bounds())

	deleted, err := r.WorkingTree().Delete(ctx, "points/n42")
	require.NoError(t, err)
	require.True(t, deleted)
	stage(t, r)
	c = commit(t, r, "delete one")
	ref, _ = find(t, r, treeAt(t, r, c.TreeID), "points")
	assert.EqualValues(t, 1499, treeAt(t, r, ref.ObjectID()).Size)
}
