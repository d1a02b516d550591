// Package tree builds, searches and walks repository trees. Trees are kept
// in a normal form: a tree with more direct entries than the size limit is
// split into buckets by the storage order hash of the entry names, so equal
// content always yields the same tree ids.
package tree

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/pkg/encoding"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storageorder"
	workerpool "github.com/yokosogithub/GeoGit-sub002/pkg/workerPool"
)

var ErrBuilderConsumed = errors.New("tree builder already built")

type Option func(*Builder)

// WithDepth sets the bucket depth of the base tree. Trees referenced by
// nodes are always at depth 0.
func WithDepth(depth int) Option {
	return func(b *Builder) { b.depth = depth }
}

// WithNormalizedSizeLimit sets the number of direct entries above which a
// tree is split.
func WithNormalizedSizeLimit(limit int) Option {
	return func(b *Builder) {
		if limit > 0 {
			b.limit = limit
		}
	}
}

// WithPool builds the buckets of the top level tree concurrently.
func WithPool(pool *workerpool.WorkerPool) Option {
	return func(b *Builder) { b.pool = pool }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.log = logger
		}
	}
}

type edit struct {
	node   model.Node
	remove bool
}

type counts struct {
	size  uint64
	trees uint32
}

// Builder collects changes to a base tree and writes the resulting tree
// and all new subtrees on Build. The base tree is never modified.
type Builder struct {
	db    storage.ObjectDatabase
	base  *model.Tree
	depth int
	limit int
	pool  *workerpool.WorkerPool
	log   *logrus.Logger

	edits    map[string]edit
	consumed bool

	memoMu sync.Mutex
	memo   map[model.ObjectId]counts
}

// NewBuilder returns a builder on top of base. A nil base starts from the
// empty tree.
func NewBuilder(db storage.ObjectDatabase, base *model.Tree, opts ...Option) *Builder {
	if base == nil {
		base = encoding.NewEmptyTree()
	}
	b := &Builder{
		db:    db,
		base:  base,
		limit: storageorder.NormalizedSizeLimit,
		log:   logrus.New(),
		edits: map[string]edit{},
		memo:  map[model.ObjectId]counts{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func validateName(name string) error {
	if name == "" {
		return &model.InvalidPathError{Path: name, Reason: "empty node name"}
	}
	if err := model.ValidatePath(name); err != nil {
		return err
	}
	if model.PathDepth(name) != 1 {
		return &model.InvalidPathError{Path: name, Reason: "node names cannot contain " + model.PathSeparator}
	}
	return nil
}

// Put adds or replaces the entry named node.Name. A node with a NULL object
// id is kept as a deletion marker.
func (b *Builder) Put(node model.Node) error {
	if err := validateName(node.Name); err != nil {
		return err
	}
	if node.Type != model.TypeTree && node.Type != model.TypeFeature {
		return fmt.Errorf("node %s: invalid node type %s", node.Name, node.Type)
	}
	b.edits[node.Name] = edit{node: node}
	return nil
}

// Remove drops the entry name, if present, at build time.
func (b *Builder) Remove(name string) {
	b.edits[name] = edit{remove: true}
}

// Changes returns the number of pending puts and removes.
func (b *Builder) Changes() int {
	return len(b.edits)
}

// Get returns the entry name as it will be after Build.
func (b *Builder) Get(ctx context.Context, name string) (model.Node, bool, error) {
	if e, ok := b.edits[name]; ok {
		if e.remove {
			return model.Node{}, false, nil
		}
		return e.node, true, nil
	}
	return lookupAt(ctx, b.db, b.base, name, b.depth)
}

// Build writes the tree. The builder cannot be used afterwards.
func (b *Builder) Build(ctx context.Context) (*model.Tree, error) {
	if b.consumed {
		return nil, ErrBuilderConsumed
	}
	b.consumed = true

	if len(b.edits) == 0 && !b.base.ID.IsNull() {
		return b.base, nil
	}
	t, err := b.build(ctx, b.base, b.depth, b.edits, b.pool != nil)
	if err != nil {
		return nil, err
	}
	b.log.WithFields(logrus.Fields{
		"tree":    t.ID.Short(8),
		"changes": len(b.edits),
		"size":    t.Size,
		"buckets": len(t.Buckets),
	}).Debug("tree built")
	return t, nil
}

func (b *Builder) build(ctx context.Context, base *model.Tree, depth int, edits map[string]edit, parallel bool) (*model.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if base.IsLeaf() {
		return b.buildLeaf(ctx, base, depth, edits, parallel)
	}
	return b.buildSplit(ctx, base, depth, edits, parallel)
}

func (b *Builder) buildLeaf(ctx context.Context, base *model.Tree, depth int, edits map[string]edit, parallel bool) (*model.Tree, error) {
	entries := make(map[string]model.Node, base.NumDirectEntries()+len(edits))
	for _, n := range base.Trees {
		entries[n.Name] = n
	}
	for _, n := range base.Features {
		entries[n.Name] = n
	}

	changed := false
	for name, e := range edits {
		old, had := entries[name]
		switch {
		case e.remove:
			if had {
				delete(entries, name)
				changed = true
			}
		case !had || !old.Equal(e.node):
			entries[name] = e.node
			changed = true
		}
	}
	if !changed && !base.ID.IsNull() {
		return base, nil
	}

	if len(entries) > b.limit && depth < storageorder.MaxDepth {
		return b.split(ctx, entries, depth, parallel)
	}
	return b.leaf(ctx, entries)
}

// leaf writes entries as a leaf tree.
func (b *Builder) leaf(ctx context.Context, entries map[string]model.Node) (*model.Tree, error) {
	t := &model.Tree{}
	for _, n := range entries {
		c, err := b.countsOf(ctx, n)
		if err != nil {
			return nil, err
		}
		t.Size += c.size
		t.NumTrees += c.trees
		if n.Type == model.TypeTree {
			t.Trees = append(t.Trees, n)
		} else {
			t.Features = append(t.Features, n)
		}
	}
	model.SortNodes(t.Trees)
	model.SortNodes(t.Features)
	return b.put(ctx, t)
}

// split distributes entries over buckets at depth.
func (b *Builder) split(ctx context.Context, entries map[string]model.Node, depth int, parallel bool) (*model.Tree, error) {
	groups := map[uint32]map[string]edit{}
	for name, n := range entries {
		idx := uint32(storageorder.Bucket(name, depth))
		if groups[idx] == nil {
			groups[idx] = map[string]edit{}
		}
		groups[idx][name] = edit{node: n}
	}
	b.log.WithFields(logrus.Fields{
		"entries": len(entries),
		"depth":   depth,
		"buckets": len(groups),
	}).Debug("splitting tree")

	children, err := b.buildBuckets(ctx, nil, groups, depth, parallel)
	if err != nil {
		return nil, err
	}
	t := &model.Tree{}
	for _, idx := range sortedIndexes(groups) {
		child := children[idx]
		t.Size += child.Size
		t.NumTrees += child.NumTrees
		t.Buckets = append(t.Buckets, model.Bucket{Index: idx, ID: child.ID, Bounds: child.Bounds()})
	}
	return b.put(ctx, t)
}

func (b *Builder) buildSplit(ctx context.Context, base *model.Tree, depth int, edits map[string]edit, parallel bool) (*model.Tree, error) {
	groups := map[uint32]map[string]edit{}
	removals := false
	for name, e := range edits {
		idx := uint32(storageorder.Bucket(name, depth))
		if groups[idx] == nil {
			groups[idx] = map[string]edit{}
		}
		groups[idx][name] = e
		removals = removals || e.remove
	}

	oldChildren := map[uint32]*model.Tree{}
	children, err := b.buildBuckets(ctx, func(ctx context.Context, idx uint32) (*model.Tree, error) {
		bucket, ok := base.Bucket(idx)
		if !ok {
			return encoding.NewEmptyTree(), nil
		}
		return storage.GetTree(ctx, b.db, bucket.ID)
	}, groups, depth, parallel, oldChildren)
	if err != nil {
		return nil, err
	}

	t := &model.Tree{Size: base.Size, NumTrees: base.NumTrees}
	changed := false
	for _, bucket := range base.Buckets {
		child, touched := children[bucket.Index]
		if !touched {
			t.Buckets = append(t.Buckets, bucket)
			continue
		}
		old := oldChildren[bucket.Index]
		t.Size -= old.Size
		t.NumTrees -= old.NumTrees
		if child.ID != bucket.ID {
			changed = true
		}
		if child.IsEmpty() {
			continue
		}
		t.Size += child.Size
		t.NumTrees += child.NumTrees
		t.Buckets = append(t.Buckets, model.Bucket{Index: bucket.Index, ID: child.ID, Bounds: child.Bounds()})
	}
	for idx, child := range children {
		if _, existed := base.Bucket(idx); existed || child.IsEmpty() {
			continue
		}
		changed = true
		t.Size += child.Size
		t.NumTrees += child.NumTrees
		t.Buckets = append(t.Buckets, model.Bucket{Index: idx, ID: child.ID, Bounds: child.Bounds()})
	}
	if !changed {
		return base, nil
	}
	slices.SortFunc(t.Buckets, func(a, c model.Bucket) int { return int(a.Index) - int(c.Index) })

	if removals {
		n, err := countEntries(ctx, b.db, t, b.limit)
		if err != nil {
			return nil, err
		}
		if n <= b.limit {
			nodes, err := collectEntries(ctx, b.db, t)
			if err != nil {
				return nil, err
			}
			entries := make(map[string]model.Node, len(nodes))
			for _, node := range nodes {
				entries[node.Name] = node
			}
			b.log.WithFields(logrus.Fields{"entries": n, "depth": depth}).Debug("collapsing split tree")
			return b.leaf(ctx, entries)
		}
	}
	return b.put(ctx, t)
}

type childLoader func(ctx context.Context, idx uint32) (*model.Tree, error)

// buildBuckets builds one child per group at depth+1. load returns the
// current child of a bucket, nil means every bucket starts empty. Loaded
// children are stored in old when given.
func (b *Builder) buildBuckets(ctx context.Context, load childLoader, groups map[uint32]map[string]edit, depth int, parallel bool, old ...map[uint32]*model.Tree) (map[uint32]*model.Tree, error) {
	indexes := sortedIndexes(groups)
	var mu sync.Mutex
	buildOne := func(ctx context.Context, idx uint32) (*model.Tree, error) {
		base := encoding.NewEmptyTree()
		if load != nil {
			var err error
			if base, err = load(ctx, idx); err != nil {
				return nil, err
			}
		}
		if len(old) > 0 {
			mu.Lock()
			old[0][idx] = base
			mu.Unlock()
		}
		return b.build(ctx, base, depth+1, groups[idx], false)
	}

	out := make(map[uint32]*model.Tree, len(groups))
	if !parallel || b.pool == nil || len(indexes) < 2 {
		for _, idx := range indexes {
			child, err := buildOne(ctx, idx)
			if err != nil {
				return nil, err
			}
			out[idx] = child
		}
		return out, nil
	}

	room := workerpool.CreateRoom[*model.Tree](ctx, b.pool, len(indexes))
	for _, idx := range indexes {
		idx := idx
		err := room.NewTaskWaitForFreeSlot(func(ctx context.Context) (*model.Tree, error) {
			return buildOne(ctx, idx)
		})
		if err != nil {
			break
		}
	}
	children, err := room.Wait()
	if err != nil {
		return nil, err
	}
	for i, idx := range indexes {
		out[idx] = children[i]
	}
	return out, nil
}

func sortedIndexes[V any](groups map[uint32]V) []uint32 {
	indexes := make([]uint32, 0, len(groups))
	for idx := range groups {
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)
	return indexes
}

func (b *Builder) put(ctx context.Context, t *model.Tree) (*model.Tree, error) {
	if _, err := b.db.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("write tree: %w", err)
	}
	return t, nil
}

// countsOf returns what node adds to the Size and NumTrees of its tree.
func (b *Builder) countsOf(ctx context.Context, n model.Node) (counts, error) {
	if n.IsTombstone() {
		return counts{}, nil
	}
	if n.Type == model.TypeFeature {
		return counts{size: 1}, nil
	}
	b.memoMu.Lock()
	c, ok := b.memo[n.ObjectID]
	b.memoMu.Unlock()
	if ok {
		return c, nil
	}
	sub, err := storage.GetTree(ctx, b.db, n.ObjectID)
	if err != nil {
		return counts{}, fmt.Errorf("subtree %s: %w", n.Name, err)
	}
	c = counts{size: sub.Size, trees: 1 + sub.NumTrees}
	b.memoMu.Lock()
	b.memo[n.ObjectID] = c
	b.memoMu.Unlock()
	return c, nil
}

// countEntries counts the direct entries of t, stopping once the count
// exceeds limit.
func countEntries(ctx context.Context, db storage.ObjectDatabase, t *model.Tree, limit int) (int, error) {
	if t.IsLeaf() {
		return t.NumDirectEntries(), nil
	}
	n := 0
	for _, bucket := range t.Buckets {
		child, err := storage.GetTree(ctx, db, bucket.ID)
		if err != nil {
			return 0, err
		}
		c, err := countEntries(ctx, db, child, limit-n)
		if err != nil {
			return 0, err
		}
		n += c
		if n > limit {
			return n, nil
		}
	}
	return n, nil
}

// collectEntries returns every direct entry of t, descending into buckets.
func collectEntries(ctx context.Context, db storage.ObjectDatabase, t *model.Tree) ([]model.Node, error) {
	if t.IsLeaf() {
		return t.Children(), nil
	}
	var out []model.Node
	for _, bucket := range t.Buckets {
		child, err := storage.GetTree(ctx, db, bucket.ID)
		if err != nil {
			return nil, err
		}
		nodes, err := collectEntries(ctx, db, child)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	return out, nil
}
