// Package diff compares two trees by walking them side by side. Subtrees
// and buckets with equal ids on both sides are skipped without being
// loaded, so the cost of a diff follows the size of the change rather than
// the size of the trees.
package diff

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/paulmach/orb"

	"github.com/yokosogithub/GeoGit-sub002/pkg/encoding"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storageorder"
)

type ChangeType int

const (
	Added ChangeType = iota
	Modified
	Removed
)

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "ADDED"
	case Modified:
		return "MODIFIED"
	case Removed:
		return "REMOVED"
	}
	return fmt.Sprintf("ChangeType(%d)", int(c))
}

// Entry is one difference. Old is nil for additions. New is nil for
// removals found while descending a removed tree, and a node with a NULL
// object id when the new tree holds a deletion marker.
type Entry struct {
	Old *model.NodeRef
	New *model.NodeRef
}

func live(r *model.NodeRef) bool {
	return r != nil && !r.IsTombstone()
}

func (e Entry) ChangeType() ChangeType {
	switch {
	case !live(e.Old):
		return Added
	case !live(e.New):
		return Removed
	}
	return Modified
}

// Path is the path of the changed node.
func (e Entry) Path() string {
	if e.New != nil {
		return e.New.Path()
	}
	return e.Old.Path()
}

// Type is the type of the node on the side where it exists.
func (e Entry) Type() model.ObjectType {
	if live(e.New) {
		return e.New.Type()
	}
	if e.Old != nil {
		return e.Old.Type()
	}
	return e.New.Type()
}

func (e Entry) OldID() model.ObjectId {
	if e.Old == nil {
		return model.NullID
	}
	return e.Old.ObjectID()
}

func (e Entry) NewID() model.ObjectId {
	if e.New == nil {
		return model.NullID
	}
	return e.New.ObjectID()
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s %s -> %s", e.ChangeType(), e.Path(), e.OldID().Short(8), e.NewID().Short(8))
}

type Option func(*Walker)

// WithReportTrees also reports changed tree nodes, before their content.
func WithReportTrees(report bool) Option {
	return func(w *Walker) { w.reportTrees = report }
}

// WithRecursive(false) only compares the direct children of the two trees
// and reports changed subtrees as single entries.
func WithRecursive(recursive bool) Option {
	return func(w *Walker) { w.recursive = recursive }
}

// WithPathFilter restricts the diff to the given paths and everything
// below them.
func WithPathFilter(paths ...string) Option {
	return func(w *Walker) { w.filters = append(w.filters, paths...) }
}

// WithBoundsFilter skips nodes and buckets whose envelope does not
// intersect bounds on either side. Nodes without bounds always pass.
func WithBoundsFilter(bounds orb.Bound) Option {
	return func(w *Walker) { w.bounds = &bounds }
}

// WithMetadata sets the default metadata ids of the two root trees.
func WithMetadata(old, new model.ObjectId) Option {
	return func(w *Walker) {
		w.oldMetadata = old
		w.newMetadata = new
	}
}

// WithParentPath sets the path the two trees live at.
func WithParentPath(path string) Option {
	return func(w *Walker) { w.parentPath = path }
}

// Stats describes the work done by the last walk.
type Stats struct {
	TreesLoaded  int
	BoundsHits   int
	BoundsMisses int
}

// Walker compares an old tree read from oldDB with a new tree read from
// newDB.
type Walker struct {
	oldDB, newDB storage.ObjectDatabase
	oldTree      *model.Tree
	newTree      *model.Tree

	reportTrees bool
	recursive   bool
	filters     []string
	bounds      *orb.Bound
	oldMetadata model.ObjectId
	newMetadata model.ObjectId
	parentPath  string

	stats Stats
}

// NewWalker returns a walker. Nil trees are empty.
func NewWalker(oldDB, newDB storage.ObjectDatabase, oldTree, newTree *model.Tree, opts ...Option) *Walker {
	if oldTree == nil {
		oldTree = encoding.NewEmptyTree()
	}
	if newTree == nil {
		newTree = encoding.NewEmptyTree()
	}
	w := &Walker{
		oldDB:     oldDB,
		newDB:     newDB,
		oldTree:   oldTree,
		newTree:   newTree,
		recursive: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Walker) Stats() Stats {
	return w.stats
}

var errStop = errors.New("diff stopped")

// Entries lazily produces the differences in a deterministic order: bucket
// index order across split trees, storage order inside leaf trees, and a
// changed tree before its content.
func (w *Walker) Entries(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		w.stats = Stats{}
		x := &walk{ctx: ctx, w: w, yield: yield}
		err := x.trees(w.oldTree, w.newTree, 0, w.parentPath, w.oldMetadata, w.newMetadata)
		if err != nil && !errors.Is(err, errStop) {
			yield(Entry{}, err)
		}
	}
}

// filter reports whether path is selected, or lies above a selected path
// and must be descended into.
func (w *Walker) filter(path string) (match, descend bool) {
	if len(w.filters) == 0 {
		return true, false
	}
	for _, f := range w.filters {
		if model.IsSelfOrDescendant(f, path) {
			return true, false
		}
		if model.IsDescendant(path, f) {
			descend = true
		}
	}
	return false, descend
}

func (w *Walker) intersects(b *orb.Bound) bool {
	return w.bounds == nil || b == nil || b.Intersects(*w.bounds)
}

type walk struct {
	ctx   context.Context
	w     *Walker
	yield func(Entry, error) bool
}

func (x *walk) emit(e Entry) error {
	if !x.yield(e, nil) {
		return errStop
	}
	return nil
}

func (x *walk) load(db storage.ObjectDatabase, id model.ObjectId) (*model.Tree, error) {
	x.w.stats.TreesLoaded++
	return storage.GetTree(x.ctx, db, id)
}

func (x *walk) trees(left, right *model.Tree, depth int, path string, lm, rm model.ObjectId) error {
	if !left.ID.IsNull() && left.ID == right.ID {
		return nil
	}
	if err := x.ctx.Err(); err != nil {
		return err
	}
	if left.IsLeaf() && right.IsLeaf() {
		return x.leaves(left.Children(), right.Children(), path, lm, rm)
	}
	if depth >= storageorder.MaxDepth {
		return &model.CorruptDataError{
			ID:       right.ID,
			Expected: model.TypeTree,
			Err:      fmt.Errorf("split tree below depth %d", storageorder.MaxDepth),
		}
	}
	return x.buckets(left, right, depth, path, lm, rm)
}

// slot is one bucket of one side: a stored bucket of a split tree, the
// entries of a leaf tree falling into that bucket, or nothing.
type slot struct {
	bucket  *model.Bucket
	virtual *model.Tree
}

func slots(t *model.Tree, depth int) map[uint32]slot {
	out := map[uint32]slot{}
	if !t.IsLeaf() {
		for i := range t.Buckets {
			out[t.Buckets[i].Index] = slot{bucket: &t.Buckets[i]}
		}
		return out
	}
	for _, n := range t.Children() {
		idx := uint32(storageorder.Bucket(n.Name, depth))
		s := out[idx]
		if s.virtual == nil {
			s.virtual = &model.Tree{}
		}
		if n.Type == model.TypeTree {
			s.virtual.Trees = append(s.virtual.Trees, n)
		} else {
			s.virtual.Features = append(s.virtual.Features, n)
		}
		out[idx] = s
	}
	return out
}

func (x *walk) slotIntersects(s slot) bool {
	switch {
	case s.bucket != nil:
		return x.w.intersects(s.bucket.Bounds)
	case s.virtual != nil:
		return x.w.intersects(s.virtual.Bounds())
	}
	return false
}

func (x *walk) slotTree(db storage.ObjectDatabase, s slot) (*model.Tree, error) {
	switch {
	case s.bucket != nil:
		return x.load(db, s.bucket.ID)
	case s.virtual != nil:
		return s.virtual, nil
	}
	return encoding.NewEmptyTree(), nil
}

func (x *walk) buckets(left, right *model.Tree, depth int, path string, lm, rm model.ObjectId) error {
	ls, rs := slots(left, depth), slots(right, depth)
	indexes := make([]uint32, 0, len(ls)+len(rs))
	for idx := range ls {
		indexes = append(indexes, idx)
	}
	for idx := range rs {
		if _, ok := ls[idx]; !ok {
			indexes = append(indexes, idx)
		}
	}
	slices.Sort(indexes)

	for _, idx := range indexes {
		l, r := ls[idx], rs[idx]
		if l.bucket != nil && r.bucket != nil && l.bucket.ID == r.bucket.ID {
			continue
		}
		if x.w.bounds != nil {
			if !x.slotIntersects(l) && !x.slotIntersects(r) {
				x.w.stats.BoundsMisses++
				continue
			}
			x.w.stats.BoundsHits++
		}
		lt, err := x.slotTree(x.w.oldDB, l)
		if err != nil {
			return err
		}
		rt, err := x.slotTree(x.w.newDB, r)
		if err != nil {
			return err
		}
		if err := x.trees(lt, rt, depth+1, path, lm, rm); err != nil {
			return err
		}
	}
	return nil
}

// leaves merges two sorted entry lists.
func (x *walk) leaves(left, right []model.Node, path string, lm, rm model.ObjectId) error {
	i, j := 0, 0
	for i < len(left) || j < len(right) {
		var c int
		switch {
		case i == len(left):
			c = 1
		case j == len(right):
			c = -1
		default:
			c = model.CompareNodes(left[i], right[j])
		}
		var err error
		switch {
		case c < 0:
			err = x.node(&left[i], nil, path, lm, rm)
			i++
		case c > 0:
			err = x.node(nil, &right[j], path, lm, rm)
			j++
		default:
			err = x.node(&left[i], &right[j], path, lm, rm)
			i++
			j++
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *walk) node(old, new *model.Node, parent string, lm, rm model.ObjectId) error {
	name := ""
	if old != nil {
		name = old.Name
	} else {
		name = new.Name
	}
	path := model.JoinPath(parent, name)
	match, descend := x.w.filter(path)
	if !match && !descend {
		return nil
	}

	oldLive := old != nil && !old.IsTombstone()
	newLive := new != nil && !new.IsTombstone()
	if !oldLive && !newLive {
		return nil
	}
	if oldLive && newLive && old.Equal(*new) {
		return nil
	}
	if x.w.bounds != nil {
		if !(oldLive && x.w.intersects(old.Bounds)) && !(newLive && x.w.intersects(new.Bounds)) {
			x.w.stats.BoundsMisses++
			return nil
		}
		x.w.stats.BoundsHits++
	}

	var oref, nref *model.NodeRef
	if oldLive {
		r := model.NewNodeRef(*old, parent, lm)
		oref = &r
	}
	if new != nil {
		r := model.NewNodeRef(*new, parent, rm)
		nref = &r
	}

	if oldLive && newLive && old.Type != new.Type {
		if err := x.change(oref, nil, match); err != nil {
			return err
		}
		return x.change(nil, nref, match)
	}
	return x.change(oref, nref, match)
}

func (x *walk) change(oref, nref *model.NodeRef, match bool) error {
	oldTree := live(oref) && oref.Type() == model.TypeTree
	newTree := live(nref) && nref.Type() == model.TypeTree
	if !oldTree && !newTree {
		if match {
			return x.emit(Entry{Old: oref, New: nref})
		}
		return nil
	}

	if match && (x.w.reportTrees || !x.w.recursive) {
		if err := x.emit(Entry{Old: oref, New: nref}); err != nil {
			return err
		}
	}
	if !x.w.recursive {
		return nil
	}

	left, right := encoding.NewEmptyTree(), encoding.NewEmptyTree()
	var lm, rm model.ObjectId
	var path string
	var err error
	if oldTree {
		if left, err = x.load(x.w.oldDB, oref.ObjectID()); err != nil {
			return err
		}
		lm = oref.MetadataID()
		path = oref.Path()
	}
	if newTree {
		if right, err = x.load(x.w.newDB, nref.ObjectID()); err != nil {
			return err
		}
		rm = nref.MetadataID()
		path = nref.Path()
	}
	return x.trees(left, right, 0, path, lm, rm)
}

// Collect runs the walker to completion.
func Collect(ctx context.Context, w *Walker) ([]Entry, error) {
	var out []Entry
	for e, err := range w.Entries(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Counts summarises a diff.
type Counts struct {
	FeaturesAdded   int
	FeaturesRemoved int
	FeaturesChanged int
	TreesAdded      int
	TreesRemoved    int
	TreesChanged    int
}

func (c Counts) Features() int { return c.FeaturesAdded + c.FeaturesRemoved + c.FeaturesChanged }
func (c Counts) Trees() int    { return c.TreesAdded + c.TreesRemoved + c.TreesChanged }

// Count walks the whole diff of the two trees, trees included, and counts
// the entries.
func Count(ctx context.Context, oldDB, newDB storage.ObjectDatabase, oldTree, newTree *model.Tree, opts ...Option) (Counts, error) {
	opts = append(opts, WithReportTrees(true), WithRecursive(true))
	var c Counts
	for e, err := range NewWalker(oldDB, newDB, oldTree, newTree, opts...).Entries(ctx) {
		if err != nil {
			return Counts{}, err
		}
		tree := e.Type() == model.TypeTree
		switch e.ChangeType() {
		case Added:
			if tree {
				c.TreesAdded++
			} else {
				c.FeaturesAdded++
			}
		case Removed:
			if tree {
				c.TreesRemoved++
			} else {
				c.FeaturesRemoved++
			}
		case Modified:
			if tree {
				c.TreesChanged++
			} else {
				c.FeaturesChanged++
			}
		}
	}
	return c, nil
}
