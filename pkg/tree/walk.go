package tree

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
)

// Strategy selects the nodes reported by Walk.
type Strategy int

const (
	// Children reports the direct entries of the tree.
	Children Strategy = iota
	FeaturesOnly
	TreesOnly
	// Recursive reports every node, each tree before its content.
	Recursive
	RecursiveFeaturesOnly
	RecursiveTreesOnly
)

func (s Strategy) String() string {
	switch s {
	case Children:
		return "children"
	case FeaturesOnly:
		return "features-only"
	case TreesOnly:
		return "trees-only"
	case Recursive:
		return "recursive"
	case RecursiveFeaturesOnly:
		return "recursive-features-only"
	case RecursiveTreesOnly:
		return "recursive-trees-only"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

func (s Strategy) recursive() bool {
	return s >= Recursive
}

func (s Strategy) reports(n model.Node) bool {
	switch s {
	case FeaturesOnly, RecursiveFeaturesOnly:
		return n.Type == model.TypeFeature
	case TreesOnly, RecursiveTreesOnly:
		return n.Type == model.TypeTree
	}
	return true
}

// Walk lazily visits the nodes of root depth first. Entries of a tree come
// in bucket order, then storage order inside leaf trees. Deletion markers
// are reported like any other node.
func Walk(ctx context.Context, db storage.ObjectDatabase, root *model.Tree, strategy Strategy) iter.Seq2[model.NodeRef, error] {
	return WalkUnder(ctx, db, root, model.RootPath, model.NullID, strategy)
}

// WalkUnder is Walk for a tree living at parentPath, whose node has the
// given metadata id.
func WalkUnder(ctx context.Context, db storage.ObjectDatabase, t *model.Tree, parentPath string, metadataID model.ObjectId, strategy Strategy) iter.Seq2[model.NodeRef, error] {
	return func(yield func(model.NodeRef, error) bool) {
		w := walker{ctx: ctx, db: db, strategy: strategy, yield: yield}
		if err := w.tree(t, parentPath, metadataID); err != nil && !errors.Is(err, errStop) {
			yield(model.NodeRef{}, err)
		}
	}
}

var errStop = errors.New("walk stopped")

type walker struct {
	ctx      context.Context
	db       storage.ObjectDatabase
	strategy Strategy
	yield    func(model.NodeRef, error) bool
}

func (w *walker) tree(t *model.Tree, path string, metadataID model.ObjectId) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if !t.IsLeaf() {
		for _, bucket := range t.Buckets {
			child, err := storage.GetTree(w.ctx, w.db, bucket.ID)
			if err != nil {
				return err
			}
			if err := w.tree(child, path, metadataID); err != nil {
				return err
			}
		}
		return nil
	}
	for _, n := range t.Children() {
		ref := model.NewNodeRef(n, path, metadataID)
		if w.strategy.reports(n) && !w.yield(ref, nil) {
			return errStop
		}
		if !w.strategy.recursive() || n.Type != model.TypeTree || n.IsTombstone() {
			continue
		}
		sub, err := storage.GetTree(w.ctx, w.db, n.ObjectID)
		if err != nil {
			return err
		}
		if err := w.tree(sub, ref.Path(), ref.MetadataID()); err != nil {
			return err
		}
	}
	return nil
}

// AllTrees visits every tree object reachable from id, bucket trees and
// subtrees included, children before their parents. Each object is
// reported once.
func AllTrees(ctx context.Context, db storage.ObjectDatabase, id model.ObjectId) iter.Seq2[*model.Tree, error] {
	return func(yield func(*model.Tree, error) bool) {
		seen := map[model.ObjectId]bool{}
		var visit func(id model.ObjectId) error
		visit = func(id model.ObjectId) error {
			if seen[id] || id.IsNull() {
				return nil
			}
			seen[id] = true
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := storage.GetTree(ctx, db, id)
			if err != nil {
				return err
			}
			for _, bucket := range t.Buckets {
				if err := visit(bucket.ID); err != nil {
					return err
				}
			}
			for _, n := range t.Trees {
				if err := visit(n.ObjectID); err != nil {
					return err
				}
			}
			if !yield(t, nil) {
				return errStop
			}
			return nil
		}
		if err := visit(id); err != nil && !errors.Is(err, errStop) {
			yield(nil, err)
		}
	}
}
