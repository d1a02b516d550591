package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/pkg/diff"
	"github.com/yokosogithub/GeoGit-sub002/pkg/encoding"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/progress"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
	"github.com/yokosogithub/GeoGit-sub002/pkg/tree"
)

// WriteTree applies the staged changes to the tree treeish resolves to and
// writes the result into the object database. Staged objects are moved
// there as well. STAGE_HEAD is reset to the new tree, whose id is
// returned. An unborn HEAD names the empty tree. A canceled write returns
// NullID and no error.
func (r *Repository) WriteTree(ctx context.Context, treeish string, listener progress.Listener) (model.ObjectId, error) {
	targetID, err := r.resolveTreeishOrEmpty(ctx, treeish)
	if err != nil {
		return model.NullID, err
	}
	target, err := storage.GetTree(ctx, r.objects, targetID)
	if err != nil {
		return model.NullID, err
	}
	return r.writeTree(ctx, target, listener)
}

func (r *Repository) writeTree(ctx context.Context, target *model.Tree, listener progress.Listener) (model.ObjectId, error) {
	listener = progress.WithContext(ctx, listener)
	staged, err := r.Index().Tree(ctx)
	if err != nil {
		return model.NullID, err
	}
	entries, err := diff.Collect(ctx, diff.NewWalker(r.objects, r.staging, target, staged, diff.WithReportTrees(true)))
	if err != nil {
		return model.NullID, err
	}

	listener.Started()
	a := newApplier(r.objects, target, false, r.treeOpts).withSource(r.staging, staged)
	var markers []diff.Entry
	for i, e := range entries {
		if listener.IsCanceled() {
			return model.NullID, nil
		}
		switch {
		case e.New == nil:
		case e.New.IsTombstone():
			markers = append(markers, e)
		default:
			if err := r.moveNode(ctx, *e.New); err != nil {
				return model.NullID, err
			}
		}
		if err := a.Apply(ctx, e); err != nil {
			return model.NullID, err
		}
		listener.Progress(float32(i+1) * 100 / float32(len(entries)))
	}
	if listener.IsCanceled() {
		return model.NullID, nil
	}

	root, err := a.Build(ctx)
	if err != nil {
		return model.NullID, err
	}
	for _, id := range a.SourcedMetadata() {
		if err := moveObject(ctx, r.staging, r.objects, id); err != nil {
			return model.NullID, err
		}
	}
	if err := r.Index().UpdateStageHead(ctx, root.ID); err != nil {
		return model.NullID, err
	}
	if err := r.WorkingTree().dropMarkers(ctx, markers); err != nil {
		return model.NullID, err
	}
	listener.Complete()

	r.log.WithFields(logrus.Fields{
		"changes": len(entries),
		"tree":    root.ID.Short(8),
	}).Debug("wrote tree")
	return root.ID, nil
}

// moveNode moves the object and the feature type of a node out of the
// staging database. Subtrees are rebuilt by the caller, so for tree nodes
// only the feature type moves.
func (r *Repository) moveNode(ctx context.Context, ref model.NodeRef) error {
	if ref.Type() == model.TypeFeature {
		if err := moveObject(ctx, r.staging, r.objects, ref.ObjectID()); err != nil {
			return err
		}
	}
	if id := ref.Node.MetadataID; !id.IsNull() {
		return moveObject(ctx, r.staging, r.objects, id)
	}
	return nil
}

// moveObject copies one object from the staging database into to and
// drops the staged copy.
func moveObject(ctx context.Context, from storage.StagingDatabase, to storage.ObjectDatabase, id model.ObjectId) error {
	exists, err := to.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		data, err := from.GetRaw(ctx, id)
		if err != nil {
			return fmt.Errorf("move %s: %w", id.Short(8), err)
		}
		if _, err := to.PutRaw(ctx, id, data); err != nil {
			return fmt.Errorf("move %s: %w", id.Short(8), err)
		}
	}
	if _, err := from.Delete(ctx, id); err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}
	return nil
}

// DeepMove moves the object id and everything it references (subtrees,
// buckets, features and feature types) from the staging database into to.
// Children are moved before their parents.
func DeepMove(ctx context.Context, from storage.StagingDatabase, to storage.ObjectDatabase, id model.ObjectId) error {
	if id.IsNull() || id == encoding.EmptyTreeID {
		return nil
	}
	obj, err := from.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, ok := obj.(*model.Tree); !ok {
		return moveObject(ctx, from, to, id)
	}

	moved := map[model.ObjectId]bool{}
	move := func(id model.ObjectId) error {
		if id.IsNull() || moved[id] {
			return nil
		}
		moved[id] = true
		return moveObject(ctx, from, to, id)
	}
	for t, err := range tree.AllTrees(ctx, from, id) {
		if err != nil {
			return err
		}
		for _, n := range t.Features {
			if n.IsTombstone() {
				continue
			}
			if err := move(n.ObjectID); err != nil {
				return err
			}
			if err := move(n.MetadataID); err != nil {
				return err
			}
		}
		for _, n := range t.Trees {
			if err := move(n.MetadataID); err != nil {
				return err
			}
		}
		if _, err := to.Put(ctx, t); err != nil {
			return fmt.Errorf("move tree %s: %w", t.ID.Short(8), err)
		}
		if _, err := from.Delete(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}
