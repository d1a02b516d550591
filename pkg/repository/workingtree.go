package repository

import (
	"context"
	"fmt"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/pkg/diff"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/progress"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
	"github.com/yokosogithub/GeoGit-sub002/pkg/tree"
)

// WorkingTree edits the tree WORK_HEAD points at. Everything it writes goes
// to the staging database.
type WorkingTree struct {
	repo *Repository
}

// Tree returns the working tree. Without WORK_HEAD it is the staged tree.
func (w *WorkingTree) Tree(ctx context.Context) (*model.Tree, error) {
	return w.repo.refTree(ctx, w.repo.heads.workHead, w.repo.Index().Tree)
}

// UpdateWorkHead points WORK_HEAD at a tree.
func (w *WorkingTree) UpdateWorkHead(ctx context.Context, treeID model.ObjectId) error {
	return w.repo.refs.PutRef(ctx, w.repo.heads.workHead, treeID.String())
}

// Insert writes features below parentPath, keyed by node name, and
// records featureType, when given, as the default metadata of the parent
// tree. It returns the number of features inserted. The total is not known
// up front, so the listener gets a running count. A canceled insert leaves
// WORK_HEAD untouched and returns 0.
func (w *WorkingTree) Insert(ctx context.Context, parentPath string, features iter.Seq2[string, *model.Feature], featureType *model.FeatureType, listener progress.Listener) (int, error) {
	listener = progress.WithContext(ctx, listener)
	db := w.repo.staging

	metadataID := model.NullID
	if featureType != nil {
		if _, err := db.Put(ctx, featureType); err != nil {
			return 0, fmt.Errorf("write feature type %s: %w", featureType.Name, err)
		}
		metadataID = featureType.ID
	}

	root, err := w.Tree(ctx)
	if err != nil {
		return 0, err
	}
	parent, err := tree.GetOrCreateSubTree(ctx, db, root, parentPath)
	if err != nil {
		return 0, err
	}

	listener.Started()
	b := tree.NewBuilder(db, parent, w.repo.treeOpts...)
	inserter := db.NewObjectInserter()
	count := 0
	for name, f := range features {
		if listener.IsCanceled() {
			return 0, nil
		}
		if err := inserter.Insert(ctx, f); err != nil {
			return 0, fmt.Errorf("write feature %s: %w", model.JoinPath(parentPath, name), err)
		}
		if err := b.Put(model.NewFeatureNode(name, f.ID, model.NullID, f.Bounds())); err != nil {
			return 0, err
		}
		count++
		listener.Progress(float32(count))
	}
	if listener.IsCanceled() {
		return 0, nil
	}

	sub, err := b.Build(ctx)
	if err != nil {
		return 0, err
	}
	rootID, err := tree.WriteBack(ctx, db, root, sub, parentPath, metadataID, w.repo.treeOpts...)
	if err != nil {
		return 0, err
	}
	if err := w.UpdateWorkHead(ctx, rootID); err != nil {
		return 0, err
	}
	listener.Complete()

	inserted, existing := inserter.Counts()
	w.repo.log.WithFields(logrus.Fields{
		"path":     parentPath,
		"inserted": inserted,
		"existing": existing,
	}).Debug("inserted features into working tree")
	return count, nil
}

// Delete marks the node at path as deleted. It returns false when there is
// nothing at path.
func (w *WorkingTree) Delete(ctx context.Context, path string) (bool, error) {
	return w.delete(ctx, path, false)
}

// DeleteTree marks the tree at path as deleted together with its content.
func (w *WorkingTree) DeleteTree(ctx context.Context, path string) (bool, error) {
	return w.delete(ctx, path, true)
}

func (w *WorkingTree) delete(ctx context.Context, path string, mustBeTree bool) (bool, error) {
	db := w.repo.staging
	root, err := w.Tree(ctx)
	if err != nil {
		return false, err
	}
	ref, ok, err := tree.FindChild(ctx, db, root, path)
	if err != nil || !ok || ref.IsTombstone() {
		return false, err
	}
	if mustBeTree && ref.Type() != model.TypeTree {
		return false, &model.InvalidPathError{Path: path, Reason: "not a tree"}
	}

	parentPath := model.ParentPath(path)
	parent, err := tree.GetOrCreateSubTree(ctx, db, root, parentPath)
	if err != nil {
		return false, err
	}
	b := tree.NewBuilder(db, parent, w.repo.treeOpts...)
	if err := b.Put(model.Node{Name: ref.Name(), Type: ref.Type()}); err != nil {
		return false, err
	}
	sub, err := b.Build(ctx)
	if err != nil {
		return false, err
	}
	rootID, err := tree.WriteBack(ctx, db, root, sub, parentPath, model.NullID, w.repo.treeOpts...)
	if err != nil {
		return false, err
	}
	return true, w.UpdateWorkHead(ctx, rootID)
}

// dropMarkers removes the deletion markers of written removals from the
// working tree. Paths that hold a live node again are left alone.
func (w *WorkingTree) dropMarkers(ctx context.Context, removals []diff.Entry) error {
	if len(removals) == 0 {
		return nil
	}
	db := w.repo.staging
	work, err := w.Tree(ctx)
	if err != nil {
		return err
	}
	a := newApplier(db, work, false, w.repo.treeOpts)
	for _, e := range removals {
		ref, ok, err := tree.FindChild(ctx, db, work, e.Path())
		if err != nil {
			return err
		}
		if !ok || !ref.IsTombstone() {
			continue
		}
		if err := a.Apply(ctx, e); err != nil {
			return err
		}
	}
	if !a.Changed() {
		return nil
	}
	root, err := a.Build(ctx)
	if err != nil {
		return err
	}
	return w.UpdateWorkHead(ctx, root.ID)
}

func (w *WorkingTree) unstaged(ctx context.Context, opts ...diff.Option) (*diff.Walker, error) {
	staged, err := w.repo.Index().Tree(ctx)
	if err != nil {
		return nil, err
	}
	work, err := w.Tree(ctx)
	if err != nil {
		return nil, err
	}
	db := w.repo.staging
	return diff.NewWalker(db, db, staged, work, opts...), nil
}

// Unstaged lists the changes of the working tree against the index below
// the given paths, or everywhere without paths.
func (w *WorkingTree) Unstaged(ctx context.Context, pathFilter ...string) iter.Seq2[diff.Entry, error] {
	return func(yield func(diff.Entry, error) bool) {
		walker, err := w.unstaged(ctx, diff.WithPathFilter(pathFilter...))
		if err != nil {
			yield(diff.Entry{}, err)
			return
		}
		for e, err := range walker.Entries(ctx) {
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

// CountUnstaged counts the unstaged changes below the given paths.
func (w *WorkingTree) CountUnstaged(ctx context.Context, pathFilter ...string) (diff.Counts, error) {
	staged, err := w.repo.Index().Tree(ctx)
	if err != nil {
		return diff.Counts{}, err
	}
	work, err := w.Tree(ctx)
	if err != nil {
		return diff.Counts{}, err
	}
	db := w.repo.staging
	return diff.Count(ctx, db, db, staged, work, diff.WithPathFilter(pathFilter...))
}

// FeatureTypeTrees returns every tree of the working tree that carries a
// default feature type.
func (w *WorkingTree) FeatureTypeTrees(ctx context.Context) ([]model.NodeRef, error) {
	root, err := w.Tree(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.NodeRef
	for ref, err := range tree.Walk(ctx, w.repo.staging, root, tree.RecursiveTreesOnly) {
		if err != nil {
			return nil, err
		}
		if !ref.IsTombstone() && !ref.Node.MetadataID.IsNull() {
			out = append(out, ref)
		}
	}
	return out, nil
}

// FindFeatureType returns the feature type a node under the working tree
// resolves to.
func (w *WorkingTree) FindFeatureType(ctx context.Context, path string) (*model.FeatureType, error) {
	root, err := w.Tree(ctx)
	if err != nil {
		return nil, err
	}
	ref, ok, err := tree.FindChild(ctx, w.repo.staging, root, path)
	if err != nil {
		return nil, err
	}
	if !ok || ref.IsTombstone() {
		return nil, &model.NotFoundError{Kind: "path", Key: path}
	}
	if ref.MetadataID().IsNull() {
		return nil, &model.NotFoundError{Kind: "feature type", Key: path}
	}
	return storage.GetFeatureType(ctx, w.repo.staging, ref.MetadataID())
}
