package repository

import (
	"context"
	"errors"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/pkg/diff"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/progress"
	"github.com/yokosogithub/GeoGit-sub002/pkg/tree"
)

// Index holds the changes selected for the next commit in the tree
// STAGE_HEAD points at.
type Index struct {
	repo *Repository
}

// Tree returns the staged tree. Without STAGE_HEAD it is the HEAD tree.
func (x *Index) Tree(ctx context.Context) (*model.Tree, error) {
	return x.repo.refTree(ctx, x.repo.heads.stageHead, x.repo.HeadTree)
}

func (x *Index) UpdateStageHead(ctx context.Context, treeID model.ObjectId) error {
	return x.repo.refs.PutRef(ctx, x.repo.heads.stageHead, treeID.String())
}

// Stage copies the unstaged changes below the given paths, or all of them,
// into the index. Deletions are staged as deletion markers. A canceled
// stage leaves STAGE_HEAD untouched.
func (x *Index) Stage(ctx context.Context, listener progress.Listener, pathFilter ...string) error {
	listener = progress.WithContext(ctx, listener)
	wt := x.repo.WorkingTree()
	walker, err := wt.unstaged(ctx, diff.WithPathFilter(pathFilter...), diff.WithReportTrees(true))
	if err != nil {
		return err
	}
	entries, err := diff.Collect(ctx, walker)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	staged, err := x.Tree(ctx)
	if err != nil {
		return err
	}
	work, err := wt.Tree(ctx)
	if err != nil {
		return err
	}
	listener.Started()
	a := newApplier(x.repo.staging, staged, true, x.repo.treeOpts).withSource(x.repo.staging, work)
	for i, e := range entries {
		if listener.IsCanceled() {
			return nil
		}
		if err := a.Apply(ctx, e); err != nil {
			return err
		}
		listener.Progress(float32(i+1) * 100 / float32(len(entries)))
	}
	if listener.IsCanceled() {
		return nil
	}
	root, err := a.Build(ctx)
	if err != nil {
		return err
	}
	if err := x.UpdateStageHead(ctx, root.ID); err != nil {
		return err
	}
	listener.Complete()

	x.repo.log.WithFields(logrus.Fields{
		"changes": len(entries),
		"tree":    root.ID.Short(8),
	}).Debug("staged changes")
	return nil
}

func (x *Index) staged(ctx context.Context) (*model.Tree, *model.Tree, error) {
	head, err := x.repo.HeadTree(ctx)
	if err != nil {
		return nil, nil, err
	}
	staged, err := x.Tree(ctx)
	if err != nil {
		return nil, nil, err
	}
	return head, staged, nil
}

// Staged lists the staged changes against the HEAD tree below the given
// paths, or everywhere without paths.
func (x *Index) Staged(ctx context.Context, pathFilter ...string) iter.Seq2[diff.Entry, error] {
	return func(yield func(diff.Entry, error) bool) {
		head, staged, err := x.staged(ctx)
		if err != nil {
			yield(diff.Entry{}, err)
			return
		}
		w := diff.NewWalker(x.repo.objects, x.repo.staging, head, staged, diff.WithPathFilter(pathFilter...))
		for e, err := range w.Entries(ctx) {
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

func (x *Index) CountStaged(ctx context.Context, pathFilter ...string) (diff.Counts, error) {
	head, staged, err := x.staged(ctx)
	if err != nil {
		return diff.Counts{}, err
	}
	return diff.Count(ctx, x.repo.objects, x.repo.staging, head, staged, diff.WithPathFilter(pathFilter...))
}

// FindStaged returns the node at path in the staged tree. Deleted nodes
// are not found.
func (x *Index) FindStaged(ctx context.Context, path string) (model.NodeRef, bool, error) {
	staged, err := x.Tree(ctx)
	if err != nil {
		return model.NodeRef{}, false, err
	}
	ref, ok, err := tree.FindChild(ctx, x.repo.staging, staged, path)
	if err != nil || !ok || ref.IsTombstone() {
		return model.NodeRef{}, false, err
	}
	return ref, true, nil
}

// Reset drops STAGE_HEAD so the index matches HEAD again. The working tree
// is left alone.
func (x *Index) Reset(ctx context.Context) error {
	_, err := x.repo.refs.Remove(ctx, x.repo.heads.stageHead)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	return err
}
