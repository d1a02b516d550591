package repository

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/progress"
	"github.com/yokosogithub/GeoGit-sub002/pkg/refs"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
)

type CommitOptions struct {
	Author    model.Person
	Committer model.Person
	Message   string
	// Parents are added after HEAD, as for a merge.
	Parents    []model.ObjectId
	AllowEmpty bool
	Listener   progress.Listener
}

func stamp(p model.Person, now time.Time) model.Person {
	if p.Timestamp == 0 {
		p.Timestamp = now.UnixMilli()
		_, offset := now.Zone()
		p.TimeZoneOffset = int32(offset * 1000)
	}
	return p
}

// Commit writes the staged changes on top of the HEAD tree, records them in
// a commit whose first parent is HEAD and moves the current branch to it.
// Refs stay locked for the whole operation. A canceled commit returns nil
// and no error.
func (r *Repository) Commit(ctx context.Context, opts CommitOptions) (*model.Commit, error) {
	if err := r.refs.Lock(ctx); err != nil {
		return nil, err
	}
	defer r.refs.Unlock()

	head, err := r.Head(ctx)
	if err != nil {
		return nil, err
	}
	headTree, err := r.HeadTree(ctx)
	if err != nil {
		return nil, err
	}
	treeID, err := r.writeTree(ctx, headTree, opts.Listener)
	if err != nil {
		return nil, err
	}
	if treeID.IsNull() {
		return nil, nil
	}
	if treeID == headTree.ID && !opts.AllowEmpty && len(opts.Parents) == 0 {
		return nil, ErrNothingToCommit
	}

	now := time.Now()
	if opts.Committer.Name == "" && opts.Committer.Email == "" {
		opts.Committer = opts.Author
	}
	c := &model.Commit{
		TreeID:    treeID,
		Author:    stamp(opts.Author, now),
		Committer: stamp(opts.Committer, now),
		Message:   opts.Message,
	}
	if !head.IsNull() {
		c.Parents = append(c.Parents, head)
	}
	c.Parents = append(c.Parents, opts.Parents...)

	if _, err := r.objects.Put(ctx, c); err != nil {
		return nil, fmt.Errorf("write commit: %w", err)
	}
	if err := refs.Update(ctx, r.refs, r.heads.head, c.ID); err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{
		"commit":  c.ID.Short(8),
		"tree":    treeID.Short(8),
		"parents": len(c.Parents),
	}).Info("committed")
	return c, nil
}

// Log iterates the first parent history starting at from, newest first.
func (r *Repository) Log(ctx context.Context, from model.ObjectId) iter.Seq2[*model.Commit, error] {
	return func(yield func(*model.Commit, error) bool) {
		id := from
		for !id.IsNull() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			c, err := storage.GetCommit(ctx, r.objects, id)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(c, nil) {
				return
			}
			id, _ = c.FirstParent()
		}
	}
}

// CreateTag stores a tag object for commitID and points refs/tags/name at
// it.
func (r *Repository) CreateTag(ctx context.Context, name string, commitID model.ObjectId, message string, tagger model.Person) (*model.Tag, error) {
	if _, err := storage.GetCommit(ctx, r.objects, commitID); err != nil {
		return nil, err
	}
	t := &model.Tag{
		CommitID: commitID,
		Name:     name,
		Message:  message,
		Tagger:   stamp(tagger, time.Now()),
	}
	if _, err := r.objects.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("write tag %s: %w", name, err)
	}
	if err := r.refs.PutRef(ctx, refs.TagsPrefix+name, t.ID.String()); err != nil {
		return nil, err
	}
	return t, nil
}

// Branch points refs/heads/name at commitID.
func (r *Repository) Branch(ctx context.Context, name string, commitID model.ObjectId) error {
	return r.refs.PutRef(ctx, refs.HeadsPrefix+name, commitID.String())
}
