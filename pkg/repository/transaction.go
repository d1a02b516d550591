package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/refs"
	"github.com/yokosogithub/GeoGit-sub002/pkg/stagingdb"
)

var ErrTransactionConflict = errors.New("HEAD moved since the transaction began")

// Transaction is a view of a repository with its own HEAD, WORK_HEAD and
// STAGE_HEAD, stored under transactions/<id>/, and its own conflict
// namespace. Objects are shared with the repository.
type Transaction struct {
	*Repository
	id       uuid.UUID
	parent   *Repository
	origHead model.ObjectId
}

// BeginTransaction copies the current heads into a new transaction.
func (r *Repository) BeginTransaction(ctx context.Context) (*Transaction, error) {
	staging, ok := r.staging.(*stagingdb.Database)
	if !ok {
		return nil, errors.New("transactions cannot be nested")
	}
	id := uuid.New()
	prefix := refs.TransactionsPrefix + id.String() + "/"

	view := &Repository{
		store:    r.store,
		cache:    r.cache,
		objects:  r.objects,
		staging:  stagingdb.Transaction(staging, id),
		refs:     r.refs,
		graph:    r.graph,
		pool:     r.pool,
		treeOpts: r.treeOpts,
		log:      r.log,
		heads: heads{
			head:      prefix + refs.Head,
			workHead:  prefix + refs.WorkHead,
			stageHead: prefix + refs.StageHead,
		},
	}
	tx := &Transaction{Repository: view, id: id, parent: r}

	err := r.refs.WithLock(ctx, func() error {
		head, err := r.Head(ctx)
		if err != nil {
			return err
		}
		tx.origHead = head
		if !head.IsNull() {
			if err := r.refs.PutRef(ctx, view.heads.head, head.String()); err != nil {
				return err
			}
		}
		return copyRef(ctx, r.refs, r.heads.workHead, view.heads.workHead, r.heads.stageHead, view.heads.stageHead)
	})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	r.log.WithField("transaction", id).Debug("transaction started")
	return tx, nil
}

// copyRef copies the values of the given from, to name pairs. Missing refs
// are skipped.
func copyRef(ctx context.Context, db *refs.Database, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		v, err := db.GetRef(ctx, pairs[i])
		if errors.Is(err, model.ErrNotFound) {
			if _, err := db.Remove(ctx, pairs[i+1]); err != nil && !errors.Is(err, model.ErrNotFound) {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if err := db.PutRef(ctx, pairs[i+1], v); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transaction) ID() uuid.UUID { return t.id }

// Close releases nothing: the transaction shares the resources of its
// repository.
func (t *Transaction) Close() error { return nil }

// End publishes the transaction: the current branch moves to the
// transaction HEAD and the working and staged trees are copied back. It
// fails with ErrTransactionConflict when HEAD moved in the meantime.
func (t *Transaction) End(ctx context.Context) (model.ObjectId, error) {
	var head model.ObjectId
	err := t.refs.WithLock(ctx, func() error {
		current, err := t.parent.Head(ctx)
		if err != nil {
			return err
		}
		if head, err = t.Head(ctx); err != nil {
			return err
		}
		if head != t.origHead {
			if current != t.origHead {
				return ErrTransactionConflict
			}
			if err := refs.Update(ctx, t.refs, t.parent.heads.head, head); err != nil {
				return err
			}
		}
		return copyRef(ctx, t.refs, t.heads.workHead, t.parent.heads.workHead, t.heads.stageHead, t.parent.heads.stageHead)
	})
	if err != nil {
		return model.NullID, err
	}
	t.log.WithFields(logrus.Fields{"transaction": t.id, "head": head.Short(8)}).Debug("transaction ended")
	return head, t.discard(ctx)
}

// Abort drops the transaction refs and conflicts.
func (t *Transaction) Abort(ctx context.Context) error {
	return t.discard(ctx)
}

func (t *Transaction) discard(ctx context.Context) error {
	all, err := t.refs.GetAll(ctx, refs.TransactionsPrefix+t.id.String()+"/")
	if err != nil {
		return err
	}
	for name := range all {
		if _, err := t.refs.Remove(ctx, name); err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
	}
	return t.staging.RemoveConflicts(ctx, "")
}
