// Package stagingdb holds objects written by working tree and index edits
// before they are moved into the repository, together with merge
// conflicts.
package stagingdb

import (
	"context"
	"errors"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/internal/keyValStore"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/objectdb"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
)

// Database reads from its own staging space first and from the repository
// object database second. Writes only touch the staging space.
type Database struct {
	staged    *objectdb.Database
	repo      storage.ObjectDatabase
	conflicts *keyValStore.Space
	log       *logrus.Logger
}

var _ storage.StagingDatabase = (*Database)(nil)

type Config struct {
	Objects objectdb.Config
	Logger  *logrus.Logger
}

// New creates a staging database storing objects in staging and conflicts
// in conflicts, backed by repo.
func New(staging, conflicts *keyValStore.Space, repo storage.ObjectDatabase, config Config) *Database {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Objects.Logger == nil {
		config.Objects.Logger = config.Logger
	}
	return &Database{
		staged:    objectdb.New(staging, config.Objects),
		repo:      repo,
		conflicts: conflicts,
		log:       config.Logger,
	}
}

// Staged returns the staging space alone, without the repository fallback.
func (d *Database) Staged() storage.ObjectDatabase {
	return d.staged
}

// Repository returns the database reads fall back to.
func (d *Database) Repository() storage.ObjectDatabase {
	return d.repo
}

func (d *Database) Exists(ctx context.Context, id model.ObjectId) (bool, error) {
	ok, err := d.staged.Exists(ctx, id)
	if err != nil || ok {
		return ok, err
	}
	return d.repo.Exists(ctx, id)
}

func (d *Database) Get(ctx context.Context, id model.ObjectId) (model.RevObject, error) {
	obj, err := d.staged.Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return d.repo.Get(ctx, id)
	}
	return obj, err
}

func (d *Database) GetRaw(ctx context.Context, id model.ObjectId) ([]byte, error) {
	data, err := d.staged.GetRaw(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return d.repo.GetRaw(ctx, id)
	}
	return data, err
}

func (d *Database) Put(ctx context.Context, obj model.RevObject) (bool, error) {
	return d.staged.Put(ctx, obj)
}

func (d *Database) PutRaw(ctx context.Context, id model.ObjectId, data []byte) (bool, error) {
	return d.staged.PutRaw(ctx, id, data)
}

func (d *Database) Delete(ctx context.Context, id model.ObjectId) (bool, error) {
	return d.staged.Delete(ctx, id)
}

// LookUp merges matches from both databases.
func (d *Database) LookUp(ctx context.Context, prefix string) ([]model.ObjectId, error) {
	staged, err := d.staged.LookUp(ctx, prefix)
	if err != nil {
		return nil, err
	}
	stored, err := d.repo.LookUp(ctx, prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[model.ObjectId]bool, len(staged))
	out := make([]model.ObjectId, 0, len(staged)+len(stored))
	for _, ids := range [][]model.ObjectId{staged, stored} {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	model.SortIDs(out)
	return out, nil
}

// GetAll reads staged objects first and asks the repository only for the
// rest. The result keeps the order of ids.
func (d *Database) GetAll(ctx context.Context, ids []model.ObjectId, listener storage.BulkOpListener) ([]model.RevObject, error) {
	listener = storage.ListenerOrNoop(listener)
	out := make([]model.RevObject, 0, len(ids))
	for _, id := range ids {
		obj, err := d.staged.Get(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			obj, err = d.repo.Get(ctx, id)
		}
		if errors.Is(err, model.ErrNotFound) {
			listener.NotFound(id)
			continue
		}
		if err != nil {
			return out, err
		}
		listener.Found(id, 0)
		out = append(out, obj)
	}
	return out, nil
}

func (d *Database) PutAll(ctx context.Context, objects iter.Seq[model.RevObject], listener storage.BulkOpListener) error {
	return d.staged.PutAll(ctx, objects, listener)
}

func (d *Database) DeleteAll(ctx context.Context, ids []model.ObjectId, listener storage.BulkOpListener) (int, error) {
	return d.staged.DeleteAll(ctx, ids, listener)
}

func (d *Database) NewObjectInserter() *storage.ObjectInserter {
	return storage.NewObjectInserter(d)
}

func (d *Database) Truncate(ctx context.Context) error {
	n, err := d.staged.Count(ctx)
	if err != nil {
		return err
	}
	if err := d.staged.Truncate(ctx); err != nil {
		return err
	}
	d.log.WithField("objects", n).Debug("staging database truncated")
	return nil
}
