// Package objectdb stores repository objects in a key value space, keyed by
// their raw 20 byte id, compressed at rest. Decorators add a split tree
// cache and keep the commit graph index in sync with stored commits.
package objectdb

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/internal/compression"
	"github.com/yokosogithub/GeoGit-sub002/internal/keyValStore"
	"github.com/yokosogithub/GeoGit-sub002/pkg/encoding"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
)

type Config struct {
	// Codec compresses new objects. Existing objects are read with
	// whatever codec they were written with.
	Codec   compression.Codec
	Factory encoding.Factory
	Logger  *logrus.Logger
}

// Database is a storage.ObjectDatabase on top of a keyValStore space.
type Database struct {
	space   *keyValStore.Space
	codec   compression.Codec
	factory encoding.Factory
	log     *logrus.Logger
}

var _ storage.ObjectDatabase = (*Database)(nil)

func New(space *keyValStore.Space, config Config) *Database {
	if config.Factory == nil {
		config.Factory = encoding.Binary
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return &Database{
		space:   space,
		codec:   config.Codec,
		factory: config.Factory,
		log:     config.Logger,
	}
}

func (d *Database) Exists(ctx context.Context, id model.ObjectId) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return d.space.Exists(id[:])
}

func (d *Database) blob(ctx context.Context, id model.ObjectId) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blob, err := d.space.Get(id[:])
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return nil, model.ObjectNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", id, err)
	}
	return blob, nil
}

func (d *Database) GetRaw(ctx context.Context, id model.ObjectId) ([]byte, error) {
	blob, err := d.blob(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := compression.Decompress(blob)
	if err != nil {
		return nil, &model.CorruptDataError{ID: id, Expected: model.TypeUnknown, Err: err}
	}
	return data, nil
}

func (d *Database) Get(ctx context.Context, id model.ObjectId) (model.RevObject, error) {
	data, err := d.GetRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.factory.Decode(id, data)
}

func (d *Database) Put(ctx context.Context, obj model.RevObject) (bool, error) {
	data, err := encoding.SealWith(d.factory, obj)
	if err != nil {
		return false, err
	}
	return d.PutRaw(ctx, obj.ObjectID(), data)
}

func (d *Database) PutRaw(ctx context.Context, id model.ObjectId, data []byte) (bool, error) {
	_, inserted, err := d.putRaw(ctx, id, data)
	return inserted, err
}

func (d *Database) putRaw(ctx context.Context, id model.ObjectId, data []byte) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	blob, err := compression.Compress(d.codec, data)
	if err != nil {
		return 0, false, fmt.Errorf("compress object %s: %w", id, err)
	}
	inserted, err := d.space.SetIfAbsent(id[:], blob)
	if err != nil {
		return 0, false, fmt.Errorf("write object %s: %w", id, err)
	}
	return len(blob), inserted, nil
}

func (d *Database) Delete(ctx context.Context, id model.ObjectId) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return d.space.Delete(id[:])
}

func (d *Database) LookUp(ctx context.Context, prefix string) ([]model.ObjectId, error) {
	raw, err := model.PrefixBytes(prefix)
	if err != nil {
		return nil, err
	}
	var ids []model.ObjectId
	err = d.space.ScanKeys(raw, func(key []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(key) != model.IDLength {
			return nil
		}
		id := model.ObjectId(key)
		if id.HasPrefix(prefix) {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("look up %q: %w", prefix, err)
	}
	return ids, nil
}

func (d *Database) GetAll(ctx context.Context, ids []model.ObjectId, listener storage.BulkOpListener) ([]model.RevObject, error) {
	listener = storage.ListenerOrNoop(listener)
	out := make([]model.RevObject, 0, len(ids))
	for _, id := range ids {
		blob, err := d.blob(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			listener.NotFound(id)
			continue
		}
		if err != nil {
			return out, err
		}
		data, err := compression.Decompress(blob)
		if err != nil {
			return out, &model.CorruptDataError{ID: id, Expected: model.TypeUnknown, Err: err}
		}
		obj, err := d.factory.Decode(id, data)
		if err != nil {
			return out, err
		}
		listener.Found(id, len(blob))
		out = append(out, obj)
	}
	return out, nil
}

func (d *Database) PutAll(ctx context.Context, objects iter.Seq[model.RevObject], listener storage.BulkOpListener) error {
	listener = storage.ListenerOrNoop(listener)
	var count, inserted int
	for obj := range objects {
		data, err := encoding.SealWith(d.factory, obj)
		if err != nil {
			return err
		}
		size, ok, err := d.putRaw(ctx, obj.ObjectID(), data)
		if err != nil {
			return err
		}
		count++
		if ok {
			inserted++
			listener.Inserted(obj.ObjectID(), size)
		}
	}
	d.log.WithFields(logrus.Fields{
		"objects":  count,
		"inserted": inserted,
	}).Debug("put all")
	return nil
}

func (d *Database) DeleteAll(ctx context.Context, ids []model.ObjectId, listener storage.BulkOpListener) (int, error) {
	listener = storage.ListenerOrNoop(listener)
	deleted := 0
	for _, id := range ids {
		ok, err := d.Delete(ctx, id)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
			listener.Deleted(id)
		} else {
			listener.NotFound(id)
		}
	}
	return deleted, nil
}

func (d *Database) NewObjectInserter() *storage.ObjectInserter {
	return storage.NewObjectInserter(d)
}

// Count returns the number of stored objects.
func (d *Database) Count(ctx context.Context) (int, error) {
	n := 0
	err := d.space.ScanKeys(nil, func([]byte) error {
		n++
		return ctx.Err()
	})
	return n, err
}

// Truncate removes every object.
func (d *Database) Truncate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.space.Drop()
}
