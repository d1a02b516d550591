// Package graph keeps the commit DAG as compact parent and child edges so
// ancestry questions never have to decode commit objects.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/internal/keyValStore"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
)

// key layout inside the graph space
const (
	parentsPrefix  = 'p' // p<id> -> concatenated parent ids
	childrenPrefix = 'c' // c<parent><child> -> empty
	mappingPrefix  = 'm' // m<id> -> original id
	propertyPrefix = 'x' // x<id><key> -> value
)

// Database is a storage.GraphDatabase stored in a keyValStore space.
type Database struct {
	space *keyValStore.Space
	log   *logrus.Logger
}

var _ storage.GraphDatabase = (*Database)(nil)

func New(space *keyValStore.Space, logger *logrus.Logger) *Database {
	if logger == nil {
		logger = logrus.New()
	}
	return &Database{space: space, log: logger}
}

func idKey(prefix byte, id model.ObjectId, suffix ...byte) []byte {
	key := make([]byte, 0, 1+model.IDLength+len(suffix))
	key = append(key, prefix)
	key = append(key, id[:]...)
	return append(key, suffix...)
}

func decodeIDs(data []byte) ([]model.ObjectId, error) {
	if len(data)%model.IDLength != 0 {
		return nil, fmt.Errorf("graph edge list of %d bytes", len(data))
	}
	if len(data) == 0 {
		return nil, nil
	}
	ids := make([]model.ObjectId, len(data)/model.IDLength)
	for i := range ids {
		copy(ids[i][:], data[i*model.IDLength:])
	}
	return ids, nil
}

func (d *Database) Exists(ctx context.Context, commitID model.ObjectId) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return d.space.Exists(idKey(parentsPrefix, commitID))
}

// parents returns the parents of a known commit, or false for unknown ones.
func (d *Database) parents(ctx context.Context, commitID model.ObjectId) ([]model.ObjectId, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := d.space.Get(idKey(parentsPrefix, commitID))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	ids, err := decodeIDs(data)
	if err != nil {
		return nil, false, &model.CorruptDataError{ID: commitID, Expected: model.TypeCommit, Err: err}
	}
	return ids, true, nil
}

func (d *Database) GetParents(ctx context.Context, commitID model.ObjectId) ([]model.ObjectId, error) {
	ids, ok, err := d.parents(ctx, commitID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &model.NotFoundError{Kind: "commit", Key: commitID.String()}
	}
	return ids, nil
}

func (d *Database) GetChildren(ctx context.Context, commitID model.ObjectId) ([]model.ObjectId, error) {
	prefix := idKey(childrenPrefix, commitID)
	var children []model.ObjectId
	err := d.space.ScanKeys(prefix, func(key []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var child model.ObjectId
		copy(child[:], key[len(prefix):])
		children = append(children, child)
		return nil
	})
	return children, err
}

func (d *Database) Put(ctx context.Context, commitID model.ObjectId, parents []model.ObjectId) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	value := make([]byte, 0, len(parents)*model.IDLength)
	for _, p := range parents {
		value = append(value, p[:]...)
	}

	inserted := false
	err := d.space.Update(func(txn *badger.Txn) error {
		inserted = false
		key := d.space.Key(idKey(parentsPrefix, commitID))
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, value); err != nil {
			return err
		}
		for _, p := range parents {
			if err := txn.Set(d.space.Key(idKey(childrenPrefix, p, commitID[:]...)), nil); err != nil {
				return err
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("put commit %s in graph: %w", commitID, err)
	}
	if inserted {
		d.log.WithFields(logrus.Fields{
			"commit":  commitID.Short(8),
			"parents": len(parents),
		}).Debug("graph node added")
	}
	return inserted, nil
}

func (d *Database) Map(ctx context.Context, mapped, original model.ObjectId) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.space.Set(idKey(mappingPrefix, mapped), original[:])
}

// GetMapping returns the original commit mapped to commitID, or NullID when
// there is none.
func (d *Database) GetMapping(ctx context.Context, commitID model.ObjectId) (model.ObjectId, error) {
	if err := ctx.Err(); err != nil {
		return model.NullID, err
	}
	data, err := d.space.Get(idKey(mappingPrefix, commitID))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return model.NullID, nil
	}
	if err != nil {
		return model.NullID, err
	}
	var original model.ObjectId
	if len(data) != model.IDLength {
		return model.NullID, &model.CorruptDataError{ID: commitID, Expected: model.TypeCommit, Err: fmt.Errorf("mapping of %d bytes", len(data))}
	}
	copy(original[:], data)
	return original, nil
}

func (d *Database) GetDepth(ctx context.Context, commitID model.ObjectId) (int, error) {
	if _, ok, err := d.parents(ctx, commitID); err != nil {
		return 0, err
	} else if !ok {
		return 0, &model.NotFoundError{Kind: "commit", Key: commitID.String()}
	}

	seen := map[model.ObjectId]bool{commitID: true}
	level := []model.ObjectId{commitID}
	for depth := 0; len(level) > 0; depth++ {
		var next []model.ObjectId
		for _, id := range level {
			parents, _, err := d.parents(ctx, id)
			if err != nil {
				return 0, err
			}
			if len(parents) == 0 {
				return depth, nil
			}
			for _, p := range parents {
				if !seen[p] {
					seen[p] = true
					next = append(next, p)
				}
			}
		}
		level = next
	}
	return 0, nil
}

func propertyKey(id model.ObjectId, key string) []byte {
	return idKey(propertyPrefix, id, []byte(key)...)
}

func (d *Database) SetProperty(ctx context.Context, commitID model.ObjectId, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.space.Set(propertyKey(commitID, key), []byte(value))
}

func (d *Database) GetProperty(ctx context.Context, commitID model.ObjectId, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, err := d.space.Get(propertyKey(commitID, key))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

// IsSparsePath reports whether a commit on any parent path leading from
// start to end, end excluded, has the sparse property set.
func (d *Database) IsSparsePath(ctx context.Context, start, end model.ObjectId) (bool, error) {
	type state struct{ reaches, sparse bool }
	memo := map[model.ObjectId]state{}

	var visit func(id model.ObjectId) (state, error)
	visit = func(id model.ObjectId) (state, error) {
		if id == end {
			return state{reaches: true}, nil
		}
		if s, ok := memo[id]; ok {
			return s, nil
		}
		memo[id] = state{}
		parents, _, err := d.parents(ctx, id)
		if err != nil {
			return state{}, err
		}
		var s state
		for _, p := range parents {
			ps, err := visit(p)
			if err != nil {
				return state{}, err
			}
			if ps.reaches {
				s.reaches = true
				s.sparse = s.sparse || ps.sparse
			}
		}
		if s.reaches && !s.sparse {
			v, _, err := d.GetProperty(ctx, id, storage.SparseProperty)
			if err != nil {
				return state{}, err
			}
			s.sparse = v == "true"
		}
		memo[id] = s
		return s, nil
	}

	s, err := visit(start)
	return s.sparse, err
}

func (d *Database) Truncate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.space.Drop()
}
