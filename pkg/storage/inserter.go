package storage

import (
	"context"
	"sync/atomic"

	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
)

// ObjectInserter groups a sequence of puts. It offers no atomicity beyond
// the idempotence of each single put: objects inserted before a failure
// stay in the database.
type ObjectInserter struct {
	db       ObjectDatabase
	inserted atomic.Int64
	existing atomic.Int64
}

func NewObjectInserter(db ObjectDatabase) *ObjectInserter {
	return &ObjectInserter{db: db}
}

// Insert puts obj and stores its id on it.
func (i *ObjectInserter) Insert(ctx context.Context, obj model.RevObject) error {
	inserted, err := i.db.Put(ctx, obj)
	if err != nil {
		return err
	}
	if inserted {
		i.inserted.Add(1)
	} else {
		i.existing.Add(1)
	}
	return nil
}

// Counts returns how many objects were new and how many already existed.
func (i *ObjectInserter) Counts() (inserted, existing int64) {
	return i.inserted.Load(), i.existing.Load()
}
