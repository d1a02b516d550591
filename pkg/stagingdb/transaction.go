package stagingdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
)

// TransactionDatabase shares the staged objects of its parent but keeps
// conflicts in a namespace of its own, so a transaction's merge state never
// leaks into the default index.
type TransactionDatabase struct {
	*Database
	id uuid.UUID
}

var _ storage.StagingDatabase = (*TransactionDatabase)(nil)

// Transaction returns a view of db bound to the transaction id.
func Transaction(db *Database, id uuid.UUID) *TransactionDatabase {
	return &TransactionDatabase{Database: db, id: id}
}

// ID returns the transaction id.
func (t *TransactionDatabase) ID() uuid.UUID {
	return t.id
}

func (t *TransactionDatabase) namespace(ns string) string {
	if ns == "" {
		return t.id.String()
	}
	return t.id.String() + "/" + ns
}

func (t *TransactionDatabase) HasConflicts(ctx context.Context, namespace string) (bool, error) {
	return t.Database.HasConflicts(ctx, t.namespace(namespace))
}

func (t *TransactionDatabase) GetConflict(ctx context.Context, namespace, path string) (storage.Conflict, bool, error) {
	return t.Database.GetConflict(ctx, t.namespace(namespace), path)
}

func (t *TransactionDatabase) GetConflicts(ctx context.Context, namespace, pathFilter string) ([]storage.Conflict, error) {
	return t.Database.GetConflicts(ctx, t.namespace(namespace), pathFilter)
}

func (t *TransactionDatabase) AddConflict(ctx context.Context, namespace string, c storage.Conflict) error {
	return t.Database.AddConflict(ctx, t.namespace(namespace), c)
}

func (t *TransactionDatabase) RemoveConflict(ctx context.Context, namespace, path string) error {
	return t.Database.RemoveConflict(ctx, t.namespace(namespace), path)
}

func (t *TransactionDatabase) RemoveConflicts(ctx context.Context, namespace string) error {
	return t.Database.RemoveConflicts(ctx, t.namespace(namespace))
}

func (t *TransactionDatabase) NewObjectInserter() *storage.ObjectInserter {
	return storage.NewObjectInserter(t)
}
