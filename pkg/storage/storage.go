// Package storage defines the contracts of the repository databases: the
// content addressed object database, the staging database layered over it,
// the ref database and the commit graph index.
package storage

import (
	"context"
	"iter"

	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
)

// ObjectDatabase maps ObjectIds to objects. Implementations are safe for
// concurrent use; Put is idempotent and the first writer of an id wins.
type ObjectDatabase interface {
	Exists(ctx context.Context, id model.ObjectId) (bool, error)
	// Get fails with *model.NotFoundError for unknown ids and with
	// *model.CorruptDataError when the stored bytes do not decode.
	Get(ctx context.Context, id model.ObjectId) (model.RevObject, error)
	// GetRaw returns the canonical, uncompressed bytes of an object.
	GetRaw(ctx context.Context, id model.ObjectId) ([]byte, error)
	// Put stores obj unless an object with the same id exists and reports
	// whether it was inserted. The computed id is stored on obj.
	Put(ctx context.Context, obj model.RevObject) (bool, error)
	// PutRaw stores canonical bytes under id without decoding them.
	PutRaw(ctx context.Context, id model.ObjectId, data []byte) (bool, error)
	Delete(ctx context.Context, id model.ObjectId) (bool, error)
	// LookUp returns every id whose hex form starts with prefix.
	LookUp(ctx context.Context, prefix string) ([]model.ObjectId, error)

	// GetAll returns the objects found for ids. Missing ids are reported
	// to the listener and skipped.
	GetAll(ctx context.Context, ids []model.ObjectId, listener BulkOpListener) ([]model.RevObject, error)
	PutAll(ctx context.Context, objects iter.Seq[model.RevObject], listener BulkOpListener) error
	// DeleteAll returns the number of deleted objects.
	DeleteAll(ctx context.Context, ids []model.ObjectId, listener BulkOpListener) (int, error)

	NewObjectInserter() *ObjectInserter
}

// Conflict records a path both sides of a merge changed differently.
type Conflict struct {
	Path     string
	Ancestor model.ObjectId
	Ours     model.ObjectId
	Theirs   model.ObjectId
}

// StagingDatabase is an ObjectDatabase whose reads fall back to the
// repository database while writes stay local until moved. It also keeps
// merge conflicts, grouped by namespace. The empty namespace is the
// default one.
type StagingDatabase interface {
	ObjectDatabase

	// Truncate discards every staged object.
	Truncate(ctx context.Context) error

	HasConflicts(ctx context.Context, namespace string) (bool, error)
	GetConflict(ctx context.Context, namespace, path string) (Conflict, bool, error)
	// GetConflicts lists conflicts under pathFilter, or all of them for an
	// empty filter, in path storage order.
	GetConflicts(ctx context.Context, namespace, pathFilter string) ([]Conflict, error)
	AddConflict(ctx context.Context, namespace string, conflict Conflict) error
	RemoveConflict(ctx context.Context, namespace, path string) error
	RemoveConflicts(ctx context.Context, namespace string) error
}

// RefDatabase stores named pointers. Values are 40 character hex ids or
// symbolic references of the form "ref: <name>".
type RefDatabase interface {
	// Lock acquires the exclusive ref lock, waiting at most the configured
	// timeout before failing with *model.LockTimeoutError.
	Lock(ctx context.Context) error
	Unlock()

	// GetRef returns the value of a direct ref.
	GetRef(ctx context.Context, name string) (string, error)
	// GetSymRef returns the target of a symbolic ref.
	GetSymRef(ctx context.Context, name string) (string, error)
	PutRef(ctx context.Context, name, value string) error
	PutSymRef(ctx context.Context, name, target string) error
	// Remove deletes a ref and returns its previous value.
	Remove(ctx context.Context, name string) (string, error)
	// GetAll returns every ref whose name starts with prefix.
	GetAll(ctx context.Context, prefix string) (map[string]string, error)
}

// GraphDatabase indexes the commit DAG.
type GraphDatabase interface {
	Exists(ctx context.Context, commitID model.ObjectId) (bool, error)
	GetParents(ctx context.Context, commitID model.ObjectId) ([]model.ObjectId, error)
	GetChildren(ctx context.Context, commitID model.ObjectId) ([]model.ObjectId, error)
	// Put records commitID with its parents. It returns false when the
	// commit was already known.
	Put(ctx context.Context, commitID model.ObjectId, parents []model.ObjectId) (bool, error)

	// Map links a commit to the commit it was derived from in another
	// repository, as sparse clones do.
	Map(ctx context.Context, mapped, original model.ObjectId) error
	GetMapping(ctx context.Context, commitID model.ObjectId) (model.ObjectId, error)

	// GetDepth is the length of the shortest parent path to a root commit.
	GetDepth(ctx context.Context, commitID model.ObjectId) (int, error)

	SetProperty(ctx context.Context, commitID model.ObjectId, key, value string) error
	GetProperty(ctx context.Context, commitID model.ObjectId, key string) (string, bool, error)
	// IsSparsePath reports whether any commit on a path from start down to
	// end carries the sparse property.
	IsSparsePath(ctx context.Context, start, end model.ObjectId) (bool, error)

	// FindLowestCommonAncestor returns the most recent common ancestor of
	// left and right, or false when they share no history.
	FindLowestCommonAncestor(ctx context.Context, left, right model.ObjectId) (model.ObjectId, bool, error)

	Truncate(ctx context.Context) error
}

// SparseProperty marks commits of a sparse clone.
const SparseProperty = "sparse"
