package tree

import (
	"context"
	"fmt"

	"github.com/yokosogithub/GeoGit-sub002/pkg/encoding"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storageorder"
)

// lookupAt finds the direct entry name of t, a tree at the given bucket
// depth. Only the buckets on the path of name are loaded.
func lookupAt(ctx context.Context, db storage.ObjectDatabase, t *model.Tree, name string, depth int) (model.Node, bool, error) {
	for {
		if t.IsLeaf() {
			n, ok := t.Lookup(name)
			return n, ok, nil
		}
		if depth >= storageorder.MaxDepth {
			return model.Node{}, false, &model.CorruptDataError{
				ID:       t.ID,
				Expected: model.TypeTree,
				Err:      fmt.Errorf("split tree below depth %d", storageorder.MaxDepth),
			}
		}
		bucket, ok := t.Bucket(uint32(storageorder.Bucket(name, depth)))
		if !ok {
			return model.Node{}, false, nil
		}
		child, err := storage.GetTree(ctx, db, bucket.ID)
		if err != nil {
			return model.Node{}, false, err
		}
		t = child
		depth++
	}
}

// Lookup finds a direct entry of t by name.
func Lookup(ctx context.Context, db storage.ObjectDatabase, t *model.Tree, name string) (model.Node, bool, error) {
	return lookupAt(ctx, db, t, name, 0)
}

// FindChild resolves path below root. Every segment but the last must be a
// tree node. The returned ref inherits the metadata id of its parent tree
// node.
func FindChild(ctx context.Context, db storage.ObjectDatabase, root *model.Tree, path string) (model.NodeRef, bool, error) {
	if err := model.ValidatePath(path); err != nil {
		return model.NodeRef{}, false, err
	}
	segments := model.SplitPath(path)
	current := root
	parentPath := model.RootPath
	defaultMetadata := model.NullID
	for i, segment := range segments {
		node, ok, err := lookupAt(ctx, db, current, segment, 0)
		if err != nil || !ok {
			return model.NodeRef{}, false, err
		}
		ref := model.NewNodeRef(node, parentPath, defaultMetadata)
		if i == len(segments)-1 {
			return ref, true, nil
		}
		if node.Type != model.TypeTree || node.IsTombstone() {
			return model.NodeRef{}, false, nil
		}
		if current, err = storage.GetTree(ctx, db, node.ObjectID); err != nil {
			return model.NodeRef{}, false, err
		}
		parentPath = model.JoinPath(parentPath, segment)
		defaultMetadata = ref.MetadataID()
	}
	return model.NodeRef{}, false, nil
}

// GetOrCreateSubTree returns the tree at path below root, or a new empty
// tree when nothing exists there yet. It fails with *model.InvalidPathError
// when a segment of path is a feature.
func GetOrCreateSubTree(ctx context.Context, db storage.ObjectDatabase, root *model.Tree, path string) (*model.Tree, error) {
	if path == model.RootPath {
		return root, nil
	}
	if err := model.ValidatePath(path); err != nil {
		return nil, err
	}
	current := root
	walked := model.RootPath
	for _, segment := range model.SplitPath(path) {
		walked = model.JoinPath(walked, segment)
		node, ok, err := lookupAt(ctx, db, current, segment, 0)
		if err != nil {
			return nil, err
		}
		if !ok || node.IsTombstone() {
			return encoding.NewEmptyTree(), nil
		}
		if node.Type != model.TypeTree {
			return nil, &model.InvalidPathError{Path: walked, Reason: "not a tree"}
		}
		if current, err = storage.GetTree(ctx, db, node.ObjectID); err != nil {
			return nil, err
		}
	}
	return current, nil
}

// WriteBack installs child at path below root and rebuilds every tree on
// the way up. Siblings are reused by reference. metadataID is set on the
// node of child; NULL keeps the metadata id the node already had. It
// returns the id of the new root tree.
func WriteBack(ctx context.Context, db storage.ObjectDatabase, root, child *model.Tree, path string, metadataID model.ObjectId, opts ...Option) (model.ObjectId, error) {
	if _, err := db.Put(ctx, child); err != nil {
		return model.NullID, fmt.Errorf("write tree %s: %w", path, err)
	}
	if path == model.RootPath {
		return child.ID, nil
	}
	if err := model.ValidatePath(path); err != nil {
		return model.NullID, err
	}

	current := child
	for first := true; path != model.RootPath; first = false {
		parentPath := model.ParentPath(path)
		name := model.NodeName(path)
		parent, err := GetOrCreateSubTree(ctx, db, root, parentPath)
		if err != nil {
			return model.NullID, err
		}

		metadata := model.NullID
		if first {
			metadata = metadataID
		}
		if metadata.IsNull() {
			existing, ok, err := lookupAt(ctx, db, parent, name, 0)
			if err != nil {
				return model.NullID, err
			}
			if ok {
				metadata = existing.MetadataID
			}
		}

		b := NewBuilder(db, parent, opts...)
		if err := b.Put(model.NewTreeNode(name, current.ID, metadata, current.Bounds())); err != nil {
			return model.NullID, err
		}
		if current, err = b.Build(ctx); err != nil {
			return model.NullID, err
		}
		path = parentPath
	}
	return current.ID, nil
}
