package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/yokosogithub/GeoGit-sub002/pkg/diff"
	"github.com/yokosogithub/GeoGit-sub002/pkg/encoding"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
	"github.com/yokosogithub/GeoGit-sub002/pkg/tree"
)

// applier replays diff entries onto a root tree. One builder is kept per
// touched tree path and the trees are rebuilt deepest first, so every
// ancestor is written once.
type applier struct {
	db   storage.ObjectDatabase
	root *model.Tree
	opts []tree.Option
	// keepMarkers puts deletion markers into the result instead of
	// removing the entries.
	keepMarkers bool

	// source is the tree the entries lead to. Ancestors no entry reports
	// take their feature type from it.
	source   *model.Tree
	sourceDB storage.ObjectDatabase
	sourced  []model.ObjectId

	builders map[string]*tree.Builder
	metadata map[string]model.ObjectId
	removed  map[string]bool
}

func newApplier(db storage.ObjectDatabase, root *model.Tree, keepMarkers bool, opts []tree.Option) *applier {
	return &applier{
		db:          db,
		root:        root,
		opts:        opts,
		keepMarkers: keepMarkers,
		builders:    map[string]*tree.Builder{},
		metadata:    map[string]model.ObjectId{},
		removed:     map[string]bool{},
	}
}

func (a *applier) withSource(db storage.ObjectDatabase, source *model.Tree) *applier {
	a.sourceDB, a.source = db, source
	return a
}

// subTree returns the tree at path in the original root, or the empty tree
// when there is none.
func (a *applier) subTree(ctx context.Context, path string) (*model.Tree, error) {
	if path == model.RootPath {
		return a.root, nil
	}
	ref, ok, err := tree.FindChild(ctx, a.db, a.root, path)
	if err != nil {
		return nil, err
	}
	if !ok || ref.IsTombstone() || ref.Type() != model.TypeTree {
		return encoding.NewEmptyTree(), nil
	}
	return storage.GetTree(ctx, a.db, ref.ObjectID())
}

func (a *applier) builder(ctx context.Context, path string) (*tree.Builder, error) {
	if b, ok := a.builders[path]; ok {
		return b, nil
	}
	base, err := a.subTree(ctx, path)
	if err != nil {
		return nil, err
	}
	b := tree.NewBuilder(a.db, base, a.opts...)
	a.builders[path] = b
	return b, nil
}

func (a *applier) underRemovedTree(path string) bool {
	for p := model.ParentPath(path); p != model.RootPath; p = model.ParentPath(p) {
		if a.removed[p] {
			return true
		}
	}
	return false
}

func (a *applier) remove(ctx context.Context, ref *model.NodeRef, path string) error {
	parent, err := a.builder(ctx, model.ParentPath(path))
	if err != nil {
		return err
	}
	name := model.NodeName(path)
	if a.keepMarkers {
		typ := model.TypeFeature
		if ref != nil {
			typ = ref.Type()
		}
		return parent.Put(model.Node{Name: name, Type: typ})
	}
	parent.Remove(name)
	return nil
}

// Apply records one diff entry. Entries for trees must come before the
// entries of their content, as the diff walker reports them.
func (a *applier) Apply(ctx context.Context, e diff.Entry) error {
	path := e.Path()
	if a.underRemovedTree(path) {
		return nil
	}
	if e.ChangeType() == diff.Removed {
		if e.Type() == model.TypeTree {
			a.removed[path] = true
			delete(a.builders, path)
		}
		ref := e.Old
		if e.New != nil {
			ref = e.New
		}
		return a.remove(ctx, ref, path)
	}

	n := e.New.Node
	if n.Type == model.TypeTree {
		delete(a.removed, path)
		a.metadata[path] = n.MetadataID
		_, err := a.builder(ctx, path)
		return err
	}
	parent, err := a.builder(ctx, model.ParentPath(path))
	if err != nil {
		return err
	}
	return parent.Put(n)
}

// Changed reports whether any entry was applied.
func (a *applier) Changed() bool {
	return len(a.builders) > 0
}

// Build writes every touched tree and returns the new root.
func (a *applier) Build(ctx context.Context) (*model.Tree, error) {
	if !a.Changed() {
		return a.root, nil
	}
	for {
		paths := make([]string, 0, len(a.builders))
		for p := range a.builders {
			if p != model.RootPath {
				paths = append(paths, p)
			}
		}
		if len(paths) == 0 {
			break
		}
		// deepest first, then by path so the order is stable
		slices.SortFunc(paths, func(x, y string) int {
			if d := model.PathDepth(y) - model.PathDepth(x); d != 0 {
				return d
			}
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		})
		deepest := model.PathDepth(paths[0])
		for _, p := range paths {
			if model.PathDepth(p) != deepest {
				break
			}
			if err := a.close(ctx, p); err != nil {
				return nil, err
			}
		}
	}
	root, err := a.builders[model.RootPath].Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build root tree: %w", err)
	}
	return root, nil
}

// close builds the tree at path and puts its node into the parent builder.
func (a *applier) close(ctx context.Context, path string) error {
	b := a.builders[path]
	delete(a.builders, path)
	t, err := b.Build(ctx)
	if err != nil {
		return fmt.Errorf("build tree %s: %w", path, err)
	}

	parentPath, name := model.ParentPath(path), model.NodeName(path)
	metadata, ok := a.metadata[path]
	if !ok {
		if metadata, ok, err = a.sourceMetadata(ctx, path); err != nil {
			return err
		}
	}
	if !ok {
		parentTree, err := a.subTree(ctx, parentPath)
		if err != nil {
			return err
		}
		if existing, found, err := tree.Lookup(ctx, a.db, parentTree, name); err != nil {
			return err
		} else if found {
			metadata = existing.MetadataID
		}
	}
	parent, err := a.builder(ctx, parentPath)
	if err != nil {
		return err
	}
	return parent.Put(model.NewTreeNode(name, t.ID, metadata, t.Bounds()))
}

// sourceMetadata returns the feature type of the tree at path in the source
// tree.
func (a *applier) sourceMetadata(ctx context.Context, path string) (model.ObjectId, bool, error) {
	if a.source == nil {
		return model.NullID, false, nil
	}
	ref, ok, err := tree.FindChild(ctx, a.sourceDB, a.source, path)
	if err != nil || !ok || ref.IsTombstone() || ref.Type() != model.TypeTree {
		return model.NullID, false, err
	}
	if id := ref.Node.MetadataID; !id.IsNull() {
		a.sourced = append(a.sourced, id)
	}
	return ref.Node.MetadataID, true, nil
}

// SourcedMetadata returns the feature types Build took from the source
// tree.
func (a *applier) SourcedMetadata() []model.ObjectId {
	return a.sourced
}
