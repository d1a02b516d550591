package model

import (
	"slices"

	"github.com/paulmach/orb"

	"github.com/yokosogithub/GeoGit-sub002/pkg/storageorder"
)

// Node is a named entry of a Tree pointing at a feature or a subtree.
type Node struct {
	Name     string
	ObjectID ObjectId
	// MetadataID optionally links the entry to a FeatureType. NullID means
	// the parent's default applies.
	MetadataID ObjectId
	// Type is TypeTree or TypeFeature.
	Type   ObjectType
	Bounds *orb.Bound
}

// NewFeatureNode returns a FEATURE node.
func NewFeatureNode(name string, id, metadataID ObjectId, bounds *orb.Bound) Node {
	return Node{Name: name, ObjectID: id, MetadataID: metadataID, Type: TypeFeature, Bounds: bounds}
}

// NewTreeNode returns a TREE node.
func NewTreeNode(name string, id, metadataID ObjectId, bounds *orb.Bound) Node {
	return Node{Name: name, ObjectID: id, MetadataID: metadataID, Type: TypeTree, Bounds: bounds}
}

// IsTombstone reports whether the node marks a deletion.
func (n Node) IsTombstone() bool {
	return n.ObjectID.IsNull()
}

// Equal compares every field including the bounds.
func (n Node) Equal(o Node) bool {
	return n.Name == o.Name &&
		n.ObjectID == o.ObjectID &&
		n.MetadataID == o.MetadataID &&
		n.Type == o.Type &&
		BoundsEqual(n.Bounds, o.Bounds)
}

// Intersects reports whether the node may contain geometry inside bounds.
// Nodes without bounds always intersect.
func (n Node) Intersects(bounds orb.Bound) bool {
	return n.Bounds == nil || n.Bounds.Intersects(bounds)
}

// BoundsEqual compares two optional envelopes.
func BoundsEqual(a, b *orb.Bound) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// UnionBounds returns the union of two optional envelopes.
func UnionBounds(a, b *orb.Bound) *orb.Bound {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		u := *b
		return &u
	case b == nil:
		u := *a
		return &u
	}
	u := a.Union(*b)
	return &u
}

// CompareNodes orders nodes by the storage order of their names.
func CompareNodes(a, b Node) int {
	return storageorder.Compare(a.Name, b.Name)
}

// SortNodes sorts nodes in storage order.
func SortNodes(nodes []Node) {
	slices.SortFunc(nodes, CompareNodes)
}

// NodeRef is a Node together with the path of the tree containing it. It is
// a traversal helper and never persisted.
type NodeRef struct {
	Node       Node
	ParentPath string
	// DefaultMetadataID is the metadata id inherited from the parent tree.
	DefaultMetadataID ObjectId
}

// NewNodeRef wraps node found under parentPath.
func NewNodeRef(node Node, parentPath string, defaultMetadataID ObjectId) NodeRef {
	return NodeRef{Node: node, ParentPath: parentPath, DefaultMetadataID: defaultMetadataID}
}

// Path is the full path of the node.
func (r NodeRef) Path() string {
	return JoinPath(r.ParentPath, r.Node.Name)
}

func (r NodeRef) Name() string         { return r.Node.Name }
func (r NodeRef) ObjectID() ObjectId   { return r.Node.ObjectID }
func (r NodeRef) Type() ObjectType     { return r.Node.Type }
func (r NodeRef) Bounds() *orb.Bound   { return r.Node.Bounds }
func (r NodeRef) IsTombstone() bool    { return r.Node.IsTombstone() }
func (r NodeRef) Equal(o NodeRef) bool { return r.ParentPath == o.ParentPath && r.Node.Equal(o.Node) }

// MetadataID returns the node's own metadata id, or the inherited default.
func (r NodeRef) MetadataID() ObjectId {
	if !r.Node.MetadataID.IsNull() {
		return r.Node.MetadataID
	}
	return r.DefaultMetadataID
}
