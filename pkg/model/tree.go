package model

import (
	"sort"

	"github.com/paulmach/orb"
)

// Bucket is a slot of a split tree pointing at the child tree holding every
// entry whose name hashes to Index at the parent's depth.
type Bucket struct {
	Index  uint32
	ID     ObjectId
	Bounds *orb.Bound
}

// Equal compares every field including the bounds.
func (b Bucket) Equal(o Bucket) bool {
	return b.Index == o.Index && b.ID == o.ID && BoundsEqual(b.Bounds, o.Bounds)
}

// Tree is either a leaf tree holding Trees and Features directly or a split
// tree holding only Buckets.
type Tree struct {
	ID ObjectId
	// Size is the number of features reachable from the tree.
	Size uint64
	// NumTrees is the number of tree nodes reachable from the tree.
	NumTrees uint32
	Trees    []Node
	Features []Node
	// Buckets are sorted by Index.
	Buckets []Bucket
}

func (t *Tree) ObjectID() ObjectId { return t.ID }
func (t *Tree) Type() ObjectType   { return TypeTree }
func (*Tree) revObject()           {}

// IsEmpty reports whether the tree has no entries at all.
func (t *Tree) IsEmpty() bool {
	return len(t.Trees) == 0 && len(t.Features) == 0 && len(t.Buckets) == 0
}

// IsLeaf reports whether the tree holds its entries directly.
func (t *Tree) IsLeaf() bool {
	return len(t.Buckets) == 0
}

// NumDirectEntries is the number of nodes held directly by a leaf tree.
func (t *Tree) NumDirectEntries() int {
	return len(t.Trees) + len(t.Features)
}

// Bucket returns the bucket with the given index.
func (t *Tree) Bucket(index uint32) (Bucket, bool) {
	i := sort.Search(len(t.Buckets), func(i int) bool { return t.Buckets[i].Index >= index })
	if i < len(t.Buckets) && t.Buckets[i].Index == index {
		return t.Buckets[i], true
	}
	return Bucket{}, false
}

// Children merges Trees and Features of a leaf tree in storage order.
func (t *Tree) Children() []Node {
	out := make([]Node, 0, t.NumDirectEntries())
	i, j := 0, 0
	for i < len(t.Trees) && j < len(t.Features) {
		if CompareNodes(t.Trees[i], t.Features[j]) <= 0 {
			out = append(out, t.Trees[i])
			i++
		} else {
			out = append(out, t.Features[j])
			j++
		}
	}
	out = append(out, t.Trees[i:]...)
	return append(out, t.Features[j:]...)
}

// Lookup finds a direct child of a leaf tree by name.
func (t *Tree) Lookup(name string) (Node, bool) {
	for _, list := range [][]Node{t.Trees, t.Features} {
		for _, n := range list {
			if n.Name == name {
				return n, true
			}
		}
	}
	return Node{}, false
}

// Bounds is the union of all entry and bucket envelopes.
func (t *Tree) Bounds() *orb.Bound {
	var b *orb.Bound
	for _, n := range t.Trees {
		b = UnionBounds(b, n.Bounds)
	}
	for _, n := range t.Features {
		b = UnionBounds(b, n.Bounds)
	}
	for _, bucket := range t.Buckets {
		b = UnionBounds(b, bucket.Bounds)
	}
	return b
}
