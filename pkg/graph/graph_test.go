package graph

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokosogithub/GeoGit-sub002/internal/keyValStore"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
)

func newGraph(t testing.TB) *Database {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{InMemory: true, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return New(kv.Space("graph"), logger)
}

func id(name string) model.ObjectId {
	return model.HashBytes([]byte(name))
}

// put adds commits given as name -> parent names.
func put(t testing.TB, g *Database, name string, parents ...string) {
	t.Helper()
	ids := make([]model.ObjectId, len(parents))
	for i, p := range parents {
		ids[i] = id(p)
	}
	_, err := g.Put(context.Background(), id(name), ids)
	require.NoError(t, err)
}

// diamond builds
//
//	A <- B <- D
//	A <- C <- D
func diamond(t testing.TB) *Database {
	g := newGraph(t)
	put(t, g, "A")
	put(t, g, "B", "A")
	put(t, g, "C", "A")
	put(t, g, "D", "B", "C")
	return g
}

func TestPutAndEdges(t *testing.T) {
	ctx := context.Background()
	g := diamond(t)

	inserted, err := g.Put(ctx, id("B"), []model.ObjectId{id("X")})
	require.NoError(t, err)
	assert.False(t, inserted, "existing nodes keep their parents")

	parents, err := g.GetParents(ctx, id("D"))
	require.NoError(t, err)
	assert.Equal(t, []model.ObjectId{id("B"), id("C")}, parents)

	parents, err = g.GetParents(ctx, id("A"))
	require.NoError(t, err)
	assert.Empty(t, parents)

	children, err := g.GetChildren(ctx, id("A"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.ObjectId{id("B"), id("C")}, children)

	children, err = g.GetChildren(ctx, id("D"))
	require.NoError(t, err)
	assert.Empty(t, children)

	_, err = g.GetParents(ctx, id("unknown"))
	assert.ErrorIs(t, err, model.ErrNotFound)

	exists, err := g.Exists(ctx, id("C"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLowestCommonAncestor(t *testing.T) {
	ctx := context.Background()
	g := diamond(t)

	tests := []struct {
		left, right, want string
	}{
		{"B", "C", "A"},
		{"A", "D", "A"},
		{"D", "A", "A"},
		{"D", "D", "D"},
		{"B", "D", "B"},
		{"A", "A", "A"},
	}
	for _, tt := range tests {
		t.Run(tt.left+"_"+tt.right, func(t *testing.T) {
			got, ok, err := g.FindLowestCommonAncestor(ctx, id(tt.left), id(tt.right))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, id(tt.want), got)
		})
	}
}

func TestLowestCommonAncestorDisjointHistories(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)
	put(t, g, "A")
	put(t, g, "B", "A")
	put(t, g, "X")
	put(t, g, "Y", "X")

	_, ok, err := g.FindLowestCommonAncestor(ctx, id("B"), id("Y"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLowestCommonAncestorPrefersLowestOverDeeperCandidates(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)
	// a long left branch reaches the root before the right side gets to M
	//
	//	R <- M <- L1 <- L2 <- L3 <- L4
	//	     M <- Q
	//	R <- Q
	put(t, g, "R")
	put(t, g, "M", "R")
	put(t, g, "L1", "M")
	put(t, g, "L2", "L1")
	put(t, g, "L3", "L2")
	put(t, g, "L4", "L3")
	put(t, g, "Q", "R", "M")

	got, ok, err := g.FindLowestCommonAncestor(ctx, id("L4"), id("Q"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id("M"), got)
}

func TestCrissCrossMergeTieBreak(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)
	//	A <- B, A <- C
	//	B,C <- M1 ; C,B <- M2
	put(t, g, "A")
	put(t, g, "B", "A")
	put(t, g, "C", "A")
	put(t, g, "M1", "B", "C")
	put(t, g, "M2", "C", "B")

	got, ok, err := g.FindLowestCommonAncestor(ctx, id("M1"), id("M2"))
	require.NoError(t, err)
	require.True(t, ok)
	// both B and C are lowest, the first discovered wins
	assert.Contains(t, []model.ObjectId{id("B"), id("C")}, got)

	again, _, err := g.FindLowestCommonAncestor(ctx, id("M1"), id("M2"))
	require.NoError(t, err)
	assert.Equal(t, got, again, "the answer is deterministic")
}

func TestDepth(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)
	put(t, g, "A")
	put(t, g, "B", "A")
	put(t, g, "C", "B")
	put(t, g, "R2")
	put(t, g, "M", "C", "R2")

	for name, want := range map[string]int{"A": 0, "B": 1, "C": 2, "M": 1} {
		got, err := g.GetDepth(ctx, id(name))
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	_, err := g.GetDepth(ctx, id("missing"))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMappingAndProperties(t *testing.T) {
	ctx := context.Background()
	g := diamond(t)

	mapped, err := g.GetMapping(ctx, id("B"))
	require.NoError(t, err)
	assert.True(t, mapped.IsNull())

	require.NoError(t, g.Map(ctx, id("B"), id("original")))
	mapped, err = g.GetMapping(ctx, id("B"))
	require.NoError(t, err)
	assert.Equal(t, id("original"), mapped)

	_, ok, err := g.GetProperty(ctx, id("B"), "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.SetProperty(ctx, id("B"), "k", "v"))
	v, ok, err := g.GetProperty(ctx, id("B"), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestSparsePath(t *testing.T) {
	ctx := context.Background()
	g := diamond(t)

	sparse, err := g.IsSparsePath(ctx, id("D"), id("A"))
	require.NoError(t, err)
	assert.False(t, sparse)

	require.NoError(t, g.SetProperty(ctx, id("C"), storage.SparseProperty, "true"))
	sparse, err = g.IsSparsePath(ctx, id("D"), id("A"))
	require.NoError(t, err)
	assert.True(t, sparse)

	sparse, err = g.IsSparsePath(ctx, id("B"), id("A"))
	require.NoError(t, err)
	assert.False(t, sparse, "C is not on a path from B")

	require.NoError(t, g.SetProperty(ctx, id("A"), storage.SparseProperty, "true"))
	sparse, err = g.IsSparsePath(ctx, id("B"), id("A"))
	require.NoError(t, err)
	assert.False(t, sparse, "the end commit is excluded")
}

func TestTruncate(t *testing.T) {
	ctx := context.Background()
	g := diamond(t)
	require.NoError(t, g.Truncate(ctx))

	exists, err := g.Exists(ctx, id("A"))
	require.NoError(t, err)
	assert.False(t, exists)
}
