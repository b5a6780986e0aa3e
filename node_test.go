package toysm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeKindString(t *testing.T) {
	require.Equal(t, "composite", KindComposite.String())
	require.Equal(t, "deep-history", KindDeepHistory.String())
	require.Equal(t, "unknown", NodeKind(99).String())
}

func TestNodeKindIsPseudoState(t *testing.T) {
	require.True(t, KindJunction.IsPseudoState())
	require.True(t, KindHistory.IsPseudoState())
	require.False(t, KindSimple.IsPseudoState())
	require.False(t, KindComposite.IsPseudoState())
}

func TestNodeKindIsSink(t *testing.T) {
	require.True(t, KindFinal.IsSink())
	require.True(t, KindTerminate.IsSink())
	require.False(t, KindSimple.IsSink())
}

func TestGraphLCASiblings(t *testing.T) {
	b := NewGraph("root")
	s1 := b.State(b.Root(), "s1")
	s2 := b.State(b.Root(), "s2")
	b.SetInitial(b.Root(), s1)
	b.Transition(s1, s2, "go")
	g, err := b.Build()
	require.NoError(t, err)

	pathA, pathB := g.lca(s1, s2)
	require.Equal(t, b.Root(), pathA[0])
	require.Equal(t, b.Root(), pathB[0])
	require.Equal(t, s1, pathA[len(pathA)-1])
	require.Equal(t, s2, pathB[len(pathB)-1])
}

func TestGraphLCANestedDepths(t *testing.T) {
	b := NewGraph("root")
	outer := b.Composite(b.Root(), "outer")
	inner := b.State(outer, "inner")
	sibling := b.State(b.Root(), "sibling")
	b.SetInitial(outer, inner)
	b.SetInitial(b.Root(), outer)
	b.Transition(inner, sibling, "go")
	g, err := b.Build()
	require.NoError(t, err)

	pathA, pathB := g.lca(inner, sibling)
	require.Equal(t, b.Root(), pathA[0])
	require.Equal(t, []NodeID{b.Root(), outer, inner}, pathA)
	require.Equal(t, []NodeID{b.Root(), sibling}, pathB)
}

func TestGraphIsAncestor(t *testing.T) {
	b := NewGraph("root")
	outer := b.Composite(b.Root(), "outer")
	inner := b.State(outer, "inner")
	b.SetInitial(outer, inner)
	b.SetInitial(b.Root(), outer)
	g, err := b.Build()
	require.NoError(t, err)

	require.True(t, g.IsAncestor(b.Root(), inner))
	require.True(t, g.IsAncestor(outer, inner))
	require.False(t, g.IsAncestor(inner, outer))
}

func TestGraphAssignDepths(t *testing.T) {
	b := NewGraph("root")
	outer := b.Composite(b.Root(), "outer")
	inner := b.State(outer, "inner")
	b.SetInitial(outer, inner)
	b.SetInitial(b.Root(), outer)
	g, err := b.Build()
	require.NoError(t, err)

	require.Equal(t, 0, g.Node(b.Root()).Depth)
	require.Equal(t, 1, g.Node(outer).Depth)
	require.Equal(t, 2, g.Node(inner).Depth)
}
