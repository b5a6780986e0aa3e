package toysm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuilderLinearGraphBuilds(t *testing.T) {
	b := NewGraph("root")
	s1 := b.State(b.Root(), "s1")
	s2 := b.State(b.Root(), "s2")
	fs := b.Final(b.Root(), "fs")
	b.SetInitial(b.Root(), s1)
	b.Transition(s1, s2, "a")
	b.Transition(s2, fs, "b")

	g, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, 4, g.NumNodes())
}

func TestBuilderRejectsDuplicateNodeName(t *testing.T) {
	b := NewGraph("root")
	b.State(b.Root(), "dup")
	b.State(b.Root(), "dup")

	_, err := b.Build()
	require.Error(t, err)
	var ill *IllFormedError
	require.ErrorAs(t, err, &ill)
}

func TestBuilderRejectsCompositeWithoutInitial(t *testing.T) {
	b := NewGraph("root")
	outer := b.Composite(b.Root(), "outer")
	b.State(outer, "inner")
	b.SetInitial(b.Root(), outer)

	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilderRejectsParallelWithInitial(t *testing.T) {
	b := NewGraph("root")
	p := b.Parallel(b.Root(), "p")
	r1 := b.Region(p, "r1")
	leaf := b.State(r1, "leaf")
	b.SetInitial(r1, leaf)
	b.SetInitial(p, r1) // illegal: parallel must not set Initial
	b.SetInitial(b.Root(), p)

	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilderRejectsIllegalRegionChildKind(t *testing.T) {
	b := NewGraph("root")
	p := b.Parallel(b.Root(), "p")
	b.State(p, "not_a_region") // simple state directly under parallel: illegal
	b.SetInitial(b.Root(), p)

	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilderRejectsInitialPseudoWithoutExactlyOneTransition(t *testing.T) {
	b := NewGraph("root")
	init := b.InitialPseudo(b.Root(), "init")
	b.State(b.Root(), "s1")
	b.SetInitial(b.Root(), init)

	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilderRejectsShallowHistoryUnderParallel(t *testing.T) {
	b := NewGraph("root")
	p := b.Parallel(b.Root(), "p")
	b.History(p, "h")
	b.SetInitial(b.Root(), p)

	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilderRejectsOutgoingTransitionFromSink(t *testing.T) {
	b := NewGraph("root")
	s1 := b.State(b.Root(), "s1")
	fs := b.Final(b.Root(), "fs")
	b.SetInitial(b.Root(), s1)
	b.Transition(fs, s1, "illegal")

	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilderRejectsTimeoutOnPseudoState(t *testing.T) {
	b := NewGraph("root")
	j := b.Junction(b.Root(), "j")
	s1 := b.State(b.Root(), "s1")
	b.SetInitial(b.Root(), j)
	b.After(j, s1, time.Second)

	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilderRejectsInternalTransitionWithDifferentTarget(t *testing.T) {
	b := NewGraph("root")
	s1 := b.State(b.Root(), "s1")
	s2 := b.State(b.Root(), "s2")
	b.SetInitial(b.Root(), s1)
	tb := b.Internal(s1, "tick", func(ctx *Context) error { return nil })
	tb.t.Target = s2 // force an illegal internal-with-different-target

	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilderAfterCreatesTimeoutTrigger(t *testing.T) {
	b := NewGraph("root")
	s1 := b.State(b.Root(), "s1")
	s2 := b.State(b.Root(), "s2")
	b.SetInitial(b.Root(), s1)
	tb := b.After(s1, s2, time.Second)

	g, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, TriggerTimeout, g.Transition(tb.ID()).Trigger)
	require.Equal(t, time.Second, g.Transition(tb.ID()).After)
}
