package toysm

// GraphView is the read-only introspection seam the visualization
// package (and anything else outside this module) uses to walk a
// built Graph without reaching into engine internals, per spec.md §6's
// "Visualization interface" paragraph.
type GraphView interface {
	RootName() string
	NodeNames() []string
	NodeKind(name string) (string, bool)
	Parent(name string) (string, bool)
	Children(name string) []string
	Transitions() []TransitionView
}

// TransitionView describes one edge for the emitter: source/target
// names, its kind, and a human label built from event/guard/timeout.
type TransitionView struct {
	Source string
	Target string
	Kind   string
	Label  string
}

// RootName returns the root node's name.
func (g *Graph) RootName() string { return g.nodes[g.root].Name }

// NodeNames lists every node in the graph in arena order (insertion
// order), stable across calls for a given built Graph.
func (g *Graph) NodeNames() []string {
	names := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		names[i] = n.Name
	}
	return names
}

// NodeKind reports the kind of the named node.
func (g *Graph) NodeKind(name string) (string, bool) {
	id, ok := g.byName[name]
	if !ok {
		return "", false
	}
	return g.nodes[id].Kind.String(), true
}

// Parent reports the named node's parent, if any.
func (g *Graph) Parent(name string) (string, bool) {
	id, ok := g.byName[name]
	if !ok || g.nodes[id].Parent == noNode {
		return "", false
	}
	return g.nodes[g.nodes[id].Parent].Name, true
}

// Children lists the named node's children in declaration order.
func (g *Graph) Children(name string) []string {
	id, ok := g.byName[name]
	if !ok {
		return nil
	}
	return childNames(g.nodes[id].Children)
}

// Transitions lists every transition in the graph as TransitionViews,
// skipping Entry-kind transitions (compound-entry-chain steps that
// would be a confusing artifact in a rendered diagram).
func (g *Graph) Transitions() []TransitionView {
	var views []TransitionView
	for _, t := range g.transitions {
		if t.Kind == Entry {
			continue
		}
		target := t.Target
		if target == noNode {
			target = t.Source
		}
		label := t.Event
		switch t.Trigger {
		case TriggerNone:
			label = "completion"
		case TriggerTimeout:
			label = "after(" + t.After.String() + ")"
		}
		views = append(views, TransitionView{
			Source: g.nodes[t.Source].Name,
			Target: g.nodes[target].Name,
			Kind:   t.Kind.String(),
			Label:  label,
		})
	}
	return views
}
