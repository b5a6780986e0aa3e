package toysm

import (
	"fmt"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// GraphBuilder assembles a Graph node-by-node and transition-by-
// transition, then validates it against spec.md §3's invariants.
// Grounded on the teacher's MachineBuilder/StateBuilder chain (State/
// CompositeState/ParallelState/Junction/History/DeepHistory, To/On
// transition chaining) but producing an arena-indexed Graph value
// instead of a tree of interfaces, per the Design Notes' "builder
// produces a Graph Model value" guidance. Fork/Join are not offered:
// nothing in this runtime's pseudo-state set uses them.
type GraphBuilder struct {
	nodes       []*Node
	transitions []*Transition
	byName      map[string]NodeID
	root        NodeID
	errs        []error
}

// NewGraph starts a builder whose root is a composite state named
// name (every graph's top state must have children, per §3).
func NewGraph(name string) *GraphBuilder {
	b := &GraphBuilder{byName: make(map[string]NodeID)}
	b.root = b.addNode(name, KindComposite, noNode)
	return b
}

// Root returns the builder's root node id, for attaching top-level
// transitions or an initial child.
func (b *GraphBuilder) Root() NodeID { return b.root }

func (b *GraphBuilder) addNode(name string, kind NodeKind, parent NodeID) NodeID {
	if _, exists := b.byName[name]; exists {
		b.fail(fmt.Sprintf("duplicate node name %q", name))
	}
	id := NodeID(len(b.nodes))
	n := newNode(id, name, kind)
	n.Parent = parent
	b.nodes = append(b.nodes, n)
	b.byName[name] = id
	if parent != noNode {
		b.nodes[parent].Children.Set(name, id)
	}
	return id
}

func (b *GraphBuilder) fail(reason string) {
	b.errs = append(b.errs, &IllFormedError{Reason: reason})
}

// State adds a plain (possibly do-activity-bearing) state under parent.
func (b *GraphBuilder) State(parent NodeID, name string) NodeID {
	return b.addNode(name, KindSimple, parent)
}

// Composite adds a composite state under parent; it must later
// receive either SetInitial or an InitialState child before Build.
func (b *GraphBuilder) Composite(parent NodeID, name string) NodeID {
	return b.addNode(name, KindComposite, parent)
}

// Parallel adds a parallel state under parent. Its children must all
// be composite regions (or deep-history pseudo-states); Build rejects
// any InitialState/Junction/History child and a non-empty Initial.
func (b *GraphBuilder) Parallel(parent NodeID, name string) NodeID {
	return b.addNode(name, KindParallel, parent)
}

// Region is sugar for Composite used under a Parallel parent, naming
// the intent the way the teacher's RegionBuilder does.
func (b *GraphBuilder) Region(parallel NodeID, name string) NodeID {
	return b.addNode(name, KindComposite, parallel)
}

// InitialPseudo adds an InitialState pseudo-node under parent; call
// Transition on it to give it its single outgoing edge, which Build
// also validates is exactly one.
func (b *GraphBuilder) InitialPseudo(parent NodeID, name string) NodeID {
	return b.addNode(name, KindInitial, parent)
}

// SetInitial marks child as parent's default entry, without a
// separate InitialState node — the common case for a composite whose
// first child is always entered.
func (b *GraphBuilder) SetInitial(parent, child NodeID) {
	if b.nodes[parent].Initial != noNode && b.nodes[parent].Initial != child {
		b.fail(fmt.Sprintf("node %q already has an initial child", b.nodes[parent].Name))
		return
	}
	b.nodes[parent].Initial = child
}

// Junction adds a multi-way guarded pseudo-state; use Transition to
// attach its guarded outgoing edges in priority order (first match
// wins, matching spec.md §4.3).
func (b *GraphBuilder) Junction(parent NodeID, name string) NodeID {
	return b.addNode(name, KindJunction, parent)
}

// History adds a shallow HistoryState under parent (parent must not be
// a ParallelState, per spec.md §3).
func (b *GraphBuilder) History(parent NodeID, name string) NodeID {
	return b.addNode(name, KindHistory, parent)
}

// DeepHistory adds a DeepHistoryState; valid under a ParallelState or
// an ordinary composite.
func (b *GraphBuilder) DeepHistory(parent NodeID, name string) NodeID {
	return b.addNode(name, KindDeepHistory, parent)
}

// Final adds a FinalState; entering it posts completion of parent.
func (b *GraphBuilder) Final(parent NodeID, name string) NodeID {
	return b.addNode(name, KindFinal, parent)
}

// Terminate adds a TerminateState; entering it stops the instance.
func (b *GraphBuilder) Terminate(parent NodeID, name string) NodeID {
	return b.addNode(name, KindTerminate, parent)
}

// EntryPoint / ExitPoint add compositional connection points.
func (b *GraphBuilder) EntryPoint(parent NodeID, name string) NodeID {
	return b.addNode(name, KindEntryPoint, parent)
}

func (b *GraphBuilder) ExitPoint(parent NodeID, name string) NodeID {
	return b.addNode(name, KindExitPoint, parent)
}

// SetHistoryDefault gives a History/DeepHistory node a default target
// to use the first time it is entered (no snapshot yet).
func (b *GraphBuilder) SetHistoryDefault(history, target NodeID) {
	b.nodes[history].HistoryDefault = target
}

// SetDoActivity attaches a do-activity body to a simple state.
func (b *GraphBuilder) SetDoActivity(node NodeID, fn ActivityFunc) {
	b.nodes[node].DoActivity = fn
}

// AddHook registers fn against one of a node's four hook phases
// (transition hooks are added with TransitionBuilder.Hook). kind
// accepts the teacher's aliases: "entry"/"pre_entry", "exit"/
// "post_exit", plus "post_entry"/"pre_exit" for the inner pair.
func (b *GraphBuilder) AddHook(node NodeID, kind string, fn HookFunc) {
	n := b.nodes[node]
	switch kind {
	case "pre_entry", "entry":
		n.PreEntry = append(n.PreEntry, fn)
	case "post_entry":
		n.PostEntry = append(n.PostEntry, fn)
	case "pre_exit":
		n.PreExit = append(n.PreExit, fn)
	case "post_exit", "exit":
		n.PostExit = append(n.PostExit, fn)
	default:
		b.fail(fmt.Sprintf("unknown hook kind %q", kind))
	}
}

// AddEntryAction / AddExitAction append a plain action run between the
// hook phases, the way the teacher's BaseState.AddEntryAction composes
// onto on_entry/on_exit.
func (b *GraphBuilder) AddEntryAction(node NodeID, fn ActionFunc) {
	b.nodes[node].OnEntry = append(b.nodes[node].OnEntry, fn)
}

func (b *GraphBuilder) AddExitAction(node NodeID, fn ActionFunc) {
	b.nodes[node].OnExit = append(b.nodes[node].OnExit, fn)
}

// TransitionBuilder fluently configures a single transition after
// Transition/On/After/Internal creates it.
type TransitionBuilder struct {
	b *GraphBuilder
	t *Transition
}

// Transition starts building an EXTERNAL transition from source to
// target (target == noNode means self-loop) triggered by event. An
// empty event string makes a completion transition (TriggerNone),
// with or without a guard; a non-empty one matches events of that
// name, like a literal/value auto-wrapped into EqualsTransition, per
// spec.md §6.
func (b *GraphBuilder) Transition(source, target NodeID, event string) *TransitionBuilder {
	id := TransitionID(len(b.transitions))
	trigger := TriggerEvent
	if event == "" {
		trigger = TriggerNone
	}
	t := &Transition{ID: id, Source: source, Target: target, Kind: External, Trigger: trigger, Event: event}
	b.transitions = append(b.transitions, t)
	b.nodes[source].Transitions = append(b.nodes[source].Transitions, id)
	return &TransitionBuilder{b: b, t: t}
}

// After starts building a Timeout transition: fires delay after
// source is entered. Forbidden on pseudo-states, checked at Build.
func (b *GraphBuilder) After(source, target NodeID, delay time.Duration) *TransitionBuilder {
	id := TransitionID(len(b.transitions))
	t := &Transition{ID: id, Source: source, Target: target, Kind: External, Trigger: TriggerTimeout, After: delay}
	b.transitions = append(b.transitions, t)
	b.nodes[source].Transitions = append(b.nodes[source].Transitions, id)
	return &TransitionBuilder{b: b, t: t}
}

// Internal starts building an INTERNAL transition: no state change,
// only the action runs.
func (b *GraphBuilder) Internal(source NodeID, event string, action ActionFunc) *TransitionBuilder {
	tb := b.Transition(source, noNode, event)
	tb.t.Kind = Internal
	tb.t.Action = action
	return tb
}

func (tb *TransitionBuilder) Guard(g GuardFunc) *TransitionBuilder {
	tb.t.Guard = g
	return tb
}

func (tb *TransitionBuilder) Action(a ActionFunc) *TransitionBuilder {
	tb.t.Action = a
	return tb
}

func (tb *TransitionBuilder) Hook(h HookFunc) *TransitionBuilder {
	tb.t.Hooks = append(tb.t.Hooks, h)
	return tb
}

func (tb *TransitionBuilder) Local() *TransitionBuilder {
	tb.t.Kind = Local
	return tb
}

func (tb *TransitionBuilder) Priority(p int) *TransitionBuilder {
	tb.t.Priority = p
	return tb
}

func (tb *TransitionBuilder) ID() TransitionID { return tb.t.ID }

// Build validates the accumulated graph against spec.md §3's
// invariants and, if clean, returns an immutable Graph. Depth
// assignment (§4.1) runs as part of Build so LCA computation is ready
// before the caller constructs a Machine.
func (b *GraphBuilder) Build() (*Graph, error) {
	b.validate()
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	g := &Graph{
		nodes:       b.nodes,
		transitions: b.transitions,
		byName:      b.byName,
		root:        b.root,
	}
	g.assignDepths()
	return g, nil
}

func (b *GraphBuilder) validate() {
	for _, n := range b.nodes {
		switch n.Kind {
		case KindComposite:
			if n.Children.Len() > 0 && n.Initial == noNode {
				b.fail(fmt.Sprintf("composite state %q has children but no initial child", n.Name))
			}
		case KindParallel:
			if n.Initial != noNode {
				b.fail(fmt.Sprintf("parallel state %q must not have an initial child", n.Name))
			}
			for pair := n.Children.Oldest(); pair != nil; pair = pair.Next() {
				c := b.nodes[pair.Value]
				if c.Kind != KindComposite && c.Kind != KindDeepHistory {
					b.fail(fmt.Sprintf("parallel state %q has an illegal region child %q of kind %s", n.Name, c.Name, c.Kind))
				}
			}
		case KindInitial:
			if len(n.Transitions) != 1 {
				b.fail(fmt.Sprintf("initial pseudo-state %q must have exactly one outgoing transition, has %d", n.Name, len(n.Transitions)))
			}
		case KindHistory:
			if n.Parent != noNode && b.nodes[n.Parent].Kind == KindParallel {
				b.fail(fmt.Sprintf("shallow history %q may not belong to a parallel state", n.Name))
			}
		case KindFinal, KindTerminate:
			if len(n.Transitions) != 0 {
				b.fail(fmt.Sprintf("sink state %q may not have outgoing transitions", n.Name))
			}
		}
	}
	for _, t := range b.transitions {
		if t.Trigger == TriggerTimeout {
			if b.nodes[t.Source].Kind.IsPseudoState() {
				b.fail(fmt.Sprintf("timeout transition forbidden on pseudo-state %q", b.nodes[t.Source].Name))
			}
		}
		if t.Kind == Internal && t.Target != noNode && t.Target != t.Source {
			b.fail(fmt.Sprintf("internal transition on %q must not name a different target", b.nodes[t.Source].Name))
		}
	}
}

// childNames is a small introspection helper used by visualization and
// tests to list a node's children in declaration order without
// depending on the ordered-map type directly.
func childNames(children *orderedmap.OrderedMap[string, NodeID]) []string {
	names := make([]string, 0, children.Len())
	for pair := children.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}
