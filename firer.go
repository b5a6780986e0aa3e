package toysm

import "fmt"

// firer executes an ordered list of transitions produced by the
// selector: LCA computation, exit/entry walks, hook ordering, history
// save/restore, and do-activity start/stop. Grounded on toysm/fsm.py's
// StateMachine._step and _lca.
type firer struct {
	g   *Graph
	m   *Machine
	sel *selector
}

func newFirer(g *Graph, m *Machine) *firer {
	return &firer{g: g, m: m, sel: newSelector(g)}
}

// fire runs each transition in order. It stops at the first one that
// returns an error (a RuntimeError from user code, or an
// IllFormedError for a transition across orthogonal regions) and
// returns it so the run loop can stop the offending instance without
// affecting others.
func (f *firer) fire(inst *instance, transitions []TransitionID, ctx *Context) error {
	for _, tid := range transitions {
		if err := f.step(inst, tid, ctx); err != nil {
			return err
		}
	}
	return nil
}

func (f *firer) step(inst *instance, tid TransitionID, ctx *Context) error {
	t := f.g.Transition(tid)
	f.m.notifyTransitionFired(inst.key)

	if t.Kind == Internal {
		if err := f.runHooks(ctx, t.Hooks, "hook", t.Source); err != nil {
			return err
		}
		return f.runAction(ctx, t.Action, t.Source)
	}

	src := t.Source
	tgt := t.effectiveTarget()

	srcPath, tgtPath := f.g.lca(src, tgt)
	lca := srcPath[0]

	if src != tgt && t.Kind != Entry && f.g.Node(lca).Kind == KindParallel {
		return illFormed(f.g.Node(lca).Name,
			fmt.Sprintf("transition from %q to %q crosses orthogonal regions",
				f.g.Node(src).Name, f.g.Node(tgt).Name))
	}

	// Exit phase. A pseudo-state source (Initial/Junction/EntryPoint,
	// reached while resolving a compound entry chain) was never
	// actually entered, so there is nothing to exit even when it is
	// declared as an ordinary External transition rather than Entry.
	if t.Kind != Entry && !f.g.Node(src).Kind.IsPseudoState() {
		if t.Kind == External && (len(srcPath) == 1 || len(tgtPath) == 1) {
			// Source or target is the LCA itself (a self-transition, or
			// one into a descendant or an ancestor): exit and re-enter it.
			if err := f.exitNode(inst, ctx, lca); err != nil {
				return err
			}
			tgtPath = append([]NodeID{noNode}, tgtPath...)
		} else if len(srcPath) > 1 {
			// Exit the element one below the LCA (the node that is
			// actually active on the source side).
			if err := f.exitNode(inst, ctx, srcPath[1]); err != nil {
				return err
			}
		}
	}

	if err := f.runHooks(ctx, t.Hooks, "hook", src); err != nil {
		return err
	}
	if err := f.runAction(ctx, t.Action, src); err != nil {
		return err
	}

	// Entry phase: walk tgtPath from the LCA downward.
	for i := 0; i+1 < len(tgtPath); i++ {
		a, b := tgtPath[i], tgtPath[i+1]
		if a != noNode && !f.g.Node(b).Kind.IsPseudoState() {
			inst.setActiveChild(a, b)
		}
		if b == noNode {
			continue
		}
		if f.g.Node(b).Kind == KindDeepHistory {
			if err := f.restoreDeepHistory(inst, ctx, b); err != nil {
				return err
			}
			continue
		}
		// Junction/Initial/EntryPoint hops are only passed through: the
		// chain's next transition leaves them, so they are never entered.
		switch f.g.Node(b).Kind {
		case KindJunction, KindInitial, KindEntryPoint:
			continue
		}
		// When the next hop is a DeepHistory node, b is its parallel
		// parent: restoreDeepHistory alone owns entering it (shell plus
		// saved/default regions), so the walk leaves b untouched here
		// rather than entering it twice.
		if i+2 < len(tgtPath) && f.g.Node(tgtPath[i+2]).Kind == KindDeepHistory {
			continue
		}
		if err := f.enterNode(inst, ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// enterNode performs spec.md §4.4's entry sequence: pre_entry hooks,
// on_entry action, state-specific enter-actions (do-activity start,
// timeout scheduling, completion check), post_entry hooks.
func (f *firer) enterNode(inst *instance, ctx *Context, id NodeID) error {
	n := f.g.Node(id)
	inst.markEntered(id)

	if err := f.runHooks(ctx, n.PreEntry, "hook", id); err != nil {
		return err
	}
	for _, a := range n.OnEntry {
		if err := f.runAction(ctx, a, id); err != nil {
			return err
		}
	}
	f.m.notifyStateEnter(inst.key, n.Name)

	switch n.Kind {
	case KindComposite:
		if err := f.enterComposite(inst, ctx, id); err != nil {
			return err
		}
	case KindParallel:
		if err := f.enterParallel(inst, ctx, id); err != nil {
			return err
		}
	case KindFinal:
		f.postCompletion(inst, f.g.Node(n.Parent).ID)
	case KindTerminate:
		f.m.stopInstance(inst.key)
	default:
		f.scheduleTimeouts(inst, id)
		if n.DoActivity != nil {
			f.startDoActivity(inst, ctx, id)
		} else {
			f.postCompletion(inst, id)
		}
	}

	return f.runHooks(ctx, n.PostEntry, "hook", id)
}

// enterComposite enters a freshly-arrived-at composite state's
// initial child (the caller already entered the composite itself).
//
// Initial is most often an ordinary state or nested composite set via
// GraphBuilder.SetInitial, with no Transition object of its own to
// step — toysm/core.py's State.get_entry_transitions always synthesizes
// a fresh entry transition for this case, but this runtime instead
// enters that child directly (setting it active first so selectFrom
// can descend into it), recursing through enterNode/enterComposite for
// further nesting with no synthetic transition ever required. Only
// when Initial is itself a pseudo-state (an Initial pseudo-node or a
// Junction) does reaching it require evaluating guarded outgoing
// transitions, so that case alone goes through entryTransitions/step.
func (f *firer) enterComposite(inst *instance, ctx *Context, id NodeID) error {
	n := f.g.Node(id)
	f.scheduleTimeouts(inst, id)
	if n.Initial == noNode {
		// Childless composite (including a region with no substates):
		// nothing further to enter.
		return nil
	}
	if !f.g.Node(n.Initial).Kind.IsPseudoState() {
		inst.setActiveChild(id, n.Initial)
		return f.enterNode(inst, ctx, n.Initial)
	}
	ok, chain := f.sel.entryTransitions(inst, n.Initial, ctx)
	if !ok {
		return &IllFormedError{Reason: "no transition-terminal entry chain", Node: n.Name}
	}
	for _, tid := range chain {
		if err := f.step(inst, tid, ctx); err != nil {
			return err
		}
	}
	return nil
}

// enterParallel starts every region of a freshly-entered parallel
// state concurrently (conceptually; regions execute within the same
// run-loop goroutine, each as its own active sub-configuration).
func (f *firer) enterParallel(inst *instance, ctx *Context, id NodeID) error {
	f.scheduleTimeouts(inst, id)
	return f.enterParallelRegions(inst, ctx, id)
}

// enterParallelRegions starts id's regions at their default
// configuration without re-running id's own entry (hooks/timeouts) —
// split out of enterParallel so restoreDeepHistory's no-snapshot
// fallback can populate a parallel's regions after shell-entering the
// parallel itself, without running that shell entry twice.
func (f *firer) enterParallelRegions(inst *instance, ctx *Context, id NodeID) error {
	n := f.g.Node(id)
	var regions []NodeID
	for pair := n.Children.Oldest(); pair != nil; pair = pair.Next() {
		regions = append(regions, pair.Value)
	}
	inst.startRegions(id, regions)
	for _, r := range regions {
		if err := f.enterNode(inst, ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// exitNode mirrors enterNode in reverse: pre_exit hooks, exit-actions
// (do-activity stop, timer cancellation), on_exit action, post_exit
// hooks. It recurses into the active substate / running regions first
// so exits happen leaf-first.
func (f *firer) exitNode(inst *instance, ctx *Context, id NodeID) error {
	n := f.g.Node(id)

	if err := f.runHooks(ctx, n.PreExit, "hook", id); err != nil {
		return err
	}

	switch n.Kind {
	case KindComposite:
		f.captureShallowHistory(inst, id)
		if child, ok := inst.activeChild[id]; ok {
			if err := f.exitNode(inst, ctx, child); err != nil {
				return err
			}
		}
	case KindParallel:
		f.captureDeepHistoryChildren(inst, id)
		for pair := n.Children.Oldest(); pair != nil; pair = pair.Next() {
			region := pair.Value
			if inst.isActive(region) {
				if err := f.exitNode(inst, ctx, region); err != nil {
					return err
				}
			}
		}
	default:
		f.stopDoActivity(inst, id)
	}
	f.cancelTimeouts(inst, id)

	for _, a := range n.OnExit {
		if err := f.runAction(ctx, a, id); err != nil {
			return err
		}
	}
	f.m.notifyStateExit(inst.key, n.Name)
	if err := f.runHooks(ctx, n.PostExit, "hook", id); err != nil {
		return err
	}
	inst.markExited(id)
	return nil
}

// captureShallowHistory saves parent's active direct child into any
// HistoryState child it has, per spec.md §4.9.
func (f *firer) captureShallowHistory(inst *instance, parent NodeID) {
	n := f.g.Node(parent)
	child, ok := inst.activeChild[parent]
	if !ok {
		return
	}
	for pair := n.Children.Oldest(); pair != nil; pair = pair.Next() {
		if f.g.Node(pair.Value).Kind == KindHistory {
			inst.shallowHistory[pair.Value] = child
		}
	}
}

// captureDeepHistoryChildren saves the full nested configuration under
// a parallel state into any DeepHistoryState child it has, per
// spec.md §4.9 / toysm's get_active_states traversal.
func (f *firer) captureDeepHistoryChildren(inst *instance, parent NodeID) {
	n := f.g.Node(parent)
	var historyTargets []NodeID
	for pair := n.Children.Oldest(); pair != nil; pair = pair.Next() {
		if f.g.Node(pair.Value).Kind == KindDeepHistory {
			historyTargets = append(historyTargets, pair.Value)
		}
	}
	if len(historyTargets) == 0 {
		return
	}
	snap := f.captureDeepSnapshot(inst, parent)
	for _, h := range historyTargets {
		inst.deepHistory[h] = snap
	}
}

func (f *firer) captureDeepSnapshot(inst *instance, root NodeID) deepSnapshot {
	var snap deepSnapshot
	var walk func(NodeID)
	walk = func(id NodeID) {
		n := f.g.Node(id)
		switch n.Kind {
		case KindComposite:
			child, ok := inst.activeChild[id]
			if !ok {
				return
			}
			snap = append(snap, deepEntry{Node: id, ActiveChild: child})
			walk(child)
		case KindParallel:
			snap = append(snap, deepEntry{Node: id, ActiveChild: noNode})
			for pair := n.Children.Oldest(); pair != nil; pair = pair.Next() {
				if inst.isActive(pair.Value) {
					walk(pair.Value)
				}
			}
		default:
			snap = append(snap, deepEntry{Node: id, ActiveChild: noNode})
		}
	}
	walk(root)
	return snap
}

// restoreDeepHistory re-enters a saved nested configuration in
// recorded order without re-resolving initial children, per
// spec.md §4.9. The firer's tgtPath walk leaves historyNode's parallel
// parent unentered when it precedes a DeepHistory hop, so this is the
// sole place that enters it — once, whichever branch below runs.
func (f *firer) restoreDeepHistory(inst *instance, ctx *Context, historyNode NodeID) error {
	n := f.g.Node(historyNode)
	snap, ok := inst.deepHistory[historyNode]
	if !ok {
		if err := f.enterNodeNoInit(inst, ctx, n.Parent); err != nil {
			return err
		}
		f.scheduleTimeouts(inst, n.Parent)
		if n.HistoryDefault != noNode {
			return f.enterNode(inst, ctx, n.HistoryDefault)
		}
		return f.enterParallelRegions(inst, ctx, n.Parent)
	}
	for _, entry := range snap {
		if entry.ActiveChild != noNode {
			inst.setActiveChild(entry.Node, entry.ActiveChild)
		}
		if err := f.enterNodeNoInit(inst, ctx, entry.Node); err != nil {
			return err
		}
	}
	return nil
}

// enterNodeNoInit enters a single saved node without resolving its
// initial child (the next snapshot entry supplies that), used only by
// deep-history restoration.
func (f *firer) enterNodeNoInit(inst *instance, ctx *Context, id NodeID) error {
	n := f.g.Node(id)
	inst.markEntered(id)
	if err := f.runHooks(ctx, n.PreEntry, "hook", id); err != nil {
		return err
	}
	for _, a := range n.OnEntry {
		if err := f.runAction(ctx, a, id); err != nil {
			return err
		}
	}
	f.m.notifyStateEnter(inst.key, n.Name)
	if n.Kind != KindComposite && n.Kind != KindParallel {
		f.scheduleTimeouts(inst, id)
		if n.DoActivity != nil {
			f.startDoActivity(inst, ctx, id)
		} else if n.Children.Len() == 0 {
			f.postCompletion(inst, id)
		}
	}
	return f.runHooks(ctx, n.PostEntry, "hook", id)
}

func (f *firer) runHooks(ctx *Context, hooks []HookFunc, phase string, node NodeID) error {
	for _, h := range hooks {
		if err := h(ctx); err != nil {
			return &RuntimeError{Node: f.g.Node(node).Name, Phase: phase, Cause: err}
		}
	}
	return nil
}

func (f *firer) runAction(ctx *Context, a ActionFunc, node NodeID) error {
	if a == nil {
		return nil
	}
	if err := a(ctx); err != nil {
		return &RuntimeError{Node: f.g.Node(node).Name, Phase: "action", Cause: err}
	}
	return nil
}

func (f *firer) postCompletion(inst *instance, node NodeID) {
	f.m.postCompletion(inst.key, node)
}

func (f *firer) scheduleTimeouts(inst *instance, node NodeID) {
	n := f.g.Node(node)
	for _, tid := range n.Transitions {
		t := f.g.Transition(tid)
		if t.Trigger == TriggerTimeout {
			h := f.m.timers.Schedule(inst.key, node, tid, t.After)
			f.m.recordTimer(inst.key, tid, h)
			f.m.notifyTimerScheduled(inst.key, n.Name, t.After)
		}
	}
}

func (f *firer) cancelTimeouts(inst *instance, node NodeID) {
	n := f.g.Node(node)
	for _, tid := range n.Transitions {
		t := f.g.Transition(tid)
		if t.Trigger == TriggerTimeout {
			if h, ok := f.m.lookupTimer(inst.key, tid); ok {
				f.m.timers.Cancel(h)
				f.m.forgetTimer(inst.key, tid)
			}
		}
	}
}

func (f *firer) startDoActivity(inst *instance, ctx *Context, node NodeID) {
	n := f.g.Node(node)
	activityCtx := ctx.withEvent(nil)
	handle := startActivity(n.DoActivity, activityCtx,
		func() {
			f.m.notifyDoActivityComplete(inst.key, n.Name)
			f.postCompletion(inst, node)
		},
		func(err error) {
			// Runs on the activity's own goroutine, not the run loop, so
			// it must not touch Machine.instances directly; queue it and
			// let the run loop call reportRuntimeError itself.
			f.m.queue.Put(tierCompletion, errorSignal{
				instance: inst.key,
				err:      &RuntimeError{Node: n.Name, Phase: "do-activity", Cause: err},
			})
		},
	)
	inst.activities[node] = handle
	f.m.notifyDoActivityStart(inst.key, n.Name)
}

func (f *firer) stopDoActivity(inst *instance, node NodeID) {
	if h, ok := inst.activities[node]; ok {
		h.stop()
		delete(inst.activities, node)
		f.m.doActivityStopped()
	}
}
