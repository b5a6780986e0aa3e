package toysm

// selector implements spec.md §4.3's transition-selection algorithm:
// given an instance's active configuration and an event (nil meaning
// "completion"), it returns the ordered list of transitions to fire.
// It is grounded directly on toysm/core.py's State.get_enabled_transitions
// / _get_local_enabled_transitions / get_entry_transitions trio.
type selector struct {
	g *Graph
}

func newSelector(g *Graph) *selector {
	return &selector{g: g}
}

// selectFrom finds the enabled transition list starting the search at
// node (typically the top state for a standard event, or the
// completed state itself for a completion event). ctx is the context
// guards are evaluated against; its Event field should already be set
// to evt by the caller.
func (s *selector) selectFrom(inst *instance, node NodeID, evt *Event, ctx *Context) []TransitionID {
	n := s.g.Node(node)

	if n.Kind == KindParallel {
		// Child transitions take precedence: the enabled transitions of
		// every still-running region are collected, in region order;
		// finished regions are skipped, resolving the spec's Open
		// Question.
		var collected []TransitionID
		for pair := n.Children.Oldest(); pair != nil; pair = pair.Next() {
			region := pair.Value
			if !inst.runningRegions[node][region] {
				continue
			}
			collected = append(collected, s.selectFrom(inst, region, evt, ctx)...)
		}
		if len(collected) > 0 {
			return collected
		}
		return s.localEnabled(inst, node, evt, ctx)
	}

	if child, ok := inst.activeChild[node]; ok && n.Kind == KindComposite {
		if ts := s.selectFrom(inst, child, evt, ctx); len(ts) > 0 {
			return ts
		}
	}

	return s.localEnabled(inst, node, evt, ctx)
}

// localEnabled scans node's own outgoing transitions in declaration
// order, matching the first whose trigger/guard fires, then resolves
// any compound (pseudo-state) target into a full entry chain. If the
// resolved chain is not transition-terminal, scanning continues past
// it per spec.md §4.3 step 3.
func (s *selector) localEnabled(inst *instance, node NodeID, evt *Event, ctx *Context) []TransitionID {
	n := s.g.Node(node)
	for _, tid := range n.Transitions {
		t := s.g.Transition(tid)
		if !s.triggered(t, evt) {
			continue
		}
		if t.Guard != nil && !t.Guard(ctx) {
			continue
		}
		if t.Kind == Internal {
			return []TransitionID{tid}
		}
		target := t.effectiveTarget()
		ok, chain := s.entryTransitions(inst, target, ctx)
		if !ok {
			continue
		}
		result := make([]TransitionID, 0, 1+len(chain))
		result = append(result, tid)
		result = append(result, chain...)
		return result
	}
	return nil
}

// chainFor resolves a single, already-identified transition (used by
// the run loop when a Timeout fires, since that bypasses the ordinary
// "first enabled transition" scan — the fired timer names its
// transition directly) into the full fire list, applying its guard
// and resolving any compound entry chain the same way localEnabled
// does for an ordinary match.
func (s *selector) chainFor(inst *instance, tid TransitionID, ctx *Context) []TransitionID {
	t := s.g.Transition(tid)
	if t.Guard != nil && !t.Guard(ctx) {
		return nil
	}
	if t.Kind == Internal {
		return []TransitionID{tid}
	}
	ok, chain := s.entryTransitions(inst, t.effectiveTarget(), ctx)
	if !ok {
		return nil
	}
	result := make([]TransitionID, 0, 1+len(chain))
	result = append(result, tid)
	result = append(result, chain...)
	return result
}

func (s *selector) triggered(t *Transition, evt *Event) bool {
	switch t.Trigger {
	case TriggerNone:
		return evt == nil
	case TriggerEvent:
		return evt != nil && evt.Name == t.Event
	case TriggerTimeout:
		// Timeout transitions are only ever placed on the selector's
		// list by the run loop itself (via a synthetic completion-like
		// dispatch keyed on the fired timer's TransitionID), never
		// matched against an ordinary posted event.
		return false
	default:
		return false
	}
}

// entryTransitions resolves target into a (possibly empty) chain of
// the declared outgoing transitions of the Initial/Junction/EntryPoint
// pseudo-states passed through on the way to a transition-terminal
// node (an ordinary state, FinalState, TerminateState, or a history
// state with a saved snapshot). ok is false if no terminal can be
// reached (a dead compound transition).
func (s *selector) entryTransitions(inst *instance, target NodeID, ctx *Context) (ok bool, chain []TransitionID) {
	n := s.g.Node(target)

	switch n.Kind {
	case KindJunction:
		for _, tid := range n.Transitions {
			t := s.g.Transition(tid)
			if t.Guard != nil && !t.Guard(ctx) {
				continue
			}
			nextOK, nextChain := s.entryTransitions(inst, t.effectiveTarget(), ctx)
			if !nextOK {
				continue
			}
			result := append([]TransitionID{tid}, nextChain...)
			return true, result
		}
		return false, nil

	case KindHistory:
		if saved, ok := inst.shallowHistory[target]; ok {
			nextOK, nextChain := s.entryTransitions(inst, saved, ctx)
			if !nextOK {
				return false, nil
			}
			return true, nextChain
		}
		if n.HistoryDefault != noNode {
			return s.entryTransitions(inst, n.HistoryDefault, ctx)
		}
		return s.entryTransitions(inst, n.Parent, ctx)

	case KindDeepHistory:
		if _, ok := inst.deepHistory[target]; ok {
			// Deep history resolves directly to itself; the firer
			// special-cases KindDeepHistory targets to restore the
			// saved subtree instead of walking an ordinary entry
			// chain. Returning an empty chain here signals "terminal,
			// enter target as-is".
			return true, nil
		}
		if n.HistoryDefault != noNode {
			return s.entryTransitions(inst, n.HistoryDefault, ctx)
		}
		return s.entryTransitions(inst, n.Parent, ctx)

	case KindInitial:
		if len(n.Transitions) == 0 {
			return false, nil
		}
		t := s.g.Transition(n.Transitions[0])
		nextOK, nextChain := s.entryTransitions(inst, t.effectiveTarget(), ctx)
		if !nextOK {
			return false, nil
		}
		return true, append([]TransitionID{t.ID}, nextChain...)

	case KindEntryPoint:
		if len(n.Transitions) == 0 {
			return false, nil
		}
		t := s.g.Transition(n.Transitions[0])
		nextOK, nextChain := s.entryTransitions(inst, t.effectiveTarget(), ctx)
		if !nextOK {
			return false, nil
		}
		return true, append([]TransitionID{t.ID}, nextChain...)

	case KindComposite, KindParallel:
		if n.Initial == noNode {
			// A childless composite (or a parallel, which Build never
			// lets carry an Initial) has nothing further to resolve:
			// the node itself is the terminal entry target, entered
			// directly by the firer with no descent needed.
			return true, nil
		}
		return s.entryTransitions(inst, n.Initial, ctx)

	default:
		// Ordinary state, FinalState, TerminateState, ExitPoint: all
		// transition-terminal.
		return true, nil
	}
}
