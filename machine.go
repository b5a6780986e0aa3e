package toysm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/willakat/toysm/config"
)

// defaultMaxStopWait bounds the run loop's blocking wait on the event
// queue, so a stop() request is never left waiting longer than this to
// be noticed. Overridable through RuntimeConfig / WithMaxStopWait.
const defaultMaxStopWait = 100 * time.Millisecond

// DemuxFunc maps an inbound event to the instance it belongs to,
// optionally rewriting the event itself. Configuring one turns a
// Machine from a single implicit instance into a multiplexed runtime
// keyed by whatever DemuxFunc returns.
type DemuxFunc func(evt *Event) (key string, rewritten *Event)

// Machine drives a built Graph from its event stream: one run-loop
// goroutine per machine, demultiplexing into per-key Instance State
// Stores, exactly as spec.md §4.5 describes.
type Machine struct {
	graph  *Graph
	sel    *selector
	fire   *firer
	queue  *EventQueue
	timers *TimerScheduler
	demux  DemuxFunc
	logger zerolog.Logger

	maxStopWait time.Duration

	obsMu     sync.RWMutex
	observers []Observer

	// seenMu guards the "has this demux key been initialized yet" set,
	// the demux table of spec.md §5 — conceptually paired with the
	// event queue's own lock, kept here as its own small mutex instead
	// of reaching into EventQueue's internals.
	seenMu sync.Mutex
	seen   map[string]bool

	// timerIndex tracks the handle for each (instance, transition)
	// pair currently armed, so a state's exit can find and cancel it.
	timerMu    sync.Mutex
	timerIndex map[string]map[TransitionID]TimerHandle

	runOnce   sync.Once
	runWG     sync.WaitGroup
	stopCh    chan struct{}
	stoppedMu sync.Mutex
	stopped   bool

	// instances is owned exclusively by the run-loop goroutine, per
	// spec.md §5 — no mutex, accessed only from runLoop and the
	// handlers it calls directly.
	instances   map[string]*instance
	activeCount int

	// doActivityCount is incremented/decremented only on the run-loop
	// goroutine (where do-activities are started, stopped and torn
	// down), but metrics sampling reads it from other goroutines, so it
	// needs its own atomic rather than the run-loop-only ownership
	// instances enjoys.
	doActivityCount atomic.Int64
}

type initSignal struct{ instance string }
type completionSignal struct {
	instance string
	node     NodeID
}
type standardSignal struct {
	instance string
	evt      *Event
}
type timeoutSignal struct {
	instance string
	node     NodeID
	trans    TransitionID
}
type errorSignal struct {
	instance string
	err      error
}

// New builds a Machine over graph. demux may be nil for a single
// implicit instance keyed by the empty string.
func New(graph *Graph, demux DemuxFunc) *Machine {
	m := &Machine{
		graph:       graph,
		queue:       NewEventQueue(),
		timers:      NewTimerScheduler(),
		demux:       demux,
		maxStopWait: defaultMaxStopWait,
		seen:        make(map[string]bool),
		timerIndex:  make(map[string]map[TransitionID]TimerHandle),
		stopCh:      make(chan struct{}),
		instances:   make(map[string]*instance),
		logger:      zerolog.Nop(),
	}
	m.sel = newSelector(graph)
	m.fire = newFirer(graph, m)
	return m
}

// WithLogger attaches a structured logger; the zero Machine logs
// nothing (zerolog.Nop()).
func (m *Machine) WithLogger(l zerolog.Logger) *Machine {
	m.logger = l
	return m
}

// WithMaxStopWait overrides the run loop's blocking-wait ceiling,
// normally sourced from RuntimeConfig.
func (m *Machine) WithMaxStopWait(d time.Duration) *Machine {
	if d > 0 {
		m.maxStopWait = d
	}
	return m
}

// WithQueueCapacity replaces the event queue with one pre-sized to
// capacity, normally sourced from RuntimeConfig.EventQueueCapacity.
// Must be called before Start.
func (m *Machine) WithQueueCapacity(capacity int) *Machine {
	if capacity > 0 {
		m.queue = NewEventQueueWithCapacity(capacity)
	}
	return m
}

// WithConfig applies cfg's MaxStopWait, EventQueueCapacity (the event
// queue's initial capacity) and LogLevel (the logger's minimum level);
// cfg's TimerResolution is not used. A nil cfg is a no-op. Must be
// called before Start.
func (m *Machine) WithConfig(cfg *config.RuntimeConfig) *Machine {
	if cfg == nil {
		return m
	}
	m.WithMaxStopWait(cfg.MaxStopWait.Duration)
	m.WithQueueCapacity(cfg.EventQueueCapacity)
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		m.logger = m.logger.Level(lvl)
	}
	return m
}

// AddObserver registers an observer notified of lifecycle events.
func (m *Machine) AddObserver(o Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, o)
}

// Start launches the run loop goroutine. A Machine can be started only
// once: every later call returns ErrAlreadyStarted, even after
// Stop/Join.
func (m *Machine) Start() error {
	started := false
	m.runOnce.Do(func() {
		started = true
		m.runWG.Add(1)
		go m.runLoop()
	})
	if !started {
		return ErrAlreadyStarted
	}
	if m.demux == nil {
		m.ensureSeeded("")
	}
	return nil
}

// Post delivers an external event. Posting a nil event returns
// ErrNilEvent: nil is reserved for internally-generated
// init/completion signals.
func (m *Machine) Post(evt *Event) error {
	if evt == nil {
		return ErrNilEvent
	}
	k, e := "", evt
	if m.demux != nil {
		k, e = m.demux(evt)
	}
	m.ensureSeeded(k)
	m.queue.Put(tierStandard, standardSignal{instance: k, evt: e})
	return nil
}

// ensureSeeded enqueues an INIT signal the first time key is seen.
func (m *Machine) ensureSeeded(key string) {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	if m.seen[key] {
		return
	}
	m.seen[key] = true
	m.queue.Put(tierInit, initSignal{instance: key})
}

// postCompletion is the internal do-activity/final-state completion
// hook used by the firer; PostCompletion exposes it on Machine.
func (m *Machine) postCompletion(instance string, node NodeID) {
	m.queue.Put(tierCompletion, completionSignal{instance: instance, node: node})
}

// PostCompletion posts a completion event for node on the given
// instance.
func (m *Machine) PostCompletion(instance string, node NodeID) {
	m.postCompletion(instance, node)
}

// Stop requests shutdown. If key is non-empty only that instance is
// stopped; an empty key stops the whole machine (idempotent: calling
// Stop twice has the same effect as once).
func (m *Machine) Stop(key string) {
	if key != "" {
		m.stopInstance(key)
		return
	}
	m.stoppedMu.Lock()
	defer m.stoppedMu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	close(m.stopCh)
}

// Join blocks until the run loop exits or timeout elapses (<=0 waits
// forever), returning false if it is still running at the deadline —
// the shutdown-race tolerance spec.md §7 calls for.
func (m *Machine) Join(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() { m.runWG.Wait(); close(done) }()
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Settle reports whether the event queue is quiescent, per spec.md §6.
func (m *Machine) Settle(timeout time.Duration) bool {
	return m.queue.Settle(timeout)
}

// stopInstance asks the run loop to tear an instance down. The actual
// mutation happens on the run-loop goroutine via handleCompletion, not
// here, since Instance Store access is run-loop-only.
func (m *Machine) stopInstance(key string) {
	m.queue.Put(tierCompletion, completionSignal{instance: key, node: noNode})
}

func (m *Machine) runLoop() {
	defer m.runWG.Done()
	m.graph.assignDepths()

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		fired, nextDue := m.timers.DrainDue(time.Now())
		for _, ft := range fired {
			m.queue.Put(tierCompletion, timeoutSignal{instance: ft.Instance, node: ft.Node, trans: ft.Trans})
		}

		wait := m.maxStopWait
		if nextDue > 0 && nextDue < wait {
			wait = nextDue
		}

		payload, err := m.queue.Get(wait)
		if err != nil {
			continue // timed out; loop back to re-check stopCh and timers
		}

		switch p := payload.(type) {
		case initSignal:
			m.handleInit(p.instance)
		case completionSignal:
			m.handleCompletion(p.instance, p.node)
		case timeoutSignal:
			m.handleTimeout(p.instance, p.node, p.trans)
		case standardSignal:
			m.handleStandard(p.instance, p.evt)
		case errorSignal:
			m.reportRuntimeError(p.instance, p.err)
		}
	}
}

func (m *Machine) getOrCreateInstance(key string) *instance {
	inst, ok := m.instances[key]
	if !ok {
		inst = newInstance(key)
		m.instances[key] = inst
		m.activeCount++
		m.notifyActiveCount(m.activeCount)
	}
	return inst
}

func (m *Machine) handleInit(key string) {
	inst := m.getOrCreateInstance(key)
	ctx := NewContext(context.Background(), m, key)
	if err := m.fire.enterNode(inst, ctx, m.graph.Root()); err != nil {
		m.handleRunError(inst, err)
	}
}

func (m *Machine) handleCompletion(key string, node NodeID) {
	inst, ok := m.instances[key]
	if !ok {
		return // shutdown race: instance already torn down
	}
	if node == noNode {
		m.teardownInstance(inst)
		return
	}
	if !inst.isActive(node) {
		return // the state was already exited by another transition
	}
	ctx := NewContext(context.Background(), m, key)
	transitions := m.sel.selectFrom(inst, node, nil, ctx)
	if len(transitions) == 0 {
		m.bubbleCompletion(inst, node)
		return
	}
	if err := m.fire.fire(inst, transitions, ctx); err != nil {
		m.handleRunError(inst, err)
		return
	}
	m.bubbleCompletion(inst, node)
}

// bubbleCompletion mirrors toysm's child_completed hook and top-level
// teardown: a state that just finished (whether or not completion
// transitions then fired from it) notifies its parent (for parallel
// join bookkeeping) or, if it is the root, stops the instance.
func (m *Machine) bubbleCompletion(inst *instance, node NodeID) {
	n := m.graph.Node(node)
	if n.Parent == noNode {
		m.teardownInstance(inst)
		return
	}
	parent := m.graph.Node(n.Parent)
	if parent.Kind == KindParallel {
		inst.regionCompleted(n.Parent, node)
		if inst.allRegionsCompleted(n.Parent) {
			m.postCompletion(inst.key, n.Parent)
		}
	}
}

func (m *Machine) handleTimeout(key string, node NodeID, trans TransitionID) {
	inst, ok := m.instances[key]
	if !ok {
		return
	}
	m.forgetTimer(key, trans)
	if !inst.isActive(node) {
		return
	}
	ctx := NewContext(context.Background(), m, key)
	chain := m.sel.chainFor(inst, trans, ctx)
	if len(chain) == 0 {
		return
	}
	if err := m.fire.fire(inst, chain, ctx); err != nil {
		m.handleRunError(inst, err)
	}
}

func (m *Machine) handleStandard(key string, evt *Event) {
	inst, ok := m.instances[key]
	if !ok {
		return
	}
	ctx := NewContext(context.Background(), m, key).withEvent(evt)
	transitions := m.sel.selectFrom(inst, m.graph.Root(), evt, ctx)
	if len(transitions) == 0 {
		return
	}
	if err := m.fire.fire(inst, transitions, ctx); err != nil {
		m.handleRunError(inst, err)
	}
}

func (m *Machine) teardownInstance(inst *instance) {
	for node, h := range inst.activities {
		h.stop()
		delete(inst.activities, node)
		m.doActivityStopped()
	}
	m.timerMu.Lock()
	for trans, h := range m.timerIndex[inst.key] {
		m.timers.Cancel(h)
		delete(m.timerIndex[inst.key], trans)
	}
	delete(m.timerIndex, inst.key)
	m.timerMu.Unlock()

	delete(m.instances, inst.key)
	m.activeCount--
	m.notifyActiveCount(m.activeCount)

	if m.demux == nil {
		m.Stop("")
	}
}

// handleRunError is how the run loop reacts to any error returned
// while entering or firing (a RuntimeError from user
// action/hook/do-activity code, or an IllFormedError): log it, notify
// observers, and stop only the offending instance, per spec.md §7.
func (m *Machine) handleRunError(inst *instance, err error) {
	m.logger.Error().Str("instance", inst.key).Err(err).Msg("runtime error")
	m.notifyError(inst.key, err)
	m.teardownInstance(inst)
}

func (m *Machine) reportRuntimeError(key string, err error) {
	inst, ok := m.instances[key]
	if !ok {
		return
	}
	m.handleRunError(inst, err)
}

func (m *Machine) recordTimer(key string, trans TransitionID, h TimerHandle) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.timerIndex[key] == nil {
		m.timerIndex[key] = make(map[TransitionID]TimerHandle)
	}
	m.timerIndex[key][trans] = h
}

func (m *Machine) lookupTimer(key string, trans TransitionID) (TimerHandle, bool) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	h, ok := m.timerIndex[key][trans]
	return h, ok
}

func (m *Machine) forgetTimer(key string, trans TransitionID) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if s, ok := m.timerIndex[key]; ok {
		delete(s, trans)
	}
}

// --- Observer notification plumbing ---

func (m *Machine) notifyStateEnter(instance, name string) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, o := range m.observers {
		o.OnStateEnter(instance, name)
	}
}

func (m *Machine) notifyStateExit(instance, name string) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, o := range m.observers {
		o.OnStateExit(instance, name)
	}
}

func (m *Machine) notifyTransitionFired(instance string) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, o := range m.observers {
		o.OnTransitionFired(instance)
	}
}

func (m *Machine) notifyError(instance string, err error) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, o := range m.observers {
		o.OnError(instance, err)
	}
}

func (m *Machine) notifyDoActivityStart(instance, name string) {
	m.doActivityCount.Add(1)
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, o := range m.observers {
		o.OnDoActivityStart(instance, name)
	}
}

func (m *Machine) notifyDoActivityComplete(instance, name string) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, o := range m.observers {
		o.OnDoActivityComplete(instance, name)
	}
}

// doActivityStopped decrements the live worker gauge. It runs from
// stopDoActivity (state exit) or teardownInstance (instance stop);
// each removes the activity's handle from the instance as it calls
// this, so the count goes down exactly once per started activity.
func (m *Machine) doActivityStopped() {
	m.doActivityCount.Add(-1)
}

func (m *Machine) notifyTimerScheduled(instance, name string, delay time.Duration) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, o := range m.observers {
		o.OnTimerScheduled(instance, name, delay)
	}
}

func (m *Machine) notifyActiveCount(n int) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, o := range m.observers {
		if ac, ok := o.(ActiveCountObserver); ok {
			ac.OnActiveInstancesChanged(n)
		}
	}
}

// QueueDepth exposes the event queue depth for metrics sampling.
func (m *Machine) QueueDepth() int { return m.queue.Len() }

// ActiveDoActivityWorkers exposes the live do-activity goroutine count
// for metrics sampling.
func (m *Machine) ActiveDoActivityWorkers() int64 { return m.doActivityCount.Load() }
