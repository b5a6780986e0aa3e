package toysm

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a message posted to a Machine instance. A nil *Event
// denotes a completion signal: "the state just entered finished
// naturally", distinct from any user-named event.
type Event struct {
	ID        string
	Name      string
	Data      any
	Timestamp time.Time
	Metadata  map[string]any
}

// NewEvent creates a standard event with a fresh uuid, the way the
// teacher's pkg/core.NewEvent stamps every event it builds.
func NewEvent(name string, data any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Name:      name,
		Data:      data,
		Timestamp: time.Now(),
		Metadata:  make(map[string]any),
	}
}

// tier is the event queue's priority class. Lower values are served
// first; within a tier, FIFO order is preserved by the monotonic
// sequence counter.
type tier int

const (
	tierCompletion tier = iota
	tierInit
	tierStandard
)

// queueItem is the heap element: (tier, sequence, payload). payload is
// one of initSignal, completionSignal, standardSignal, timeoutSignal,
// or errorSignal (all defined in machine.go), kept as `any` here so
// the low-level queue stays
// agnostic of Machine's dispatch types.
type queueItem struct {
	tier    tier
	seq     uint64
	payload any
}

type itemHeap []*queueItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].tier != h[j].tier {
		return h[i].tier < h[j].tier
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)        { *h = append(*h, x.(*queueItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// ErrQueueEmpty is returned by EventQueue.Get when no item became
// available before the timeout elapsed.
var ErrQueueEmpty = errors.New("toysm: event queue empty")

// EventQueue is the thread-safe, tiered, priority-ordered mailbox
// feeding a Machine's run loop. It is grounded directly on toysm's
// event_queue.py EventQueue: a heap protected by one lock, a
// "something available" condition, and a "settled" condition used by
// tests to detect a quiescent machine (queue empty and a consumer
// already blocked in Get).
type EventQueue struct {
	mu        sync.Mutex
	avail     *sync.Cond
	settled   *sync.Cond
	items     itemHeap
	seq       uint64
	consumers int
}

// NewEventQueue constructs an empty queue.
func NewEventQueue() *EventQueue {
	return NewEventQueueWithCapacity(0)
}

// NewEventQueueWithCapacity pre-sizes the backing heap slice, trimming
// reallocations for machines whose RuntimeConfig names an expected
// depth (SPEC_FULL §4.12's eventQueueCapacity).
func NewEventQueueWithCapacity(capacity int) *EventQueue {
	q := &EventQueue{}
	if capacity > 0 {
		q.items = make(itemHeap, 0, capacity)
	}
	q.avail = sync.NewCond(&q.mu)
	q.settled = sync.NewCond(&q.mu)
	return q
}

// Put enqueues payload at the given tier.
func (q *EventQueue) Put(t tier, payload any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	wasEmpty := len(q.items) == 0
	heap.Push(&q.items, &queueItem{tier: t, seq: q.seq, payload: payload})
	q.seq++
	if wasEmpty {
		q.avail.Broadcast()
	}
}

// Get blocks until an item is available or timeout elapses (timeout
// <= 0 means wait forever), then pops and returns the highest-priority
// item's payload. Returns ErrQueueEmpty on timeout.
func (q *EventQueue) Get(timeout time.Duration) (payload any, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.seq = 0
		q.consumers++
		q.settled.Broadcast()

		if timeout <= 0 {
			for len(q.items) == 0 {
				q.avail.Wait()
			}
		} else {
			deadline := time.Now().Add(timeout)
			for len(q.items) == 0 {
				remaining := time.Until(deadline)
				if remaining <= 0 {
					q.consumers--
					return nil, ErrQueueEmpty
				}
				if !condWaitTimeout(q.avail, &q.mu, remaining) {
					if len(q.items) == 0 {
						q.consumers--
						return nil, ErrQueueEmpty
					}
					break
				}
			}
		}
		q.consumers--
	}

	it := heap.Pop(&q.items).(*queueItem)
	return it.payload, nil
}

// Settle blocks until the queue is empty and a consumer is already
// waiting in Get (i.e. the machine has nothing left to process right
// now), or until timeout elapses. Returns false on timeout. A
// zero/negative timeout waits forever. This is a test/introspection
// hook, grounded on event_queue.py's settle().
func (q *EventQueue) Settle(timeout time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	settledNow := func() bool { return len(q.items) == 0 && q.consumers > 0 }

	if settledNow() {
		return true
	}
	if timeout <= 0 {
		for !settledNow() {
			q.settled.Wait()
		}
		return true
	}
	deadline := time.Now().Add(timeout)
	for !settledNow() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return settledNow()
		}
		if !condWaitTimeout(q.settled, &q.mu, remaining) {
			return settledNow()
		}
	}
	return true
}

// Len reports the current queue depth, used by the metrics collector.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// condWaitTimeout waits on cond for up to d, returning false if d
// elapsed without a signal. sync.Cond has no native timeout, so this
// spins a timer goroutine that broadcasts once to unblock the waiter;
// the caller re-checks its predicate either way, matching the pattern
// the rest of the Go ecosystem uses (e.g. a sync.Cond+timer pairing)
// to graft timeouts onto condition variables.
func condWaitTimeout(cond *sync.Cond, mu *sync.Mutex, d time.Duration) bool {
	done := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		mu.Lock()
		close(done)
		cond.Broadcast()
		mu.Unlock()
	})
	cond.Wait()
	select {
	case <-done:
		timer.Stop()
		return false
	default:
		timer.Stop()
		return true
	}
}
