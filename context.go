package toysm

import (
	"context"
	"sync"
)

// Context is handed to every guard, action, and hook invocation. It
// embeds a standard context.Context for cancellation/deadlines and
// additionally exposes the Machine, the event being processed (nil
// for completion/init), the active instance key, and a scratch data
// map shared by the guard/action/hook calls of one run-loop step (and
// any do-activity started in it). Each step starts with an empty map,
// so values do not carry over to a later step.
type Context struct {
	context.Context

	Machine  *Machine
	Instance string
	Event    *Event

	mu   sync.RWMutex
	data map[string]any
}

// NewContext creates a context bound to a machine and instance.
func NewContext(parent context.Context, m *Machine, instance string) *Context {
	if parent == nil {
		parent = context.Background()
	}
	return &Context{
		Context:  parent,
		Machine:  m,
		Instance: instance,
		data:     make(map[string]any),
	}
}

// Get retrieves a value previously stored with Set.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Set stores a value in the context's scratch data, visible to later
// guard/action/hook calls in the same step.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// withEvent returns a shallow copy of the context carrying a different
// event. The scratch data map is shared (not copied), so the copy and
// the original see the same values.
func (c *Context) withEvent(evt *Event) *Context {
	return &Context{
		Context:  c.Context,
		Machine:  c.Machine,
		Instance: c.Instance,
		Event:    evt,
		data:     c.data,
	}
}

// GuardFunc evaluates whether a transition should be taken.
type GuardFunc func(ctx *Context) bool

// ActionFunc performs an operation during a transition, hook, or
// do-activity invocation.
type ActionFunc func(ctx *Context) error

// ActivityFunc is a do-activity body. It is called repeatedly until it
// returns false (activity complete, triggers state completion), the
// exit channel closes (state is being exited), or it returns an error
// (treated as a runtime error and the activity stops).
type ActivityFunc func(ctx *Context, exiting <-chan struct{}) (bool, error)

// HookFunc is registered against a state's pre_entry/post_entry/
// pre_exit/post_exit lists or a transition's hook list.
type HookFunc func(ctx *Context) error
