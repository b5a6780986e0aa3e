package toysm

import (
	"errors"
	"fmt"
)

// IllFormedError reports a structural defect in a Graph: a missing
// initial child, a pseudo-state used where it is forbidden, a sink
// state used as a transition source, a transition crossing orthogonal
// regions, or a compound transition with no transition-terminal
// target. These are raised synchronously at Build() time, except for
// the handful of invariants (orthogonal-region crossing, dead compound
// transitions) that can only be observed against a live configuration
// and are instead raised when the offending transition is fired.
type IllFormedError struct {
	Reason string
	Node   string
}

func (e *IllFormedError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("ill-formed graph: %s (node %q)", e.Reason, e.Node)
	}
	return fmt.Sprintf("ill-formed graph: %s", e.Reason)
}

func illFormed(node, reason string) *IllFormedError {
	return &IllFormedError{Reason: reason, Node: node}
}

// UsageError reports a caller mistake that is not a structural graph
// problem. Machine.Start and Machine.Post do not return it: they
// report their caller mistakes with the sentinel errors below.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage error: %s", e.Reason)
}

func usageError(reason string) *UsageError {
	return &UsageError{Reason: reason}
}

// RuntimeError wraps an error returned from user-supplied
// action/hook/do-activity code (panics are not recovered, and guards
// return a bool, so they never produce one). It never crosses instance
// boundaries: the owning Machine catches it, stops the offending
// instance, and reports it through Observer.OnError and the
// configured logger instead of propagating to sibling instances.
type RuntimeError struct {
	Node  string
	Phase string // "action", "hook", or "do-activity"
	Cause error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error in %s of node %q: %v", e.Phase, e.Node, e.Cause)
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// Sentinel errors callers test with errors.Is. They are plain errors,
// not *UsageError values: Start returns ErrAlreadyStarted and Post
// returns ErrNilEvent.
var (
	ErrAlreadyStarted  = errors.New("machine already started")
	ErrNotStarted      = errors.New("machine not started")
	ErrNilEvent        = errors.New("nil event is reserved for init/completion")
	ErrUnknownInstance = errors.New("unknown instance key")
)
