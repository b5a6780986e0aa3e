package toysm

import "sync"

// activityHandle tracks one running do-activity worker: the latch
// used to ask it to stop, and a WaitGroup so the exiting state can
// block until it actually has. Grounded on toysm/core.py's
// start_do_activity/stop_do_activity, which spawn a Thread running a
// loop guarded by a threading.Event "exit_required" latch and join()
// it on exit; exitCh here is that latch's Go equivalent (closing a
// channel broadcasts to a single waiting goroutine the same way
// Event.set() wakes an is_set() poll).
type activityHandle struct {
	exitCh chan struct{}
	done   sync.WaitGroup
}

// startActivity launches fn as a goroutine that runs until it reports
// completion, an error, or exitCh is closed. onComplete is invoked
// exactly once if fn finishes naturally (returns ok=false, err=nil)
// before being asked to exit; it is what lets the run loop post a
// completion event for the owning state. onError is invoked if fn
// returns an error, and the activity stops without signalling natural
// completion.
func startActivity(fn ActivityFunc, ctx *Context, onComplete func(), onError func(error)) *activityHandle {
	h := &activityHandle{exitCh: make(chan struct{})}
	h.done.Add(1)
	go func() {
		defer h.done.Done()
		for {
			select {
			case <-h.exitCh:
				return
			default:
			}
			ok, err := fn(ctx, h.exitCh)
			if err != nil {
				onError(err)
				return
			}
			if !ok {
				onComplete()
				return
			}
		}
	}()
	return h
}

// stop signals the activity to exit and waits for it to return. It is
// safe to call more than once; the second call observes an already-
// closed channel and still waits on the (already-finished) WaitGroup.
func (h *activityHandle) stop() {
	select {
	case <-h.exitCh:
	default:
		close(h.exitCh)
	}
	h.done.Wait()
}
