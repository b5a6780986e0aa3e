package toysm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartActivityNaturalCompletion(t *testing.T) {
	calls := 0
	completed := make(chan struct{})
	fn := func(ctx *Context, exiting <-chan struct{}) (bool, error) {
		calls++
		if calls >= 3 {
			return false, nil
		}
		return true, nil
	}

	h := startActivity(fn, nil, func() { close(completed) }, func(error) {
		t.Fatal("onError should not be called")
	})

	select {
	case <-completed:
	case <-time.After(time.Second):
		t.Fatal("activity never completed")
	}
	h.stop()
	require.Equal(t, 3, calls)
}

func TestStartActivityErrorPath(t *testing.T) {
	boom := errors.New("boom")
	errCh := make(chan error, 1)
	fn := func(ctx *Context, exiting <-chan struct{}) (bool, error) {
		return false, boom
	}

	h := startActivity(fn, nil, func() {
		t.Fatal("onComplete should not be called")
	}, func(err error) { errCh <- err })

	select {
	case err := <-errCh:
		require.Equal(t, boom, err)
	case <-time.After(time.Second):
		t.Fatal("onError never invoked")
	}
	h.stop()
}

func TestStopSignalsExitChannelAndWaits(t *testing.T) {
	started := make(chan struct{})
	fn := func(ctx *Context, exiting <-chan struct{}) (bool, error) {
		close(started)
		<-exiting
		return false, nil
	}

	h := startActivity(fn, nil, func() {}, func(error) {})
	<-started
	h.stop() // must return once the goroutine observes exitCh closing

	select {
	case <-h.exitCh:
	default:
		t.Fatal("exitCh should be closed after stop")
	}
}

func TestStopIsIdempotentOnHandle(t *testing.T) {
	fn := func(ctx *Context, exiting <-chan struct{}) (bool, error) {
		<-exiting
		return false, nil
	}
	h := startActivity(fn, nil, func() {}, func(error) {})
	h.stop()
	require.NotPanics(t, func() { h.stop() })
}
