package toysm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewEventStampsIDAndTimestamp(t *testing.T) {
	evt := NewEvent("go", 42)
	require.NotEmpty(t, evt.ID)
	require.Equal(t, "go", evt.Name)
	require.Equal(t, 42, evt.Data)
	require.False(t, evt.Timestamp.IsZero())
	require.NotNil(t, evt.Metadata)
}

func TestEventQueuePriorityOrdering(t *testing.T) {
	q := NewEventQueue()
	q.Put(tierStandard, "standard")
	q.Put(tierInit, "init")
	q.Put(tierCompletion, "completion")

	first, err := q.Get(time.Second)
	require.NoError(t, err)
	require.Equal(t, "completion", first)

	second, err := q.Get(time.Second)
	require.NoError(t, err)
	require.Equal(t, "init", second)

	third, err := q.Get(time.Second)
	require.NoError(t, err)
	require.Equal(t, "standard", third)
}

func TestEventQueueFIFOWithinTier(t *testing.T) {
	q := NewEventQueue()
	q.Put(tierStandard, "a")
	q.Put(tierStandard, "b")
	q.Put(tierStandard, "c")

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Get(time.Second)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestEventQueueGetTimesOutWhenEmpty(t *testing.T) {
	q := NewEventQueue()
	_, err := q.Get(10 * time.Millisecond)
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestEventQueueSettleRequiresWaitingConsumer(t *testing.T) {
	q := NewEventQueue()

	consumerBlocked := make(chan struct{})
	go func() {
		close(consumerBlocked)
		_, _ = q.Get(time.Second)
	}()
	<-consumerBlocked
	time.Sleep(20 * time.Millisecond) // let the goroutine actually enter Get's wait

	require.True(t, q.Settle(time.Second))
}

func TestEventQueueSettleFalseWithNoConsumerWaiting(t *testing.T) {
	q := NewEventQueue()
	require.False(t, q.Settle(20*time.Millisecond))
}

func TestEventQueueSettleFalseWithPendingItem(t *testing.T) {
	q := NewEventQueue()
	q.Put(tierStandard, "pending")
	require.False(t, q.Settle(20*time.Millisecond))
}

func TestEventQueueLen(t *testing.T) {
	q := NewEventQueue()
	require.Equal(t, 0, q.Len())
	q.Put(tierStandard, "x")
	require.Equal(t, 1, q.Len())
	_, _ = q.Get(time.Second)
	require.Equal(t, 0, q.Len())
}
