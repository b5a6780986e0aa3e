package toysm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerSchedulerDrainDueOrdering(t *testing.T) {
	s := NewTimerScheduler()
	base := time.Now()
	s.Schedule("inst", 2, 0, 20*time.Millisecond)
	s.Schedule("inst", 1, 0, 5*time.Millisecond)

	fired, _ := s.DrainDue(base.Add(10 * time.Millisecond))
	require.Len(t, fired, 1)
	require.Equal(t, NodeID(1), fired[0].Node)
}

func TestTimerSchedulerDrainDueReportsNextDelay(t *testing.T) {
	s := NewTimerScheduler()
	s.Schedule("inst", 1, 0, 5*time.Millisecond)
	s.Schedule("inst", 2, 0, 50*time.Millisecond)

	fired, nextDue := s.DrainDue(time.Now().Add(10 * time.Millisecond))
	require.Len(t, fired, 1)
	require.Greater(t, nextDue, time.Duration(0))
}

func TestTimerSchedulerCancelSkipsFiring(t *testing.T) {
	s := NewTimerScheduler()
	h := s.Schedule("inst", 1, 0, 5*time.Millisecond)
	s.Cancel(h)

	fired, _ := s.DrainDue(time.Now().Add(20 * time.Millisecond))
	require.Empty(t, fired)
}

func TestTimerSchedulerCancelIsIdempotent(t *testing.T) {
	s := NewTimerScheduler()
	h := s.Schedule("inst", 1, 0, 5*time.Millisecond)
	s.Cancel(h)
	require.NotPanics(t, func() { s.Cancel(h) })
	require.NotPanics(t, func() { s.Cancel(TimerHandle(999)) })
}

func TestTimerSchedulerNoEntriesNextDueZero(t *testing.T) {
	s := NewTimerScheduler()
	fired, nextDue := s.DrainDue(time.Now())
	require.Empty(t, fired)
	require.Equal(t, time.Duration(0), nextDue)
}
