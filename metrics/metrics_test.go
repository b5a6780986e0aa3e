package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

type fakeSampler struct {
	depth   int
	workers int64
}

func (f fakeSampler) QueueDepth() int              { return f.depth }
func (f fakeSampler) ActiveDoActivityWorkers() int64 { return f.workers }

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestCollectorRegistersWithoutPanic(t *testing.T) {
	c := NewCollector("demo", fakeSampler{})
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { c.MustRegister(reg) })
}

func TestCollectorTransitionAndErrorCounters(t *testing.T) {
	c := NewCollector("demo", fakeSampler{})
	reg := prometheus.NewRegistry()
	c.MustRegister(reg)

	c.OnTransitionFired("inst1")
	c.OnTransitionFired("inst1")
	require.Equal(t, float64(2), counterValue(t, c.transitionsFired.WithLabelValues("demo", "inst1")))

	c.OnError("inst1", errors.New("boom"))
	require.Equal(t, float64(1), counterValue(t, c.errors.WithLabelValues("demo", "inst1")))
}

func TestCollectorTimerCounter(t *testing.T) {
	c := NewCollector("demo", fakeSampler{})
	c.OnTimerScheduled("inst1", "s1", time.Second)
	require.Equal(t, float64(1), counterValue(t, c.timersScheduled.WithLabelValues("demo", "inst1")))
}

func TestCollectorActiveInstancesGauge(t *testing.T) {
	c := NewCollector("demo", fakeSampler{})
	c.OnActiveInstancesChanged(3)
	require.Equal(t, float64(3), gaugeValue(t, c.activeInstances.WithLabelValues("demo")))
}

func TestCollectorSamplePullsFromSampler(t *testing.T) {
	c := NewCollector("demo", fakeSampler{depth: 5, workers: 2})
	c.Sample()
	require.Equal(t, float64(5), gaugeValue(t, c.queueDepth.WithLabelValues("demo")))
	require.Equal(t, float64(2), gaugeValue(t, c.doActivityGauge.WithLabelValues("demo")))
}
