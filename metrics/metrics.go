// Package metrics exposes a Machine's lifecycle as Prometheus
// collectors, the same concern the teacher's pkg/observers.
// MetricsObserver covers with in-memory counters, rewired here onto
// real client_golang instruments so the numbers survive process
// restarts' worth of scraping rather than living only in a Go map.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/willakat/toysm"
)

// Sampler is the subset of Machine a Collector polls for gauges that
// aren't naturally event-driven (queue depth, live do-activity
// workers). toysm.Machine satisfies it.
type Sampler interface {
	QueueDepth() int
	ActiveDoActivityWorkers() int64
}

// Collector implements toysm.Observer and toysm.ActiveCountObserver,
// translating every lifecycle notification into a Prometheus
// instrument labeled by machine name. Register it with both a Machine
// (AddObserver) and a prometheus.Registerer (through its MustRegister
// method) to start collecting.
type Collector struct {
	machine string
	sampler Sampler

	transitionsFired *prometheus.CounterVec
	errors           *prometheus.CounterVec
	activeInstances  *prometheus.GaugeVec
	queueDepth       *prometheus.GaugeVec
	doActivityGauge  *prometheus.GaugeVec
	timersScheduled  *prometheus.CounterVec
}

// NewCollector builds a Collector labeled with machine, reading gauge
// values from sampler each time Sample is called (it does not poll on
// a timer of its own).
func NewCollector(machine string, sampler Sampler) *Collector {
	return &Collector{
		machine: machine,
		sampler: sampler,
		transitionsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toysm_transitions_fired_total",
			Help: "Total number of transitions fired, including internal and entry-chain steps.",
		}, []string{"machine", "instance"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toysm_runtime_errors_total",
			Help: "Total number of runtime errors caught from guard/action/hook/do-activity code.",
		}, []string{"machine", "instance"}),
		activeInstances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "toysm_active_instances",
			Help: "Number of demuxed instances currently live.",
		}, []string{"machine"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "toysm_event_queue_depth",
			Help: "Number of items currently queued awaiting the run loop.",
		}, []string{"machine"}),
		doActivityGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "toysm_do_activity_workers",
			Help: "Number of do-activity worker goroutines currently running.",
		}, []string{"machine"}),
		timersScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toysm_timers_scheduled_total",
			Help: "Total number of after() timeout transitions armed.",
		}, []string{"machine", "instance"}),
	}
}

// MustRegister registers every instrument on reg, panicking the way
// prometheus.MustRegister does on a duplicate registration.
func (c *Collector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.transitionsFired,
		c.errors,
		c.activeInstances,
		c.queueDepth,
		c.doActivityGauge,
		c.timersScheduled,
	)
}

// Sample refreshes the gauges that have no natural event to drive
// them (queue depth, live workers). Call it from a scrape handler or
// a periodic ticker; the counters and the instance gauge update
// themselves as lifecycle events arrive.
func (c *Collector) Sample() {
	c.queueDepth.WithLabelValues(c.machine).Set(float64(c.sampler.QueueDepth()))
	c.doActivityGauge.WithLabelValues(c.machine).Set(float64(c.sampler.ActiveDoActivityWorkers()))
}

var _ toysm.Observer = (*Collector)(nil)
var _ toysm.ActiveCountObserver = (*Collector)(nil)

func (c *Collector) OnStateEnter(instance, state string) {}
func (c *Collector) OnStateExit(instance, state string)  {}

func (c *Collector) OnTransitionFired(instance string) {
	c.transitionsFired.WithLabelValues(c.machine, instance).Inc()
}

func (c *Collector) OnError(instance string, err error) {
	c.errors.WithLabelValues(c.machine, instance).Inc()
}

func (c *Collector) OnDoActivityStart(instance, state string)    {}
func (c *Collector) OnDoActivityComplete(instance, state string) {}

func (c *Collector) OnTimerScheduled(instance, state string, delay time.Duration) {
	c.timersScheduled.WithLabelValues(c.machine, instance).Inc()
}

func (c *Collector) OnActiveInstancesChanged(count int) {
	c.activeInstances.WithLabelValues(c.machine).Set(float64(count))
}
