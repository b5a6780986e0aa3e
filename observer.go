package toysm

import (
	"time"

	"github.com/rs/zerolog"
)

// Observer receives lifecycle notifications from a running Machine.
// Grounded on the teacher's StateMachineObserver (OnStateEnter/
// OnStateExit/OnTransition/OnEventProcessed/OnError), extended per
// SPEC_FULL §6 with do-activity and timer lifecycle hooks the teacher
// lacked.
type Observer interface {
	OnStateEnter(instance, state string)
	OnStateExit(instance, state string)
	OnTransitionFired(instance string)
	OnError(instance string, err error)
	OnDoActivityStart(instance, state string)
	OnDoActivityComplete(instance, state string)
	OnTimerScheduled(instance, state string, delay time.Duration)
}

// ActiveCountObserver is an optional extension an Observer can
// additionally implement to be told how many instances a demuxed
// machine currently has live; the metrics Collector uses it for its
// gauge.
type ActiveCountObserver interface {
	OnActiveInstancesChanged(count int)
}

// LoggingObserver forwards every lifecycle notification into a
// zerolog.Logger at debug level (error level for OnError), replacing
// the teacher's pkg/observers.LoggingObserver, which wrote formatted
// lines straight to stdout via fmt.Printf.
type LoggingObserver struct {
	Logger zerolog.Logger
}

// NewLoggingObserver builds an observer bound to l.
func NewLoggingObserver(l zerolog.Logger) *LoggingObserver {
	return &LoggingObserver{Logger: l}
}

func (o *LoggingObserver) OnStateEnter(instance, state string) {
	o.Logger.Debug().Str("instance", instance).Str("state", state).Msg("state entered")
}

func (o *LoggingObserver) OnStateExit(instance, state string) {
	o.Logger.Debug().Str("instance", instance).Str("state", state).Msg("state exited")
}

func (o *LoggingObserver) OnTransitionFired(instance string) {
	o.Logger.Debug().Str("instance", instance).Msg("transition fired")
}

func (o *LoggingObserver) OnError(instance string, err error) {
	o.Logger.Error().Str("instance", instance).Err(err).Msg("machine error")
}

func (o *LoggingObserver) OnDoActivityStart(instance, state string) {
	o.Logger.Debug().Str("instance", instance).Str("state", state).Msg("do-activity started")
}

func (o *LoggingObserver) OnDoActivityComplete(instance, state string) {
	o.Logger.Debug().Str("instance", instance).Str("state", state).Msg("do-activity completed")
}

func (o *LoggingObserver) OnTimerScheduled(instance, state string, delay time.Duration) {
	o.Logger.Debug().Str("instance", instance).Str("state", state).Dur("delay", delay).Msg("timer scheduled")
}
