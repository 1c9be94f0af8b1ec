package notifier

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"pomodorod/internal/eventbus"
	"pomodorod/internal/pomodoro"
	logx "pomodorod/pkg/logx"
)

// Sink receives alert operations. *Service implements it.
type Sink interface {
	Show(ctx context.Context, a Alert) error
	Update(ctx context.Context, a Alert) error
	Cancel(ctx context.Context, id string) error
}

// AdvisoryID is the alert id of the exact-wake advisory.
const AdvisoryID = "advisory:exact_wake"

// PhaseAlertID is stable per phase so progress updates replace one message.
func PhaseAlertID(p pomodoro.Phase) string { return "phase:" + string(p) }

// PhaseAlert renders the ongoing alert for a phase with time left.
func PhaseAlert(p pomodoro.Phase, minutes, seconds int64) Alert {
	a := Alert{ID: PhaseAlertID(p), Ongoing: true}
	switch p {
	case pomodoro.PhaseWork:
		a.Title = "Pomodoro Running"
		a.Body = fmt.Sprintf("Focus on your task: %02d:%02d", minutes, seconds)
	case pomodoro.PhaseRest:
		a.Title = "Nice work!"
		a.Body = fmt.Sprintf("Take a break: %02d:%02d", minutes, seconds)
	default:
		a.Title = "Pomodoro"
		a.Body = fmt.Sprintf("Take a break: %02d:%02d", minutes, seconds)
	}
	return a
}

func advisoryAlert() Alert {
	return Alert{
		ID:    AdvisoryID,
		Title: "Enable exact alarms",
		Body:  "Allow exact alarms in settings for reliable Pomodoro timing",
	}
}

// Alerts turns timer events from the bus into alert operations.
type Alerts struct {
	sink     Sink
	bus      eventbus.Bus
	interval atomic.Int64
	log      logx.Logger
	ready    chan struct{}

	lastUpdate time.Time
}

// NewAlerts maps timer events to sink. Progress edits are sent at most once
// per interval; 0 forwards every tick and a negative interval sends none.
func NewAlerts(sink Sink, bus eventbus.Bus, interval time.Duration, log logx.Logger) *Alerts {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Alerts{
		sink:  sink,
		bus:   bus,
		log:   log.With(logx.String("comp", "alerts")),
		ready: make(chan struct{}),
	}
	a.interval.Store(int64(interval))
	return a
}

// SetInterval changes the progress edit interval for the following ticks.
func (a *Alerts) SetInterval(d time.Duration) { a.interval.Store(int64(d)) }

// Ready is closed once Run is subscribed to the bus.
func (a *Alerts) Ready() <-chan struct{} { return a.ready }

// Run consumes timer events until ctx is canceled.
func (a *Alerts) Run(ctx context.Context) error {
	ch, unsub := a.bus.SubscribePrefix(128, pomodoro.TopicPrefix)
	defer unsub()
	close(a.ready)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			ev, ok := e.Data.(pomodoro.Event)
			if !ok {
				continue
			}
			if err := a.Handle(ctx, ev); err != nil {
				a.log.Debug("alert not queued", logx.String("event", string(ev.Type)), logx.Err(err))
			}
		}
	}
}

// Handle applies one timer event.
func (a *Alerts) Handle(ctx context.Context, e pomodoro.Event) error {
	switch e.Type {
	case pomodoro.EventStarted:
		a.lastUpdate = e.At
		alert := PhaseAlert(e.Phase, e.MinutesLeft, e.SecondsLeft)
		return a.sink.Show(ctx, alert)
	case pomodoro.EventResumed, pomodoro.EventRestored:
		if e.RemainingMs <= 0 {
			// expired while down; the FINISHED that follows starts the next phase
			return nil
		}
		a.lastUpdate = e.At
		alert := PhaseAlert(e.Phase, e.MinutesLeft, e.SecondsLeft)
		alert.Silent = true
		return a.sink.Show(ctx, alert)
	case pomodoro.EventTick:
		interval := time.Duration(a.interval.Load())
		if e.RemainingMs <= 0 || interval < 0 {
			return nil
		}
		if interval > 0 && !a.lastUpdate.IsZero() && e.At.Sub(a.lastUpdate) < interval {
			return nil
		}
		a.lastUpdate = e.At
		return a.sink.Update(ctx, PhaseAlert(e.Phase, e.MinutesLeft, e.SecondsLeft))
	case pomodoro.EventFinished, pomodoro.EventPaused:
		return a.sink.Cancel(ctx, PhaseAlertID(e.Phase))
	case pomodoro.EventReset:
		// the event reports the idle WORK phase, not the one that was running
		var err error
		for _, p := range []pomodoro.Phase{pomodoro.PhaseWork, pomodoro.PhaseRest, pomodoro.PhaseLongRest} {
			if cerr := a.sink.Cancel(ctx, PhaseAlertID(p)); cerr != nil && err == nil {
				err = cerr
			}
		}
		return err
	case pomodoro.EventAdvisory:
		return a.sink.Show(ctx, advisoryAlert())
	}
	return nil
}
