package pomodoro

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pomodorod/internal/alarm"
	"pomodorod/internal/clock"
	logx "pomodorod/pkg/logx"
)

var ErrHostStopped = errors.New("timer host stopped")

// Advisory reasons carried by ADVISORY events.
const AdvisoryInexactWake = "exact_wake_denied"

type HostOptions struct {
	Countdown *Countdown
	// Alarm is optional; without it expiry is detected by ticks alone.
	Alarm        alarm.Alarm
	TickInterval time.Duration
	EventBuffer  int
	Logger       logx.Logger
}

// Host runs the countdown on a single goroutine. Commands, ticks and alarm
// deliveries are all serialized through Run, so the countdown needs no locks
// and at most one ticker is ever live.
//
// Events must be drained: TICK events are dropped when the buffer is full,
// every other event waits for room.
type Host struct {
	cd        *Countdown
	clk       clock.Clock
	alarm     alarm.Alarm
	tickEvery time.Duration
	log       logx.Logger

	cmds    chan envelope
	events  chan Event
	stopped chan struct{}

	ticker  clock.Ticker
	armedAt time.Duration
	armedID string
	advised bool
	exact   bool

	mu   sync.RWMutex
	snap Snapshot
}

type envelope struct {
	fn   func(ctx context.Context) []Event
	done chan Snapshot
}

func NewHost(o HostOptions) *Host {
	if o.Countdown == nil {
		o.Countdown = NewCountdown(CountdownOptions{Logger: o.Logger})
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.Logger.IsZero() {
		o.Logger = logx.Nop()
	}
	h := &Host{
		cd:        o.Countdown,
		clk:       o.Countdown.clk,
		alarm:     o.Alarm,
		tickEvery: o.TickInterval,
		log:       o.Logger.With(logx.String("comp", "host")),
		cmds:      make(chan envelope),
		events:    make(chan Event, o.EventBuffer),
		stopped:   make(chan struct{}),
	}
	h.snap = h.cd.Snapshot(context.Background())
	return h
}

func (h *Host) Events() <-chan Event { return h.events }

// Snapshot returns the state after the last processed command or tick.
func (h *Host) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap
}

// Send applies cmd on the host goroutine and returns the resulting state.
func (h *Host) Send(ctx context.Context, cmd Command) (Snapshot, error) {
	if err := cmd.Validate(); err != nil {
		return Snapshot{}, err
	}
	return h.do(ctx, func(ctx context.Context) []Event { return h.exec(ctx, cmd) })
}

// ResetWorkedIfIdle zeroes the worked-time counter when no countdown is
// active and reports whether it did.
func (h *Host) ResetWorkedIfIdle(ctx context.Context) (bool, error) {
	var did bool
	_, err := h.do(ctx, func(context.Context) []Event {
		if h.cd.Status() == StatusIdle && h.cd.Worked() > 0 {
			h.cd.ResetWorked()
			did = true
		}
		return nil
	})
	return did, err
}

func (h *Host) do(ctx context.Context, fn func(ctx context.Context) []Event) (Snapshot, error) {
	env := envelope{fn: fn, done: make(chan Snapshot, 1)}
	select {
	case h.cmds <- env:
	case <-h.stopped:
		return Snapshot{}, ErrHostStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-env.done:
		return s, nil
	case <-h.stopped:
		return Snapshot{}, ErrHostStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Run restores any checkpointed countdown and then serves commands until
// ctx is canceled.
func (h *Host) Run(ctx context.Context) error {
	defer close(h.stopped)
	defer h.stopWake()

	h.apply(ctx, h.cd.Restore(ctx))
	for {
		var tickC <-chan time.Time
		if h.ticker != nil {
			tickC = h.ticker.C()
		}
		var alarmC <-chan struct{}
		if h.alarm != nil {
			alarmC = h.alarm.C()
		}

		select {
		case <-ctx.Done():
			return nil
		case env := <-h.cmds:
			h.apply(ctx, env.fn(ctx))
			env.done <- h.Snapshot()
		case <-tickC:
			h.log.Trace("tick", logx.Duration("remaining", h.cd.Remaining()), logx.String("run_id", h.cd.RunID()))
			h.apply(ctx, h.cd.Tick(ctx))
		case <-alarmC:
			h.log.Debug("wake alarm delivered")
			h.apply(ctx, h.cd.Tick(ctx))
		}
	}
}

func (h *Host) exec(ctx context.Context, cmd Command) []Event {
	switch cmd.Action {
	case ActionStart:
		return h.cd.Start(ctx, time.Duration(cmd.DurationMs)*time.Millisecond, cmd.Phase)
	case ActionPause:
		return h.cd.Pause(ctx)
	case ActionResume:
		return h.cd.Resume(ctx)
	case ActionReset:
		reason := cmd.Reason
		if reason == "" {
			reason = ReasonUser
		}
		return h.cd.Reset(ctx, reason)
	case ActionAlarmFired:
		return h.cd.Tick(ctx)
	}
	panic(fmt.Sprintf("pomodoro: unhandled action %q", cmd.Action))
}

// apply reconciles the ticker and alarm with the countdown, refreshes the
// snapshot and then publishes evs.
func (h *Host) apply(ctx context.Context, evs []Event) {
	if adv, ok := h.syncWake(); ok {
		evs = append(evs, adv)
	}
	snap := h.cd.Snapshot(ctx)
	snap.ExactWake = h.exact
	h.mu.Lock()
	h.snap = snap
	h.mu.Unlock()

	for _, e := range evs {
		h.emit(ctx, e)
	}
}

// syncWake keeps exactly one ticker and one alarm per running segment. A
// changed deadline or run id means a new segment: the old ticker is stopped
// before the new one starts.
func (h *Host) syncWake() (Event, bool) {
	if h.cd.Status() != StatusRunning {
		h.stopWake()
		return Event{}, false
	}
	end, id := h.cd.Deadline(), h.cd.RunID()
	if h.ticker != nil && end == h.armedAt && id == h.armedID {
		return Event{}, false
	}
	h.stopWake()
	h.ticker = h.clk.NewTicker(h.tickEvery)
	h.armedAt, h.armedID = end, id
	if h.alarm == nil {
		return Event{}, false
	}

	err := h.alarm.Arm(end)
	h.exact = err == nil
	if err == nil {
		return Event{}, false
	}
	if !errors.Is(err, alarm.ErrInexact) {
		h.log.Warn("wake alarm not armed; relying on ticks", logx.Err(err))
	}
	if h.advised {
		return Event{}, false
	}
	h.advised = true
	h.log.Warn("exact wake-up denied; phase changes may be late while suspended", logx.Err(err))
	e := newEvent(EventAdvisory, h.cd.Phase(), h.cd.Remaining(), h.clk.Now())
	e.Reason = AdvisoryInexactWake
	return e, true
}

func (h *Host) stopWake() {
	if h.ticker != nil {
		h.ticker.Stop()
		h.ticker = nil
	}
	if h.alarm != nil && h.armedID != "" {
		h.alarm.Disarm()
	}
	h.armedAt, h.armedID = 0, ""
}

func (h *Host) emit(ctx context.Context, e Event) {
	if !e.Critical() {
		select {
		case h.events <- e:
		default:
		}
		return
	}
	select {
	case h.events <- e:
	case <-ctx.Done():
	}
}
