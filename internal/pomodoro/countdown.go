package pomodoro

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pomodorod/internal/clock"
	"pomodorod/internal/storage"
	logx "pomodorod/pkg/logx"
)

// Countdown is the phase countdown. It is not safe for concurrent use: the
// Host goroutine is its only caller. Every method returns the events it
// produced, in order.
type Countdown struct {
	clk    clock.Clock
	sched  *Scheduler
	source DurationSource
	cps    CheckpointStore
	log    logx.Logger
	newID  func() string

	status Status
	runID  string
	// phaseDur is the nominal length of the current phase, endRef its
	// monotonic deadline. phaseStart is derived as endRef - phaseDur.
	phaseDur time.Duration
	endRef   time.Duration
	// mark is the monotonic point up to which WORK time has been credited.
	mark time.Duration
	// paused is the remaining time while paused.
	paused time.Duration
	// phaseBase is the worked time when the current phase began.
	phaseBase time.Duration
}

type CountdownOptions struct {
	Clock     clock.Clock
	Durations DurationSource
	// Checkpoints defaults to an in-memory store.
	Checkpoints CheckpointStore
	Logger      logx.Logger
	// NewRunID defaults to random UUIDs.
	NewRunID func() string
}

func NewCountdown(o CountdownOptions) *Countdown {
	if o.Clock == nil {
		o.Clock = clock.System()
	}
	if o.Durations == nil {
		o.Durations = StaticDurations(DefaultDurations())
	}
	if o.Checkpoints.st == nil {
		o.Checkpoints = NewCheckpointStore(storage.NewMemory())
	}
	if o.NewRunID == nil {
		o.NewRunID = uuid.NewString
	}
	if o.Logger.IsZero() {
		o.Logger = logx.Nop()
	}
	return &Countdown{
		clk:    o.Clock,
		sched:  NewScheduler(),
		source: o.Durations,
		cps:    o.Checkpoints,
		log:    o.Logger.With(logx.String("comp", "countdown")),
		newID:  o.NewRunID,
		status: StatusIdle,
	}
}

func (c *Countdown) Status() Status          { return c.status }
func (c *Countdown) Phase() Phase            { return c.sched.Phase() }
func (c *Countdown) Worked() time.Duration   { return c.sched.Worked() }
func (c *Countdown) Deadline() time.Duration { return c.endRef }
func (c *Countdown) RunID() string           { return c.runID }

// Remaining is endRef - now while running and the frozen remainder while paused.
func (c *Countdown) Remaining() time.Duration {
	switch c.status {
	case StatusRunning:
		return max(c.endRef-c.clk.Mono(), 0)
	case StatusPaused:
		return c.paused
	}
	return 0
}

// Start begins phase p (the current phase when empty) for d (the configured
// length when d <= 0). A running countdown is replaced.
func (c *Countdown) Start(ctx context.Context, d time.Duration, p Phase) []Event {
	now := c.clk.Mono()
	if c.status == StatusRunning {
		c.account(now)
	}
	if p == "" {
		p = c.sched.Phase()
	}
	c.sched.Set(p)
	if d <= 0 {
		d = c.source.Durations(ctx).ForPhase(p)
	}
	c.runID = c.newID()
	c.phaseBase = c.sched.Worked()
	c.begin(ctx, now, d, d)
	c.log.Info("phase started", logx.String("phase", string(p)), logx.Duration("duration", d), logx.String("run", c.runID))
	return []Event{c.started()}
}

// Tick reports the remaining time and, once the deadline has passed,
// finishes the phase and starts the next one. It is a no-op unless running,
// which makes late or duplicate deliveries harmless.
func (c *Countdown) Tick(ctx context.Context) []Event {
	if c.status != StatusRunning {
		return nil
	}
	now := c.clk.Mono()
	c.account(now)
	if rem := c.endRef - now; rem > 0 {
		return []Event{c.event(EventTick, rem)}
	}
	return c.finish(ctx, now)
}

// Pause freezes the remaining time and clears the checkpoint. Pausing a
// countdown that is not running does nothing.
func (c *Countdown) Pause(ctx context.Context) []Event {
	if c.status != StatusRunning {
		return nil
	}
	now := c.clk.Mono()
	c.account(now)
	var evs []Event
	if c.endRef <= now {
		evs = c.finish(ctx, now)
	}
	rem := max(c.endRef-now, 0)
	c.paused = rem
	c.status = StatusPaused
	c.clearCheckpoint(ctx)

	e := c.event(EventPaused, rem)
	e.ElapsedMs = (c.phaseDur - rem).Milliseconds()
	e.DurationMs = c.phaseDur.Milliseconds()
	c.log.Info("phase paused", logx.String("phase", string(c.Phase())), logx.Duration("remaining", rem))
	return append(evs, e)
}

// Resume re-anchors the paused remainder at now. It does nothing unless
// paused with time left.
func (c *Countdown) Resume(ctx context.Context) []Event {
	if c.status != StatusPaused || c.paused <= 0 {
		return nil
	}
	now := c.clk.Mono()
	rem := c.paused
	c.begin(ctx, now, c.phaseDur, rem)
	c.log.Info("phase resumed", logx.String("phase", string(c.Phase())), logx.Duration("remaining", rem))
	return []Event{c.event(EventResumed, rem)}
}

// Reset returns to an idle WORK phase with no worked time.
func (c *Countdown) Reset(ctx context.Context, reason string) []Event {
	c.status = StatusIdle
	c.paused, c.endRef, c.mark, c.phaseDur, c.phaseBase = 0, 0, 0, 0, 0
	c.runID = ""
	c.sched.Reset()
	c.clearCheckpoint(ctx)
	c.log.Info("timer reset", logx.String("reason", reason))
	e := c.event(EventReset, 0)
	e.Reason = reason
	return []Event{e}
}

// ResetWorked zeroes the worked-time counter without touching the countdown.
func (c *Countdown) ResetWorked() {
	c.sched.restore(c.sched.Phase(), 0)
	c.phaseBase = 0
}

// Snapshot describes the current state. An idle timer reports the
// configured WORK length as its remaining time.
func (c *Countdown) Snapshot(ctx context.Context) Snapshot {
	rem, phaseDur := c.Remaining(), c.phaseDur
	if c.status == StatusIdle {
		phaseDur = c.source.Durations(ctx).Work
		rem = phaseDur
	}
	e := c.event(EventTick, rem)
	s := Snapshot{
		Status:          c.status,
		Phase:           c.Phase(),
		RemainingMs:     e.RemainingMs,
		MinutesLeft:     e.MinutesLeft,
		SecondsLeft:     e.SecondsLeft,
		PhaseDurationMs: phaseDur.Milliseconds(),
		WorkedMs:        c.sched.Worked().Milliseconds(),
		RunID:           c.runID,
		UpdatedAt:       e.At,
	}
	if c.status == StatusRunning {
		s.EndsAt = e.At.Add(rem)
	}
	return s
}

func (c *Countdown) finish(ctx context.Context, now time.Duration) []Event {
	prev := c.Phase()
	done := c.event(EventFinished, 0)
	done.DurationMs = c.phaseDur.Milliseconds()
	evs := []Event{c.event(EventTick, 0), done}

	next, d := c.sched.Advance(c.source.Durations(ctx))
	c.runID = c.newID()
	c.phaseBase = c.sched.Worked()
	c.begin(ctx, now, d, d)
	c.log.Info("phase finished", logx.String("phase", string(prev)), logx.String("next", string(next)),
		logx.Duration("worked", c.sched.Worked()), logx.Duration("duration", d))
	return append(evs, c.started())
}

// begin anchors a running segment of rem at now within a phase of length phaseDur.
func (c *Countdown) begin(ctx context.Context, now, phaseDur, rem time.Duration) {
	c.phaseDur = phaseDur
	c.endRef = now + rem
	c.mark = now
	c.paused = 0
	c.status = StatusRunning
	c.saveCheckpoint(ctx, now)
}

// account credits WORK time between the last mark and now, never past endRef.
func (c *Countdown) account(now time.Duration) {
	upto := min(now, c.endRef)
	if upto <= c.mark {
		return
	}
	c.sched.Credit(upto - c.mark)
	c.mark = upto
}

func (c *Countdown) saveCheckpoint(ctx context.Context, now time.Duration) {
	cp := Checkpoint{
		End:        c.endRef,
		PhaseStart: c.endRef - c.phaseDur,
		Phase:      c.Phase(),
		EndWall:    c.clk.Now().Add(c.endRef - now),
		Epoch:      c.clk.Epoch(),
		RunID:      c.runID,
		Worked:     c.phaseBase,
	}
	if err := c.cps.Save(ctx, cp); err != nil {
		c.log.Warn("checkpoint write failed", logx.Err(err))
	}
}

func (c *Countdown) clearCheckpoint(ctx context.Context) {
	if err := c.cps.Clear(ctx); err != nil {
		c.log.Warn("checkpoint clear failed", logx.Err(err))
	}
}

func (c *Countdown) event(t EventType, remaining time.Duration) Event {
	e := newEvent(t, c.Phase(), remaining, c.clk.Now())
	e.WorkedMs = c.sched.Worked().Milliseconds()
	e.RunID = c.runID
	return e
}

func (c *Countdown) started() Event {
	e := c.event(EventStarted, c.phaseDur)
	e.DurationMs = c.phaseDur.Milliseconds()
	return e
}
