package pomodoro

import (
	"context"

	logx "pomodorod/pkg/logx"
)

// Restore rebuilds the countdown from the persisted checkpoint at startup.
//
// With no checkpoint the timer stays idle. A checkpoint whose deadline is
// still ahead resumes on that same deadline, crediting the time already
// spent in a WORK phase. A deadline that passed while the process was down
// finishes that phase (crediting exactly its nominal length) and starts the
// next one fresh at now: one transition however long the gap was.
//
// A checkpoint from another boot epoch is first moved onto the current
// monotonic timeline through its wall-clock deadline.
func (c *Countdown) Restore(ctx context.Context) []Event {
	cp, ok, err := c.cps.Load(ctx)
	if err != nil {
		c.log.Warn("checkpoint unreadable; starting idle", logx.Err(err))
		c.clearCheckpoint(ctx)
		return nil
	}
	if !ok {
		return nil
	}
	phaseDur := cp.PhaseDuration()
	if phaseDur <= 0 {
		c.log.Warn("checkpoint has no phase length; starting idle", logx.String("phase", string(cp.Phase)))
		c.clearCheckpoint(ctx)
		return nil
	}

	now := c.clk.Mono()
	end := cp.End
	moved := cp.Epoch != c.clk.Epoch()
	if moved {
		end = now
		if !cp.EndWall.IsZero() {
			end = now + cp.EndWall.Sub(c.clk.Now())
		}
		c.log.Info("checkpoint from another boot; translated via wall clock",
			logx.String("epoch", cp.Epoch), logx.Duration("remaining", max(end-now, 0)))
	}

	c.sched.restore(cp.Phase, cp.Worked)
	c.phaseBase = cp.Worked
	c.runID = cp.RunID
	if c.runID == "" {
		c.runID = c.newID()
	}
	c.phaseDur = phaseDur
	c.endRef = end
	c.paused = 0
	c.status = StatusRunning

	if end > now {
		// Credit the part of the phase that elapsed while we were gone.
		c.sched.Credit(min(now-(end-phaseDur), phaseDur))
		c.mark = now
		if moved {
			c.saveCheckpoint(ctx, now)
		}
		c.log.Info("countdown restored", logx.String("phase", string(cp.Phase)), logx.Duration("remaining", end-now))
		e := c.event(EventRestored, end-now)
		e.DurationMs = phaseDur.Milliseconds()
		return []Event{e}
	}

	c.sched.Credit(phaseDur)
	c.mark = end
	c.log.Info("phase expired while suspended", logx.String("phase", string(cp.Phase)), logx.Duration("overdue", now-end))
	e := c.event(EventRestored, 0)
	e.DurationMs = phaseDur.Milliseconds()
	return append([]Event{e}, c.finish(ctx, now)...)
}
