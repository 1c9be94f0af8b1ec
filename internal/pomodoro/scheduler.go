package pomodoro

import (
	"fmt"
	"time"
)

// NextPhase is the transition rule: WORK goes to LONG_REST once the worked
// time reaches the threshold and to REST otherwise; both rests go to WORK.
// It panics on an unknown phase.
func NextPhase(current Phase, worked, threshold time.Duration) (Phase, DurationKey) {
	switch current {
	case PhaseWork:
		if worked >= threshold {
			return PhaseLongRest, KeyLongRest
		}
		return PhaseRest, KeyShortRest
	case PhaseRest, PhaseLongRest:
		return PhaseWork, KeyWork
	}
	panic(fmt.Sprintf("pomodoro: unknown phase %q", current))
}

// Scheduler owns the phase and the worked-time counter.
type Scheduler struct {
	phase  Phase
	worked time.Duration
}

func NewScheduler() *Scheduler { return &Scheduler{phase: PhaseWork} }

func (s *Scheduler) Phase() Phase          { return s.phase }
func (s *Scheduler) Worked() time.Duration { return s.worked }

// Credit adds real elapsed WORK time. Non-WORK phases and negative deltas are
// ignored.
func (s *Scheduler) Credit(delta time.Duration) {
	if s.phase != PhaseWork || delta <= 0 {
		return
	}
	s.worked += delta
}

// Advance applies the transition rule using d and returns the new phase and
// its nominal duration. Entering LONG_REST zeroes the worked time.
func (s *Scheduler) Advance(d Durations) (Phase, time.Duration) {
	next, key := NextPhase(s.phase, s.worked, d.LongRestThreshold)
	s.enter(next)
	return next, d.Get(key)
}

// Set jumps to p without applying the transition rule (explicit START).
func (s *Scheduler) Set(p Phase) {
	if !p.Valid() {
		panic(fmt.Sprintf("pomodoro: unknown phase %q", p))
	}
	s.enter(p)
}

func (s *Scheduler) enter(p Phase) {
	if p == PhaseLongRest {
		s.worked = 0
	}
	s.phase = p
}

// Reset returns to WORK with no worked time.
func (s *Scheduler) Reset() {
	s.phase = PhaseWork
	s.worked = 0
}

func (s *Scheduler) restore(p Phase, worked time.Duration) {
	s.phase = p
	s.worked = max(worked, 0)
}
