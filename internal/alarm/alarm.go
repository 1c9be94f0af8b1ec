// Package alarm schedules one-shot wake-ups on the monotonic boot clock used by
// internal/clock. On Linux the wake-up can bring the machine out of suspend.
package alarm

import (
	"errors"
	"sync"
	"time"
)

// ErrInexact is returned by Arm when the alarm was scheduled but the platform
// denied exact (suspend-piercing) delivery. The alarm still fires, possibly late.
var ErrInexact = errors.New("alarm: exact wake-up not permitted, using inexact delivery")

// Alarm fires C once the monotonic clock reaches the armed deadline.
// Arming again replaces the previous deadline.
type Alarm interface {
	Arm(at time.Duration) error
	Disarm()
	C() <-chan struct{}
	Close() error
}

// Manual is an Alarm fired by the caller, for tests.
type Manual struct {
	c     chan struct{}
	mu    sync.Mutex
	armed time.Duration
	ok    bool
	err   error
}

// NewManual returns a Manual alarm whose Arm always returns armErr.
func NewManual(armErr error) *Manual {
	return &Manual{c: make(chan struct{}, 1), err: armErr}
}

func (m *Manual) Arm(at time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed, m.ok = at, true
	return m.err
}

func (m *Manual) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ok = false
}

func (m *Manual) C() <-chan struct{} { return m.c }
func (m *Manual) Close() error       { return nil }

// Armed reports the current deadline.
func (m *Manual) Armed() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed, m.ok
}

// Fire delivers the alarm regardless of the deadline.
func (m *Manual) Fire() {
	select {
	case m.c <- struct{}{}:
	default:
	}
}
