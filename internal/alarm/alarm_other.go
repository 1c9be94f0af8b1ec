//go:build !linux

package alarm

import (
	"sync"
	"time"

	"pomodorod/internal/clock"
	logx "pomodorod/pkg/logx"
)

// New returns an in-process timer alarm. It cannot wake a suspended machine,
// so every Arm reports ErrInexact.
func New(log logx.Logger) (Alarm, error) {
	return &timerAlarm{clk: clock.System(), c: make(chan struct{}, 1)}, nil
}

type timerAlarm struct {
	clk clock.Clock
	c   chan struct{}

	mu sync.Mutex
	t  *time.Timer
}

func (a *timerAlarm) Arm(at time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.t != nil {
		a.t.Stop()
	}
	a.t = time.AfterFunc(max(at-a.clk.Mono(), 0), func() {
		select {
		case a.c <- struct{}{}:
		default:
		}
	})
	return ErrInexact
}

func (a *timerAlarm) Disarm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.t != nil {
		a.t.Stop()
		a.t = nil
	}
}

func (a *timerAlarm) C() <-chan struct{} { return a.c }

func (a *timerAlarm) Close() error {
	a.Disarm()
	return nil
}
