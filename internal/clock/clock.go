// Package clock supplies the two time sources the timer needs: a wall clock
// for display, and a monotonic clock that keeps counting while the machine
// sleeps and is comparable across process restarts within one boot.
package clock

import "time"

// Clock is the timer's view of time.
type Clock interface {
	// Now is the wall clock, for display and broadcast only.
	Now() time.Time
	// Mono is the authoritative monotonic reading. It is unaffected by wall
	// clock adjustments and continues to advance during system suspend.
	Mono() time.Duration
	// Epoch identifies the Mono timeline. Readings taken under different
	// epochs (e.g. across a reboot) are not comparable.
	Epoch() string
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct{ t *time.Ticker }

func (t stdTicker) C() <-chan time.Time { return t.t.C }
func (t stdTicker) Stop()               { t.t.Stop() }

// System returns the host clock.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Mono() time.Duration { return bootTime() }

func (systemClock) Epoch() string { return bootEpoch() }

func (systemClock) NewTicker(d time.Duration) Ticker { return stdTicker{t: time.NewTicker(d)} }
