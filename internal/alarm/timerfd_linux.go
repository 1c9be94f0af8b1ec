//go:build linux

package alarm

import (
	"errors"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	logx "pomodorod/pkg/logx"
)

type timerfd struct {
	log     logx.Logger
	f       *os.File
	fd      int
	inexact bool
	c       chan struct{}

	mu     sync.Mutex
	closed bool
}

// New creates a timerfd on CLOCK_BOOTTIME_ALARM. Without CAP_WAKE_ALARM the
// kernel refuses that clock; the alarm then falls back to CLOCK_BOOTTIME, which
// shares the timeline but does not wake a suspended machine.
func New(log logx.Logger) (Alarm, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	inexact := false
	fd, err := unix.TimerfdCreate(unix.CLOCK_BOOTTIME_ALARM, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EINVAL) {
		inexact = true
		fd, err = unix.TimerfdCreate(unix.CLOCK_BOOTTIME, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	}
	if err != nil {
		return nil, err
	}
	a := &timerfd{
		log:     log,
		f:       os.NewFile(uintptr(fd), "timerfd"),
		fd:      fd,
		inexact: inexact,
		c:       make(chan struct{}, 1),
	}
	go a.readLoop()
	return a, nil
}

func (a *timerfd) readLoop() {
	var buf [8]byte
	for {
		if _, err := a.f.Read(buf[:]); err != nil {
			if errors.Is(err, os.ErrClosed) {
				return
			}
			if errors.Is(err, unix.ECANCELED) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			a.log.Warn("alarm read failed", logx.Err(err))
			return
		}
		select {
		case a.c <- struct{}{}:
		default:
		}
	}
}

func (a *timerfd) Arm(at time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return os.ErrClosed
	}
	// A zero it_value disarms, so deadlines in the past become "now".
	at = max(at, time.Nanosecond)
	spec := unix.ItimerSpec{Value: unix.NsecToTimespec(int64(at))}
	if err := unix.TimerfdSettime(a.fd, unix.TFD_TIMER_ABSTIME, &spec, nil); err != nil {
		return err
	}
	if a.inexact {
		return ErrInexact
	}
	return nil
}

func (a *timerfd) Disarm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	_ = unix.TimerfdSettime(a.fd, 0, &unix.ItimerSpec{}, nil)
}

func (a *timerfd) C() <-chan struct{} { return a.c }

func (a *timerfd) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.f.Close()
}
