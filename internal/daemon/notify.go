// Package daemon reports service state to systemd (sd_notify) and keeps the
// watchdog fed while the app is healthy.
package daemon

import (
	"context"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"

	logx "pomodorod/pkg/logx"
)

type Config struct {
	Notify   bool
	Watchdog bool
}

// Notifier is a no-op outside systemd (NOTIFY_SOCKET unset).
type Notifier struct {
	cfg Config
	log logx.Logger

	notify   func(unsetEnv bool, state string) (bool, error)
	watchdog func(unsetEnv bool) (time.Duration, error)
}

func New(cfg Config, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		cfg:      cfg,
		log:      log.With(logx.String("comp", "systemd")),
		notify:   sd.SdNotify,
		watchdog: sd.SdWatchdogEnabled,
	}
}

func (n *Notifier) Ready() { n.send(sd.SdNotifyReady) }

func (n *Notifier) Stopping() { n.send(sd.SdNotifyStopping) }

func (n *Notifier) Reloading() { n.send(sd.SdNotifyReloading) }

// Reload brackets an in-place config reload with RELOADING=1 and READY=1.
func (n *Notifier) Reload(apply func()) {
	n.Reloading()
	defer n.Ready()
	apply()
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) { n.send("STATUS=" + msg) }

func (n *Notifier) send(state string) {
	if !n.cfg.Notify {
		return
	}
	ok, err := n.notify(false, state)
	switch {
	case err != nil:
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case !ok:
		n.log.Debug("sd_notify skipped (no socket)", logx.String("state", state))
	}
}

// RunWatchdog pings WATCHDOG=1 at half the configured interval while
// healthy returns nil. It returns immediately when the unit has no watchdog.
func (n *Notifier) RunWatchdog(ctx context.Context, healthy func() error) error {
	if !n.cfg.Notify || !n.cfg.Watchdog {
		return nil
	}
	every, err := n.watchdog(false)
	if err != nil {
		return err
	}
	if every <= 0 {
		n.log.Debug("watchdog not enabled for this unit")
		return nil
	}
	interval := every / 2
	n.log.Info("watchdog enabled", logx.Duration("interval", interval))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil {
				if err := healthy(); err != nil {
					n.log.Warn("watchdog ping withheld", logx.Err(err))
					continue
				}
			}
			n.send(sd.SdNotifyWatchdog)
		}
	}
}
