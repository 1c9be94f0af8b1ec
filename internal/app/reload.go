package app

import (
	"context"
	"strings"
	"time"

	"pomodorod/internal/config"
	logx "pomodorod/pkg/logx"
)

// reloadLoop applies hot-reloaded configs published by the config watcher.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.sd.Reload(func() { a.applyConfig(ctx, lastApplied, newCfg) })
			lastApplied = newCfg
		}
	}
}

// restartOnly lists sections (or fields) a running process cannot swap.
func restartOnly(oldCfg, newCfg *config.Config) []string {
	var out []string
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if oldCfg.Telegram.Enabled != newCfg.Telegram.Enabled || oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		out = append(out, "telegram.enabled/token/poll_timeout")
	}
	if strings.TrimSpace(oldCfg.Timer.TickInterval) != strings.TrimSpace(newCfg.Timer.TickInterval) ||
		exactWake(oldCfg) != exactWake(newCfg) {
		out = append(out, "timer.tick_interval/exact_wake")
	}
	if oldCfg.Systemd != newCfg.Systemd {
		out = append(out, "systemd")
	}
	return out
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if r := restartOnly(oldCfg, newCfg); len(r) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("fields", strings.Join(r, ",")))
	}

	// Target first so Apply() doesn't warn when Telegram logging is enabled.
	if a.adapter != nil {
		a.logs.SetTelegramTarget(newCfg.Telegram.ChatID, newCfg.Logging.Telegram.ThreadID)
	}
	logCfg := mapLogConfig(newCfg)
	if a.adapter == nil {
		logCfg.Telegram.Enabled = false
	}
	a.logs.Apply(logCfg)

	if a.router != nil {
		a.router.SetOwners(newCfg.Telegram.OwnerUserIDs)
	}

	// Only keys whose config value changed are written, so durations set
	// at runtime survive unrelated edits.
	if keys := changedDurationKeys(oldCfg, newCfg); len(keys) > 0 {
		d := mapDurations(newCfg)
		for _, k := range keys {
			got, err := a.settings.Set(ctx, k, d.Get(k))
			if err != nil {
				a.log.Warn("writing timer setting failed", logx.String("key", string(k)), logx.Err(err))
				continue
			}
			a.log.Info("timer setting written from config", logx.String("key", string(k)), logx.Duration("value", got))
		}
	}

	prevNotif := a.notif.Enabled()
	ncfg := mapNotifierConfig(newCfg)
	if a.adapter == nil {
		ncfg.Enabled = false
	}
	a.notif.Apply(ncfg)
	switch {
	case prevNotif && !ncfg.Enabled:
		a.log.Info("alerts disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !prevNotif && ncfg.Enabled:
		a.log.Info("alerts enabled via config")
		a.notif.Start(ctx)
	}
	a.alerts.SetInterval(mapProgressInterval(newCfg))

	a.http.Reconfigure(ctx, mapHTTPConfig(newCfg))

	if err := a.maint.Apply(ctx, mapMaintenanceConfig(newCfg)); err != nil {
		a.log.Warn("invalid maintenance config; jobs stopped", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
