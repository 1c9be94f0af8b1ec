package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"pomodorod/internal/alarm"
	"pomodorod/internal/clock"
	"pomodorod/internal/config"
	"pomodorod/internal/daemon"
	"pomodorod/internal/eventbus"
	"pomodorod/internal/maintenance"
	"pomodorod/internal/notifier"
	"pomodorod/internal/pomodoro"
	rtsup "pomodorod/internal/runtime/supervisor"
	"pomodorod/internal/storage"
	kit "pomodorod/internal/transport"
	"pomodorod/internal/transport/httpapi"
	telegram "pomodorod/internal/transport/telegram/adapter"
	"pomodorod/internal/transport/telegram/router"
	logx "pomodorod/pkg/logx"
)

var errHostDown = errors.New("timer host is not running")

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	settings *pomodoro.Settings
	wake     alarm.Alarm
	host     *pomodoro.Host
	ctrl     *pomodoro.Controller
	hostUp   atomic.Bool

	// adapter and router are nil when telegram is disabled.
	adapter *telegram.Adapter
	router  *router.Router
	notif   *notifier.Service
	alerts  *notifier.Alerts

	http  *httpapi.Service
	maint *maintenance.Service
	sd    *daemon.Notifier

	updates chan kit.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	return newApp(cfgPath, clock.System())
}

func newApp(cfgPath string, clk clock.Clock) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Telegram logging needs the adapter, which wants a logger itself, so
	// bootstrap without it and apply the final config once the sender exists.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, root := logx.New(bootCfg, nil)
	log := root.With(logx.String("comp", "app"))

	var ad *telegram.Adapter
	if cfg.Telegram.Enabled {
		ad, err = telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: mapTelegramPollTimeout(cfg),
		}, root)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		logSvc.SetSender(ad)
		logSvc.SetTelegramTarget(cfg.Telegram.ChatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)

	sc := mapStorageConfig(cfg)
	store, err := storage.Open(sc, root)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	settings := pomodoro.NewSettings(store, pomodoro.SettingsOptions{}, root)
	if err := settings.Seed(context.Background(), mapDurations(cfg)); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seed settings: %w", err)
	}

	var wake alarm.Alarm
	if exactWake(cfg) {
		if wake, err = alarm.New(root); err != nil {
			log.Warn("exact wake unavailable; relying on ticks", logx.Err(err))
			wake = nil
		}
	}

	bus := eventbus.New()
	cd := pomodoro.NewCountdown(pomodoro.CountdownOptions{
		Clock:       clk,
		Durations:   settings,
		Checkpoints: pomodoro.NewCheckpointStore(store),
		Logger:      root,
	})
	host := pomodoro.NewHost(pomodoro.HostOptions{
		Countdown:    cd,
		Alarm:        wake,
		TickInterval: mapTickInterval(cfg),
		Logger:       root,
	})
	ctrl := pomodoro.NewController(pomodoro.ControllerOptions{
		Host:     host,
		Settings: settings,
		Bus:      bus,
		Logger:   root,
	})

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		settings: settings,
		wake:     wake,
		host:     host,
		ctrl:     ctrl,
		adapter:  ad,
		maint:    maintenance.New(mapMaintenanceConfig(cfg), store, ctrl, root),
		sd:       daemon.New(mapDaemonConfig(cfg), root),
		updates:  make(chan kit.Update, 64),
	}

	// A nil *telegram.Adapter must not leak into the kit.Adapter interface.
	var sink kit.Adapter
	if ad != nil {
		sink = ad
		a.router = router.New(root, ad, cfg.Telegram.OwnerUserIDs)
		a.router.Register(router.TimerCommands(ctrl, settings)...)
		a.router.RegisterButtons(router.TimerButtons(ctrl))
	}
	a.notif = notifier.New(mapNotifierConfig(cfg), sink, root, bus)
	a.alerts = notifier.NewAlerts(a.notif, bus, mapProgressInterval(cfg), root)

	a.http = httpapi.New(mapHTTPConfig(cfg), httpapi.Deps{
		Timer:    ctrl,
		Settings: settings,
		Bus:      bus,
		Health:   a.health,
	}, root)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() error {
	if !a.hostUp.Load() {
		return errHostDown
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	sctx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if tz := strings.TrimSpace(cfg.Maintenance.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("maintenance.timezone: invalid %q: %w", tz, err)
			}
		}
		return nil
	})

	// Observers come up before the host so the RESTORED event of a
	// recovered countdown reaches them.
	a.sup.Go("alerts", a.alerts.Run)
	a.sup.Go("timer.controller", a.ctrl.Run)
	for _, ready := range []<-chan struct{}{a.alerts.Ready(), a.ctrl.Ready()} {
		select {
		case <-ready:
		case <-sctx.Done():
			return sctx.Err()
		}
	}
	a.hostUp.Store(true)
	a.sup.Go("timer.host", func(c context.Context) error {
		defer a.hostUp.Store(false)
		return a.host.Run(c)
	})

	if a.notif.Enabled() {
		a.notif.Start(sctx)
	}
	if a.adapter != nil {
		if err := a.adapter.Start(sctx, a.updates); err != nil {
			return err
		}
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.router.Run(c, a.updates)
		})
		a.sup.Go0("commands.menu", func(c context.Context) {
			if err := a.router.PublishMenu(c); err != nil {
				a.log.Warn("publishing command menu failed", logx.Err(err))
			}
		})
	}
	a.http.Start(sctx)
	if err := a.maint.Start(sctx); err != nil {
		return err
	}

	a.sup.Go0("events.log", a.logEvents)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return a.sd.RunWatchdog(c, a.health)
	})

	a.sd.Ready()
	a.log.Info("app started")
	return nil
}

// logEvents keeps the systemd status line current and logs state changes.
func (a *App) logEvents(ctx context.Context) {
	ch, unsub := a.bus.SubscribePrefix(64, pomodoro.TopicPrefix)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			ev, ok := e.Data.(pomodoro.Event)
			if !ok || !ev.Critical() {
				continue
			}
			a.log.Debug("timer event",
				logx.String("type", string(ev.Type)),
				logx.String("phase", string(ev.Phase)),
				logx.Int64("remaining_ms", ev.RemainingMs),
				logx.String("run_id", ev.RunID),
			)
			a.sd.Status(statusLine(ev))
		}
	}
}

func statusLine(e pomodoro.Event) string {
	switch e.Type {
	case pomodoro.EventStarted, pomodoro.EventResumed, pomodoro.EventRestored:
		return fmt.Sprintf("%s running, %02d:%02d left", e.Phase, e.MinutesLeft, e.SecondsLeft)
	case pomodoro.EventPaused:
		return fmt.Sprintf("%s paused, %02d:%02d left", e.Phase, e.MinutesLeft, e.SecondsLeft)
	case pomodoro.EventFinished:
		return fmt.Sprintf("%s finished", e.Phase)
	case pomodoro.EventReset:
		return "idle"
	case pomodoro.EventAdvisory:
		return "running without exact wake"
	}
	return string(e.Type)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Drain alerts before the app context goes away: cancel-on-pause
	// messages are worth delivering on the way out.
	step(ctx, a.log, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })

	a.sup.Cancel()

	step(ctx, a.log, "httpapi", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step(ctx, a.log, "maintenance", 2*time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	if a.adapter != nil {
		step(ctx, a.log, "adapter", 2*time.Second, a.adapter.Stop)
	}
	// The host must be gone before the store closes: it owns the checkpoint.
	step(ctx, a.log, "supervisor", 3*time.Second, a.sup.Wait)
	if a.wake != nil {
		step(ctx, a.log, "alarm", time.Second, func(context.Context) error { return a.wake.Close() })
	}
	step(ctx, a.log, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so a stuck component
// can't stall the whole stop. The caller's deadline is never extended.
func step(ctx context.Context, log logx.Logger, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		log.Warn("stop step skipped: deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			log.Info("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
		}()
	}
}
