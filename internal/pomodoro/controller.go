package pomodoro

import (
	"context"
	"strings"
	"sync"

	"pomodorod/internal/eventbus"
	logx "pomodorod/pkg/logx"
)

// Bus event types published by the Controller.
const (
	TopicPrefix   = "timer."
	TopicSettings = "settings.changed"
)

// RESET reasons.
const (
	ReasonUser     = "user"
	ReasonSettings = "settings"
)

// Topic maps an event type to its bus event type ("timer.tick").
func Topic(t EventType) string { return TopicPrefix + strings.ToLower(string(t)) }

type ControllerOptions struct {
	Host *Host
	// Settings is optional; without it duration changes are not watched.
	Settings *Settings
	Bus      eventbus.Bus
	Logger   logx.Logger
}

// Controller is the thin observer between the Host and its users. It never
// computes time: it forwards commands, republishes host events on the bus
// and turns settings changes into resets.
type Controller struct {
	host     *Host
	settings *Settings
	bus      eventbus.Bus
	log      logx.Logger

	ready chan struct{}

	mu   sync.RWMutex
	last Event
}

func NewController(o ControllerOptions) *Controller {
	if o.Bus == nil {
		o.Bus = eventbus.New()
	}
	if o.Logger.IsZero() {
		o.Logger = logx.Nop()
	}
	return &Controller{
		host:     o.Host,
		settings: o.Settings,
		bus:      o.Bus,
		log:      o.Logger.With(logx.String("comp", "controller")),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once Run is watching settings and pumping events.
func (c *Controller) Ready() <-chan struct{} { return c.ready }

func (c *Controller) Bus() eventbus.Bus { return c.bus }

// Run pumps host events and watches settings until ctx is canceled. Event
// pumping has its own goroutine so a reset caused by a settings change can
// wait on the host while the host waits on its event channel.
func (c *Controller) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.pump(ctx)
	}()
	defer func() { <-done }()

	var changes <-chan DurationKey
	if c.settings != nil {
		changes = c.settings.Watch(ctx, 16)
	}
	close(c.ready)
	for {
		select {
		case <-ctx.Done():
			return nil
		case k, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			c.onSettingsChange(ctx, k)
		}
	}
}

func (c *Controller) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-c.host.Events():
			c.mu.Lock()
			c.last = e
			c.mu.Unlock()
			c.bus.Publish(eventbus.Event{Type: Topic(e.Type), Time: e.At, Data: e})
		}
	}
}

// onSettingsChange resets an active countdown; the next START reads the new
// durations. An idle timer needs nothing.
func (c *Controller) onSettingsChange(ctx context.Context, k DurationKey) {
	c.bus.Publish(eventbus.Event{Type: TopicSettings, Data: string(k)})
	if c.host.Snapshot().Status == StatusIdle {
		c.log.Debug("setting changed while idle", logx.String("key", string(k)))
		return
	}
	c.log.Info("setting changed; resetting active countdown", logx.String("key", string(k)))
	if _, err := c.host.Send(ctx, Command{Action: ActionReset, Reason: ReasonSettings}); err != nil {
		c.log.Warn("settings reset failed", logx.Err(err))
	}
}

// Last is the most recent event received from the host.
func (c *Controller) Last() Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Controller) Snapshot() Snapshot { return c.host.Snapshot() }

func (c *Controller) Do(ctx context.Context, cmd Command) (Snapshot, error) {
	return c.host.Send(ctx, cmd)
}

// Start begins the current phase with its configured length.
func (c *Controller) Start(ctx context.Context) (Snapshot, error) {
	return c.Do(ctx, Command{Action: ActionStart})
}

func (c *Controller) Pause(ctx context.Context) (Snapshot, error) {
	return c.Do(ctx, Command{Action: ActionPause})
}

func (c *Controller) Resume(ctx context.Context) (Snapshot, error) {
	return c.Do(ctx, Command{Action: ActionResume})
}

func (c *Controller) Reset(ctx context.Context) (Snapshot, error) {
	return c.Do(ctx, Command{Action: ActionReset, Reason: ReasonUser})
}

// Toggle is the single play/pause button: running pauses, paused with time
// left resumes, anything else starts.
func (c *Controller) Toggle(ctx context.Context) (Snapshot, error) {
	s := c.host.Snapshot()
	switch {
	case s.Status == StatusRunning:
		return c.Pause(ctx)
	case s.Status == StatusPaused && s.RemainingMs > 0:
		return c.Resume(ctx)
	}
	return c.Start(ctx)
}

// ResetWorkedIfIdle forwards to the host.
func (c *Controller) ResetWorkedIfIdle(ctx context.Context) (bool, error) {
	return c.host.ResetWorkedIfIdle(ctx)
}
