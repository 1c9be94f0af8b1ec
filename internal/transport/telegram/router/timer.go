package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pomodorod/internal/pomodoro"
	kit "pomodorod/internal/transport"
	"pomodorod/pkg/tgui"
)

// ButtonScope prefixes the callback data of the timer control keyboard.
const ButtonScope = "timer"

// Timer is the part of the controller the bot drives.
type Timer interface {
	Start(ctx context.Context) (pomodoro.Snapshot, error)
	Pause(ctx context.Context) (pomodoro.Snapshot, error)
	Resume(ctx context.Context) (pomodoro.Snapshot, error)
	Reset(ctx context.Context) (pomodoro.Snapshot, error)
	Toggle(ctx context.Context) (pomodoro.Snapshot, error)
	Snapshot() pomodoro.Snapshot
}

// Settings is the duration store the bot edits.
type Settings interface {
	Durations(ctx context.Context) pomodoro.Durations
	Set(ctx context.Context, k pomodoro.DurationKey, d time.Duration) (time.Duration, error)
	Clear(ctx context.Context) error
}

// TimerCommands builds the owner-only timer commands.
func TimerCommands(t Timer, s Settings) []Command {
	action := func(fn func(context.Context) (pomodoro.Snapshot, error)) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			snap, err := fn(ctx)
			if err != nil {
				return err
			}
			return req.ReplyKeyboard(ctx, FormatSnapshot(snap), ControlKeyboard(snap))
		}
	}
	return []Command{
		{Name: "start", Description: "start the current phase", OwnerOnly: true, Handle: action(t.Start)},
		{Name: "pause", Description: "pause the countdown", OwnerOnly: true, Handle: action(t.Pause)},
		{Name: "resume", Description: "resume a paused countdown", OwnerOnly: true, Handle: action(t.Resume)},
		{Name: "reset", Description: "stop and return to WORK", OwnerOnly: true, Handle: action(t.Reset)},
		{Name: "toggle", Aliases: []string{"t"}, Description: "play/pause", OwnerOnly: true, Handle: action(t.Toggle)},
		{
			Name: "status", Aliases: []string{"s"}, Description: "show the timer", OwnerOnly: true,
			Handle: func(ctx context.Context, req *Request) error {
				snap := t.Snapshot()
				return req.ReplyKeyboard(ctx, FormatSnapshot(snap), ControlKeyboard(snap))
			},
		},
		{
			Name: "settings", Description: "show durations", OwnerOnly: true,
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, FormatDurations(s.Durations(ctx)))
			},
		},
		{
			Name: "set", Description: "change a duration", Usage: "/set <work|short|long|threshold> <minutes>", OwnerOnly: true,
			Handle: func(ctx context.Context, req *Request) error {
				if len(req.Args) != 2 {
					return ErrUsage
				}
				k, err := pomodoro.ParseDurationKey(req.Args[0])
				if err != nil {
					return ErrUsage
				}
				// ParseInt saturates on ErrRange; the store clamps from there.
				minutes, err := strconv.ParseInt(req.Args[1], 10, 64)
				if err != nil && !errors.Is(err, strconv.ErrRange) {
					return ErrUsage
				}
				got, err := s.Set(ctx, k, pomodoro.FromMinutes(minutes))
				if err != nil {
					return err
				}
				return req.Reply(ctx, fmt.Sprintf("%s set to %s", k, formatMinutes(got)))
			},
		},
		{
			Name: "defaults", Description: "restore default durations", OwnerOnly: true,
			Handle: func(ctx context.Context, req *Request) error {
				if err := s.Clear(ctx); err != nil {
					return err
				}
				return req.Reply(ctx, FormatDurations(s.Durations(ctx)))
			},
		},
	}
}

// TimerButtons serves the control keyboard: each press runs the action and
// redraws the message it came from.
func TimerButtons(t Timer) ButtonHandler {
	return ButtonHandler{
		Scope:     ButtonScope,
		OwnerOnly: true,
		Handle: func(ctx context.Context, req *Request) error {
			var fn func(context.Context) (pomodoro.Snapshot, error)
			switch req.Command {
			case "start":
				fn = t.Start
			case "pause":
				fn = t.Pause
			case "resume":
				fn = t.Resume
			case "reset":
				fn = t.Reset
			case "toggle":
				fn = t.Toggle
			case "refresh":
				fn = func(context.Context) (pomodoro.Snapshot, error) { return t.Snapshot(), nil }
			default:
				return fmt.Errorf("unknown action %q", req.Command)
			}
			snap, err := fn(ctx)
			if err != nil {
				return err
			}
			return req.Edit(ctx, FormatSnapshot(snap), ControlKeyboard(snap))
		},
	}
}

// ControlKeyboard mirrors the play/pause and reset buttons for the state
// in s.
func ControlKeyboard(s pomodoro.Snapshot) [][]kit.Button {
	btn := func(text, action string) kit.Button {
		data, _ := tgui.Data(ButtonScope, action)
		return kit.Button{Text: text, Data: data}
	}
	var row []kit.Button
	switch {
	case s.Status == pomodoro.StatusRunning:
		row = append(row, btn("⏸ Pause", "pause"), btn("⟲ Reset", "reset"))
	case s.Status == pomodoro.StatusPaused && s.RemainingMs > 0:
		row = append(row, btn("▶️ Resume", "resume"), btn("⟲ Reset", "reset"))
	default:
		row = append(row, btn("▶️ Start", "start"))
	}
	return [][]kit.Button{row, {btn("🔄 Refresh", "refresh")}}
}

// FormatSnapshot renders a snapshot as a short HTML status.
func FormatSnapshot(s pomodoro.Snapshot) string {
	icon := "⏹"
	switch s.Status {
	case pomodoro.StatusRunning:
		icon = "▶️"
	case pomodoro.StatusPaused:
		icon = "⏸"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s %02d:%02d\n", icon, tgui.B(string(s.Phase)), s.Status, s.MinutesLeft, s.SecondsLeft)
	fmt.Fprintf(&b, "worked: %s", formatMinutes(time.Duration(s.WorkedMs)*time.Millisecond))
	if !s.ExactWake && s.Status == pomodoro.StatusRunning {
		b.WriteString("\n⚠️ exact wake unavailable")
	}
	return b.String()
}

func FormatDurations(d pomodoro.Durations) string {
	var b strings.Builder
	b.WriteString(tgui.B("Durations").String())
	for _, k := range pomodoro.SettingsKeys {
		fmt.Fprintf(&b, "\n%s: %s", k, formatMinutes(d.Get(k)))
	}
	return b.String()
}

func formatMinutes(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
