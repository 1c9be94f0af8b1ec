package pomodoro

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action is a command verb accepted by the Host.
type Action string

const (
	ActionStart      Action = "START"
	ActionPause      Action = "PAUSE"
	ActionResume     Action = "RESUME"
	ActionReset      Action = "RESET"
	ActionAlarmFired Action = "ALARM_FIRED"
)

var ErrBadCommand = errors.New("invalid timer command")

// Command is a message to the Host.
type Command struct {
	Action     Action `json:"action"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Phase      Phase  `json:"phase,omitempty"`
	// Reason annotates RESET ("user", "settings", "idle").
	Reason string `json:"reason,omitempty"`
}

func (c Command) Validate() error {
	switch c.Action {
	case ActionStart:
		if c.DurationMs < 0 {
			return fmt.Errorf("%w: negative durationMs", ErrBadCommand)
		}
		if c.Phase != "" && !c.Phase.Valid() {
			return fmt.Errorf("%w: unknown phase %q", ErrBadCommand, c.Phase)
		}
	case ActionPause, ActionResume, ActionReset, ActionAlarmFired:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrBadCommand, c.Action)
	}
	return nil
}

// ParseCommand decodes and validates a JSON command. Action and phase are
// case-insensitive.
func ParseCommand(b []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(b, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	c.Action = Action(strings.ToUpper(strings.TrimSpace(string(c.Action))))
	c.Phase = Phase(strings.ToUpper(strings.TrimSpace(string(c.Phase))))
	return c, c.Validate()
}

// EventType names an event emitted by the Host.
type EventType string

const (
	EventStarted  EventType = "STARTED"
	EventTick     EventType = "TICK"
	EventFinished EventType = "FINISHED"
	EventPaused   EventType = "PAUSED"
	EventResumed  EventType = "RESUMED"
	EventReset    EventType = "RESET"
	EventRestored EventType = "RESTORED"
	EventAdvisory EventType = "ADVISORY"
)

// Event reports a timer state change. Only the fields relevant to Type are set.
type Event struct {
	Type        EventType `json:"type"`
	Phase       Phase     `json:"phase,omitempty"`
	RemainingMs int64     `json:"remainingMs"`
	MinutesLeft int64     `json:"minutesLeft"`
	SecondsLeft int64     `json:"secondsLeft"`
	// ElapsedMs is the time spent in the phase so far (PAUSED).
	ElapsedMs int64 `json:"elapsedMs,omitempty"`
	// DurationMs is the nominal phase length (STARTED, FINISHED).
	DurationMs int64     `json:"durationMs,omitempty"`
	WorkedMs   int64     `json:"workedMs"`
	RunID      string    `json:"runId,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

func (e Event) Remaining() time.Duration { return time.Duration(e.RemainingMs) * time.Millisecond }

// Critical events change the timer's state; TICK only refreshes it.
func (e Event) Critical() bool { return e.Type != EventTick }

func newEvent(t EventType, p Phase, remaining time.Duration, at time.Time) Event {
	e := Event{Type: t, Phase: p, At: at}
	e.setRemaining(remaining)
	return e
}

func (e *Event) setRemaining(d time.Duration) {
	e.RemainingMs = max(d, 0).Milliseconds()
	// Round up so a fresh 25 minute phase shows 25:00, not 24:59.
	secs := (e.RemainingMs + 999) / 1000
	e.MinutesLeft = secs / 60
	e.SecondsLeft = secs % 60
}

// Snapshot is the last reported timer state.
type Snapshot struct {
	Status          Status    `json:"status"`
	Phase           Phase     `json:"phase"`
	RemainingMs     int64     `json:"remainingMs"`
	MinutesLeft     int64     `json:"minutesLeft"`
	SecondsLeft     int64     `json:"secondsLeft"`
	PhaseDurationMs int64     `json:"phaseDurationMs"`
	WorkedMs        int64     `json:"workedMs"`
	RunID           string    `json:"runId,omitempty"`
	EndsAt          time.Time `json:"endsAt,omitzero"`
	ExactWake       bool      `json:"exactWake"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
