package pomodoro

import (
	"fmt"
	"strings"
)

// Phase is the current activity mode.
type Phase string

const (
	PhaseWork     Phase = "WORK"
	PhaseRest     Phase = "REST"
	PhaseLongRest Phase = "LONG_REST"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseWork, PhaseRest, PhaseLongRest:
		return true
	}
	return false
}

// ParsePhase accepts the canonical names case-insensitively.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

// Status is the timer's tri-state run flag.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
)
