package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault returns def for empty or zero values. Callers run
// Validate first, so a parse error here also falls back to def.
func ParseDurationOrDefault(path, raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField(path, raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
