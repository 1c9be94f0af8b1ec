package pomodoro

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"pomodorod/internal/storage"
	logx "pomodorod/pkg/logx"
)

// DurationKey names one configurable duration. The values double as the
// settings store keys.
type DurationKey string

const (
	KeyWork              DurationKey = "workTime"
	KeyShortRest         DurationKey = "shortRest"
	KeyLongRest          DurationKey = "longRest"
	KeyLongRestThreshold DurationKey = "longRestThreshold"
)

// SettingsKeys lists every settings key in display order.
var SettingsKeys = []DurationKey{KeyWork, KeyShortRest, KeyLongRest, KeyLongRestThreshold}

// ParseDurationKey accepts store keys and their short aliases (work, short,
// long, threshold).
func ParseDurationKey(s string) (DurationKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "worktime", "work":
		return KeyWork, nil
	case "shortrest", "short", "rest":
		return KeyShortRest, nil
	case "longrest", "long":
		return KeyLongRest, nil
	case "longrestthreshold", "threshold":
		return KeyLongRestThreshold, nil
	}
	return "", fmt.Errorf("unknown setting %q", s)
}

const (
	MinDuration = time.Minute
	MaxDuration = 120 * time.Minute
)

// FromMinutes converts user input to a Duration. Out-of-range input
// saturates instead of wrapping, so Clamp still lands on the right bound.
func FromMinutes(n int64) time.Duration { return saturate(n, time.Minute) }

// FromMillis is FromMinutes for millisecond input.
func FromMillis(n int64) time.Duration { return saturate(n, time.Millisecond) }

func saturate(n int64, unit time.Duration) time.Duration {
	switch {
	case n > int64(math.MaxInt64/unit):
		return math.MaxInt64
	case n < int64(math.MinInt64/unit):
		return math.MinInt64
	}
	return time.Duration(n) * unit
}

// Durations is an immutable snapshot of the configured phase lengths.
type Durations struct {
	Work              time.Duration
	ShortRest         time.Duration
	LongRest          time.Duration
	LongRestThreshold time.Duration
}

func DefaultDurations() Durations {
	return Durations{
		Work:              25 * time.Minute,
		ShortRest:         5 * time.Minute,
		LongRest:          25 * time.Minute,
		LongRestThreshold: 60 * time.Minute,
	}
}

func (d Durations) Get(k DurationKey) time.Duration {
	switch k {
	case KeyWork:
		return d.Work
	case KeyShortRest:
		return d.ShortRest
	case KeyLongRest:
		return d.LongRest
	case KeyLongRestThreshold:
		return d.LongRestThreshold
	}
	panic(fmt.Sprintf("pomodoro: unknown duration key %q", k))
}

func (d Durations) with(k DurationKey, v time.Duration) Durations {
	switch k {
	case KeyWork:
		d.Work = v
	case KeyShortRest:
		d.ShortRest = v
	case KeyLongRest:
		d.LongRest = v
	case KeyLongRestThreshold:
		d.LongRestThreshold = v
	}
	return d
}

// ForPhase is the nominal length of a phase.
func (d Durations) ForPhase(p Phase) time.Duration {
	return d.Get(phaseKey(p))
}

func phaseKey(p Phase) DurationKey {
	switch p {
	case PhaseWork:
		return KeyWork
	case PhaseRest:
		return KeyShortRest
	case PhaseLongRest:
		return KeyLongRest
	}
	panic(fmt.Sprintf("pomodoro: unknown phase %q", p))
}

// DurationSource yields the durations to use for the next countdown.
type DurationSource interface {
	Durations(ctx context.Context) Durations
}

// SettingsOptions bounds and defaults a Settings.
type SettingsOptions struct {
	Defaults Durations
	Min, Max time.Duration
}

// Settings reads and writes the duration keys in the store. Values are
// stored as decimal milliseconds. Out-of-range values are clamped and
// unparsable values fall back to the default; neither is an error.
type Settings struct {
	st   storage.Store
	log  logx.Logger
	opts SettingsOptions
}

func NewSettings(st storage.Store, opts SettingsOptions, log logx.Logger) *Settings {
	if opts.Defaults == (Durations{}) {
		opts.Defaults = DefaultDurations()
	}
	if opts.Min <= 0 {
		opts.Min = MinDuration
	}
	if opts.Max <= 0 {
		opts.Max = MaxDuration
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Settings{st: st, opts: opts, log: log.With(logx.String("comp", "settings"))}
}

func (s *Settings) Defaults() Durations { return s.opts.Defaults }

func (s *Settings) Clamp(d time.Duration) time.Duration {
	return min(max(d, s.opts.Min), s.opts.Max)
}

// Durations implements DurationSource.
func (s *Settings) Durations(ctx context.Context) Durations {
	out := s.opts.Defaults
	for _, k := range SettingsKeys {
		raw, ok, err := s.st.Get(ctx, string(k))
		if err != nil {
			s.log.Warn("settings read failed; using default", logx.String("key", string(k)), logx.Err(err))
			continue
		}
		if !ok {
			continue
		}
		out = out.with(k, s.decode(k, raw))
	}
	return out
}

func (s *Settings) decode(k DurationKey, raw string) time.Duration {
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || ms <= 0 {
		def := s.opts.Defaults.Get(k)
		s.log.Warn("invalid setting; using default", logx.String("key", string(k)), logx.String("value", raw), logx.Duration("default", def))
		return def
	}
	v := FromMillis(ms)
	if c := s.Clamp(v); c != v {
		s.log.Warn("setting out of range; clamped", logx.String("key", string(k)), logx.Duration("value", v), logx.Duration("clamped", c))
		return c
	}
	return v
}

// Set clamps and stores one duration, returning the stored value.
func (s *Settings) Set(ctx context.Context, k DurationKey, d time.Duration) (time.Duration, error) {
	d = s.Clamp(d)
	if err := s.st.Set(ctx, string(k), encodeMillis(d)); err != nil {
		return 0, fmt.Errorf("store %s: %w", k, err)
	}
	return d, nil
}

// Seed writes d for every key the store does not have yet.
func (s *Settings) Seed(ctx context.Context, d Durations) error {
	missing := map[string]string{}
	for _, k := range SettingsKeys {
		if _, ok, err := s.st.Get(ctx, string(k)); err != nil {
			return err
		} else if !ok {
			missing[string(k)] = encodeMillis(s.Clamp(d.Get(k)))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return s.st.SetMany(ctx, missing)
}

// Clear removes every stored duration so the defaults apply again.
func (s *Settings) Clear(ctx context.Context) error {
	keys := make([]string, 0, len(SettingsKeys))
	for _, k := range SettingsKeys {
		keys = append(keys, string(k))
	}
	return s.st.Delete(ctx, keys...)
}

// Watch delivers the key of every committed settings change. Changes to
// other keys (such as the checkpoint) are filtered out.
func (s *Settings) Watch(ctx context.Context, buffer int) <-chan DurationKey {
	in, unsub := s.st.Subscribe(buffer)
	out := make(chan DurationKey, max(buffer, 1))
	go func() {
		defer close(out)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-in:
				if !ok {
					return
				}
				if !IsSettingsKey(c.Key) {
					continue
				}
				select {
				case out <- DurationKey(c.Key):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// IsSettingsKey reports whether a store key holds a duration setting.
func IsSettingsKey(key string) bool {
	for _, k := range SettingsKeys {
		if string(k) == key {
			return true
		}
	}
	return false
}

// StaticDurations is a DurationSource that never changes.
type StaticDurations Durations

func (s StaticDurations) Durations(context.Context) Durations { return Durations(s) }

func encodeMillis(d time.Duration) string { return strconv.FormatInt(d.Milliseconds(), 10) }
