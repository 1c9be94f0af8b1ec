package pomodoro

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"pomodorod/internal/storage"
)

// Checkpoint store keys.
const (
	keyEndTime        = "endTime"
	keyPhaseStartTime = "phaseStartTime"
	keyTimerState     = "timerState"
	keyEndWallTime    = "endWallTime"
	keyBootEpoch      = "bootEpoch"
	keyRunID          = "runId"
	keyWorkedTime     = "workedTime"
)

var checkpointKeys = []string{
	keyEndTime, keyPhaseStartTime, keyTimerState, keyEndWallTime, keyBootEpoch, keyRunID, keyWorkedTime,
}

// Checkpoint is the persisted state of a running countdown. End and
// PhaseStart are monotonic readings under Epoch. PhaseStart is the virtual
// start of the phase (End minus the nominal length), so End - PhaseStart is
// always the phase length and now - PhaseStart the time spent in it.
type Checkpoint struct {
	End        time.Duration
	PhaseStart time.Duration
	Phase      Phase
	EndWall    time.Time
	Epoch      string
	RunID      string
	// Worked is the worked-time counter excluding the current phase.
	Worked time.Duration
}

func (c Checkpoint) PhaseDuration() time.Duration { return c.End - c.PhaseStart }

// CheckpointStore persists checkpoints in the settings store.
type CheckpointStore struct {
	st storage.Store
}

func NewCheckpointStore(st storage.Store) CheckpointStore { return CheckpointStore{st: st} }

func (s CheckpointStore) Save(ctx context.Context, c Checkpoint) error {
	kv := map[string]string{
		keyEndTime:        strconv.FormatInt(c.End.Milliseconds(), 10),
		keyPhaseStartTime: strconv.FormatInt(c.PhaseStart.Milliseconds(), 10),
		keyTimerState:     string(c.Phase),
		keyEndWallTime:    strconv.FormatInt(c.EndWall.UnixMilli(), 10),
		keyBootEpoch:      c.Epoch,
		keyRunID:          c.RunID,
		keyWorkedTime:     strconv.FormatInt(c.Worked.Milliseconds(), 10),
	}
	return s.st.SetMany(ctx, kv)
}

func (s CheckpointStore) Clear(ctx context.Context) error {
	return s.st.Delete(ctx, checkpointKeys...)
}

// Load returns ok=false when no checkpoint is stored. A checkpoint missing its
// deadline or phase is reported as an error.
func (s CheckpointStore) Load(ctx context.Context) (Checkpoint, bool, error) {
	vals := make(map[string]string, len(checkpointKeys))
	for _, k := range checkpointKeys {
		v, ok, err := s.st.Get(ctx, k)
		if err != nil {
			return Checkpoint{}, false, err
		}
		if ok {
			vals[k] = v
		}
	}
	if len(vals) == 0 {
		return Checkpoint{}, false, nil
	}

	var c Checkpoint
	var err error
	if c.End, err = millisField(vals, keyEndTime, true); err != nil {
		return Checkpoint{}, false, err
	}
	if c.PhaseStart, err = millisField(vals, keyPhaseStartTime, true); err != nil {
		return Checkpoint{}, false, err
	}
	if c.Phase, err = ParsePhase(vals[keyTimerState]); err != nil {
		return Checkpoint{}, false, fmt.Errorf("checkpoint %s: %w", keyTimerState, err)
	}
	wall, err := millisField(vals, keyEndWallTime, false)
	if err != nil {
		return Checkpoint{}, false, err
	}
	if wall > 0 {
		c.EndWall = time.UnixMilli(wall.Milliseconds())
	}
	if c.Worked, err = millisField(vals, keyWorkedTime, false); err != nil {
		return Checkpoint{}, false, err
	}
	c.Epoch = vals[keyBootEpoch]
	c.RunID = vals[keyRunID]
	if c.PhaseStart > c.End {
		c.PhaseStart = c.End
	}
	return c, true, nil
}

func millisField(vals map[string]string, key string, required bool) (time.Duration, error) {
	raw, ok := vals[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("checkpoint %s missing", key)
		}
		return 0, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("checkpoint %s: %w", key, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
