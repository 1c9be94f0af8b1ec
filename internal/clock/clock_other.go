//go:build !linux

package clock

import "time"

// Without a suspend-aware boot clock, fall back to wall time: it is
// persistable across restarts, at the price of following wall adjustments.
func bootTime() time.Duration { return time.Duration(time.Now().UnixNano()) }

func bootEpoch() string { return "wall" }
