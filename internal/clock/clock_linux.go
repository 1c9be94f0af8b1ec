//go:build linux

package clock

import (
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// bootTime reads CLOCK_BOOTTIME: monotonic, and unlike CLOCK_MONOTONIC it
// includes time spent suspended.
func bootTime() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return time.Duration(time.Now().UnixNano())
	}
	return time.Duration(ts.Nano())
}

var (
	epochOnce sync.Once
	epoch     string
)

func bootEpoch() string {
	epochOnce.Do(func() {
		b, err := os.ReadFile("/proc/sys/kernel/random/boot_id")
		if err != nil {
			epoch = "linux"
			return
		}
		epoch = strings.TrimSpace(string(b))
	})
	return epoch
}
