//go:build linux
// +build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific implementation for setting thread CPU affinity.

package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// setAffinityPlatform sets the calling OS thread's affinity to a given CPU core.
// It calls runtime.LockOSThread itself and never unlocks, so the calling
// goroutine stays on the pinned thread instead of being migrated by Go's
// scheduler.
func setAffinityPlatform(cpuID int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: SchedSetaffinity failed: %w", err)
	}
	return nil
}
