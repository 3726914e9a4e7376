//go:build !js

package ts

import "time"

// Ticks is an opaque monotonic tick count. On native builds ticks are
// nanoseconds since a process-local base instant, so arithmetic is immune to
// wall-clock adjustments.
type Ticks uint64

var base = time.Now()

// Now returns the current monotonic tick count.
func Now() Ticks {
	return Ticks(time.Since(base))
}

func ticksToDuration(delta uint64) time.Duration {
	return time.Duration(delta)
}
