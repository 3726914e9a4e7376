//go:build js

package ts

import "time"

// Ticks is an opaque tick count. Browser hosts only expose millisecond
// clock precision, so js builds use wall-clock milliseconds since the Unix
// epoch (the resolution the fetch-based runtime offers).
type Ticks uint64

// Now returns the current tick count in milliseconds.
func Now() Ticks {
	return Ticks(time.Now().UnixMilli())
}

func ticksToDuration(delta uint64) time.Duration {
	return time.Duration(delta) * time.Millisecond
}
