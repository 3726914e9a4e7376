// Package ts provides a fast lock-free timestamp for recording when an
// event last happened.
package ts

import (
	"sync/atomic"
	"time"
)

// Timestamp records the most recent time at which an event occurred, without
// locking. The zero Timestamp is ready to use and reports "never set".
//
// A Timestamp can move forward in time but never backwards; only Clear resets
// it. All methods are safe for unsynchronized concurrent use.
//
// Internally the value is a single atomic tick count where 0 is the "never
// set" sentinel. A real tick value of 0 is therefore indistinguishable from
// unset; ticks count from a process-local base instant, so this only affects
// an update performed in the very first tick of the process. This collision
// is accepted rather than widening the representation.
type Timestamp struct {
	latest atomic.Uint64
}

// Update advances the timestamp to (at least) the current time.
func (t *Timestamp) Update() {
	t.UpdateTo(Now())
}

// UpdateTo advances the timestamp to (at least) the time now. If now is not
// later than the stored value this is a no-op, so the timestamp never moves
// backwards even under concurrent callers.
func (t *Timestamp) UpdateTo(now Ticks) {
	for {
		cur := t.latest.Load()
		if uint64(now) <= cur {
			return
		}
		if t.latest.CompareAndSwap(cur, uint64(now)) {
			return
		}
	}
}

// UpdateIfUnset sets the timestamp to the current time if it has never been
// set (or has been cleared); otherwise it leaves it alone. When several
// callers race, at most one write wins and every caller observes the
// timestamp as set afterwards.
func (t *Timestamp) UpdateIfUnset() {
	t.latest.CompareAndSwap(0, uint64(Now()))
}

// Clear resets the timestamp to the "never set" state.
func (t *Timestamp) Clear() {
	t.latest.Store(0)
}

// TimeSince returns the time elapsed since the timestamp was last updated.
// ok is false if the timestamp has never been set.
func (t *Timestamp) TimeSince() (d time.Duration, ok bool) {
	return t.TimeSinceAt(Now())
}

// TimeSinceAt returns the time between the last update and now. ok is false
// if the timestamp has never been set, or if now precedes the stored value
// (a clock that ran backwards is treated the same as never set; the result
// is never negative).
func (t *Timestamp) TimeSinceAt(now Ticks) (d time.Duration, ok bool) {
	earlier := t.latest.Load()
	if earlier == 0 || uint64(now) < earlier {
		return 0, false
	}
	return ticksToDuration(uint64(now) - earlier), true
}
