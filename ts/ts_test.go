package ts

import (
	"sync"
	"testing"
	"time"
)

func TestTimestampStartsUnset(t *testing.T) {
	var ts Timestamp
	if _, ok := ts.TimeSince(); ok {
		t.Fatal("zero Timestamp reported as set")
	}
	if _, ok := ts.TimeSinceAt(Now()); ok {
		t.Fatal("zero Timestamp reported as set at explicit instant")
	}
}

func TestTimestampUpdateTo(t *testing.T) {
	var ts Timestamp

	first := Now()
	inABit := first + Ticks(10*time.Second)
	evenLater := first + Ticks(25*time.Second)

	ts.UpdateTo(first)

	d, ok := ts.TimeSinceAt(first)
	if !ok || d != 0 {
		t.Fatalf("TimeSinceAt(first) = %v, %v; want 0, true", d, ok)
	}
	d, ok = ts.TimeSinceAt(inABit)
	if !ok || d < 10*time.Second {
		t.Fatalf("TimeSinceAt(+10s) = %v, %v; want >=10s, true", d, ok)
	}

	ts.UpdateTo(inABit)

	// Clock ran backwards: treated the same as unset, never negative.
	if _, ok := ts.TimeSinceAt(first); ok {
		t.Fatal("earlier instant than stored value reported as set")
	}
	d, ok = ts.TimeSinceAt(evenLater)
	if !ok || d < 15*time.Second {
		t.Fatalf("TimeSinceAt(+25s) = %v, %v; want >=15s, true", d, ok)
	}
}

func TestTimestampAdvanceIsMonotonic(t *testing.T) {
	var ts Timestamp

	later := Now() + Ticks(time.Minute)
	earlier := later - Ticks(30*time.Second)

	ts.UpdateTo(later)
	ts.UpdateTo(earlier) // no-op

	d, ok := ts.TimeSinceAt(later)
	if !ok || d != 0 {
		t.Fatalf("stored value moved backwards: TimeSinceAt(later) = %v, %v", d, ok)
	}
}

func TestTimestampClear(t *testing.T) {
	var ts Timestamp
	ts.Update()
	if _, ok := ts.TimeSince(); !ok {
		t.Fatal("Update did not set the timestamp")
	}
	ts.Clear()
	if _, ok := ts.TimeSince(); ok {
		t.Fatal("Clear did not reset the timestamp")
	}
}

func TestTimestampUpdateIfUnset(t *testing.T) {
	var ts Timestamp

	first := Now() + Ticks(time.Second)
	ts.UpdateTo(first)
	ts.UpdateIfUnset() // no-op once set

	d, ok := ts.TimeSinceAt(first)
	if !ok || d != 0 {
		t.Fatalf("UpdateIfUnset modified a set timestamp: %v, %v", d, ok)
	}

	ts.Clear()
	ts.UpdateIfUnset()
	if _, ok := ts.TimeSince(); !ok {
		t.Fatal("UpdateIfUnset did not set a cleared timestamp")
	}
}

func TestTimestampConcurrentAdvance(t *testing.T) {
	var ts Timestamp
	start := Now()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				ts.UpdateTo(start + Ticks(j*n))
				ts.UpdateIfUnset()
			}
		}(i + 1)
	}
	wg.Wait()

	// Highest tick written wins.
	d, ok := ts.TimeSinceAt(start + Ticks(999*8))
	if !ok || d != 0 {
		t.Fatalf("final value = %v, %v; want 0, true at max written tick", d, ok)
	}
}
