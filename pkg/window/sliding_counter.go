// Package window provides the per-second bucket ring used by the sliding
// window statistics.
package window

import (
	"fmt"

	"ssw-access-monitor/pkg/errors"
)

// SlidingCounter counts hits per second over the last Capacity() seconds.
//
// Buckets live in a fixed slice indexed by timestamp mod capacity, so a
// bucket is reused every capacity seconds and must be closed before it is
// reused. The ring is never resized.
//
// Invariant: total == sum(buckets) after every exported call.
//
// SlidingCounter is not safe for concurrent use; callers serialise access.
type SlidingCounter struct {
	buckets []int64
	total   int64
}

// NewSlidingCounter builds a ring of capacity one-second buckets.
func NewSlidingCounter(capacity int) (*SlidingCounter, error) {
	if capacity <= 0 {
		return nil, errors.InvalidArgument("window", "NewSlidingCounter",
			fmt.Sprintf("capacity must be greater than zero, got %d", capacity)).
			WithMetadata("capacity", capacity)
	}

	return &SlidingCounter{
		buckets: make([]int64, capacity),
	}, nil
}

// index maps a timestamp onto the ring. Go's % keeps the dividend's sign,
// negative timestamps are folded back into [0, capacity).
func (c *SlidingCounter) index(timestamp int64) int {
	n := int64(len(c.buckets))
	i := timestamp % n
	if i < 0 {
		i += n
	}
	return int(i)
}

// Increment adds one hit to the bucket of timestamp.
func (c *SlidingCounter) Increment(timestamp int64) {
	c.buckets[c.index(timestamp)]++
	c.total++
}

// CloseBucket retires the bucket of timestamp so it can be reused.
func (c *SlidingCounter) CloseBucket(timestamp int64) {
	i := c.index(timestamp)
	c.total -= c.buckets[i]
	c.buckets[i] = 0
}

// CloseRange retires every second in [from, to], both ends inclusive, and
// returns how many seconds were retired. Seconds without traffic are retired
// too: leaving them would let a stale bucket survive a gap in the stream.
//
// Once the span reaches the capacity every bucket is visited at least once,
// so the ring is cleared in a single pass instead of walking the whole span.
func (c *SlidingCounter) CloseRange(from, to int64) int64 {
	if to < from {
		return 0
	}

	span := to - from + 1
	if span >= int64(len(c.buckets)) {
		c.Reset()
		return span
	}

	for ts := from; ts <= to; ts++ {
		c.CloseBucket(ts)
	}
	return span
}

// Reset clears every bucket.
func (c *SlidingCounter) Reset() {
	for i := range c.buckets {
		c.buckets[i] = 0
	}
	c.total = 0
}

// Average returns total / capacity using integer floor division.
func (c *SlidingCounter) Average() int64 {
	return c.total / int64(len(c.buckets))
}

// Total returns the number of hits currently in the window.
func (c *SlidingCounter) Total() int64 {
	return c.total
}

// Capacity returns the window length in seconds.
func (c *SlidingCounter) Capacity() int {
	return len(c.buckets)
}

// Snapshot returns a copy of the buckets in ring order.
func (c *SlidingCounter) Snapshot() []int64 {
	out := make([]int64, len(c.buckets))
	copy(out, c.buckets)
	return out
}
