// Package ovcounter implements overflow-resistant rate counters used
// throughout the reactor and recorder cores to track per-second rates
// (accepts, bytes, frames) without unbounded memory.
package ovcounter

import (
	"math"
	"sync"
	"time"
)

// Counter tracks a monotonically increasing count since a reference time,
// resetting itself whenever incrementing would overflow. It is safe for
// concurrent use.
type Counter struct {
	mu    sync.Mutex
	count uint32
	since time.Time
	now   func() time.Time
}

// New creates a Counter whose reference clock starts now.
func New() *Counter {
	return &Counter{since: time.Now(), now: time.Now}
}

// Increment adds k to the running count, saturation-detecting on overflow:
// if count+k would overflow a uint32, the counter resets to zero and the
// reference time resets to now.
func (c *Counter) Increment(k uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count > math.MaxUint32-k {
		c.count = 0
		c.since = c.now()
		return
	}
	c.count += k
}

// AveragePerSec returns count * 1e6 / (now - since) in microsecond terms,
// i.e. the mean rate since the reference time. Returns 0 if no time has
// elapsed yet.
func (c *Counter) AveragePerSec() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.now().Sub(c.since)
	if elapsed <= 0 {
		return 0
	}
	return float64(c.count) * float64(time.Second) / float64(elapsed)
}

// Count returns the current raw count.
func (c *Counter) Count() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Reset zeroes the counter and resets the reference time to now.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
	c.since = c.now()
}
