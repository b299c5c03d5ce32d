package ovcounter

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementAccumulates(t *testing.T) {
	c := New()
	c.Increment(5)
	c.Increment(10)
	assert.Equal(t, uint32(15), c.Count())
}

func TestIncrementOverflowResets(t *testing.T) {
	c := New()
	c.count = math.MaxUint32 - 3
	before := c.since

	c.Increment(10)

	assert.Equal(t, uint32(0), c.Count())
	assert.True(t, c.since.After(before) || c.since.Equal(before))
}

func TestAveragePerSecWithinTolerance(t *testing.T) {
	start := time.Now()
	tick := start
	c := &Counter{since: start, now: func() time.Time { return tick }}

	c.Increment(1000)
	tick = start.Add(time.Second)

	avg := c.AveragePerSec()
	require.InDelta(t, 1000.0, avg, 100.0) // within 10%
}

func TestAveragePerSecZeroBeforeElapsed(t *testing.T) {
	c := New()
	assert.Equal(t, 0.0, c.AveragePerSec())
}
