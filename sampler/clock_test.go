package sampler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	nanos int64
	msecs int64
}

func (c *fakeClock) MonotonicNanos() int64 { return c.nanos }
func (c *fakeClock) WallMsecs() int64      { return c.msecs }

func (c *fakeClock) advance(d time.Duration) {
	c.nanos += d.Nanoseconds()
	c.msecs += d.Milliseconds()
}

func TestSystemClock(t *testing.T) {
	c := SystemClock()
	first := c.MonotonicNanos()
	time.Sleep(time.Millisecond)
	assert.True(t, c.MonotonicNanos() > first)

	now := time.Now().UnixNano() / int64(time.Millisecond)
	assert.InDelta(t, now, c.WallMsecs(), 1000)
}
