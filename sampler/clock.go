package sampler

import (
	"time"
)

// Clock supplies the two time sources rates are computed against.
type Clock interface {
	// MonotonicNanos never goes backwards; only differences are meaningful.
	MonotonicNanos() int64
	// WallMsecs is milliseconds since the Unix epoch.
	WallMsecs() int64
}

type systemClock struct {
	start time.Time
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) MonotonicNanos() int64 {
	return time.Since(c.start).Nanoseconds()
}

func (c *systemClock) WallMsecs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
