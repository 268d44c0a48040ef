package builder

import "time"

// clock decides block timestamps. Time moves with the wall clock shifted by offset; setting the
// start time of the next block turns the difference with the wall clock into the new offset.
type clock struct {
	now       func() time.Time
	offset    int64
	nextStart uint64
}

func (c *clock) next() uint64 {
	now := c.now().Unix()
	if c.nextStart == 0 {
		return uint64(now + c.offset)
	}

	ts := c.nextStart
	c.offset = int64(ts) - now
	c.nextStart = 0
	return ts
}
